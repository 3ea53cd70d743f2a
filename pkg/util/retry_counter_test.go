package util_test

import (
	"testing"

	"jobmail/internal/mqhandler"
	"jobmail/pkg/util"
)

var _ mqhandler.RetryCounter = (*util.RetryCounter)(nil)

func TestFormatRetryKey(t *testing.T) {
	if got := util.FormatRetryKey("classify", "u1", "E1"); got != "retry:classify:u1:E1" {
		t.Errorf("FormatRetryKey = %q", got)
	}
}
