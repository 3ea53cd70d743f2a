package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"jobmail/pkg/lock"
)

func TestIsRetryableError(t *testing.T) {
	var syntaxErr error
	if err := json.Unmarshal([]byte("{"), &struct{}{}); err != nil {
		syntaxErr = err
	}

	tests := []struct {
		name      string
		err       error
		retryable bool
		errType   string
	}{
		{"nil", nil, false, ""},
		{"json", fmt.Errorf("decode: %w", syntaxErr), false, "json_decode_error"},
		{"extraction", errors.New("extractor: extraction failed: boom"), false, "extraction_error"},
		{"canceled", fmt.Errorf("merge: %w", context.Canceled), false, "context_canceled"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"lock", fmt.Errorf("merge: lock user u1: %w", lock.ErrNotAcquired), true, "lock_not_acquired"},
		{"conflict", errors.New("merge: gave up after 4 attempts: merge: concurrent update"), true, "merge_conflict"},
		{"serialization", &pgconn.PgError{Code: "40001"}, true, "db_serialization"},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true, "db_connection_error"},
		{"syntax", &pgconn.PgError{Code: "42601"}, false, "db_error"},
		{"unknown", errors.New("something odd"), false, "unknown_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, errType := IsRetryableError(tt.err)
			if retryable != tt.retryable || errType != tt.errType {
				t.Errorf("IsRetryableError(%v) = (%v, %q), want (%v, %q)",
					tt.err, retryable, errType, tt.retryable, tt.errType)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	if !ShouldRetry(1, 3, true) {
		t.Error("first retry should be allowed")
	}
	if ShouldRetry(4, 3, true) {
		t.Error("retry beyond the limit should be refused")
	}
	if ShouldRetry(1, 3, false) {
		t.Error("non-retryable errors never retry")
	}
}

func TestFormatKeys(t *testing.T) {
	if got := FormatRetryKey("merge", "u1", "m1"); got != "retry:merge:u1:m1" {
		t.Errorf("FormatRetryKey = %q", got)
	}
	if got := FormatDedupKey("merge", "u1", "m1"); got != "dedup:merge:u1:m1" {
		t.Errorf("FormatDedupKey = %q", got)
	}
}
