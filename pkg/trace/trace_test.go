package trace

import (
	"context"
	"testing"
)

func TestWithContextRoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), "abc")
	if got := FromContext(ctx); got != "abc" {
		t.Errorf("FromContext = %q", got)
	}
	if got := FromContext(context.Background()); got != "" {
		t.Errorf("empty context should have no trace id, got %q", got)
	}
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background(), "")
	if id == "" || FromContext(ctx) != id {
		t.Errorf("Ensure should generate and attach an id, got %q", id)
	}

	ctx2, id2 := Ensure(ctx, "")
	if id2 != id || FromContext(ctx2) != id {
		t.Errorf("Ensure should keep the existing id")
	}

	_, id3 := Ensure(context.Background(), "given")
	if id3 != "given" {
		t.Errorf("Ensure should prefer the given id, got %q", id3)
	}
}
