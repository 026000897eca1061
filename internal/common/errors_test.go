package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFoundError("document %d not found", 7), http.StatusNotFound},
		{InvalidInputError("bad id"), http.StatusBadRequest},
		{ConflictError("busy"), http.StatusConflict},
		{ExtractionFailedError("no text recognized", nil), http.StatusUnprocessableEntity},
		{ExtractionFailedError("analysis timed out", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{NewAppError(KindBlobDeleteFailed, "could not remove file", errors.New("EIO")), http.StatusInternalServerError},
		{NewAppError(KindUnavailable, "database unavailable", nil), http.StatusServiceUnavailable},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("service: %w", NotFoundError("document not found"))
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not_found, got %s", KindOf(err))
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected ErrNotFound in chain")
	}
}

func TestPublicMessageHidesCause(t *testing.T) {
	cause := errors.New("open /var/data/documents/abc.png: permission denied")
	err := NewAppError(KindBlobWriteFailed, "failed to store file", cause)
	if msg := PublicMessage(err); msg != "failed to store file" {
		t.Fatalf("unexpected public message %q", msg)
	}
	if msg := PublicMessage(cause); msg != "internal server error" {
		t.Fatalf("raw errors must not leak, got %q", msg)
	}
}

func TestParseID(t *testing.T) {
	if id, err := ParseID("id", "42"); err != nil || id != 42 {
		t.Fatalf("ParseID(42) = %d, %v", id, err)
	}
	for _, raw := range []string{"", "abc", "0", "-3", "1.5"} {
		if _, err := ParseID("id", raw); KindOf(err) != KindInvalidInput {
			t.Errorf("ParseID(%q) expected invalid input, got %v", raw, err)
		}
	}
}

func TestParseFlag(t *testing.T) {
	if b, err := ParseFlag("force", ""); err != nil || b {
		t.Fatalf("empty flag = %v, %v", b, err)
	}
	if b, err := ParseFlag("force", "true"); err != nil || !b {
		t.Fatalf("true flag = %v, %v", b, err)
	}
	if _, err := ParseFlag("force", "maybe"); KindOf(err) != KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
