package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{BadRequest("x"), http.StatusBadRequest},
		{Unauthorized("x"), http.StatusUnauthorized},
		{Forbidden("x"), http.StatusForbidden},
		{NotFound("x"), http.StatusNotFound},
		{Internal("x", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestPublicMessageHidesInternalCause(t *testing.T) {
	err := Internal("store message", errors.New("pq: connection refused"))
	msg := PublicMessage(err)
	if msg == "" {
		t.Fatal("empty public message")
	}
	for _, leak := range []string{"pq:", "connection refused"} {
		if strings.Contains(msg, leak) {
			t.Errorf("public message %q leaks internal cause", msg)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal("wrap", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}

	wrapped := fmt.Errorf("outer: %w", NotFound("missing"))
	if CodeOf(wrapped) != CodeNotFound {
		t.Errorf("CodeOf(wrapped) = %v, want not found", CodeOf(wrapped))
	}
}
