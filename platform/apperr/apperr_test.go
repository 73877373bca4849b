package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestHTTPStatusPerKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindBadRequest, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindUpstream, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
		{KindUnknown, http.StatusBadRequest},
	}

	for _, tt := range tests {
		if got := New(tt.kind, "x").HTTPStatus(); got != tt.want {
			t.Fatalf("kind %d: expected status %d, got %d", tt.kind, tt.want, got)
		}
	}
}

func TestUpstreamWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream("CRM no disponible", cause)

	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause must survive errors.Is")
	}
	if !Is(err, KindUpstream) {
		t.Fatal("kind check must match through the typed error")
	}
	if Is(cause, KindUpstream) {
		t.Fatal("untyped errors must not match any kind")
	}
}
