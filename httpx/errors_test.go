package httpx

import (
	"errors"
	"net/http"
	"testing"

	"github.com/opina-app/opina/fault"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fault.Validation("bad"), http.StatusBadRequest},
		{"not found", fault.NotFound("gone"), http.StatusNotFound},
		{"unauthorized", fault.Unauthorized("nope"), http.StatusUnauthorized},
		{"forbidden", fault.Forbidden("nope"), http.StatusForbidden},
		{"conflict", fault.Conflict("referenced"), http.StatusConflict},
		{"internal", fault.Internal("oops", errors.New("cause")), http.StatusInternalServerError},
		{"plain error", errors.New("oops"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %d, want %d", got, tt.want)
			}
		})
	}
}
