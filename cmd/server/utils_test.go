package main

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/caretta-labs/trackserver"
)

func TestStatusCodeForKind(t *testing.T) {
	tests := []struct {
		kind trackserver.ErrorKind
		want int
	}{
		{trackserver.ErrInvalidParameter, 400},
		{trackserver.ErrNotFound, 404},
		{trackserver.ErrConflict, 409},
		{trackserver.ErrStorage, 500},
	}

	for _, tt := range tests {
		if got := statusCodeForKind(tt.kind); got != tt.want {
			t.Fatalf("statusCodeForKind(%q) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestWriteErrorTrackerError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, trackserver.NewConflict(trackserver.CodeDuplicateName, "experiment name already exists"))

	if rec.Code != 409 {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "experiment name already exists") {
		t.Fatalf("expected body to contain message, got %q", rec.Body.String())
	}
}

func TestWriteErrorUnknownErrorIsSanitised(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("pq: connection refused on internal host 10.0.0.5"))

	if rec.Code != 500 {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatalf("expected internal error details not to leak, got %q", rec.Body.String())
	}
}
