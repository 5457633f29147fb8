package httperr

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/corevault-registry/corevault-registry/internal/artifacts"
	"github.com/corevault-registry/corevault-registry/internal/auth"
	"github.com/corevault-registry/corevault-registry/internal/releases"
	"github.com/corevault-registry/corevault-registry/internal/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"forbidden", auth.ErrForbidden, http.StatusForbidden},
		{"wrapped forbidden", fmt.Errorf("create release: %w", auth.ErrForbidden), http.StatusForbidden},
		{"not found", releases.ErrNotFound, http.StatusNotFound},
		{"duplicate version", releases.ErrDuplicateVersion, http.StatusConflict},
		{"already yanked", releases.ErrAlreadyYanked, http.StatusConflict},
		{"bad slug", &validation.SlugError{Value: "Bad_Slug", Reason: validation.SlugGrammar}, http.StatusBadRequest},
		{"bad version", &validation.VersionError{Value: "1..0", Reason: validation.VersionGrammar}, http.StatusBadRequest},
		{"bad filename", fmt.Errorf("%w: ../x", validation.ErrInvalidFilename), http.StatusBadRequest},
		{"no artifacts", releases.ErrNoArtifacts, http.StatusBadRequest},
		{"duplicate filename", releases.ErrDuplicateFilename, http.StatusBadRequest},
		{"platform mismatch", releases.ErrPlatformMismatch, http.StatusBadRequest},
		{"prerelease restore", releases.ErrPrereleaseRestore, http.StatusBadRequest},
		{"external without url", artifacts.ErrMissingDownloadURL, http.StatusBadRequest},
		{"oversized upload", &artifacts.IngestError{Filename: "big.bin", Err: artifacts.ErrTooLarge}, http.StatusRequestEntityTooLarge},
		{"ingest backend failure", &artifacts.IngestError{Filename: "f.bin", Err: errors.New("connection reset")}, http.StatusBadGateway},
		{"unavailable", fmt.Errorf("%w: dial tcp: refused", releases.ErrUnavailable), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Status(tt.err); got != tt.want {
				t.Errorf("Status(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWriteHidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Write(c, errors.New("pq: column does not exist"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := w.Body.String(); body != `{"error":"internal server error"}` {
		t.Errorf("body = %s, leaked internal error detail", body)
	}
}

func TestWriteKeepsDomainMessages(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Write(c, releases.ErrDuplicateVersion)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	if body := w.Body.String(); body == `{"error":"internal server error"}` {
		t.Error("domain error message was replaced with the generic one")
	}
}

func TestRetryUnavailable(t *testing.T) {
	t.Run("retries once on unavailable", func(t *testing.T) {
		calls := 0
		err := RetryUnavailable(func() error {
			calls++
			if calls == 1 {
				return fmt.Errorf("%w: timeout", releases.ErrUnavailable)
			}
			return nil
		})
		if err != nil {
			t.Errorf("err = %v, want nil after retry", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("gives up after the second failure", func(t *testing.T) {
		calls := 0
		err := RetryUnavailable(func() error {
			calls++
			return fmt.Errorf("%w: still down", releases.ErrUnavailable)
		})
		if !errors.Is(err, releases.ErrUnavailable) {
			t.Errorf("err = %v, want ErrUnavailable", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want exactly 2", calls)
		}
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		calls := 0
		err := RetryUnavailable(func() error {
			calls++
			return releases.ErrDuplicateVersion
		})
		if !errors.Is(err, releases.ErrDuplicateVersion) {
			t.Errorf("err = %v", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})

	t.Run("success is not retried", func(t *testing.T) {
		calls := 0
		if err := RetryUnavailable(func() error { calls++; return nil }); err != nil {
			t.Errorf("err = %v", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}
