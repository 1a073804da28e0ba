package metrics

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/registry"
)

func TestStatusWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: 200}
	sw.WriteHeader(http.StatusTeapot)
	if sw.status != http.StatusTeapot {
		t.Errorf("status = %d, want %d", sw.status, http.StatusTeapot)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("underlying code = %d", rec.Code)
	}
}

func TestInstrumentHandler_ServesThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(InstrumentHandler)
	r.Get("/api/clips/{key}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/clips/src1-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("code = %d", rec.Code)
	}
}

type fakeStats struct{ n int }

func (f fakeStats) ActiveJobs() int { return f.n }

func TestCollector_EmitsGauges(t *testing.T) {
	reg, err := registry.Open(filepath.Join(t.TempDir(), "r.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("registry open: %v", err)
	}
	defer reg.Close()

	c := NewCollector(reg, fakeStats{n: 2})

	descs := make(chan *prometheus.Desc, 8)
	c.Describe(descs)
	if len(descs) != 4 {
		t.Errorf("described %d metrics, want 4", len(descs))
	}

	ch := make(chan prometheus.Metric, 8)
	c.Collect(ch)
	if len(ch) != 4 {
		t.Fatalf("collected %d metrics, want 4", len(ch))
	}
}

func TestCollector_NilSourcesReportZero(t *testing.T) {
	c := NewCollector(nil, nil)
	ch := make(chan prometheus.Metric, 8)
	c.Collect(ch)
	if len(ch) != 4 {
		t.Fatalf("collected %d metrics, want 4", len(ch))
	}
}
