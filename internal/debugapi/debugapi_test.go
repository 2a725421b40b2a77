package debugapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dantte-lp/lf-rti/internal/federation"
	"github.com/dantte-lp/lf-rti/internal/tag"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandleStatusReportsFederateSnapshot(t *testing.T) {
	f := federation.New(
		testLogger(),
		"demo",
		2,
		[]federation.Edge{{From: 0, To: 1, Delay: 0}},
	)
	_ = f.OnNextEventTag(0, tag.New(5, 0))

	srv := httptest.NewServer(func() http.Handler {
		mux := http.NewServeMux()
		NewHandler(f).Register(mux)
		return mux
	}())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got StatusView
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FederationID != "demo" || got.Size != 2 || len(got.Federates) != 2 {
		t.Fatalf("unexpected status view: %+v", got)
	}
	if got.Federates[0].NextEvent != 5 {
		t.Fatalf("federate 0 next_event_time = %d, want 5", got.Federates[0].NextEvent)
	}
}

func TestHandleSetLogLevelUpdatesLevelVar(t *testing.T) {
	f := federation.New(testLogger(), "demo", 1, nil)
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	mux := http.NewServeMux()
	NewHandlerWithLevel(f, level).Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/loglevel", "application/json", strings.NewReader(`{"level":"debug"}`))
	if err != nil {
		t.Fatalf("POST /loglevel: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if level.Level() != slog.LevelDebug {
		t.Fatalf("level = %v, want Debug", level.Level())
	}
}

func TestHandleSetLogLevelAbsentWithoutLevelVar(t *testing.T) {
	f := federation.New(testLogger(), "demo", 1, nil)

	mux := http.NewServeMux()
	NewHandler(f).Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/loglevel", "application/json", strings.NewReader(`{"level":"debug"}`))
	if err != nil {
		t.Fatalf("POST /loglevel: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleHealthz(t *testing.T) {
	f := federation.New(testLogger(), "demo", 1, nil)

	mux := http.NewServeMux()
	NewHandler(f).Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
