package bridge

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/pwsbridge/internal/influx"
	"github.com/lox/pwsbridge/internal/store"
	"github.com/lox/pwsbridge/internal/wunderground"
)

const observationBody = `{"observations":[{
	"stationID": "IPARIS18204",
	"obsTimeUtc": "2023-01-01T12:00:00Z",
	"humidity": 55,
	"metric": {"temp": 21.5}
}]}`

// influxRecorder captures line-protocol batches and can be toggled to fail.
type influxRecorder struct {
	mu      sync.Mutex
	batches []string
	failing bool
}

func (ir *influxRecorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ir.mu.Lock()
		defer ir.mu.Unlock()
		if ir.failing {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		b, _ := io.ReadAll(r.Body)
		ir.batches = append(ir.batches, string(b))
		w.WriteHeader(http.StatusNoContent)
	})
}

func (ir *influxRecorder) setFailing(failing bool) {
	ir.mu.Lock()
	ir.failing = failing
	ir.mu.Unlock()
}

func (ir *influxRecorder) lines() []string {
	ir.mu.Lock()
	defer ir.mu.Unlock()
	var lines []string
	for _, b := range ir.batches {
		lines = append(lines, strings.Split(b, "\n")...)
	}
	return lines
}

func newTestWriter(t *testing.T, url string) *influx.Writer {
	t.Helper()
	w, err := influx.NewWriter(influx.WriterOptions{URL: url, Database: "weather", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	return w
}

func newTestSpool(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	spool := store.New(db)
	if err := spool.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return spool
}

func TestCyclePublishesObservation(t *testing.T) {
	wu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(observationBody))
	}))
	defer wu.Close()

	rec := &influxRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	client := wunderground.New(wunderground.Options{ObservationURL: wu.URL})
	b := New(client, newTestWriter(t, ts.URL), nil, Config{
		Stations: []string{"IPARIS18204"},
		Unit:     wunderground.Metric,
		APIKey:   "testkey",
	})

	b.Cycle(context.Background())

	lines := rec.lines()
	if len(lines) != 1 {
		t.Fatalf("lines = %v, want 1", lines)
	}
	if !strings.Contains(lines[0], "station=IPARIS18204") {
		t.Errorf("missing station tag: %q", lines[0])
	}
	if !strings.Contains(lines[0], "temp=21.5") || !strings.Contains(lines[0], "humidity=55") {
		t.Errorf("missing fields: %q", lines[0])
	}
}

func TestCycleSkipsNoData(t *testing.T) {
	wu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer wu.Close()

	rec := &influxRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	client := wunderground.New(wunderground.Options{ObservationURL: wu.URL})
	b := New(client, newTestWriter(t, ts.URL), nil, Config{
		Stations: []string{"IQUIET1"},
		Unit:     wunderground.Metric,
		APIKey:   "testkey",
	})

	b.Cycle(context.Background())

	if lines := rec.lines(); len(lines) != 0 {
		t.Errorf("lines = %v, want none for no data", lines)
	}
}

func TestCycleSkipsInvalidObservation(t *testing.T) {
	wu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"observations":[{
			"stationID": "IPARIS18204",
			"obsTimeUtc": "2023-01-01T12:00:00Z",
			"humidity": 140,
			"metric": {"temp": 21.5}
		}]}`))
	}))
	defer wu.Close()

	rec := &influxRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	client := wunderground.New(wunderground.Options{ObservationURL: wu.URL})
	b := New(client, newTestWriter(t, ts.URL), nil, Config{
		Stations: []string{"IPARIS18204"},
		Unit:     wunderground.Metric,
		APIKey:   "testkey",
	})

	b.Cycle(context.Background())

	if lines := rec.lines(); len(lines) != 0 {
		t.Errorf("lines = %v, want none for invalid observation", lines)
	}
}

func TestCycleDedupesRepeatedObservation(t *testing.T) {
	wu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(observationBody))
	}))
	defer wu.Close()

	rec := &influxRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	client := wunderground.New(wunderground.Options{ObservationURL: wu.URL})
	b := New(client, newTestWriter(t, ts.URL), nil, Config{
		Stations: []string{"IPARIS18204"},
		Unit:     wunderground.Metric,
		APIKey:   "testkey",
	})

	b.Cycle(context.Background())
	b.Cycle(context.Background())

	if lines := rec.lines(); len(lines) != 1 {
		t.Errorf("lines = %v, want the repeated observation published once", lines)
	}
}

func TestCycleSpoolsFailedWrites(t *testing.T) {
	wu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(observationBody))
	}))
	defer wu.Close()

	rec := &influxRecorder{}
	rec.setFailing(true)
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	spool := newTestSpool(t)
	client := wunderground.New(wunderground.Options{ObservationURL: wu.URL})

	// Tight write deadline so the failing writer gives up quickly.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b := New(client, newTestWriter(t, ts.URL), spool, Config{
		Stations: []string{"IPARIS18204"},
		Unit:     wunderground.Metric,
		APIKey:   "testkey",
	})
	b.Cycle(ctx)

	depth, err := spool.Depth()
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 1 {
		t.Fatalf("depth = %d, want 1 spooled point", depth)
	}

	// Store recovers; the next cycle flushes the spool.
	rec.setFailing(false)
	b.Cycle(context.Background())

	depth, err = spool.Depth()
	if err != nil {
		t.Fatalf("depth: %v", err)
	}
	if depth != 0 {
		t.Errorf("depth = %d, want empty spool after flush", depth)
	}
	lines := rec.lines()
	if len(lines) != 1 {
		t.Fatalf("lines = %v, want 1 flushed point", lines)
	}
	if !strings.Contains(lines[0], "station=IPARIS18204") {
		t.Errorf("flushed line = %q", lines[0])
	}
}

func TestEnsureAPIKeyFetchedOnce(t *testing.T) {
	var keyRequests int
	keyPage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keyRequests++
		w.Write([]byte(`<script>apiKey=6532d6454b8aa370768e63d6ba5a832e&v=1</script>`))
	}))
	defer keyPage.Close()

	wu := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apiKey") != "6532d6454b8aa370768e63d6ba5a832e" {
			t.Errorf("apiKey = %q", r.URL.Query().Get("apiKey"))
		}
		w.Write([]byte(observationBody))
	}))
	defer wu.Close()

	rec := &influxRecorder{}
	ts := httptest.NewServer(rec.handler())
	defer ts.Close()

	client := wunderground.New(wunderground.Options{
		ObservationURL: wu.URL,
		KeyPageURL:     keyPage.URL,
	})
	b := New(client, newTestWriter(t, ts.URL), nil, Config{
		Stations: []string{"IPARIS18204"},
		Unit:     wunderground.Metric,
	})

	b.Cycle(context.Background())
	b.Cycle(context.Background())

	if keyRequests != 1 {
		t.Errorf("keyRequests = %d, want the key cached after one fetch", keyRequests)
	}
}

func TestServerHealth(t *testing.T) {
	srv := httptest.NewServer(NewServer(":0").Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp2.StatusCode)
	}
}
