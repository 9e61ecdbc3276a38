package bridge

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/lox/pwsbridge/internal/influx"
	"github.com/lox/pwsbridge/internal/metrics"
	"github.com/lox/pwsbridge/internal/store"
	"github.com/lox/pwsbridge/internal/wunderground"
)

const spoolBatchSize = 500

// Config carries everything a bridge cycle needs; the bridge holds no other
// state between cycles beyond the cached API key and dedupe watermarks.
type Config struct {
	Stations []string
	Interval time.Duration
	Unit     wunderground.Unit

	// APIKey, when set, skips the homepage scrape entirely. A scraped key
	// is cached until the API rejects it.
	APIKey string
}

// Bridge runs the fetch-convert-publish loop. Core errors are logged and
// skip the station for the cycle; nothing is retried at this level except
// through the write-behind spool.
type Bridge struct {
	client *wunderground.Client
	writer *influx.Writer
	spool  *store.Store
	cfg    Config

	breaker *gobreaker.CircuitBreaker

	apiKey        string
	keyScraped    bool
	lastPublished map[string]time.Time
}

func New(client *wunderground.Client, writer *influx.Writer, spool *store.Store, cfg Config) *Bridge {
	return &Bridge{
		client: client,
		writer: writer,
		spool:  spool,
		cfg:    cfg,
		apiKey: cfg.APIKey,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "wunderground",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			Timeout: 2 * time.Minute,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Printf("bridge: breaker %s: %s -> %s", name, from, to)
			},
		}),
		lastPublished: make(map[string]time.Time),
	}
}

// Run cycles immediately, then on every interval tick until the context is
// cancelled.
func (b *Bridge) Run(ctx context.Context) {
	b.Cycle(ctx)

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("bridge: shutting down")
			return
		case <-ticker.C:
			b.Cycle(ctx)
		}
	}
}

// Cycle flushes any spooled points, then fetches and publishes one
// observation per configured station.
func (b *Bridge) Cycle(ctx context.Context) {
	b.flushSpool(ctx)

	for _, stationID := range b.cfg.Stations {
		if err := b.processStation(ctx, stationID); err != nil {
			log.Printf("bridge: station %s: %v", stationID, err)
		}
		if ctx.Err() != nil {
			return
		}
	}

	b.updateSpoolDepth()
}

func (b *Bridge) processStation(ctx context.Context, stationID string) error {
	apiKey, err := b.ensureAPIKey(ctx)
	if err != nil {
		return err
	}

	raw, err := b.fetchObservation(ctx, apiKey, stationID)
	if err != nil {
		var terr *wunderground.TransportError
		if errors.As(err, &terr) && b.keyScraped &&
			(terr.Status == 401 || terr.Status == 403) {
			// Scraped keys expire; drop the cache so the next station
			// fetches a fresh one.
			b.apiKey = ""
		}
		return err
	}
	if raw == nil {
		log.Printf("bridge: station %s: no data, skipping cycle", stationID)
		return nil
	}

	obs, err := wunderground.Convert(raw, stationID, b.cfg.Unit)
	if err != nil {
		return err
	}

	if last, ok := b.lastPublished[stationID]; ok && !obs.Time.After(last) {
		// The current endpoint repeats the same observation between
		// station uploads; republishing it would only rewrite the point.
		return nil
	}

	line, err := influx.FromObservation(obs).Line()
	if err != nil {
		return err
	}

	if err := b.writer.Write(ctx, []string{line}); err != nil {
		metrics.PublishErrors.WithLabelValues(stationID).Inc()
		if b.spool != nil {
			if serr := b.spool.Enqueue(stationID, line); serr != nil {
				log.Printf("bridge: spool %s: %v", stationID, serr)
			}
		}
		return err
	}

	b.lastPublished[stationID] = obs.Time
	metrics.ObservationsPublished.WithLabelValues(stationID).Inc()
	log.Printf("bridge: published %s at %s", stationID, obs.Time.Format(time.RFC3339))
	return nil
}

// fetchObservation wraps the API call in the circuit breaker so a dead
// upstream skips cycles quickly instead of timing out per station.
func (b *Bridge) fetchObservation(ctx context.Context, apiKey, stationID string) (*wunderground.RawObservation, error) {
	start := time.Now()
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.client.FetchObservation(ctx, apiKey, stationID, b.cfg.Unit)
	})
	metrics.APILatency.WithLabelValues(stationID, "observations/current").Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.APICallsTotal.WithLabelValues(stationID, "observations/current", status).Inc()

	if err != nil {
		return nil, err
	}
	raw, _ := result.(*wunderground.RawObservation)
	return raw, nil
}

func (b *Bridge) ensureAPIKey(ctx context.Context) (string, error) {
	if b.apiKey != "" {
		return b.apiKey, nil
	}

	key, err := b.client.FetchAPIKey(ctx)
	if err != nil {
		return "", err
	}
	metrics.CredentialRefreshes.Inc()
	log.Println("bridge: fetched api key")

	b.apiKey = key
	b.keyScraped = true
	return key, nil
}

// flushSpool retries points that failed to publish in earlier cycles. On
// failure the points stay queued for the next cycle.
func (b *Bridge) flushSpool(ctx context.Context) {
	if b.spool == nil {
		return
	}

	points, err := b.spool.Pending(spoolBatchSize)
	if err != nil {
		log.Printf("bridge: read spool: %v", err)
		return
	}
	if len(points) == 0 {
		return
	}

	lines := make([]string, len(points))
	ids := make([]int64, len(points))
	for i, p := range points {
		lines[i] = p.Line
		ids[i] = p.ID
	}

	if err := b.writer.Write(ctx, lines); err != nil {
		log.Printf("bridge: flush spool: %v", err)
		return
	}
	if err := b.spool.Delete(ids); err != nil {
		log.Printf("bridge: clear spool: %v", err)
		return
	}
	log.Printf("bridge: flushed %d spooled points", len(points))
}

func (b *Bridge) updateSpoolDepth() {
	if b.spool == nil {
		return
	}
	if depth, err := b.spool.Depth(); err == nil {
		metrics.SpoolDepth.Set(float64(depth))
	}
}
