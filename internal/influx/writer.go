package influx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/pwsbridge/internal/httputil"
)

// Writer posts line-protocol batches to an InfluxDB 1.x /write endpoint.
type Writer struct {
	client   *http.Client
	writeURL string
	username string
	password string
}

type WriterOptions struct {
	// URL is the base address of the InfluxDB server, e.g.
	// http://localhost:8086.
	URL      string
	Database string
	Username string
	Password string
	Timeout  time.Duration

	// HTTPClient overrides the underlying client; mainly for tests.
	HTTPClient *http.Client
}

func NewWriter(opts WriterOptions) (*Writer, error) {
	base, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse influxdb url: %w", err)
	}
	if opts.Database == "" {
		return nil, fmt.Errorf("influxdb database required")
	}

	q := url.Values{}
	q.Set("db", opts.Database)
	q.Set("precision", "ns")
	base.Path = strings.TrimSuffix(base.Path, "/") + "/write"
	base.RawQuery = q.Encode()

	hc := opts.HTTPClient
	if hc == nil {
		hc = httputil.NewClient(opts.Timeout)
	}

	return &Writer{
		client:   hc,
		writeURL: base.String(),
		username: opts.Username,
		password: opts.Password,
	}, nil
}

// Write posts the given lines as one batch, retrying transient failures with
// exponential backoff until the context is cancelled. A 4xx response is
// permanent: the batch is malformed and retrying cannot fix it.
func (w *Writer) Write(ctx context.Context, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	body := strings.Join(lines, "\n")

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.writeURL, strings.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		if w.username != "" {
			req.SetBasicAuth(w.username, w.password)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return fmt.Errorf("write points: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
			return nil
		}

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err = fmt.Errorf("write points: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(operation, backoff.WithContext(bo, ctx))
}
