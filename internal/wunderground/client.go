package wunderground

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/lox/pwsbridge/internal/httputil"
)

const (
	// DefaultObservationURL is the current-conditions endpoint for personal
	// weather stations.
	DefaultObservationURL = "https://api.weather.com/v2/pws/observations/current"

	// DefaultKeyPageURL is the public page whose embedded bootstrap config
	// carries a usable API key.
	DefaultKeyPageURL = "https://www.wunderground.com"
)

// The key appears in the page as apiKey=<hex>. Requiring a minimum length
// avoids matching unrelated short tokens.
var apiKeyPattern = regexp.MustCompile(`apiKey=([a-z0-9]{16,})`)

// Client talks to the Weather Underground API. It holds no mutable state:
// concurrent calls for different stations are independent.
type Client struct {
	http           *http.Client
	observationURL string
	keyPageURL     string
}

// Options configures a Client. The zero value selects the production
// endpoints and httputil's default timeout.
type Options struct {
	// HTTPClient overrides the underlying client; mainly for tests. When
	// nil a client with Timeout is used.
	HTTPClient *http.Client

	// Timeout bounds every request, connection included. Ignored when
	// HTTPClient is set.
	Timeout time.Duration

	ObservationURL string
	KeyPageURL     string
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = httputil.NewClient(opts.Timeout)
	}
	c := &Client{
		http:           hc,
		observationURL: opts.ObservationURL,
		keyPageURL:     opts.KeyPageURL,
	}
	if c.observationURL == "" {
		c.observationURL = DefaultObservationURL
	}
	if c.keyPageURL == "" {
		c.keyPageURL = DefaultKeyPageURL
	}
	return c
}

// FetchAPIKey scrapes an API key out of the wunderground.com homepage. The
// key is returned as-is; callers own any caching.
func (c *Client) FetchAPIKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.keyPageURL, nil)
	if err != nil {
		return "", &CredentialError{Reason: "build request", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &CredentialError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &CredentialError{Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &CredentialError{Reason: "read body", Err: err}
	}

	m := apiKeyPattern.FindSubmatch(body)
	if m == nil {
		return "", &CredentialError{Reason: "no api key in page"}
	}
	return string(m[1]), nil
}

// FetchObservation requests the current observation for a station. It
// returns (nil, nil) when the service has no data for the station: an HTTP
// 204, or a well-formed body with no observations. That case is defined and
// non-error so callers can skip the cycle without alarming.
func (c *Client) FetchObservation(ctx context.Context, apiKey, stationID string, unit Unit) (*RawObservation, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("fetch observation: empty api key")
	}
	if stationID == "" {
		return nil, fmt.Errorf("fetch observation: empty station id")
	}

	q := url.Values{}
	q.Set("apiKey", apiKey)
	q.Set("stationId", stationID)
	q.Set("units", unit.String())
	q.Set("format", "json")
	q.Set("numericPrecision", "decimal")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.observationURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &TransportError{StationID: stationID, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{StationID: stationID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{StationID: stationID, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StationID: stationID, Err: err}
	}

	var data currentResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &DecodeError{StationID: stationID, Err: err}
	}

	if len(data.Errors) > 0 {
		e := data.Errors[0]
		return nil, &TransportError{
			StationID: stationID,
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("api error %s: %s", e.Code, e.Message),
		}
	}

	if len(data.Observations) == 0 {
		return nil, nil
	}

	obs := data.Observations[0]
	return &obs, nil
}
