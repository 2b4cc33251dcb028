// Package push delivers changed aircraft to the backend telemetry API, one
// event per aircraft, and optionally mirrors them to Loki.
package push

import (
	"bytes"
	"context"
	"flag"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/PR-CYBR/adsb-ingest/pkg/metrics"
	"github.com/PR-CYBR/adsb-ingest/pkg/model"
	"github.com/PR-CYBR/adsb-ingest/pkg/transport"
)

type Config struct {
	URL               string        `yaml:"url"`
	TelemetryEndpoint string        `yaml:"telemetry_endpoint"`
	SourceSlug        string        `yaml:"source_slug"`
	StationID         int           `yaml:"station_id"`
	Timeout           time.Duration `yaml:"push_timeout"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.URL, "backend.url", "http://backend:8000", "Base URL of the backend receiving telemetry events")
	f.StringVar(&c.TelemetryEndpoint, "backend.telemetry-endpoint", "/api/v1/telemetry/events", "Path of the telemetry events endpoint, relative to the backend URL")
	f.StringVar(&c.SourceSlug, "backend.source-slug", "adsb-ingest", "Telemetry source slug sent with every event")
	f.IntVar(&c.StationID, "backend.station-id", 0, "Station id sent with every event, 0 leaves it unset")
	f.DurationVar(&c.Timeout, "backend.push-timeout", 5*time.Second, "Timeout of a single event delivery")
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("backend url is required")
	}
	if _, err := url.Parse(c.URL); err != nil {
		return errors.Wrap(err, "invalid backend url")
	}
	if c.SourceSlug == "" {
		return errors.New("backend source slug is required")
	}
	if c.Timeout <= 0 {
		return errors.New("backend push timeout must be positive")
	}
	return nil
}

// TelemetryURL joins the base URL and the endpoint with exactly one slash.
func (c *Config) TelemetryURL() string {
	return strings.TrimRight(c.URL, "/") + "/" + strings.TrimLeft(c.TelemetryEndpoint, "/")
}

type Client struct {
	logger  log.Logger
	config  Config
	url     string
	client  *http.Client
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewClient(logger log.Logger, config Config, m *metrics.Metrics) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	hc, err := transport.BuildHTTP2Client(0)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Client{
		logger:  log.With(logger, "component", "push"),
		config:  config,
		url:     config.TelemetryURL(),
		client:  hc,
		metrics: m,
		now:     time.Now,
	}, nil
}

// Push sends one event per aircraft, in order. A failed delivery does not
// stop the others; the returned error is the last failure and is nil only
// when every delivery succeeded. Deliveries not yet started when ctx is
// cancelled are skipped.
func (c *Client) Push(ctx context.Context, aircraft []model.Aircraft) (int, error) {
	var (
		delivered int
		lastErr   error
	)
	for i := range aircraft {
		if err := ctx.Err(); err != nil {
			return delivered, errors.Wrap(err, "push cancelled")
		}
		a := &aircraft[i]
		if a.Hex == "" {
			continue
		}
		start := time.Now()
		err := c.deliver(ctx, a)
		c.metrics.PushLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			c.metrics.Pushes.WithLabelValues(metrics.PushFailure).Inc()
			level.Warn(c.logger).Log("msg", "failed to push telemetry update", "hex", a.Hex, "err", err)
			lastErr = err
			continue
		}
		c.metrics.Pushes.WithLabelValues(metrics.PushSuccess).Inc()
		delivered++
	}
	return delivered, lastErr
}

func (c *Client) deliver(ctx context.Context, a *model.Aircraft) error {
	body, err := json.Marshal(NewEvent(a, c.config.SourceSlug, c.config.StationID, c.now()))
	if err != nil {
		return errors.Wrapf(err, "failed to encode event for %s", a.Hex)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.New().String())

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to post event for %s", a.Hex)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("backend returned HTTP status %s for %s", resp.Status, a.Hex)
	}
	return nil
}

func (c *Client) Close() {
	c.client.CloseIdleConnections()
}
