// Package feed fetches aircraft.json reports from dump1090/readsb, either over
// HTTP or from the file it writes to disk.
package feed

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/PR-CYBR/adsb-ingest/pkg/model"
	"github.com/PR-CYBR/adsb-ingest/pkg/transport"
)

// maxReportSize bounds how much of a response body is read.
const maxReportSize = 32 << 20

// Source returns the current report. A nil report with an error means no
// report was available. A non-nil report with an error is a degraded report
// that is still to be used: a document that is not an object, or a missing
// or invalid file.
type Source interface {
	Fetch(ctx context.Context) (*model.Report, error)
}

type Config struct {
	URL     string        `yaml:"url"`
	File    string        `yaml:"file"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.URL, "feed.url", "http://readsb:8080/data/aircraft.json", "URL of the aircraft.json served by dump1090/readsb")
	f.StringVar(&c.File, "feed.file", "", "Read aircraft.json from this file instead of the URL")
	f.DurationVar(&c.Timeout, "feed.timeout", 5*time.Second, "Timeout of a single fetch")
}

func (c *Config) Validate() error {
	if c.File == "" && c.URL != "" && c.Timeout <= 0 {
		return errors.New("feed timeout must be positive")
	}
	return nil
}

// New picks the file source when a file is configured, the HTTP source when a
// URL is, and returns nil when neither is.
func New(cfg Config, lookup model.DetailLookup) (Source, error) {
	switch {
	case cfg.File != "":
		return NewFileSource(cfg.File, lookup), nil
	case cfg.URL != "":
		return NewHTTPSource(cfg.URL, cfg.Timeout, lookup)
	default:
		return nil, nil
	}
}

type HTTPSource struct {
	url     string
	timeout time.Duration
	client  *http.Client
	lookup  model.DetailLookup
}

func NewHTTPSource(url string, timeout time.Duration, lookup model.DetailLookup) (*HTTPSource, error) {
	c, err := transport.BuildHTTP2Client(0)
	if err != nil {
		return nil, err
	}
	return &HTTPSource{
		url:     url,
		timeout: timeout,
		client:  c,
		lookup:  lookup,
	}, nil
}

func (s *HTTPSource) Fetch(ctx context.Context) (*model.Report, error) {
	rpt, err := s.getReport(ctx)
	if err != nil {
		return rpt, err
	}
	enrich(rpt, s.lookup)
	return rpt, nil
}

func (s *HTTPSource) getReport(ctx context.Context) (*model.Report, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch aircraft report")
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("feed returned HTTP status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReportSize))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read aircraft report")
	}
	rpt, err := model.ParseReport(body)
	if err != nil {
		if jsoniter.Valid(body) {
			// Well-formed but not an object: the feed has nothing.
			return model.Empty(), err
		}
		return nil, err
	}
	return rpt, nil
}

// Close releases idle connections.
func (s *HTTPSource) Close() {
	s.client.CloseIdleConnections()
}

type FileSource struct {
	path   string
	lookup model.DetailLookup
}

func NewFileSource(path string, lookup model.DetailLookup) *FileSource {
	return &FileSource{path: path, lookup: lookup}
}

// Fetch reads the file. A missing or undecodable file yields the empty report
// along with the error: the feed is known to have nothing.
func (s *FileSource) Fetch(_ context.Context) (*model.Report, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Empty(), errors.Errorf("aircraft.json missing at %s", s.path)
		}
		return model.Empty(), errors.Wrapf(err, "failed to read %s", s.path)
	}
	rpt, err := model.ParseReport(b)
	if err != nil {
		return model.Empty(), errors.Wrapf(err, "invalid aircraft.json at %s", s.path)
	}
	enrich(rpt, s.lookup)
	return rpt, nil
}

func enrich(rpt *model.Report, lookup model.DetailLookup) {
	if lookup == nil {
		return
	}
	for i, ac := range rpt.Aircraft {
		if ac.Hex == "" {
			continue
		}
		if details := lookup.Lookup(strings.ToLower(strings.TrimSpace(ac.Hex))); details != nil {
			rpt.Aircraft[i].Details = details
		}
	}
}
