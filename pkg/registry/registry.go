package registry

import (
	"archive/zip"
	"compress/gzip"
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"

	"github.com/PR-CYBR/adsb-ingest/pkg/model"
)

const (
	FormatTar1090 = "tar1090"
	FormatFAA     = "faa"

	DefaultTar1090URL = "https://github.com/wiedehopf/tar1090-db/raw/csv/aircraft.csv.gz"
	DefaultFAAURL     = "http://registry.faa.gov/database/ReleasableAircraft.zip"
)

var trueVar = true

type Config struct {
	Directory     string        `yaml:"directory"`
	URL           string        `yaml:"url"`
	Format        string        `yaml:"format"`
	MaxAge        time.Duration `yaml:"max_age"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}
	f.StringVar(&c.Directory, "registry.directory", dir, "Where to save the downloaded registry file, defaults to the current working directory")
	f.StringVar(&c.URL, "registry.url", "", "Where to download aircraft registry information from, empty disables enrichment (e.g. "+DefaultTar1090URL+")")
	f.StringVar(&c.Format, "registry.format", FormatTar1090, "Format of the registry file: tar1090 (gzipped csv) or faa (ReleasableAircraft.zip)")
	f.DurationVar(&c.MaxAge, "registry.max-age", 24*time.Hour, "Download a fresh registry file once the local copy is older than this")
	f.DurationVar(&c.CheckInterval, "registry.check-interval", time.Minute, "How often to check the age of the local registry file")
}

func (c *Config) Enabled() bool {
	return c.URL != ""
}

func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Format != FormatTar1090 && c.Format != FormatFAA {
		return errors.Errorf("unknown registry format %q", c.Format)
	}
	if c.MaxAge <= 0 || c.CheckInterval <= 0 {
		return errors.New("registry max age and check interval must be positive")
	}
	return nil
}

func (c *Config) filename() string {
	if c.Format == FormatFAA {
		return "ReleasableAircraft.zip"
	}
	return "aircraft.csv.gz"
}

// Manager keeps an in-memory hex -> details map loaded from a registry file,
// downloading a fresh copy whenever the local one gets too old.
type Manager struct {
	logger     log.Logger
	config     Config
	client     *http.Client
	details    map[string]*model.Details
	detailsMtx sync.Mutex
	shutdown   chan struct{}
	done       chan struct{}
}

func NewManager(logger log.Logger, config Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		logger:   log.With(logger, "component", "registry"),
		config:   config,
		client:   &http.Client{Timeout: 10 * time.Minute},
		details:  map[string]*model.Details{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	m.refresh()
	m.load()
	go m.run()
	level.Info(m.logger).Log("msg", "registry manager initialized", "format", config.Format)
	return m, nil
}

func (m *Manager) run() {
	t := time.NewTicker(m.config.CheckInterval)
	defer func() {
		t.Stop()
		level.Info(m.logger).Log("msg", "run loop shut down")
		close(m.done)
	}()
	for {
		select {
		case <-m.shutdown:
			return
		case <-t.C:
			if m.refresh() {
				m.load()
			}
		}
	}
}

// Lookup implements model.DetailLookup.
func (m *Manager) Lookup(hex string) *model.Details {
	m.detailsMtx.Lock()
	defer m.detailsMtx.Unlock()
	return m.details[strings.ToLower(strings.TrimSpace(hex))]
}

func (m *Manager) Len() int {
	m.detailsMtx.Lock()
	defer m.detailsMtx.Unlock()
	return len(m.details)
}

func (m *Manager) Stop() {
	level.Info(m.logger).Log("msg", "stop called")
	close(m.shutdown)
	<-m.done
	m.client.CloseIdleConnections()
}

// refresh downloads the registry file when it is missing or older than the
// configured max age. It reports whether a new file was written.
func (m *Manager) refresh() bool {
	file := path.Join(m.config.Directory, m.config.filename())
	fi, err := os.Stat(file)
	if err == nil {
		if time.Since(fi.ModTime()) < m.config.MaxAge {
			return false
		}
	} else if !os.IsNotExist(err) {
		level.Error(m.logger).Log("msg", "failed to stat registry file, cannot update", "err", err)
		return false
	}

	level.Info(m.logger).Log("msg", "downloading new registry file", "url", m.config.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-m.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer cancel()

	if err := m.download(ctx, file); err != nil {
		level.Error(m.logger).Log("msg", "failed to download registry file", "url", m.config.URL, "err", err)
		return false
	}
	level.Info(m.logger).Log("msg", "new registry file downloaded and replaced existing file")
	return true
}

func (m *Manager) download(ctx context.Context, file string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.config.URL, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("server returned HTTP status %s", resp.Status)
	}

	tmp := file + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "failed to create temp registry file")
	}
	defer os.Remove(tmp)

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return errors.Wrap(err, "failed to copy registry file to temp file")
	}
	if err := out.Close(); err != nil {
		return err
	}
	return errors.Wrap(os.Rename(tmp, file), "failed to rename temp registry file")
}

func (m *Manager) load() {
	file := path.Join(m.config.Directory, m.config.filename())
	var (
		nMap map[string]*model.Details
		err  error
	)
	switch m.config.Format {
	case FormatFAA:
		nMap, err = loadFAA(file)
	default:
		nMap, err = loadTar1090(file)
	}
	if err != nil {
		level.Error(m.logger).Log("msg", "failed to load registry file", "file", file, "err", err)
		return
	}

	m.detailsMtx.Lock()
	m.details = nMap
	m.detailsMtx.Unlock()
	level.Info(m.logger).Log("msg", "finished updating aircraft registry details", "mapLength", len(nMap))
}

func loadTar1090(file string) (map[string]*model.Details, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open gzip reader on registry file")
	}
	defer r.Close()
	return parseTar1090(r)
}

func loadFAA(file string) (map[string]*model.Details, error) {
	r, err := zip.OpenReader(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	for _, zf := range r.File {
		if zf.Name != "MASTER.txt" {
			continue
		}
		f, err := zf.Open()
		if err != nil {
			return nil, errors.Wrap(err, "failed to open MASTER.txt")
		}
		defer f.Close()
		return parseFAA(f)
	}
	return nil, errors.New("MASTER.txt not found in registry archive")
}
