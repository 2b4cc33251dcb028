package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/cortexproject/cortex/pkg/util/flagext"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	lokiconfig "github.com/grafana/loki/pkg/cfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"

	"github.com/PR-CYBR/adsb-ingest/pkg/api"
	"github.com/PR-CYBR/adsb-ingest/pkg/bridge"
	"github.com/PR-CYBR/adsb-ingest/pkg/cfg"
	"github.com/PR-CYBR/adsb-ingest/pkg/feed"
	"github.com/PR-CYBR/adsb-ingest/pkg/metrics"
	"github.com/PR-CYBR/adsb-ingest/pkg/model"
	"github.com/PR-CYBR/adsb-ingest/pkg/push"
	"github.com/PR-CYBR/adsb-ingest/pkg/registry"
)

type Config struct {
	cfg.Config   `yaml:",inline"`
	printVersion bool
	configFile   string
}

func (c *Config) RegisterFlags(f *flag.FlagSet) {
	f.BoolVar(&c.printVersion, "version", false, "Print this builds version information")
	f.StringVar(&c.configFile, "config.file", "", "yaml file to load")
	c.Config.RegisterFlags(f)
}

// Clone takes advantage of pass-by-value semantics to return a distinct *Config.
// This is primarily used to parse a different flag set without mutating the original *Config.
func (c *Config) Clone() flagext.Registerer {
	return func(c Config) *Config {
		return &c
	}(*c)
}

func main() {

	var config Config

	if err := lokiconfig.Parse(&config); err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}
	if config.printVersion {
		fmt.Println(version.Print("adsb-ingest"))
		os.Exit(0)
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	var logger log.Logger
	logger = log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, levelOption(config.LogLevel))
	logger = log.With(logger, "ts", log.DefaultTimestamp, "caller", log.DefaultCaller)
	level.Info(logger).Log("msg", "starting adsb-ingest", "version", version.Info())

	shutdown := make(chan struct{})
	go sig(logger, shutdown)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var (
		lookup model.DetailLookup
		rm     *registry.Manager
	)
	if config.Registry.Enabled() {
		var err error
		rm, err = registry.NewManager(logger, config.Registry)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to init the registry manager: %v\n", err)
			os.Exit(1)
		}
		lookup = rm
	}

	src, err := feed.New(config.Feed, lookup)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init the aircraft feed: %v\n", err)
		os.Exit(1)
	}
	if src == nil {
		level.Warn(logger).Log("msg", "no feed url or file configured, nothing will be polled")
	}

	pc, err := push.NewClient(logger, config.Backend, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init the backend client: %v\n", err)
		os.Exit(1)
	}

	mirror, err := push.NewLokiMirror(logger, config.ClientConfigs, config.Backend.SourceSlug, m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init the loki client(s): %v\n", err)
		os.Exit(1)
	}

	b, err := bridge.New(logger, config.Bridge, bridge.Options{
		Source:  src,
		Pusher:  pc,
		Mirror:  mirror,
		Metrics: m,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init the application: %v\n", err)
		os.Exit(1)
	}

	var srv *api.Server
	if config.Server.ListenAddress != "" {
		srv, err = api.NewServer(logger, config.Server.ListenAddress, api.NewHandler(logger, b, reg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start the http server: %v\n", err)
			os.Exit(1)
		}
	}

	if err := b.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start the application: %v\n", err)
		os.Exit(1)
	}

	<-shutdown
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Stop(ctx); err != nil {
			level.Warn(logger).Log("msg", "http server did not shut down cleanly", "err", err)
		}
		cancel()
	}
	b.Stop()
	if rm != nil {
		rm.Stop()
	}
	level.Info(logger).Log("msg", "shutdown complete")
	os.Exit(0)
}

func levelOption(l string) level.Option {
	switch l {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

func sig(logger log.Logger, shutdown chan struct{}) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	buf := make([]byte, 1<<20)
	for {
		select {
		case sig := <-sigs:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				level.Info(logger).Log("msg", "=== received SIGINT/SIGTERM ===")
				close(shutdown)
				return
			case syscall.SIGQUIT:
				stacklen := runtime.Stack(buf, true)
				level.Info(logger).Log("msg", fmt.Sprintf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end", buf[:stacklen]))
			}
		}
	}
}
