package cfg

import (
	"flag"

	"github.com/grafana/loki/pkg/promtail/client"
	"github.com/pkg/errors"

	"github.com/PR-CYBR/adsb-ingest/pkg/api"
	"github.com/PR-CYBR/adsb-ingest/pkg/bridge"
	"github.com/PR-CYBR/adsb-ingest/pkg/feed"
	"github.com/PR-CYBR/adsb-ingest/pkg/push"
	"github.com/PR-CYBR/adsb-ingest/pkg/registry"
)

type Config struct {
	// ClientConfigs are Loki clients that changed aircraft are mirrored to.
	// They can only be set from the config file.
	ClientConfigs []client.Config `yaml:"clients,omitempty"`
	Backend       push.Config     `yaml:"backend"`
	Feed          feed.Config     `yaml:"feed"`
	Bridge        bridge.Config   `yaml:"bridge"`
	Server        api.Config      `yaml:"server"`
	Registry      registry.Config `yaml:"registry,omitempty"`
	LogLevel      string          `yaml:"log_level"`
}

// RegisterFlags registers the flags of every component.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	for i := range c.ClientConfigs {
		c.ClientConfigs[i].RegisterFlags(f)
	}
	c.Backend.RegisterFlags(f)
	c.Feed.RegisterFlags(f)
	c.Bridge.RegisterFlags(f)
	c.Server.RegisterFlags(f)
	c.Registry.RegisterFlags(f)
	f.StringVar(&c.LogLevel, "log.level", "info", "Only log messages with the given severity or above: debug, info, warn, error")
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("invalid log level %q", c.LogLevel)
	}
	for _, v := range []interface{ Validate() error }{&c.Backend, &c.Feed, &c.Bridge, &c.Server, &c.Registry} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	for i := range c.ClientConfigs {
		if c.ClientConfigs[i].URL.URL == nil {
			return errors.Errorf("loki client %d has no url", i)
		}
	}
	return nil
}
