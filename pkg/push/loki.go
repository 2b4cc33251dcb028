package push

import (
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/grafana/loki/pkg/promtail/client"
	"github.com/grafana/loki/pkg/util/flagext"
	prommodel "github.com/prometheus/common/model"

	"github.com/PR-CYBR/adsb-ingest/pkg/metrics"
	"github.com/PR-CYBR/adsb-ingest/pkg/model"
)

// entryHandler is the part of the promtail client the mirror uses.
type entryHandler interface {
	Handle(labels prommodel.LabelSet, time time.Time, entry string) error
	Stop()
}

// LokiMirror tees changed aircraft to Loki. It never affects the outcome of
// a push. A nil *LokiMirror is valid and does nothing.
type LokiMirror struct {
	logger  log.Logger
	client  entryHandler
	labels  prommodel.LabelSet
	metrics *metrics.Metrics
}

// NewLokiMirror returns nil when no Loki clients are configured.
func NewLokiMirror(logger log.Logger, cfgs []client.Config, source string, m *metrics.Metrics) (*LokiMirror, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}
	c, err := client.NewMulti(logger, flagext.LabelSet{}, cfgs...)
	if err != nil {
		level.Error(logger).Log("msg", "failed to create new Loki client(s)", "err", err)
		return nil, err
	}
	return newLokiMirror(logger, c, source, m), nil
}

func newLokiMirror(logger log.Logger, c entryHandler, source string, m *metrics.Metrics) *LokiMirror {
	if m == nil {
		m = metrics.New(nil)
	}
	return &LokiMirror{
		logger: log.With(logger, "component", "loki"),
		client: c,
		labels: prommodel.LabelSet{
			prommodel.LabelName("job"):    prommodel.LabelValue("adsb"),
			prommodel.LabelName("source"): prommodel.LabelValue(source),
		},
		metrics: m,
	}
}

// Mirror sends each aircraft's verbatim record, timestamped with when it was
// last heard.
func (l *LokiMirror) Mirror(aircraft []model.Aircraft, now time.Time) {
	if l == nil {
		return
	}
	for i := range aircraft {
		a := &aircraft[i]
		bts, err := a.MarshalJSON()
		if err == nil {
			err = l.client.Handle(l.labels.Clone(), a.Observed(now), string(bts))
		}
		if err != nil {
			l.metrics.MirrorErrors.Inc()
			level.Warn(l.logger).Log("msg", "failed to mirror aircraft to loki", "hex", a.Hex, "err", err)
		}
	}
}

func (l *LokiMirror) Stop() {
	if l == nil {
		return
	}
	level.Info(l.logger).Log("msg", "closing loki clients")
	l.client.Stop()
}
