package push

import (
	"errors"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	prommodel "github.com/prometheus/common/model"

	"github.com/PR-CYBR/adsb-ingest/pkg/metrics"
)

type entry struct {
	labels prommodel.LabelSet
	ts     time.Time
	line   string
}

type fakeLoki struct {
	entries []entry
	fail    bool
	stopped bool
}

func (f *fakeLoki) Handle(labels prommodel.LabelSet, ts time.Time, line string) error {
	if f.fail {
		return errors.New("loki unavailable")
	}
	f.entries = append(f.entries, entry{labels: labels, ts: ts, line: line})
	return nil
}

func (f *fakeLoki) Stop() { f.stopped = true }

func TestLokiMirror(t *testing.T) {
	fake := &fakeLoki{}
	m := metrics.New(nil)
	mirror := newLokiMirror(log.NewNopLogger(), fake, "adsb-test", m)

	now := time.Date(2024, 3, 10, 12, 0, 5, 0, time.UTC)
	doc := `{"hex":"abc123","seen":5,"rssi":-20.5}`
	mirror.Mirror(report(t, `{"aircraft":[`+doc+`]}`), now)

	if len(fake.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(fake.entries))
	}
	e := fake.entries[0]
	if e.line != doc {
		t.Fatalf("expected the verbatim record, got %s", e.line)
	}
	if !e.ts.Equal(now.Add(-5 * time.Second)) {
		t.Fatalf("unexpected timestamp %v", e.ts)
	}
	if e.labels["job"] != "adsb" || e.labels["source"] != "adsb-test" {
		t.Fatalf("unexpected labels %v", e.labels)
	}

	fake.fail = true
	mirror.Mirror(report(t, `{"aircraft":[{"hex":"abc123"},{"hex":"def456"}]}`), now)
	if got := testutil.ToFloat64(m.MirrorErrors); got != 2 {
		t.Fatalf("expected 2 mirror errors, got %f", got)
	}

	mirror.Stop()
	if !fake.stopped {
		t.Fatalf("Stop must stop the loki client")
	}
}

func TestNilLokiMirror(t *testing.T) {
	mirror, err := NewLokiMirror(log.NewNopLogger(), nil, "adsb-test", nil)
	if err != nil || mirror != nil {
		t.Fatalf("expected no mirror without clients, got %v, %v", mirror, err)
	}
	mirror.Mirror(report(t, `{"aircraft":[{"hex":"abc123"}]}`), time.Now())
	mirror.Stop()
}
