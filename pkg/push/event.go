package push

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/PR-CYBR/adsb-ingest/pkg/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// verbatim sorts keys but keeps number literals and strings as they were.
var verbatim = jsoniter.Config{
	SortMapKeys: true,
	UseNumber:   true,
	EscapeHTML:  false,
}.Froze()

const statusReceived = "received"

// Event is the body of one telemetry event. Unknown values are sent as null.
type Event struct {
	SourceSlug string   `json:"source_slug"`
	StationID  *int     `json:"station_id"`
	EventTime  string   `json:"event_time"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Altitude   *float64 `json:"altitude"`
	Heading    *float64 `json:"heading"`
	Speed      *float64 `json:"speed"`
	Payload    Payload  `json:"payload"`
	RawData    string   `json:"raw_data"`
	Status     string   `json:"status"`
}

type Payload struct {
	Hex      string   `json:"hex"`
	Flight   *string  `json:"flight"`
	Squawk   *string  `json:"squawk"`
	Category *string  `json:"category"`
	Rssi     *float64 `json:"rssi"`
	Messages *uint64  `json:"messages"`
	Type     *string  `json:"type"`

	// Registry enrichment, only present when known.
	Registration *string `json:"registration,omitempty"`
	TypeCode     *string `json:"type_code,omitempty"`
	Description  *string `json:"description,omitempty"`
	Owner        *string `json:"owner,omitempty"`
	Military     *bool   `json:"military,omitempty"`
}

// NewEvent maps an aircraft onto a telemetry event observed at now minus the
// age of its last message.
func NewEvent(a *model.Aircraft, sourceSlug string, stationID int, now time.Time) Event {
	ev := Event{
		SourceSlug: sourceSlug,
		EventTime:  a.Observed(now).UTC().Format(time.RFC3339Nano),
		Latitude:   a.Lat,
		Longitude:  a.Lon,
		Altitude:   altitude(a),
		Heading:    a.Track,
		Speed:      firstOf(a.GroundSpeed, a.TrueAirspeed, a.IndicatedAirspeed),
		Payload: Payload{
			Hex:      a.Hex,
			Flight:   a.Flight,
			Squawk:   a.Squawk,
			Category: a.Category,
			Rssi:     a.Rssi,
			Messages: a.Messages,
			Type:     a.Type,
		},
		RawData: rawData(a),
		Status:  statusReceived,
	}
	if stationID != 0 {
		ev.StationID = &stationID
	}
	if d := a.Details; d != nil {
		ev.Payload.Registration = d.Registration
		ev.Payload.TypeCode = d.TypeCode
		ev.Payload.Description = d.Description
		ev.Payload.Owner = d.Owner
		ev.Payload.Military = d.Military
	}
	return ev
}

// altitude prefers the barometric altitude, which is 0 on the ground.
func altitude(a *model.Aircraft) *float64 {
	if a.BaroAltitude != nil {
		v := a.BaroAltitude.Feet
		if a.BaroAltitude.Ground {
			v = 0
		}
		return &v
	}
	return a.GeometricAltitude
}

func firstOf(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

// rawData is the full record with its keys sorted.
func rawData(a *model.Aircraft) string {
	b, err := a.MarshalJSON()
	if err != nil {
		return "{}"
	}
	var fields map[string]interface{}
	if err := verbatim.Unmarshal(b, &fields); err != nil || fields == nil {
		return "{}"
	}
	if b, err = verbatim.Marshal(fields); err != nil {
		return "{}"
	}
	return string(b)
}
