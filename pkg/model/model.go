package model

import (
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DetailLookup resolves registry details for a lower case ICAO hex address.
type DetailLookup interface {
	Lookup(hex string) *Details
}

type Details struct {
	Registration *string `json:"registration,omitempty"`
	TypeCode     *string `json:"type_code,omitempty"`
	Military     *bool   `json:"military,omitempty"`
	Interesting  *bool   `json:"interesting,omitempty"`
	PIA          *bool   `json:"pia,omitempty"`
	LADD         *bool   `json:"ladd,omitempty"`
	Description  *string `json:"description,omitempty"`
	Manufactured *string `json:"manufactured,omitempty"`
	Owner        *string `json:"owner,omitempty"`
}

// Report is one full-refresh aircraft.json document. Aircraft missing from a
// report are no longer observed; a report never carries partial updates.
type Report struct {
	Now      float64    `json:"now"`
	Messages uint64     `json:"messages"`
	Aircraft []Aircraft `json:"aircraft"`
}

// Altitude is a barometric altitude in feet. dump1090 reports the string
// "ground" instead of a number while the aircraft is on the ground.
type Altitude struct {
	Feet   float64
	Ground bool
}

func (a Altitude) MarshalJSON() ([]byte, error) {
	if a.Ground {
		return []byte(`"ground"`), nil
	}
	return json.Marshal(a.Feet)
}

// Aircraft is a single record of a Report. The typed fields are a view over
// the verbatim record, which is kept so it can be forwarded unchanged.
type Aircraft struct {
	Hex               string    `json:"hex"`
	Type              *string   `json:"type,omitempty"`
	Flight            *string   `json:"flight,omitempty"`
	Squawk            *string   `json:"squawk,omitempty"`
	Emergency         *string   `json:"emergency,omitempty"`
	Category          *string   `json:"category,omitempty"`
	Lat               *float64  `json:"lat,omitempty"`
	Lon               *float64  `json:"lon,omitempty"`
	BaroAltitude      *Altitude `json:"alt_baro,omitempty"`
	GeometricAltitude *float64  `json:"alt_geom,omitempty"`
	GroundSpeed       *float64  `json:"gs,omitempty"`
	IndicatedAirspeed *float64  `json:"ias,omitempty"`
	TrueAirspeed      *float64  `json:"tas,omitempty"`
	Track             *float64  `json:"track,omitempty"`
	BaroRate          *float64  `json:"baro_rate,omitempty"`
	GeomRate          *float64  `json:"geom_rate,omitempty"`
	Version           *int      `json:"version,omitempty"`
	NIC               *int      `json:"nic,omitempty"`
	RC                *int      `json:"rc,omitempty"`
	Rssi              *float64  `json:"rssi,omitempty"`
	Messages          *uint64   `json:"messages,omitempty"`
	Seen              *float64  `json:"seen,omitempty"`
	SeenPos           *float64  `json:"seen_pos,omitempty"`

	Details *Details `json:"-"`

	raw jsoniter.RawMessage
}

type plainAircraft Aircraft

// UnmarshalJSON never fails: a record that is not an object, or whose fields
// have unexpected types, simply ends up with those fields (or its hex) unset.
func (a *Aircraft) UnmarshalJSON(b []byte) error {
	*a = Aircraft{raw: append(jsoniter.RawMessage(nil), b...)}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return nil
	}

	if hex, ok := m["hex"].(string); ok {
		a.Hex = hex
	}
	a.Type = stringField(m, "type")
	a.Flight = stringField(m, "flight")
	if a.Flight != nil {
		trimmed := strings.TrimSpace(*a.Flight)
		a.Flight = &trimmed
	}
	a.Squawk = stringField(m, "squawk")
	a.Emergency = stringField(m, "emergency")
	a.Category = stringField(m, "category")
	a.Lat = floatField(m, "lat")
	a.Lon = floatField(m, "lon")
	switch v := m["alt_baro"].(type) {
	case float64:
		a.BaroAltitude = &Altitude{Feet: v}
	case string:
		if strings.EqualFold(strings.TrimSpace(v), "ground") {
			a.BaroAltitude = &Altitude{Ground: true}
		}
	}
	a.GeometricAltitude = floatField(m, "alt_geom")
	a.GroundSpeed = floatField(m, "gs")
	a.IndicatedAirspeed = floatField(m, "ias")
	a.TrueAirspeed = floatField(m, "tas")
	a.Track = floatField(m, "track")
	a.BaroRate = floatField(m, "baro_rate")
	a.GeomRate = floatField(m, "geom_rate")
	a.Version = intField(m, "version")
	a.NIC = intField(m, "nic")
	a.RC = intField(m, "rc")
	a.Rssi = floatField(m, "rssi")
	if v := floatField(m, "messages"); v != nil && *v >= 0 {
		n := uint64(*v)
		a.Messages = &n
	}
	a.Seen = floatField(m, "seen")
	a.SeenPos = floatField(m, "seen_pos")
	return nil
}

// MarshalJSON emits the verbatim record when there is one.
func (a Aircraft) MarshalJSON() ([]byte, error) {
	if len(a.raw) > 0 {
		return append([]byte(nil), a.raw...), nil
	}
	return json.Marshal(plainAircraft(a))
}

// Fields returns a generic view of the record, including fields that have no
// typed counterpart. Numbers are float64 as with any JSON decode.
func (a *Aircraft) Fields() map[string]interface{} {
	m := map[string]interface{}{}
	b, err := a.MarshalJSON()
	if err != nil {
		return m
	}
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return map[string]interface{}{}
	}
	return m
}

// Observed backdates now by the age of the last message, when known.
func (a *Aircraft) Observed(now time.Time) time.Time {
	if a.Seen == nil || *a.Seen < 0 {
		return now
	}
	return now.Add(-time.Duration(*a.Seen * float64(time.Second)))
}

func (a *Aircraft) Clone() Aircraft {
	c := *a
	c.Type = clonePtr(a.Type)
	c.Flight = clonePtr(a.Flight)
	c.Squawk = clonePtr(a.Squawk)
	c.Emergency = clonePtr(a.Emergency)
	c.Category = clonePtr(a.Category)
	c.Lat = clonePtr(a.Lat)
	c.Lon = clonePtr(a.Lon)
	c.BaroAltitude = clonePtr(a.BaroAltitude)
	c.GeometricAltitude = clonePtr(a.GeometricAltitude)
	c.GroundSpeed = clonePtr(a.GroundSpeed)
	c.IndicatedAirspeed = clonePtr(a.IndicatedAirspeed)
	c.TrueAirspeed = clonePtr(a.TrueAirspeed)
	c.Track = clonePtr(a.Track)
	c.BaroRate = clonePtr(a.BaroRate)
	c.GeomRate = clonePtr(a.GeomRate)
	c.Version = clonePtr(a.Version)
	c.NIC = clonePtr(a.NIC)
	c.RC = clonePtr(a.RC)
	c.Rssi = clonePtr(a.Rssi)
	c.Messages = clonePtr(a.Messages)
	c.Seen = clonePtr(a.Seen)
	c.SeenPos = clonePtr(a.SeenPos)
	if a.Details != nil {
		d := a.Details.clone()
		c.Details = &d
	}
	if a.raw != nil {
		c.raw = append(jsoniter.RawMessage(nil), a.raw...)
	}
	return c
}

func (d *Details) clone() Details {
	return Details{
		Registration: clonePtr(d.Registration),
		TypeCode:     clonePtr(d.TypeCode),
		Military:     clonePtr(d.Military),
		Interesting:  clonePtr(d.Interesting),
		PIA:          clonePtr(d.PIA),
		LADD:         clonePtr(d.LADD),
		Description:  clonePtr(d.Description),
		Manufactured: clonePtr(d.Manufactured),
		Owner:        clonePtr(d.Owner),
	}
}

// UnmarshalJSON accepts any object. A missing or non-list "aircraft" member
// decodes as an empty list rather than an error.
func (r *Report) UnmarshalJSON(b []byte) error {
	var doc map[string]jsoniter.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return errors.Wrap(err, "report is not a JSON object")
	}
	*r = Report{Aircraft: []Aircraft{}}
	if raw, ok := doc["now"]; ok {
		_ = json.Unmarshal(raw, &r.Now)
	}
	if raw, ok := doc["messages"]; ok {
		_ = json.Unmarshal(raw, &r.Messages)
	}
	if raw, ok := doc["aircraft"]; ok {
		var list []Aircraft
		if err := json.Unmarshal(raw, &list); err == nil && list != nil {
			r.Aircraft = list
		}
	}
	return nil
}

// ParseReport decodes an aircraft.json document. The returned report is
// always usable: on error it is the empty report.
func ParseReport(b []byte) (*Report, error) {
	rpt := &Report{}
	if err := json.Unmarshal(b, rpt); err != nil {
		return Empty(), errors.Wrap(err, "failed to decode aircraft report")
	}
	return Normalize(rpt), nil
}

func Empty() *Report {
	return &Report{Aircraft: []Aircraft{}}
}

// Normalize makes sure the report and its aircraft list are non-nil.
func Normalize(r *Report) *Report {
	if r == nil {
		return Empty()
	}
	if r.Aircraft == nil {
		r.Aircraft = []Aircraft{}
	}
	return r
}

func (r *Report) Clone() *Report {
	if r == nil {
		return Empty()
	}
	c := &Report{
		Now:      r.Now,
		Messages: r.Messages,
		Aircraft: make([]Aircraft, len(r.Aircraft)),
	}
	for i := range r.Aircraft {
		c.Aircraft[i] = r.Aircraft[i].Clone()
	}
	return c
}

func stringField(m map[string]interface{}, key string) *string {
	if v, ok := m[key].(string); ok {
		return &v
	}
	return nil
}

func floatField(m map[string]interface{}, key string) *float64 {
	if v, ok := m[key].(float64); ok {
		return &v
	}
	return nil
}

func intField(m map[string]interface{}, key string) *int {
	if v, ok := m[key].(float64); ok {
		n := int(v)
		return &n
	}
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
