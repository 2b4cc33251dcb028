package model

import (
	"reflect"
	"testing"
	"time"
)

func TestParseReportMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "empty object", in: `{}`},
		{name: "null", in: `null`},
		{name: "aircraft not a list", in: `{"aircraft": 5}`},
		{name: "aircraft null", in: `{"now": 1, "aircraft": null}`},
		{name: "array document", in: `[1, 2, 3]`, wantErr: true},
		{name: "string document", in: `"aircraft"`, wantErr: true},
		{name: "truncated", in: `{"aircraft": [`, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rpt, err := ParseReport([]byte(tc.in))
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseReport(%s) err=%v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if rpt == nil || rpt.Aircraft == nil || len(rpt.Aircraft) != 0 {
				t.Fatalf("ParseReport(%s) = %+v, want empty aircraft list", tc.in, rpt)
			}
		})
	}
}

func TestParseReportTolerantRecords(t *testing.T) {
	in := `{
		"now": 1700000000.5,
		"messages": 42,
		"aircraft": [
			{"hex": "abc123", "flight": "TEST123 ", "lat": 1.0, "lon": 2.0, "alt_baro": 32000, "gs": 100, "nic": 8, "messages": 12, "seen": 1.5},
			{"hex": "def456", "alt_baro": "ground", "lat": "not-a-number"},
			{"lat": 10.0, "lon": 20.0},
			7
		]
	}`

	rpt, err := ParseReport([]byte(in))
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if rpt.Now != 1700000000.5 || rpt.Messages != 42 {
		t.Fatalf("unexpected header now=%v messages=%v", rpt.Now, rpt.Messages)
	}
	if len(rpt.Aircraft) != 4 {
		t.Fatalf("expected 4 records, got %d", len(rpt.Aircraft))
	}

	a := rpt.Aircraft[0]
	if a.Hex != "abc123" {
		t.Fatalf("hex = %q", a.Hex)
	}
	if a.Flight == nil || *a.Flight != "TEST123" {
		t.Fatalf("flight not trimmed: %v", a.Flight)
	}
	if a.BaroAltitude == nil || a.BaroAltitude.Feet != 32000 || a.BaroAltitude.Ground {
		t.Fatalf("alt_baro = %+v", a.BaroAltitude)
	}
	if a.NIC == nil || *a.NIC != 8 || a.Messages == nil || *a.Messages != 12 {
		t.Fatalf("nic/messages = %v/%v", a.NIC, a.Messages)
	}

	b := rpt.Aircraft[1]
	if b.BaroAltitude == nil || !b.BaroAltitude.Ground {
		t.Fatalf("expected ground altitude, got %+v", b.BaroAltitude)
	}
	if b.Lat != nil {
		t.Fatalf("expected wrongly typed lat to be dropped, got %v", *b.Lat)
	}

	if rpt.Aircraft[2].Hex != "" || rpt.Aircraft[3].Hex != "" {
		t.Fatalf("records without hex must decode with an empty identifier")
	}
}

func TestAircraftMarshalIsVerbatim(t *testing.T) {
	in := `{"hex":"abc123","rssi":-20.5,"mlat":[],"flight":"TEST123 "}`
	var a Aircraft
	if err := json.Unmarshal([]byte(in), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != in {
		t.Fatalf("got %s, want %s", out, in)
	}

	fields := a.Fields()
	if fields["flight"] != "TEST123 " {
		t.Fatalf("Fields must reflect the verbatim record, got %v", fields["flight"])
	}
	if _, ok := fields["mlat"]; !ok {
		t.Fatalf("Fields dropped an untyped member")
	}
}

func TestAircraftHexIsNotTrimmed(t *testing.T) {
	rpt, err := ParseReport([]byte(`{"aircraft":[{"hex":" abc123"},{"hex":"~abc123 "}]}`))
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if rpt.Aircraft[0].Hex != " abc123" || rpt.Aircraft[1].Hex != "~abc123 " {
		t.Fatalf("hex must be kept as given, got %q and %q", rpt.Aircraft[0].Hex, rpt.Aircraft[1].Hex)
	}
}

func TestAircraftFieldsWithoutRaw(t *testing.T) {
	a := Aircraft{Hex: "abc123", GroundSpeed: floatP(150), BaroAltitude: &Altitude{Ground: true}}
	fields := a.Fields()
	want := map[string]interface{}{"hex": "abc123", "gs": 150.0, "alt_baro": "ground"}
	if !reflect.DeepEqual(fields, want) {
		t.Fatalf("Fields() = %v, want %v", fields, want)
	}
}

func TestReportCloneIsDeep(t *testing.T) {
	rpt, err := ParseReport([]byte(`{"aircraft":[{"hex":"abc123","gs":100}]}`))
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	rpt.Aircraft[0].Details = &Details{Registration: stringP("N1BR")}

	c := rpt.Clone()
	*c.Aircraft[0].GroundSpeed = 999
	*c.Aircraft[0].Details.Registration = "changed"
	c.Aircraft[0].raw[2] = 'X'

	if *rpt.Aircraft[0].GroundSpeed != 100 {
		t.Fatalf("clone shares gs with the original")
	}
	if *rpt.Aircraft[0].Details.Registration != "N1BR" {
		t.Fatalf("clone shares details with the original")
	}
	if string(rpt.Aircraft[0].raw) != `{"hex":"abc123","gs":100}` {
		t.Fatalf("clone shares raw bytes with the original: %s", rpt.Aircraft[0].raw)
	}
}

func TestObserved(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	a := Aircraft{Hex: "abc123"}
	if got := a.Observed(now); !got.Equal(now) {
		t.Fatalf("without seen: got %v, want %v", got, now)
	}

	a.Seen = floatP(2.5)
	want := now.Add(-2500 * time.Millisecond)
	if got := a.Observed(now); !got.Equal(want) {
		t.Fatalf("with seen: got %v, want %v", got, want)
	}
}

func TestNormalize(t *testing.T) {
	if r := Normalize(nil); r == nil || r.Aircraft == nil {
		t.Fatalf("Normalize(nil) = %+v", r)
	}
	if r := Normalize(&Report{Now: 5}); r.Now != 5 || r.Aircraft == nil {
		t.Fatalf("Normalize kept nil aircraft: %+v", r)
	}
}

func floatP(v float64) *float64 { return &v }

func stringP(v string) *string { return &v }
