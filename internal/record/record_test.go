package record

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/wegman-software/osm-gazetteer/internal/osmid"
)

func TestRound(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{59.123456789, 59.1234568},
		{18.0686, 18.0686},
		{-33.86881234567, -33.8688123},
		{-122.41941557, -122.4194156},
		{0, 0},
	}

	for _, tt := range tests {
		if got := Round(tt.in); got != tt.want {
			t.Errorf("Round(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRoundNegativeZero(t *testing.T) {
	for _, v := range []float64{-0.00000004, -0.00000001, math.Copysign(0, -1)} {
		got := Round(v)
		if got != 0 || math.Signbit(got) {
			t.Errorf("Round(%v) = %v (signbit %v), want +0", v, got, math.Signbit(got))
		}
	}
}

func TestIsBoundary(t *testing.T) {
	if (Record{AdminLevel: BuildingLevel}).IsBoundary() {
		t.Error("building level record reported as boundary")
	}
	if !(Record{AdminLevel: 8}).IsBoundary() {
		t.Error("admin level 8 record not reported as boundary")
	}
}

func TestDocumentJSON(t *testing.T) {
	r := Record{
		Name:       "Main Post Office",
		OSMID:      osmid.ID{Kind: osmid.Node, Ref: 7},
		Location:   []string{"Springfield"},
		Latitude:   0.5,
		Longitude:  0.25,
		AdminLevel: BuildingLevel,
	}

	b, err := json.Marshal(r.AsDocument())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got["osm_id"] != "N7" {
		t.Errorf("osm_id = %v, want N7", got["osm_id"])
	}
	if _, ok := got["alt_name"]; ok {
		t.Error("empty alt_name should be omitted")
	}
	geo, ok := got["geo"].(map[string]interface{})
	if !ok || geo["lat"] != 0.5 || geo["lon"] != 0.25 {
		t.Errorf("geo = %v", got["geo"])
	}
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf)

	err := w.Write(&Record{
		Name:       "Café \"Central\"",
		Operator:   "Acme, Inc.",
		OSMID:      osmid.ID{Kind: osmid.Way, Ref: 42},
		Location:   []string{"Innere Stadt", "Wien", "Österreich"},
		Latitude:   48.2102,
		Longitude:  16.3656,
		AdminLevel: BuildingLevel,
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(&Record{Name: "Nowhere", OSMID: osmid.ID{Kind: osmid.Node, Ref: -1}, AdminLevel: 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	want := strings.Join([]string{
		"name,alt_name,operator,osm_id,location,latitude,longitude,admin_level",
		`"Café ""Central""",,"Acme, Inc.",W42,"[""Innere Stadt"",""Wien"",""Österreich""]",48.2102,16.3656,255`,
		`Nowhere,,,N-1,[],0,0,2`,
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("csv output:\n%s\nwant:\n%s", got, want)
	}
}

func TestCSVWriterHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVWriter(&buf).Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := buf.String(); got != strings.Join(Header, ",")+"\n" {
		t.Errorf("empty output = %q", got)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	records := []Record{
		{
			Name:       "City Hall",
			AltName:    "Rathaus",
			Operator:   "City",
			OSMID:      osmid.ID{Kind: osmid.Way, Ref: 123456789},
			Location:   []string{"Neighborhood", "City", "Region", "Country"},
			Latitude:   Round(59.123456789),
			Longitude:  Round(-0.00000004),
			AdminLevel: BuildingLevel,
		},
		{
			Name:       "Springfield",
			OSMID:      osmid.ID{Kind: osmid.Relation, Ref: 9},
			Location:   []string{},
			Latitude:   -12.5,
			Longitude:  130.8456123,
			AdminLevel: 6,
		},
	}

	var buf bytes.Buffer
	w := NewCSVWriter(&buf)
	for i := range records {
		if err := w.Write(&records[i]); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r, err := NewCSVReader(&buf)
	if err != nil {
		t.Fatalf("NewCSVReader: %v", err)
	}
	for i, want := range records {
		got, err := r.Read()
		if err != nil {
			t.Fatalf("Read %d: %v", i, err)
		}
		if got.Name != want.Name || got.AltName != want.AltName || got.Operator != want.Operator ||
			got.OSMID != want.OSMID || got.Latitude != want.Latitude || got.Longitude != want.Longitude ||
			got.AdminLevel != want.AdminLevel || strings.Join(got.Location, "|") != strings.Join(want.Location, "|") {
			t.Errorf("record %d = %+v, want %+v", i, got, want)
		}
	}
	if _, err := r.Read(); err != io.EOF {
		t.Errorf("expected io.EOF after last record, got %v", err)
	}
}

func TestCSVReaderErrors(t *testing.T) {
	header := strings.Join(Header, ",") + "\n"

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"bad discriminant", header + `a,,,X42,[],0,0,255` + "\n", osmid.ErrInvalidDiscriminant},
		{"bad ref", header + `a,,,Wabc,[],0,0,255` + "\n", osmid.ErrInvalidRef},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewCSVReader(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("NewCSVReader: %v", err)
			}
			if _, err := r.Read(); !errors.Is(err, tt.want) {
				t.Errorf("Read() error = %v, want %v", err, tt.want)
			}
		})
	}

	malformed := []struct {
		name  string
		input string
	}{
		{"location", header + `a,,,N1,not-json,0,0,255` + "\n"},
		{"latitude", header + `a,,,N1,[],north,0,255` + "\n"},
		{"admin level", header + `a,,,N1,[],0,0,300` + "\n"},
	}
	for _, tt := range malformed {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewCSVReader(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("NewCSVReader: %v", err)
			}
			if _, err := r.Read(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCSVReaderHeader(t *testing.T) {
	if _, err := NewCSVReader(strings.NewReader("")); !errors.Is(err, ErrHeader) {
		t.Errorf("empty input error = %v, want ErrHeader", err)
	}
	bad := "name,alt,operator,osm_id,location,latitude,longitude,admin_level\n"
	if _, err := NewCSVReader(strings.NewReader(bad)); !errors.Is(err, ErrHeader) {
		t.Errorf("wrong header error = %v, want ErrHeader", err)
	}
}
