package sink

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	json "github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/osm"

	"github.com/wegman-software/osm-gazetteer/internal/boundary"
	"github.com/wegman-software/osm-gazetteer/internal/config"
	"github.com/wegman-software/osm-gazetteer/internal/osmid"
	"github.com/wegman-software/osm-gazetteer/internal/planet"
	"github.com/wegman-software/osm-gazetteer/internal/record"
	"github.com/wegman-software/osm-gazetteer/internal/wkb"
)

func sampleRecords() []record.Record {
	return []record.Record{
		{
			Name:       "Main Post Office",
			Operator:   "USPS",
			OSMID:      osmid.NodeID(42),
			Location:   []string{"Springfield", "Illinois"},
			Latitude:   39.8,
			Longitude:  -89.65,
			AdminLevel: record.BuildingLevel,
		},
		{
			Name:       "Springfield",
			AltName:    "Capital City",
			OSMID:      osmid.RelationID(7),
			Location:   []string{},
			Latitude:   39.78,
			Longitude:  -89.64,
			AdminLevel: 8,
		},
	}
}

func writeAll(t *testing.T, s Sink, recs []record.Record) {
	t.Helper()
	for i := range recs {
		if err := s.Write(&recs[i]); err != nil {
			t.Fatalf("Write(%s): %v", recs[i].OSMID, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestCSVSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places.csv")
	s, err := NewCSV(path)
	if err != nil {
		t.Fatalf("NewCSV: %v", err)
	}
	want := sampleRecords()
	writeAll(t, s, want)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	r, err := record.NewCSVReader(f)
	if err != nil {
		t.Fatalf("NewCSVReader: %v", err)
	}
	for i, w := range want {
		got, err := r.Read()
		if err != nil {
			t.Fatalf("Read row %d: %v", i, err)
		}
		if got.Name != w.Name || got.OSMID != w.OSMID || got.AdminLevel != w.AdminLevel {
			t.Errorf("row %d = %+v, want %+v", i, got, w)
		}
		if strings.Join(got.Location, "|") != strings.Join(w.Location, "|") {
			t.Errorf("row %d location = %v, want %v", i, got.Location, w.Location)
		}
	}
	if _, err := r.Read(); err != io.EOF {
		t.Errorf("expected io.EOF after last row, got %v", err)
	}
}

func TestOpenSelectsFormat(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		format string
		want   string
	}{
		{config.FormatCSV, "*sink.CSV"},
		{config.FormatParquet, "*sink.Parquet"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Format = tt.format
			cfg.OutputFile = filepath.Join(dir, "out."+tt.format)
			s, err := Open(context.Background(), cfg)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			switch s.(type) {
			case *CSV:
				if tt.format != config.FormatCSV {
					t.Errorf("got CSV sink for %s", tt.format)
				}
			case *Parquet:
				if tt.format != config.FormatParquet {
					t.Errorf("got Parquet sink for %s", tt.format)
				}
			default:
				t.Errorf("unexpected sink %T, want %s", s, tt.want)
			}
		})
	}

	cfg := config.DefaultConfig()
	cfg.Format = "xml"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParquetSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "places.parquet")
	// batch size 1 flushes every record
	s, err := NewParquet(path, 1)
	if err != nil {
		t.Fatalf("NewParquet: %v", err)
	}
	writeAll(t, s, sampleRecords())

	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		t.Fatalf("OpenParquetFile: %v", err)
	}
	defer rdr.Close()

	fr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		t.Fatalf("NewFileReader: %v", err)
	}
	tbl, err := fr.ReadTable(context.Background())
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	defer tbl.Release()

	if tbl.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", tbl.NumRows())
	}
	if tbl.NumCols() != int64(len(ParquetSchema.Fields())) {
		t.Errorf("cols = %d, want %d", tbl.NumCols(), len(ParquetSchema.Fields()))
	}

	// alt_name is null for the first record only
	alt := tbl.Column(1).Data().Chunks()
	var values []string
	var nulls int
	for _, chunk := range alt {
		strs := chunk.(*array.String)
		for i := 0; i < strs.Len(); i++ {
			if strs.IsNull(i) {
				nulls++
				continue
			}
			values = append(values, strs.Value(i))
		}
	}
	if nulls != 1 || len(values) != 1 || values[0] != "Capital City" {
		t.Errorf("alt_name nulls=%d values=%v", nulls, values)
	}
}

func TestPostgresRow(t *testing.T) {
	enc, err := wkb.NewEncoder(4326)
	if err != nil {
		t.Fatal(err)
	}
	p := &Postgres{encoder: enc}

	recs := sampleRecords()
	row, err := p.Row(&recs[0])
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if len(row) != len(PostgresColumns) {
		t.Fatalf("row has %d values, want %d", len(row), len(PostgresColumns))
	}
	if row[1] != nil {
		t.Errorf("alt_name = %v, want nil", row[1])
	}
	if row[2] != "USPS" {
		t.Errorf("operator = %v", row[2])
	}
	if row[3] != "N42" || row[4] != "N" {
		t.Errorf("osm_id/osm_type = %v/%v", row[3], row[4])
	}
	if row[5] != `["Springfield","Illinois"]` {
		t.Errorf("location = %v", row[5])
	}
	if row[8] != int16(255) {
		t.Errorf("admin_level = %v", row[8])
	}
	if geom, ok := row[9].([]byte); !ok || len(geom) != 25 {
		t.Errorf("geom = %v", row[9])
	}

	recs[1].Location = nil
	row, err = p.Row(&recs[1])
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if row[5] != "[]" {
		t.Errorf("nil location = %v, want []", row[5])
	}
	if row[4] != "R" {
		t.Errorf("osm_type = %v, want R", row[4])
	}
}

func TestRedisKeys(t *testing.T) {
	recs := sampleRecords()
	if got := DocKey("gz", &recs[0]); got != "gz:doc:N42" {
		t.Errorf("DocKey = %q", got)
	}
	if got := GeoKey("gz"); got != "gz:geo" {
		t.Errorf("GeoKey = %q", got)
	}

	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true},
		{85.05, 179.9, true},
		{-85.0511, -180, true},
		{85.06, 0, false},
		{-89.9, 10, false},
		{10, 180.5, false},
	}
	for _, tt := range tests {
		if got := geoValid(tt.lat, tt.lon); got != tt.want {
			t.Errorf("geoValid(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
		}
	}
}

func TestDocumentJSON(t *testing.T) {
	recs := sampleRecords()
	data, err := json.Marshal(recs[0].AsDocument())
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	geo, ok := doc["geo"].(map[string]interface{})
	if !ok || geo["lat"] != 39.8 || geo["lon"] != -89.65 {
		t.Errorf("geo = %v", doc["geo"])
	}
	if doc["osm_id"] != "N42" {
		t.Errorf("osm_id = %v", doc["osm_id"])
	}
}

func TestWriteRings(t *testing.T) {
	b := planet.NewBuilder(nil)
	insert := func(o osm.Object) {
		t.Helper()
		if err := b.Insert(o); err != nil {
			t.Fatal(err)
		}
	}
	corners := []orb.Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	for i, c := range corners {
		insert(&osm.Node{ID: osm.NodeID(i + 1), Lon: c[0], Lat: c[1]})
	}
	insert(&osm.Way{ID: 1, Nodes: osm.WayNodes{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 1}}})
	insert(&osm.Relation{
		ID: 9,
		Tags: osm.Tags{
			{Key: "boundary", Value: "administrative"},
			{Key: "admin_level", Value: "6"},
			{Key: "name", Value: "Sangamon"},
		},
		Members: osm.Members{{Type: osm.TypeWay, Ref: 1, Role: "outer"}},
	})
	p := b.Planet()

	idx, _, err := boundary.Build(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("boundary.Build: %v", err)
	}

	var buf bytes.Buffer
	n, err := WriteRings(&buf, p, idx)
	if err != nil {
		t.Fatalf("WriteRings: %v", err)
	}
	if n != 1 {
		t.Fatalf("features = %d, want 1", n)
	}

	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	if err != nil {
		t.Fatalf("output is not a FeatureCollection: %v", err)
	}
	f := fc.Features[0]
	ls, ok := f.Geometry.(orb.LineString)
	if !ok {
		t.Fatalf("geometry = %T, want LineString", f.Geometry)
	}
	if len(ls) != 5 || ls[0] != ls[len(ls)-1] {
		t.Errorf("ring = %v, want closed 5 point line", ls)
	}
	if f.Properties.MustString("osm_id") != "R9" || f.Properties.MustString("name") != "Sangamon" {
		t.Errorf("properties = %v", f.Properties)
	}
	if f.Properties.MustFloat64("admin_level") != 6 {
		t.Errorf("admin_level = %v", f.Properties["admin_level"])
	}
}
