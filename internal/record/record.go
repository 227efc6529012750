// Package record defines the gazetteer output row.
package record

import (
	"math"

	"github.com/wegman-software/osm-gazetteer/internal/osmid"
)

// BuildingLevel marks records of point features. Administrative records
// always carry a smaller admin level.
const BuildingLevel uint8 = 255

// Record is one named place with its administrative chain, most specific first
type Record struct {
	Name       string   `json:"name"`
	AltName    string   `json:"alt_name,omitempty"`
	Operator   string   `json:"operator,omitempty"`
	OSMID      osmid.ID `json:"osm_id"`
	Location   []string `json:"location"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	AdminLevel uint8    `json:"admin_level"`
}

// IsBoundary reports whether the record describes an administrative area
func (r Record) IsBoundary() bool {
	return r.AdminLevel < BuildingLevel
}

// Geo is the coordinate pair search indexes expect
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Document is the JSON shape handed to search index feeders
type Document struct {
	Record
	Geo Geo `json:"geo"`
}

// AsDocument wraps the record with its geo field
func (r Record) AsDocument() Document {
	return Document{Record: r, Geo: Geo{Lat: r.Latitude, Lon: r.Longitude}}
}

// Round rounds half away from zero to 7 decimal places. Negative results
// that round to zero come back as +0.
func Round(v float64) float64 {
	r := math.Round(v*1e7) / 1e7
	if r == 0 {
		return 0
	}
	return r
}
