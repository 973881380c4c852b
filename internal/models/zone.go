package models

import "time"

// Collection names for the three entity kinds held in the local store. The
// sync queue occupies a fourth table of its own.
const (
	CollectionZones       = "zones"
	CollectionAnalyses    = "analyses"
	CollectionInspections = "inspections"
)

// Collections lists every entity collection refreshed from the remote
// backend during a reconciliation pass.
var Collections = []string{CollectionZones, CollectionAnalyses, CollectionInspections}

// Zone represents a candidate green-infrastructure surface: a rooftop,
// vacant lot or degraded park delimited by a polygon of [lon, lat] pairs.
type Zone struct {
	ID          UUID         `db:"id" json:"id"`
	Name        string       `db:"name" json:"name"`
	ZoneType    string       `db:"zone_type" json:"zone_type"` // tejado, solar_vacio, parque_degradado, jardin_vertical
	Polygon     [][2]float64 `db:"polygon" json:"polygon"`
	AreaM2      float64      `db:"area_m2" json:"area_m2"`
	PerimeterM  float64      `db:"perimeter_m" json:"perimeter_m"`
	CentroidLat float64      `db:"centroid_lat" json:"centroid_lat"`
	CentroidLon float64      `db:"centroid_lon" json:"centroid_lon"`
	District    string       `db:"district" json:"district,omitempty"`
	CreatedAt   int64        `db:"created_at" json:"created_at"`
	UpdatedAt   int64        `db:"updated_at" json:"updated_at"`
}

// Touch updates the UpdatedAt timestamp.
func (z *Zone) Touch() {
	z.UpdatedAt = time.Now().Unix()
}
