package models

// InspectionStatus values for field inspections.
const (
	InspectionPending   = "pending"
	InspectionScheduled = "scheduled"
	InspectionDone      = "done"
)

// Inspection is a field visit recorded against a zone.
type Inspection struct {
	ID          UUID   `db:"id" json:"id"`
	ZoneID      UUID   `db:"zone_id" json:"zone_id"`
	Status      string `db:"status" json:"status"`
	Notes       string `db:"notes" json:"notes,omitempty"`
	InspectedAt int64  `db:"inspected_at" json:"inspected_at"`
	CreatedAt   int64  `db:"created_at" json:"created_at"`
	UpdatedAt   int64  `db:"updated_at" json:"updated_at"`
}
