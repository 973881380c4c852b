package models

// Analysis holds the derived numbers for a zone: the Factor Verde score,
// budget and subsidy estimates, and ecosystem-benefit figures. The sync
// layer treats these as opaque payload; the fields exist so the consumer
// API can produce and validate them.
type Analysis struct {
	ID          UUID    `db:"id" json:"id"`
	ZoneID      UUID    `db:"zone_id" json:"zone_id"`
	FactorVerde float64 `db:"factor_verde" json:"factor_verde"`
	BudgetEUR   float64 `db:"budget_eur" json:"budget_eur"`
	SubsidyEUR  float64 `db:"subsidy_eur" json:"subsidy_eur"`
	CO2KgYear   float64 `db:"co2_kg_year" json:"co2_kg_year"`
	ROIYears    float64 `db:"roi_years" json:"roi_years"`
	CreatedAt   int64   `db:"created_at" json:"created_at"`
	UpdatedAt   int64   `db:"updated_at" json:"updated_at"`
}
