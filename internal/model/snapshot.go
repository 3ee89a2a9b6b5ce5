package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for acquisition days.
const DateLayout = "2006-01-02"

// Derived holds cross-field metrics computed from a complete field map.
type Derived struct {
	SpreadBasisPoints       int `json:"spread"`
	SpreadChangeBasisPoints int `json:"spreadChange"`
}

// Snapshot is the reconciled result of one acquisition run.
type Snapshot struct {
	Timestamp       time.Time     `json:"lastUpdate"`
	AsOf            string        `json:"asOf"`
	Source          string        `json:"source"`
	Stale           bool          `json:"stale"`
	BaselineVersion string        `json:"baselineVersion,omitempty"`
	Fields          FieldMap      `json:"fields"`
	Provenance      ProvenanceMap `json:"provenance"`
	Derived
}

// ComputeDerived computes the BTP–Bund spread and its daily change in basis
// points. It depends only on the field map so it can be recomputed from a
// persisted snapshot.
func ComputeDerived(fields FieldMap) Derived {
	btp := fields[BTP10Y]
	bund := fields[Bund10Y]
	return Derived{
		SpreadBasisPoints:       BasisPoints(btp.Value, bund.Value),
		SpreadChangeBasisPoints: BasisPoints(btp.Change, bund.Change),
	}
}

// BasisPoints returns round((a - b) * 100) using decimal arithmetic, rounding
// half away from zero.
func BasisPoints(a, b float64) int {
	d := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Shift(2)
	return int(d.Round(0).IntPart())
}

// AcquisitionDate formats t as a calendar date in loc.
func AcquisitionDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}
