// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package amt

import (
	"time"

	"github.com/524D/mzamt/internal/regress"
)

// Run is one LC-MS/MS run contributing observations to a database
type Run struct {
	Seq                int       // 1-based insertion index in the database
	Coefficients       []float64 // time -> hydrophobicity polynomial, lowest order first
	StaticMods         []ModID
	VariableMods       []ModID
	IdentificationFile string
	SpectraFile        string
	TimeAnalyzed       time.Time
}

// Hydrophobicity maps an elution time of this run to hydrophobicity
func (r *Run) Hydrophobicity(t float64) float64 {
	return regress.Polyval(r.Coefficients, t)
}

// SetCoefficients replaces the time to hydrophobicity mapping
func (r *Run) SetCoefficients(c []float64) {
	r.Coefficients = append([]float64(nil), c...)
}

func (r *Run) clone() *Run {
	c := *r
	c.Coefficients = append([]float64(nil), r.Coefficients...)
	c.StaticMods = append([]ModID(nil), r.StaticMods...)
	c.VariableMods = append([]ModID(nil), r.VariableMods...)
	return &c
}
