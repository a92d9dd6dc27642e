// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package mzml

import (
	"github.com/524D/mzamt/internal/amt"
	"github.com/524D/mzamt/internal/feature"
)

// Features returns one feature per MSn precursor with a known charge.
// The neutral mass is derived from m/z and charge.
func (f *MzML) Features() ([]*feature.Feature, error) {
	ps, err := f.Precursors()
	if err != nil {
		return nil, err
	}
	fs := make([]*feature.Feature, 0, len(ps))
	for _, p := range ps {
		if p.Charge <= 0 {
			continue
		}
		fs = append(fs, &feature.Feature{
			ID:        len(fs),
			Mass:      (p.Mz - amt.MassProton) * float64(p.Charge),
			Charge:    p.Charge,
			Time:      p.RetentionTime,
			Scan:      p.ScanIndex,
			Intensity: p.Intensity,
		})
	}
	return fs, nil
}
