// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package amt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MassProton is the mass of a proton in Da
const MassProton = float64(1.007276466879)

const massH2O = float64(18.0105647)

// Masses of amino acids (minus H2O)
var aaMass = map[byte]float64{
	'A': 71.0371138,
	'C': 103.0091848,
	'D': 115.0269430,
	'E': 129.0425931,
	'F': 147.0684139,
	'G': 57.0214637,
	'H': 137.0589119,
	'I': 113.0840640,
	'K': 128.0949630,
	'L': 113.0840640,
	'M': 131.0404849,
	'N': 114.0429274,
	'P': 97.0527638,
	'O': 237.1477269, // Pyrrolysine
	'Q': 128.0585775,
	'R': 156.1011110,
	'S': 87.0320284,
	'T': 101.0476785,
	'U': 144.9595902, // Selenocysteine
	'V': 99.0684139,
	'W': 186.0793129,
	'Y': 163.0633285,
}

// ResidueMass returns the monoisotopic residue mass of amino acid aa
func ResidueMass(aa byte) (float64, bool) {
	m, ok := aaMass[aa]
	return m, ok
}

// ValidateSequence checks that seq only holds unambiguous amino acids
func ValidateSequence(seq string) error {
	if seq == "" {
		return fmt.Errorf("%w: empty sequence", ErrInvalidSequence)
	}
	for i := 0; i < len(seq); i++ {
		if _, ok := aaMass[seq[i]]; !ok {
			return fmt.Errorf("%w: %q has %q at position %d",
				ErrInvalidSequence, seq, seq[i], i+1)
		}
	}
	return nil
}

// PeptideMass computes the lowest isotope neutral mass of an unmodified
// peptide
func PeptideMass(seq string) (float64, error) {
	m := massH2O
	for i := 0; i < len(seq); i++ {
		aam, ok := aaMass[seq[i]]
		if !ok {
			return 0.0, fmt.Errorf("%w: %q", ErrInvalidSequence, seq)
		}
		m += aam
	}
	return m, nil
}

// ModifiedSequence renders seq with every modified residue followed by
// its rounded full residue mass in brackets, e.g. PEPM[147]TC[160]K.
// mods holds per position the modifications in catalog c.
func ModifiedSequence(seq string, mods [][]ModID, c *ModCatalog) string {
	var sb strings.Builder
	for i := 0; i < len(seq); i++ {
		sb.WriteByte(seq[i])
		if i >= len(mods) || len(mods[i]) == 0 {
			continue
		}
		m := aaMass[seq[i]]
		for _, id := range mods[i] {
			m += c.Get(id).MassDelta
		}
		sb.WriteByte('[')
		sb.WriteString(strconv.Itoa(int(math.Round(m))))
		sb.WriteByte(']')
	}
	return sb.String()
}

// ModifiedMass returns the neutral mass of seq carrying mods
func ModifiedMass(seq string, mods [][]ModID, c *ModCatalog) (float64, error) {
	m, err := PeptideMass(seq)
	if err != nil {
		return 0, err
	}
	for _, pos := range mods {
		for _, id := range pos {
			m += c.Get(id).MassDelta
		}
	}
	return m, nil
}
