// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package amt

// Retention coefficients for the sequence specific retention calculator
// (Krokhin et al. 2004, 300 Å pores, TFA ion pairing). The first value
// is the internal coefficient, the second the N-terminal one.
var retentionCoef = map[byte][2]float64{
	'A': {0.8, -1.5},
	'C': {-0.8, 4.0},
	'D': {-0.5, 9.0},
	'E': {0.0, 7.0},
	'F': {10.5, -7.0},
	'G': {-0.9, 5.0},
	'H': {-1.3, 4.0},
	'I': {8.4, -8.0},
	'K': {-1.9, 4.6},
	'L': {9.6, -9.0},
	'M': {5.8, -5.5},
	'N': {-1.2, 5.0},
	'O': {-1.9, 4.6},
	'P': {0.2, 4.0},
	'Q': {-0.9, 1.0},
	'R': {-1.3, 8.0},
	'S': {-0.8, 5.0},
	'T': {0.4, 5.0},
	'U': {-0.8, 4.0},
	'V': {5.0, -5.5},
	'W': {11.0, -4.0},
	'Y': {4.0, -3.0},
}

// Weights of the N-terminal coefficients of the first three residues
var nTermWeight = [3]float64{0.42, 0.22, 0.05}

// PredictHydrophobicity returns the hydrophobicity of a peptide predicted
// from its sequence alone. Unknown residues contribute nothing.
func PredictHydrophobicity(seq string) float64 {
	n := len(seq)
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += retentionCoef[seq[i]][0]
	}
	for i := 0; i < n && i < len(nTermWeight); i++ {
		sum += nTermWeight[i] * retentionCoef[seq[i]][1]
	}

	// Length correction
	kl := 1.0
	switch {
	case n < 10:
		kl = 1 - 0.027*float64(10-n)
	case n > 20:
		kl = 1 - 0.014*float64(n-20)
	}
	h := kl * sum

	// Very hydrophobic peptides elute earlier than predicted
	if h > 38 {
		h -= 0.3 * (h - 38)
	}
	return h
}
