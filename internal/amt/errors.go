// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package amt

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedModification means an observed modification matches
	// none of the modifications declared for the run
	ErrUnresolvedModification = errors.New("unresolved modification")
	// ErrDegenerateInput means the input was never populated, e.g. no
	// features or all elution times zero
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrInvalidSequence means a peptide sequence holds ambiguous or
	// unknown residues
	ErrInvalidSequence = errors.New("invalid peptide sequence")
	// ErrUnknownRun means a run sequence number is not in the database
	ErrUnknownRun = errors.New("unknown run")
	// ErrUnknownModification means a modification id is not in the catalog
	ErrUnknownModification = errors.New("unknown modification")
)

// UnresolvedModificationError describes the modification that could not
// be resolved
type UnresolvedModificationError struct {
	Sequence  string
	Position  int // 0-based
	Residue   byte
	MassDelta float64 // effective mass delta after static modifications
	Run       int
}

func (e *UnresolvedModificationError) Error() string {
	return fmt.Sprintf("%v: %s position %d (%c), mass delta %+.4f not declared for run %d",
		ErrUnresolvedModification, e.Sequence, e.Position+1, e.Residue, e.MassDelta, e.Run)
}

func (e *UnresolvedModificationError) Unwrap() error {
	return ErrUnresolvedModification
}
