// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package amt

import (
	"fmt"
	"math"
)

// MassEqualityTolerance is the largest mass delta difference (exclusive)
// for which two modifications are considered the same
const MassEqualityTolerance = 0.1

// Modification is a mass change of one residue type
type Modification struct {
	Residue   byte    `json:"residue"`
	MassDelta float64 `json:"massDelta"`
	Variable  bool    `json:"variable"`
	Name      string  `json:"name,omitempty"`
}

func (m Modification) String() string {
	kind := "static"
	if m.Variable {
		kind = "variable"
	}
	if m.Name != "" {
		return fmt.Sprintf("%s %c%+.4f (%s)", kind, m.Residue, m.MassDelta, m.Name)
	}
	return fmt.Sprintf("%s %c%+.4f", kind, m.Residue, m.MassDelta)
}

// Equivalent reports whether a and b describe the same modification:
// same residue, same variable flag and mass deltas differing by less than
// MassEqualityTolerance. The name is not compared.
func Equivalent(a, b Modification) bool {
	return a.Residue == b.Residue && a.Variable == b.Variable &&
		math.Abs(a.MassDelta-b.MassDelta) < MassEqualityTolerance
}

// ModID identifies a modification within a ModCatalog
type ModID int

// ModMap translates modification IDs of one catalog into another
type ModMap map[ModID]ModID

// ModCatalog stores modifications, deduplicated by equivalence. A ModID
// is an index into the catalog and never changes.
type ModCatalog struct {
	mods []Modification
}

// Canonical returns the ID of the modification in the catalog that is
// equivalent to m, adding m when there is none
func (c *ModCatalog) Canonical(m Modification) ModID {
	if id, ok := c.Find(m); ok {
		return id
	}
	c.mods = append(c.mods, m)
	return ModID(len(c.mods) - 1)
}

// Find returns the ID of a modification equivalent to m
func (c *ModCatalog) Find(m Modification) (ModID, bool) {
	for i, cm := range c.mods {
		if Equivalent(cm, m) {
			return ModID(i), true
		}
	}
	return -1, false
}

// Get returns the modification with the given id. It panics on an id
// that was not handed out by this catalog.
func (c *ModCatalog) Get(id ModID) Modification {
	return c.mods[id]
}

// check verifies that every id of mods was handed out by this catalog
func (c *ModCatalog) check(mods [][]ModID) error {
	for _, pos := range mods {
		for _, id := range pos {
			if id < 0 || int(id) >= len(c.mods) {
				return fmt.Errorf("%w: %d", ErrUnknownModification, id)
			}
		}
	}
	return nil
}

// Len returns the number of modifications in the catalog
func (c *ModCatalog) Len() int {
	return len(c.mods)
}

// All returns a copy of all modifications, indexed by ModID
func (c *ModCatalog) All() []Modification {
	mods := make([]Modification, len(c.mods))
	copy(mods, c.mods)
	return mods
}
