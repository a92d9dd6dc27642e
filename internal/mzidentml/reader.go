// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Read reads mzIdentML content from io.reader
func Read(reader io.Reader) (MzIdentML, error) {
	var mzIdentML MzIdentML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	err := d.Decode(&mzIdentML.content)
	if err != nil {
		return mzIdentML, err
	}
	mzIdentML.buildPepID2Idx()
	mzIdentML.buildIdentList()
	return mzIdentML, err
}

func (m *MzIdentML) buildPepID2Idx() {
	m.pepID2Idx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.pepID2Idx[p.ID] = i
	}
}

func (m *MzIdentML) buildIdentList() {
	for i := range m.content.SpectrumIdentificationResult {
		for j := range m.content.SpectrumIdentificationResult[i].SpectrumIdentificationItem {
			m.identList = append(m.identList, identRef{resultIdx: i, itemIdx: j})
		}
	}
}

// NumIdents returns the total number of identifications in the mzIdentML file
// Note that for some spectra, multiple identifications may be present
// The identifications can be accessed using the Ident() method, which takes
// an index as argument. The index runs from 0 to NumIdents()-1
func (m *MzIdentML) NumIdents() int {
	return len(m.identList)
}

// SearchModifications returns the modifications declared in the search
// protocol
func (m *MzIdentML) SearchModifications() []SearchModification {
	mods := make([]SearchModification, 0, len(m.content.SearchModification))
	for _, sm := range m.content.SearchModification {
		mod := SearchModification{
			Fixed:     sm.FixedMod,
			MassDelta: sm.MassDelta,
			Residues:  sm.Residues,
		}
		if len(sm.CvPar) > 0 {
			mod.Name = sm.CvPar[0].Name
		}
		mods = append(mods, mod)
	}
	return mods
}

// Ident returns a spectrum identification from the mzIdentML file.
// Parameter i is the index of the identification to return. The index runs
// from 0 to NumIdents()-1
func (m *MzIdentML) Ident(i int) (Identification, error) {
	var ident Identification

	if i < 0 || i >= len(m.identList) {
		return ident, ErrInvalidIdentIndex
	}
	result := &m.content.SpectrumIdentificationResult[m.identList[i].resultIdx]
	item := &result.SpectrumIdentificationItem[m.identList[i].itemIdx]

	pepIdx, ok := m.pepID2Idx[item.PeptideRef]
	if !ok {
		return ident, fmt.Errorf("%w: %s", ErrUnknownPeptide, item.PeptideRef)
	}
	pep := &m.content.Peptide[pepIdx]
	ident.PepSeq = pep.PeptideSequence
	ident.PepID = pep.ID
	ident.Charge = item.ChargeState
	ident.Rank = item.Rank
	ident.PassThreshold = item.PassThreshold
	for _, mod := range pep.Modification {
		ident.ModMass += mod.MonoisotopicMassDelta
		im := Modification{
			Location:  mod.Location,
			Residues:  mod.Residues,
			MassDelta: mod.MonoisotopicMassDelta,
		}
		if len(mod.CvPar) > 0 {
			im.Name = mod.CvPar[0].Name
		}
		ident.Mods = append(ident.Mods, im)
	}
	ident.SpecID = result.SpectrumID

	rt, err := retentionTime(result.CvPar)
	if err != nil {
		return ident, err
	}
	ident.RetentionTime = rt
	// The scores are in the CV terms of the item
	ident.Cv = append(ident.Cv, item.CvPar...)

	return ident, nil
}

// retentionTime returns the retention time in seconds reported by the
// CV terms of a result, or -1. There are multiple CV terms that can be
// used to report the retention time. In order of decreasing preference:
// 1. MS:1000016 - scan start time
// 2. MS:1000894 - retention time
// 3. MS:1000826 - elution time
// 4. MS:1001114 - retention time (deprecated)
func retentionTime(cvs []CVParam) (float64, error) {
	prio := map[string]int{
		"MS:1000016": 1,
		"MS:1000894": 2,
		"MS:1000826": 3,
		"MS:1001114": 4,
	}
	rt := float64(-1)
	best := math.MaxInt32
	for _, cv := range cvs {
		p, ok := prio[cv.Accession]
		if !ok || p >= best {
			continue
		}
		t, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			return -1, fmt.Errorf("mzIdentML: retention time %q: %w", cv.Value, err)
		}
		// Minutes, otherwise assume seconds
		if cv.UnitAccession == "UO:0000031" || cv.UnitAccession == "MS:1000038" {
			t *= 60
		}
		best = p
		rt = t
	}
	return rt, nil
}

var reScanIndex = regexp.MustCompile(`(?:^|\s)index=(\d+)`)

// ScanIndex returns the spectrum index encoded in a spectrumID of the
// form "index=N", as written by many search engines
func ScanIndex(specID string) (int, bool) {
	m := reScanIndex.FindStringSubmatch(specID)
	if m == nil {
		return 0, false
	}
	i, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return i, true
}

// Score returns the numeric value of the CV term with the given accession
func (ident *Identification) Score(accession string) (float64, bool) {
	for _, cv := range ident.Cv {
		if cv.Accession == accession {
			v, err := strconv.ParseFloat(cv.Value, 64)
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}
