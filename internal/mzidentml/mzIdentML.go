// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package mzidentml

import (
	"encoding/xml"
	"errors"
)

// Types for parsing mzIdentML

// MzIdentML holds the part of an mzIdentML file needed to add its
// identifications to an AMT database
type MzIdentML struct {
	pepID2Idx map[string]int
	identList []identRef
	content   mzIdentMLContent
}

type identRef struct {
	resultIdx int // Index into SpectrumIdentificationResult
	itemIdx   int // Index into SpectrumIdentificationItem
}

// Identification is one peptide spectrum match
type Identification struct {
	PepSeq        string
	PepID         string
	Charge        int
	Rank          int
	PassThreshold bool
	ModMass       float64 // sum of all modification mass deltas
	Mods          []Modification
	SpecID        string
	RetentionTime float64 // seconds, -1 if not reported
	Cv            []CVParam
}

// Modification is a modification reported on an identified peptide.
// Location 0 is the N-terminus, 1 the first residue and len+1 the
// C-terminus.
type Modification struct {
	Location  int
	Residues  string
	MassDelta float64
	Name      string
}

// SearchModification is a modification the search engine was told to
// consider
type SearchModification struct {
	Fixed     bool
	MassDelta float64
	Residues  string
	Name      string
}

type mzIdentMLContent struct {
	XMLName                      xml.Name                       `xml:"MzIdentML"`
	SearchModification           []searchModification           `xml:"AnalysisProtocolCollection>SpectrumIdentificationProtocol>ModificationParams>SearchModification"`
	Peptide                      []peptide                      `xml:"SequenceCollection>Peptide"`
	SpectrumIdentificationResult []spectrumIdentificationResult `xml:"DataCollection>AnalysisData>SpectrumIdentificationList>SpectrumIdentificationResult"`
}

type searchModification struct {
	FixedMod  bool      `xml:"fixedMod,attr"`
	MassDelta float64   `xml:"massDelta,attr"`
	Residues  string    `xml:"residues,attr"`
	CvPar     []CVParam `xml:"cvParam"`
}

type peptide struct {
	ID              string `xml:"id,attr"`
	PeptideSequence string
	Modification    []modification
}

type modification struct {
	// Note: monoisotopicMassDelta is optional according the the schema, but
	// appears to be no other way to determine mass shift, as other
	// corresponding cvParam's don't carry this info either
	MonoisotopicMassDelta float64   `xml:"monoisotopicMassDelta,attr"`
	Location              int       `xml:"location,attr"`
	Residues              string    `xml:"residues,attr"`
	CvPar                 []CVParam `xml:"cvParam"`
}

type spectrumIdentificationResult struct {
	SpectrumID                 string `xml:"spectrumID,attr"`
	SpectrumIdentificationItem []spectrumIdentificationItem
	CvPar                      []CVParam `xml:"cvParam"`
}

type spectrumIdentificationItem struct {
	ChargeState   int       `xml:"chargeState,attr"`
	PeptideRef    string    `xml:"peptide_ref,attr"`
	Rank          int       `xml:"rank,attr"`
	PassThreshold bool      `xml:"passThreshold,attr"`
	CvPar         []CVParam `xml:"cvParam"`
}

// CVParam is a controlled vocabulary term with its value
type CVParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

var (
	ErrInvalidIdentIndex = errors.New("mzIdentML: invalid identification index")
	ErrUnknownPeptide    = errors.New("mzIdentML: reference to unknown peptide")
)
