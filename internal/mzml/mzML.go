// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package mzml

import (
	"encoding/xml"
	"errors"
)

// MzML wraps the spectrum headers of an mzML file. Peak data is not
// decoded.
type MzML struct {
	content  mzMLContent
	index2id []string
	id2Index map[string]int
}

// Precursor is the selected ion of an MSn spectrum
type Precursor struct {
	ScanIndex     int
	Mz            float64
	Charge        int     // 0 if not reported
	Intensity     float64 // 0 if not reported
	RetentionTime float64 // of the MSn spectrum, in seconds
}

type mzMLContent struct {
	XMLName xml.Name `xml:"http://psi.hupo.org/ms/mzml mzML"`
	Run     run      `xml:"run"`
}

type run struct {
	ID             string       `xml:"id,attr"`
	StartTimeStamp string       `xml:"startTimeStamp,attr"`
	SpectrumList   spectrumList `xml:"spectrumList"`
}

type spectrumList struct {
	Count    int        `xml:"count,attr"`
	Spectrum []spectrum `xml:"spectrum"`
}

type spectrum struct {
	Index         int             `xml:"index,attr"`
	ID            string          `xml:"id,attr"`
	CvPar         []CVParam       `xml:"cvParam"`
	ScanList      scanList        `xml:"scanList"`
	PrecursorList []precursorList `xml:"precursorList"`
}

type scanList struct {
	Scan []scan `xml:"scan"`
}

type scan struct {
	CvPar []CVParam `xml:"cvParam"`
}

type precursorList struct {
	Precursor []xmlPrecursor `xml:"precursor"`
}

type xmlPrecursor struct {
	SpectrumRef string        `xml:"spectrumRef,attr"`
	SelectedIon []selectedIon `xml:"selectedIonList>selectedIon"`
}

type selectedIon struct {
	CvPar []CVParam `xml:"cvParam"`
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
type CVParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

var (
	// ErrInvalidScanID means an invalid scan id is supplied
	ErrInvalidScanID = errors.New("MzML: invalid scan id")
	// ErrInvalidScanIndex means an invalid scan index is supplied
	ErrInvalidScanIndex = errors.New("MzML: invalid scan index")
)
