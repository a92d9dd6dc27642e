// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package mzml

import (
	"encoding/xml"
	"io"
	"strconv"

	"golang.org/x/net/html/charset"
)

// Read reads mzML file from an io.Reader
func Read(reader io.Reader) (MzML, error) {
	var mzML MzML

	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel

	// We are only interested in mzML content, so skip over indexedmzML
	// and everything else
	for {
		t, tokenErr := d.Token()
		if tokenErr != nil {
			if tokenErr == io.EOF {
				break
			}
			return mzML, tokenErr
		}
		if se, ok := t.(xml.StartElement); ok && se.Name.Local == "mzML" {
			if err := d.DecodeElement(&mzML.content, &se); err != nil {
				return mzML, err
			}
		}
	}

	err := mzML.traverseScan()
	return mzML, err
}

// NumSpecs returns the number of spectra
func (f *MzML) NumSpecs() int {
	return len(f.content.Run.SpectrumList.Spectrum)
}

// RunID returns the id of the run in the file
func (f *MzML) RunID() string {
	return f.content.Run.ID
}

// StartTimeStamp returns the start time stamp of the run as written
// in the file, or ""
func (f *MzML) StartTimeStamp() string {
	return f.content.Run.StartTimeStamp
}

// RetentionTime returns the retention time of a spectrum in seconds, or
// -1 if the file doesn't report it
func (f *MzML) RetentionTime(scanIndex int) (float64, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return 0.0, ErrInvalidScanIndex
	}
	for _, scan := range f.content.Run.SpectrumList.Spectrum[scanIndex].ScanList.Scan {
		for _, cvParam := range scan.CvPar {
			if cvParam.Accession == "MS:1000016" {
				return cvSeconds(cvParam)
			}
		}
	}
	return -1.0, nil
}

func cvSeconds(cvParam CVParam) (float64, error) {
	t, err := strconv.ParseFloat(cvParam.Value, 64)
	// Check if the time is in minutes, otherwise assume it's seconds
	if cvParam.UnitAccession == "UO:0000031" ||
		cvParam.UnitAccession == "MS:1000038" {
		t *= 60
	}
	return t, err
}

// MSLevel returns the MS level of a scan
func (f *MzML) MSLevel(scanIndex int) (int, error) {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return 0, ErrInvalidScanIndex
	}

	for _, cvParam := range f.content.Run.SpectrumList.Spectrum[scanIndex].CvPar {
		if cvParam.Accession == "MS:1000511" { // ms level
			msLevel, err := strconv.ParseInt(cvParam.Value, 10, 64)
			return int(msLevel), err
		}
	}
	return 1, nil // If nothing else, guess it's MS1
}

// traverseScan fills the arrays f.index2id and f.id2Index to make scans
// accessible by id
func (f *MzML) traverseScan() error {
	f.index2id = make([]string, f.NumSpecs())
	f.id2Index = make(map[string]int, f.NumSpecs())

	for i, s := range f.content.Run.SpectrumList.Spectrum {
		if i != s.Index {
			return ErrInvalidScanIndex
		}
		f.index2id[i] = s.ID
		f.id2Index[s.ID] = i
	}
	return nil
}

// ScanIndex converts a scan identifier (the string used in the mzML file)
// into an index that is used to access the scans
func (f *MzML) ScanIndex(scanID string) (int, error) {
	if index, ok := f.id2Index[scanID]; ok {
		return index, nil
	}
	return 0, ErrInvalidScanID
}

// ScanID converts a scan index (used to access the scan data) into a scan id
// (used in the mzML file)
func (f *MzML) ScanID(scanIndex int) (string, error) {
	if scanIndex >= 0 && scanIndex < f.NumSpecs() {
		return f.index2id[scanIndex], nil
	}
	return "", ErrInvalidScanIndex
}

// RetentionTimeOfID returns the retention time in seconds of the spectrum
// with the given id
func (f *MzML) RetentionTimeOfID(scanID string) (float64, error) {
	i, err := f.ScanIndex(scanID)
	if err != nil {
		return 0, err
	}
	return f.RetentionTime(i)
}

// Precursors returns the first selected ion of every MSn spectrum
//
// CV Terms of a selected ion
// MS:1000744 selected ion m/z
// MS:1000041 charge state
// MS:1000042 peak intensity
func (f *MzML) Precursors() ([]Precursor, error) {
	var ps []Precursor
	for i, s := range f.content.Run.SpectrumList.Spectrum {
		if len(s.PrecursorList) == 0 || len(s.PrecursorList[0].Precursor) == 0 {
			continue
		}
		ions := s.PrecursorList[0].Precursor[0].SelectedIon
		if len(ions) == 0 {
			continue
		}
		rt, err := f.RetentionTime(i)
		if err != nil {
			return nil, err
		}
		p := Precursor{ScanIndex: i, RetentionTime: rt}
		for _, cvParam := range ions[0].CvPar {
			switch cvParam.Accession {
			case "MS:1000744":
				p.Mz, err = strconv.ParseFloat(cvParam.Value, 64)
			case "MS:1000041":
				p.Charge, err = strconv.Atoi(cvParam.Value)
			case "MS:1000042":
				p.Intensity, err = strconv.ParseFloat(cvParam.Value, 64)
			}
			if err != nil {
				return nil, err
			}
		}
		if p.Mz > 0 {
			ps = append(ps, p)
		}
	}
	return ps, nil
}
