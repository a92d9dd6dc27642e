package mzidentml

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/524D/mzamt/internal/amt"
)

const testMzID = `<?xml version="1.0" encoding="UTF-8"?>
<MzIdentML id="test" version="1.1.0" xmlns="http://psidev.info/psi/pi/mzIdentML/1.1">
 <SequenceCollection>
  <Peptide id="pep1">
   <PeptideSequence>PEPMTCK</PeptideSequence>
   <Modification location="4" residues="M" monoisotopicMassDelta="15.994915">
    <cvParam accession="UNIMOD:35" name="Oxidation" cvRef="UNIMOD"/>
   </Modification>
   <Modification location="6" residues="C" monoisotopicMassDelta="57.021464">
    <cvParam accession="UNIMOD:4" name="Carbamidomethyl" cvRef="UNIMOD"/>
   </Modification>
  </Peptide>
  <Peptide id="pep2">
   <PeptideSequence>AGLK</PeptideSequence>
   <Modification location="0" monoisotopicMassDelta="42.010565">
    <cvParam accession="UNIMOD:1" name="Acetyl" cvRef="UNIMOD"/>
   </Modification>
  </Peptide>
 </SequenceCollection>
 <AnalysisProtocolCollection>
  <SpectrumIdentificationProtocol id="SIP">
   <ModificationParams>
    <SearchModification fixedMod="true" massDelta="57.021464" residues="C">
     <cvParam accession="UNIMOD:4" name="Carbamidomethyl" cvRef="UNIMOD"/>
    </SearchModification>
    <SearchModification fixedMod="false" massDelta="15.994915" residues="M">
     <cvParam accession="UNIMOD:35" name="Oxidation" cvRef="UNIMOD"/>
    </SearchModification>
    <SearchModification fixedMod="false" massDelta="79.966331" residues="S T">
     <cvParam accession="UNIMOD:21" name="Phospho" cvRef="UNIMOD"/>
    </SearchModification>
    <SearchModification fixedMod="false" massDelta="42.010565" residues=".">
     <cvParam accession="UNIMOD:1" name="Acetyl" cvRef="UNIMOD"/>
    </SearchModification>
   </ModificationParams>
  </SpectrumIdentificationProtocol>
 </AnalysisProtocolCollection>
 <DataCollection>
  <AnalysisData>
   <SpectrumIdentificationList id="SIL">
    <SpectrumIdentificationResult id="r1" spectrumID="index=10">
     <SpectrumIdentificationItem id="i1" chargeState="2" peptide_ref="pep1" rank="1" passThreshold="true">
      <cvParam accession="MS:1002357" name="PSM-level probability" value="0.97"/>
     </SpectrumIdentificationItem>
     <SpectrumIdentificationItem id="i2" chargeState="2" peptide_ref="pep2" rank="2" passThreshold="false">
      <cvParam accession="MS:1002357" name="PSM-level probability" value="0.12"/>
     </SpectrumIdentificationItem>
     <cvParam accession="MS:1000016" name="scan start time" value="20.5" unitAccession="UO:0000031"/>
    </SpectrumIdentificationResult>
    <SpectrumIdentificationResult id="r2" spectrumID="index=11">
     <SpectrumIdentificationItem id="i3" chargeState="3" peptide_ref="pep2" rank="1" passThreshold="true">
      <cvParam accession="MS:1002357" name="PSM-level probability" value="0.8"/>
     </SpectrumIdentificationItem>
    </SpectrumIdentificationResult>
   </SpectrumIdentificationList>
  </AnalysisData>
 </DataCollection>
</MzIdentML>`

func read(t *testing.T) MzIdentML {
	t.Helper()
	f, err := Read(strings.NewReader(testMzID))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	return f
}

func TestIdent(t *testing.T) {
	f := read(t)
	if n := f.NumIdents(); n != 3 {
		t.Fatalf("NumIdents is %d, expected 3", n)
	}
	ident, err := f.Ident(0)
	if err != nil {
		t.Fatalf("Ident: error return %v", err)
	}
	if ident.PepSeq != "PEPMTCK" || ident.Charge != 2 || ident.Rank != 1 || !ident.PassThreshold {
		t.Errorf("Ident(0): %+v", ident)
	}
	if ident.RetentionTime != 1230 {
		t.Errorf("retention time %v, expected 1230", ident.RetentionTime)
	}
	if math.Abs(ident.ModMass-73.016379) > 1e-9 {
		t.Errorf("ModMass %v", ident.ModMass)
	}
	if s, ok := ident.Score("MS:1002357"); !ok || s != 0.97 {
		t.Errorf("Score: %v %v", s, ok)
	}
	if _, ok := ident.Score("MS:1001330"); ok {
		t.Errorf("Score of absent term found")
	}
	if i, ok := ScanIndex(ident.SpecID); !ok || i != 10 {
		t.Errorf("ScanIndex(%q): %d %v", ident.SpecID, i, ok)
	}

	ident, err = f.Ident(2)
	if err != nil {
		t.Fatalf("Ident: error return %v", err)
	}
	if ident.RetentionTime != -1 {
		t.Errorf("retention time %v, expected -1", ident.RetentionTime)
	}
	if _, err := f.Ident(3); err != ErrInvalidIdentIndex {
		t.Errorf("Ident(3): error return %v, expected ErrInvalidIdentIndex", err)
	}
}

func TestRun(t *testing.T) {
	f := read(t)
	var c amt.ModCatalog
	r := f.Run(&c)
	// Terminal acetylation is skipped, phospho is declared for S and T
	if c.Len() != 4 {
		t.Fatalf("catalog has %d modifications: %v", c.Len(), c.All())
	}
	if len(r.StaticMods) != 1 || len(r.VariableMods) != 3 {
		t.Fatalf("run mods static %v variable %v", r.StaticMods, r.VariableMods)
	}
	got := c.Get(r.StaticMods[0])
	want := amt.Modification{Residue: 'C', MassDelta: 57.021464, Name: "Carbamidomethyl"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("static mod (-want +got):\n%s", diff)
	}
	var residues []byte
	for _, id := range r.VariableMods {
		residues = append(residues, c.Get(id).Residue)
	}
	if string(residues) != "MST" {
		t.Errorf("variable mod residues %q", residues)
	}
}

func TestIdentifications(t *testing.T) {
	f := read(t)
	keep := func(ident *Identification) bool { return ident.Rank == 1 }
	quality := func(ident *Identification) float64 {
		s, _ := ident.Score("MS:1002357")
		return s
	}
	if _, err := f.Identifications(keep, quality, nil); err == nil {
		t.Errorf("Identifications without time source: expected error")
	}

	ids, err := f.Identifications(keep, quality, func(specID string) (float64, error) {
		if specID != "index=11" {
			return 0, errors.New("unexpected spectrum")
		}
		return 1300, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []amt.Identification{
		{
			Sequence: "PEPMTCK",
			Modified: []amt.ModifiedResidue{
				{Position: 3, Mass: 131.0404849 + 15.994915},
				{Position: 5, Mass: 103.0091848 + 57.021464},
			},
			Time:          1230,
			Quality:       0.97,
			SpectralCount: 1,
		},
		{Sequence: "AGLK", Modified: []amt.ModifiedResidue{}, Time: 1300, Quality: 0.8, SpectralCount: 1},
	}
	if diff := cmp.Diff(want, ids, cmpopts.EquateApprox(0, 1e-9), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Identifications (-want +got):\n%s", diff)
	}

	// The identifications resolve against the declared modifications
	db := amt.NewDatabase()
	var c amt.ModCatalog
	if _, err := db.AddRunObservations(f.Run(&c), &c, ids, false); err != nil {
		t.Fatal(err)
	}
	e := db.Entry("PEPMTCK")
	if e == nil || e.State("PEPM[147]TC[160]K") == nil {
		t.Errorf("modification state not found in %+v", e)
	}
}
