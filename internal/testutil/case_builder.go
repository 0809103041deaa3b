package testutil

import (
	"github.com/hupe1980/clinagents/core"
)

// CaseBuilder helps construct patient cases with fluent chaining for tests.
// Example:
//
//	c := NewCaseBuilder("20001").History("34M with RLQ pain.").Lab("WBC", "14.2").Diagnosis("appendicitis").Build()
type CaseBuilder struct {
	c core.PatientCase
}

// NewCaseBuilder creates a new builder for a case with the given id.
func NewCaseBuilder(id string) *CaseBuilder {
	return &CaseBuilder{c: core.PatientCase{ID: id}}
}

// History sets the presenting history (chainable).
func (b *CaseBuilder) History(h string) *CaseBuilder { b.c.History = h; return b }

// Exam sets the recorded physical examination (chainable).
func (b *CaseBuilder) Exam(e string) *CaseBuilder { b.c.PhysicalExam = e; return b }

// Lab appends one laboratory result (chainable).
func (b *CaseBuilder) Lab(name, value string) *CaseBuilder {
	b.c.Labs = append(b.c.Labs, core.LabResult{Name: name, Value: value})
	return b
}

// Imaging appends one radiology report (chainable).
func (b *CaseBuilder) Imaging(modality, region, report string) *CaseBuilder {
	b.c.Imaging = append(b.c.Imaging, core.ImagingStudy{Modality: modality, Region: region, Report: report})
	return b
}

// Diagnosis sets the ground-truth pathology (chainable).
func (b *CaseBuilder) Diagnosis(d string) *CaseBuilder { b.c.GroundTruth.Diagnosis = d; return b }

// Treatment sets the ground-truth treatment (chainable).
func (b *CaseBuilder) Treatment(t string) *CaseBuilder { b.c.GroundTruth.Treatment = t; return b }

// Build returns the case.
func (b *CaseBuilder) Build() core.PatientCase { return b.c }

// AppendicitisCase is a fully recorded appendicitis encounter.
func AppendicitisCase() core.PatientCase {
	return NewCaseBuilder("20001").
		History("34M with RLQ pain for 1 day, nausea and low-grade fever.").
		Exam("Tenderness at McBurney's point, positive Rovsing sign.").
		Lab("White Blood Cells", "14.2 K/uL").
		Lab("C-Reactive Protein", "48 mg/L").
		Lab("Lipase", "30 IU/L").
		Imaging("CT", "Abdomen", "Dilated appendix with periappendiceal fat stranding.").
		Diagnosis("appendicitis").
		Treatment("appendectomy").
		Build()
}

// DiverticulitisCase is an encounter without labs or imaging.
func DiverticulitisCase() core.PatientCase {
	return NewCaseBuilder("10001").
		History("60F with LLQ pain and fever.").
		Exam("LLQ tenderness without peritonitis.").
		Diagnosis("diverticulitis").
		Build()
}
