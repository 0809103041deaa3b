package core

import (
	"fmt"
	"strings"
)

// FindingKind names the type of clinical information an agent can request.
type FindingKind string

const (
	// KindPhysicalExam requests the recorded physical examination.
	KindPhysicalExam FindingKind = "physical_examination"
	// KindLaboratory requests one or more laboratory results.
	KindLaboratory FindingKind = "laboratory_tests"
	// KindImaging requests one or more radiology reports.
	KindImaging FindingKind = "imaging"
)

// FindingKinds lists the supported kinds in canonical order.
var FindingKinds = []FindingKind{KindPhysicalExam, KindLaboratory, KindImaging}

// ParseFindingKind maps free-form action labels ("Physical Examination",
// "Laboratory Tests", "labs", "radiology", ...) onto a FindingKind.
func ParseFindingKind(s string) (FindingKind, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.Trim(norm, "*:. ")
	norm = strings.ReplaceAll(norm, "_", " ")

	switch norm {
	case "physical examination", "physical exam", "physical", "exam", "examination":
		return KindPhysicalExam, true
	case "laboratory tests", "laboratory test", "laboratory", "lab tests", "lab test", "labs", "lab":
		return KindLaboratory, true
	case "imaging", "imaging studies", "imaging study", "radiology":
		return KindImaging, true
	}

	return "", false
}

// String implements fmt.Stringer.
func (k FindingKind) String() string { return string(k) }

// Label returns the human readable label used in prompts.
func (k FindingKind) Label() string {
	switch k {
	case KindPhysicalExam:
		return "Physical Examination"
	case KindLaboratory:
		return "Laboratory Tests"
	case KindImaging:
		return "Imaging"
	default:
		return string(k)
	}
}

// LabResult is one recorded laboratory value. Lower and Upper are the
// reference range bounds, nil when the record carries none.
type LabResult struct {
	Name  string   `json:"name"`
	Value string   `json:"value"`
	Lower *float64 `json:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty"`
}

// ImagingStudy is one recorded radiology study.
type ImagingStudy struct {
	ExamName string `json:"exam_name"`
	Modality string `json:"modality"`
	Region   string `json:"region,omitempty"`
	Report   string `json:"report"`
}

// Title returns "<exam name> (<modality>)" with empty parts omitted.
func (s ImagingStudy) Title() string {
	switch {
	case s.ExamName != "" && s.Modality != "":
		return fmt.Sprintf("%s (%s)", s.ExamName, s.Modality)
	case s.ExamName != "":
		return s.ExamName
	default:
		return s.Modality
	}
}

// GroundTruth holds the reference labels a transcript is scored against.
type GroundTruth struct {
	Diagnosis          string `json:"diagnosis"`
	Treatment          string `json:"treatment,omitempty"`
	DischargeDiagnosis string `json:"discharge_diagnosis,omitempty"`
}

// PatientCase is one read-only patient encounter. Findings are hidden from
// agents and only surface through the case environment.
type PatientCase struct {
	ID           string         `json:"id"`
	History      string         `json:"history"`
	GroundTruth  GroundTruth    `json:"ground_truth"`
	PhysicalExam string         `json:"physical_exam,omitempty"`
	Labs         []LabResult    `json:"labs,omitempty"`
	Imaging      []ImagingStudy `json:"imaging,omitempty"`
}
