package environment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/clinagents/clinical"
	"github.com/hupe1980/clinagents/core"
)

// Splits are the dataset splits shipped as master_patient_data_<split>.json.
var Splits = []string{"train", "val", "test"}

// SplitFile returns the file name of a dataset split.
func SplitFile(split string) string {
	return fmt.Sprintf("master_patient_data_%s.json", split)
}

// Dataset is an immutable, id-indexed set of patient cases.
type Dataset struct {
	cases map[string]core.PatientCase
	order []string
}

// NewDataset builds a dataset from cases. Later duplicates replace earlier
// ones but keep the original position.
func NewDataset(cases ...core.PatientCase) *Dataset {
	ds := &Dataset{cases: make(map[string]core.PatientCase, len(cases))}
	for _, c := range cases {
		if _, ok := ds.cases[c.ID]; !ok {
			ds.order = append(ds.order, c.ID)
		}
		ds.cases[c.ID] = c
	}
	return ds
}

// Case returns the case with the given id.
func (ds *Dataset) Case(id string) (core.PatientCase, bool) {
	c, ok := ds.cases[id]
	return c, ok
}

// Cases returns every case in dataset order.
func (ds *Dataset) Cases() []core.PatientCase {
	out := make([]core.PatientCase, 0, len(ds.order))
	for _, id := range ds.order {
		out = append(out, ds.cases[id])
	}
	return out
}

// Len returns the number of cases.
func (ds *Dataset) Len() int { return len(ds.order) }

// Subset returns a dataset restricted to the given ids, in the given order.
// Unknown ids are reported as an error.
func (ds *Dataset) Subset(ids ...string) (*Dataset, error) {
	cases := make([]core.PatientCase, 0, len(ids))
	for _, id := range ids {
		c, ok := ds.cases[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrCaseNotFound, id)
		}
		cases = append(cases, c)
	}
	return NewDataset(cases...), nil
}

// record is one patient entry of a split file.
type record struct {
	History      string                     `json:"Patient History"`
	PhysicalExam string                     `json:"Physical Examination"`
	Labs         map[string]json.RawMessage `json:"Laboratory Tests"`
	RangeLower   map[string]json.RawMessage `json:"Reference Range Lower"`
	RangeUpper   map[string]json.RawMessage `json:"Reference Range Upper"`
	Radiology    []radiology                `json:"Radiology"`
	Discharge    string                     `json:"Discharge Diagnosis"`
	Pathology    string                     `json:"Pathology"`
	Treatment    string                     `json:"Treatment"`
}

type radiology struct {
	ExamName string `json:"Exam Name"`
	Modality string `json:"Modality"`
	Region   string `json:"Region"`
	Report   string `json:"Report"`
}

// LoadSplit loads dir/master_patient_data_<split>.json.
func LoadSplit(dir, split string) (*Dataset, error) {
	if !slices.Contains(Splits, split) {
		return nil, &core.SetupFault{
			Component: "dataset",
			Problems:  []string{fmt.Sprintf("unknown split %q (want one of %s)", split, strings.Join(Splits, ", "))},
		}
	}
	return LoadDataset(filepath.Join(dir, SplitFile(split)))
}

// LoadDataset reads a split file. Any read or decode problem is a setup
// fault: no case can run without the dataset.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewSetupFault("dataset", err)
	}

	ds, err := ParseDataset(data)
	if err != nil {
		return nil, core.NewSetupFault("dataset", fmt.Errorf("%s: %w", path, err))
	}

	return ds, nil
}

// ParseDataset decodes the JSON object keyed by patient id.
func ParseDataset(data []byte) (*Dataset, error) {
	var raw map[string]record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cases := make([]core.PatientCase, 0, len(ids))
	for _, id := range ids {
		cases = append(cases, raw[id].toCase(id))
	}

	return NewDataset(cases...), nil
}

func (r record) toCase(id string) core.PatientCase {
	c := core.PatientCase{
		ID:           id,
		History:      strings.TrimSpace(r.History),
		PhysicalExam: strings.TrimSpace(r.PhysicalExam),
		GroundTruth: core.GroundTruth{
			Treatment:          r.Treatment,
			DischargeDiagnosis: strings.ToLower(strings.TrimSpace(r.Discharge)),
		},
	}

	p, ok := clinical.ParsePathology(r.Pathology)
	if !ok {
		p, ok = clinical.MatchPathology(r.Discharge)
	}
	if ok {
		c.GroundTruth.Diagnosis = string(p)
		if c.GroundTruth.Treatment == "" {
			c.GroundTruth.Treatment = p.StandardOfCare()
		}
	}

	names := make([]string, 0, len(r.Labs))
	for name := range r.Labs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.Labs = append(c.Labs, core.LabResult{
			Name:  name,
			Value: labValue(r.Labs[name]),
			Lower: rangeBound(r.RangeLower[name]),
			Upper: rangeBound(r.RangeUpper[name]),
		})
	}

	for _, s := range r.Radiology {
		c.Imaging = append(c.Imaging, core.ImagingStudy{
			ExamName: s.ExamName,
			Modality: s.Modality,
			Region:   s.Region,
			Report:   strings.TrimSpace(s.Report),
		})
	}

	return c
}

// labValue renders a lab value that may be a JSON string, number or object.
func labValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// rangeBound decodes a reference range bound given as a JSON number or a
// numeric string. Missing, empty and non-numeric bounds yield nil.
func rangeBound(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}
