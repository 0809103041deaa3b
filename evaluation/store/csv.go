package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/clinagents/evaluation"
)

// CSVHeader is the column order of WriteCSV.
var CSVHeader = []string{
	"case_id", "transcript_id", "termination", "pathology",
	"diagnosis", "diagnosis_match", "indeterminate", "ranked_hit",
	"treatment", "treatment_match", "adherence",
	"turns", "requests", "unnecessary", "violations", "physical_exam_first", "coverage",
	"input_tokens", "output_tokens", "usd", "lab_fees",
}

// WriteCSV writes one row per record.
func WriteCSV(w io.Writer, records []evaluation.ScoreRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	for _, r := range records {
		adherence := ""
		if r.Adherence != nil {
			adherence = strconv.FormatBool(r.Adherence.RequiredMet)
		}

		row := []string{
			r.CaseID,
			r.TranscriptID,
			string(r.Termination),
			r.Pathology,
			oneLine(r.Diagnosis),
			strconv.FormatBool(r.DiagnosisMatch),
			strconv.FormatBool(r.Indeterminate),
			strconv.Itoa(r.RankedHit),
			oneLine(r.Treatment),
			strconv.FormatBool(r.TreatmentMatch),
			adherence,
			strconv.Itoa(r.Process.Turns),
			strconv.Itoa(r.Process.TotalRequests),
			strconv.Itoa(r.Process.Unnecessary),
			strconv.Itoa(r.Process.Violations),
			strconv.FormatBool(r.Process.PhysicalExamFirst),
			strconv.FormatFloat(r.Process.Coverage.Ratio, 'f', 3, 64),
			strconv.Itoa(r.Cost.InputTokens),
			strconv.Itoa(r.Cost.OutputTokens),
			strconv.FormatFloat(r.Cost.USD, 'f', 6, 64),
			strconv.FormatFloat(r.Cost.LabFees, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportCSV writes records to path.
func ExportCSV(path string, records []evaluation.ScoreRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}

	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return fmt.Errorf("write csv: %w", err)
	}

	return f.Close()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
