package evaluation

import (
	"slices"
	"strings"

	"github.com/hupe1980/clinagents/clinical"
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/internal/textmatch"
)

// process derives the information-gathering metrics of tr. p may be empty
// when the ground truth is not one of the catalog pathologies; guideline
// metrics are then zero and no item counts as outside the guideline.
func process(tr core.Transcript, p clinical.Pathology, threshold int) Process {
	out := Process{
		Turns:    len(tr.Turns),
		Requests: map[core.FindingKind]int{},
	}

	var (
		seen      []string
		interpret []core.LabInterpretation
	)
	firstRequest := true

	for _, t := range tr.Turns {
		out.Violations += len(t.Violations)
		if len(t.Interpretation) > 0 {
			out.Interpretations++
			interpret = append(interpret, t.Interpretation...)
		}

		switch a := t.Action.(type) {
		case core.Interpret:
			out.Interpretations++
			interpret = append(interpret, a.Labs...)
		case core.RequestFinding:
			out.TotalRequests++
			out.Requests[a.Kind]++

			if firstRequest {
				out.PhysicalExamFirst = a.Kind == core.KindPhysicalExam
				firstRequest = false
			}

			key := requestKey(a)
			if slices.Contains(seen, key) {
				out.Repeated++
			} else {
				seen = append(seen, key)
			}

			switch a.Kind {
			case core.KindPhysicalExam:
				out.PhysicalExam = true
				out.Maneuvers = append(out.Maneuvers, a.Parameters...)
			case core.KindLaboratory:
				out.Labs = append(out.Labs, a.Parameters...)
			case core.KindImaging:
				out.Imaging = append(out.Imaging, a.Parameters...)
			}
		}
	}

	out.Unnecessary = out.Repeated
	out.InterpretedLabs, out.InterpretationsCorrect = gradeInterpretations(interpret, labItems(tr))

	if p != "" {
		out.Coverage = clinical.CheckCoverage(p, clinical.Workup{
			Labs:      out.Labs,
			Imaging:   out.Imaging,
			Maneuvers: out.Maneuvers,
		}, threshold)

		for _, l := range out.Labs {
			if clinical.CheckCoverage(p, clinical.Workup{Labs: []string{l}}, threshold).LabCategoriesCovered == 0 {
				out.Unnecessary++
			}
		}
		for _, i := range out.Imaging {
			if !clinical.CheckCoverage(p, clinical.Workup{Imaging: []string{i}}, threshold).ImagingCovered {
				out.Unnecessary++
			}
		}
	}

	return out
}

// labItems returns the distinct lab results the transcript revealed.
func labItems(tr core.Transcript) []core.FindingItem {
	var out []core.FindingItem
	seen := map[string]bool{}
	for _, t := range tr.Turns {
		if t.Finding == nil || t.Finding.Kind != core.KindLaboratory {
			continue
		}
		for _, it := range t.Finding.Items {
			if it.Unavailable || it.Name == "" || seen[it.Name] {
				continue
			}
			seen[it.Name] = true
			out = append(out, it)
		}
	}
	return out
}

// gradeInterpretations compares each interpretation with the reference range
// classification of the lab it names. Interpretations naming no revealed lab
// are not graded.
func gradeInterpretations(interpret []core.LabInterpretation, items []core.FindingItem) (graded, correct int) {
	if len(interpret) == 0 || len(items) == 0 {
		return 0, 0
	}

	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}

	for _, li := range interpret {
		i := clinical.MatchLabName(li.Test, names)
		if i < 0 {
			continue
		}
		graded++
		want := clinical.InterpretLab(items[i].Value, items[i].Lower, items[i].Upper)
		if clinical.NormalizeInterpretation(li.Interpretation) == want {
			correct++
		}
	}

	return graded, correct
}

// requestKey identifies a request by kind and its normalized, sorted items.
func requestKey(a core.RequestFinding) string {
	items := make([]string, 0, len(a.Parameters))
	for _, p := range a.Parameters {
		if n := textmatch.Normalize(p); n != "" {
			items = append(items, n)
		}
	}
	slices.Sort(items)
	return string(a.Kind) + ":" + strings.Join(items, "|")
}
