package clinical

import (
	"slices"
	"strconv"
	"strings"

	"github.com/hupe1980/clinagents/internal/textmatch"
)

// LabPanel is an orderable panel that expands into individual lab results.
type LabPanel struct {
	Name       string
	Aliases    []string
	Components []string
}

var labPanels = []LabPanel{
	{
		Name:    "complete blood count",
		Aliases: []string{"cbc", "cbc with differential", "full blood count", "fbc", "blood count", "hemogram"},
		Components: []string{
			"white blood cells", "red blood cells", "hemoglobin", "hematocrit", "platelet count",
			"mcv", "mch", "mchc", "rdw", "neutrophils", "lymphocytes", "monocytes", "eosinophils", "basophils",
		},
	},
	{
		Name:    "basic metabolic panel",
		Aliases: []string{"bmp", "chem 7", "electrolytes", "chem7"},
		Components: []string{
			"sodium", "potassium", "chloride", "bicarbonate", "urea nitrogen", "creatinine", "glucose",
			"calcium", "anion gap",
		},
	},
	{
		Name:    "comprehensive metabolic panel",
		Aliases: []string{"cmp", "chem 14", "chem14"},
		Components: []string{
			"sodium", "potassium", "chloride", "bicarbonate", "urea nitrogen", "creatinine", "glucose",
			"calcium", "albumin", "total protein", "alkaline phosphatase", "alanine aminotransferase",
			"asparate aminotransferase", "aspartate aminotransferase", "bilirubin total", "anion gap",
		},
	},
	{
		Name:    "liver function tests",
		Aliases: []string{"lft", "lfts", "liver function panel", "lfp", "liver enzymes", "hepatic panel", "liver panel"},
		Components: []string{
			"alkaline phosphatase", "alanine aminotransferase", "asparate aminotransferase",
			"aspartate aminotransferase", "bilirubin total", "bilirubin direct", "bilirubin indirect",
			"gamma glutamyltransferase", "albumin",
		},
	},
	{
		Name:       "coagulation panel",
		Aliases:    []string{"coags", "coagulation studies", "pt inr ptt", "pt ptt inr"},
		Components: []string{"pt", "inr", "ptt"},
	},
	{
		Name:       "urinalysis",
		Aliases:    []string{"ua", "urine analysis"},
		Components: []string{"urine", "specific gravity", "ph", "leukocytes", "nitrite", "ketone", "protein"},
	},
}

// labAliases maps common abbreviations onto the wording used in lab records.
var labAliases = map[string]string{
	"wbc":              "white blood cells",
	"white count":      "white blood cells",
	"rbc":              "red blood cells",
	"hgb":              "hemoglobin",
	"hb":               "hemoglobin",
	"hct":              "hematocrit",
	"plt":              "platelet count",
	"platelets":        "platelet count",
	"crp":              "c reactive protein",
	"esr":              "erythrocyte sedimentation rate",
	"alt":              "alanine aminotransferase",
	"sgpt":             "alanine aminotransferase",
	"ast":              "aspartate aminotransferase",
	"sgot":             "aspartate aminotransferase",
	"alp":              "alkaline phosphatase",
	"ggt":              "gamma glutamyltransferase",
	"bun":              "urea nitrogen",
	"na":               "sodium",
	"k":                "potassium",
	"cl":               "chloride",
	"hco3":             "bicarbonate",
	"lactic acid":      "lactate",
	"tbili":            "bilirubin total",
	"total bilirubin":  "bilirubin total",
	"bilirubin":        "bilirubin total",
	"serum lipase":     "lipase",
	"serum amylase":    "amylase",
	"triglycerides":    "triglycerides",
	"beta hcg":         "hcg",
	"pregnancy test":   "hcg",
	"direct bilirubin": "bilirubin direct",
	"free t4":          "thyroxine t4 free",
	"ft4":              "thyroxine t4 free",
}

// LabPanels returns the known orderable panels.
func LabPanels() []LabPanel { return labPanels }

// ExpandLabRequest turns one requested lab name into the record names to look
// up. Panels expand into their components; known abbreviations are spelled
// out; anything else is returned as is. The second result reports whether req
// named a panel.
func ExpandLabRequest(req string) ([]string, bool) {
	norm := textmatch.Normalize(stripParenthetical(req))
	if norm == "" {
		return nil, false
	}

	for _, panel := range labPanels {
		if norm == panel.Name || slices.Contains(panel.Aliases, norm) {
			return panel.Components, true
		}
	}

	if alias, ok := labAliases[norm]; ok {
		return []string{alias}, false
	}

	return []string{norm}, false
}

// stripParenthetical turns "white blood cell count (WBC)" into "white blood
// cell count". A string that is only a parenthetical is returned unchanged.
func stripParenthetical(s string) string {
	if i := strings.Index(s, "("); i > 0 {
		return s[:i]
	}
	return s
}

// Interpretation labels of a lab value against its reference range.
const (
	LabLow     = "low"
	LabNormal  = "normal"
	LabHigh    = "high"
	LabUnknown = "unknown"
)

var interpretationSynonyms = map[string]string{
	"high":                 LabHigh,
	"elevated":             LabHigh,
	"slightly elevated":    LabHigh,
	"mildly elevated":      LabHigh,
	"increased":            LabHigh,
	"borderline high":      LabHigh,
	"low":                  LabLow,
	"decreased":            LabLow,
	"reduced":              LabLow,
	"slightly low":         LabLow,
	"borderline low":       LabLow,
	"normal":               LabNormal,
	"within normal limits": LabNormal,
	"wnl":                  LabNormal,
	"unknown":              LabUnknown,
	"n a":                  LabUnknown,
	"not available":        LabUnknown,
	"none":                 LabUnknown,
	"":                     LabUnknown,
}

// NormalizeInterpretation maps a free-form interpretation onto LabLow,
// LabNormal, LabHigh or LabUnknown. Unrecognized wording is returned
// normalized so it never equals a label by accident.
func NormalizeInterpretation(s string) string {
	norm := textmatch.Normalize(s)
	if label, ok := interpretationSynonyms[norm]; ok {
		return label
	}
	return norm
}

// InterpretLab classifies value against [lower, upper]. The number is read
// from the first token of value; "NEG" reads as zero. A missing bound or an
// unreadable value gives LabUnknown.
func InterpretLab(value string, lower, upper *float64) string {
	if lower == nil || upper == nil {
		return LabUnknown
	}

	fields := strings.Fields(value)
	if len(fields) == 0 {
		return LabUnknown
	}
	tok := strings.TrimRight(fields[0], ".,;")

	var v float64
	if strings.HasPrefix(strings.ToUpper(tok), "NEG") {
		v = 0
	} else {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return LabUnknown
		}
		v = f
	}

	switch {
	case v < *lower:
		return LabLow
	case v > *upper:
		return LabHigh
	default:
		return LabNormal
	}
}

// MatchLabName returns the index of the recorded lab name that test refers
// to, or -1. An exact normalized match wins, then a known abbreviation, then
// the best partial fuzzy match. Short names such as "K" or "INR" need a
// lower fuzzy score than long ones.
func MatchLabName(test string, names []string) int {
	query := textmatch.Normalize(test)
	if query == "" {
		return -1
	}

	norm := make([]string, len(names))
	for i, n := range names {
		norm[i] = textmatch.Normalize(n)
		if norm[i] == query || textmatch.Normalize(stripParenthetical(n)) == query {
			return i
		}
	}

	if alias, ok := labAliases[query]; ok {
		for i, n := range names {
			if textmatch.Normalize(stripParenthetical(n)) == alias {
				return i
			}
		}
	}

	threshold := 85
	if len([]rune(query)) <= 4 {
		threshold = 70
	}

	idx, best := -1, -1
	for i, n := range norm {
		if s := textmatch.PartialRatio(query, n); s > best {
			idx, best = i, s
		}
	}
	if best < threshold {
		return -1
	}
	return idx
}
