package clinical

import (
	"strings"

	"github.com/hupe1980/clinagents/internal/textmatch"
)

// TestOption is one guideline test: its canonical name plus the panels or
// phrasings that also cover it.
type TestOption struct {
	Canonical   string
	ContainedIn []string
}

// Names returns the canonical name followed by every covering phrasing.
func (o TestOption) Names() []string {
	return append([]string{o.Canonical}, o.ContainedIn...)
}

// GuidelineGroup is a category of interchangeable guideline tests. A group is
// covered as soon as one of its options is requested.
type GuidelineGroup struct {
	Category string
	Options  []TestOption
}

var (
	wbc = TestOption{"white blood cell count (WBC)", []string{"complete blood count (CBC)", "cbc with differential"}}
	crp = TestOption{"c-reactive protein (CRP)", nil}

	liverPanels = []string{"comprehensive metabolic panel (CMP)", "liver function panel (LFP)", "liver enzymes", "liver function test (LFT)"}

	abdominalUS = TestOption{"abdominal ultrasound (US)", []string{"ultrasound abdomen", "ultrasound (abdomen)", "abdominal ultrasound"}}
	ctAbdPelvis = TestOption{"ct scan of the abdomen and pelvis", []string{"ct abdomen", "ct pelvis", "ct abdomen/pelvis", "abdominal ct", "pelvic ct"}}
	ctAbdomen   = TestOption{"ct scan (abdomen)", []string{"ct abdomen", "abdominal ct"}}
	mriAbdomen  = TestOption{"mri (abdomen)", []string{"mri abdomen", "abdominal mri"}}
)

var guidelineLabs = map[Pathology][]GuidelineGroup{
	Appendicitis: {
		{"inflammation", []TestOption{wbc, crp}},
	},
	Cholecystitis: {
		{"inflammation", []TestOption{wbc, crp}},
		{"cbds_risk", []TestOption{
			{"alanine transaminase (ALT)", liverPanels},
			{"aspartate transaminase (AST)", liverPanels},
			{"alkaline phosphatase (ALP)", liverPanels},
			{"gamma glutamyltransferase (GGT)", liverPanels[1:]},
			{"bilirubin", []string{"comprehensive metabolic panel (CMP)", "liver function panel (LFP)", "liver function test (LFT)"}},
		}},
	},
	Diverticulitis: {
		{"inflammation", []TestOption{wbc, crp}},
	},
	Pancreatitis: {
		{"serum_enzymes", []TestOption{
			{"lipase", []string{"serum lipase"}},
			{"amylase", []string{"serum amylase"}},
		}},
		{"other_markers", []TestOption{
			crp,
			{"hematocrit", []string{"complete blood count (CBC)"}},
			{"blood urea nitrogen (BUN)", []string{"basic metabolic panel (BMP)", "comprehensive metabolic panel (CMP)"}},
			{"procalcitonin", nil},
			{"serum triglycerides", nil},
			{"calcium", []string{"basic metabolic panel (BMP)", "comprehensive metabolic panel (CMP)"}},
		}},
	},
}

var guidelineImaging = map[Pathology][]GuidelineGroup{
	Appendicitis: {
		{"initial_imaging", []TestOption{abdominalUS}},
		{"if_inconclusive", []TestOption{ctAbdPelvis}},
		{"if_ct_contraindicated", []TestOption{mriAbdomen}},
	},
	Cholecystitis: {
		{"initial_imaging", []TestOption{abdominalUS}},
		{"if_inconclusive", []TestOption{
			{"hida scan (cholescintigraphy)", []string{"hida scan", "hepatobiliary iminodiacetic acid scan", "cholescintigraphy"}},
			mriAbdomen,
		}},
		{"less_frequent", []TestOption{ctAbdomen}},
	},
	Diverticulitis: {
		{"initial_imaging", []TestOption{ctAbdPelvis}},
		{"if_unavailable_or_contraindicated", []TestOption{
			abdominalUS,
			{"mri (abdomen/pelvis)", []string{"mri abdomen", "mri pelvis", "mri abdomen/pelvis", "abdominal mri", "pelvic mri"}},
		}},
	},
	Pancreatitis: {
		{"initial_imaging", []TestOption{abdominalUS}},
		{"if_doubt_exists", []TestOption{ctAbdomen}},
		{"if_severe", []TestOption{
			{"contrast-enhanced ct (ce-ct)", []string{"contrast ct abdomen", "ce-ct abdomen", "enhanced ct scan", "ct scan with contrast"}},
			mriAbdomen,
		}},
		{"screen_for_cbds", []TestOption{
			{"magnetic resonance cholangiopancreatography (mrcp)", []string{"mrcp", "magnetic resonance cholangiopancreatography"}},
			{"endoscopic ultrasound (eus)", []string{"eus", "endoscopic ultrasonography"}},
		}},
	},
}

var examManeuvers = map[Pathology][]string{
	Appendicitis: {
		"mcburney", "mcburney's", "mcburney point", "mcburney's point", "point of mcburney",
		"mcburney tenderness", "right iliac tenderness", "tenderness at mcburney", "tenderness at mcburney's point",
	},
	Cholecystitis: {
		"murphy", "murphy's", "murphy sign", "murphy's sign", "inspiratory arrest", "halted inspiration",
		"interruption of breath", "breath catching", "respiratory arrest with palpation",
	},
	Diverticulitis: {
		"left lower quadrant", "llq", "sigmoid", "sigmoid tenderness", "tenderness over sigmoid",
		"left iliac fossa", "lif", "left-sided abdominal tenderness", "sigmoid colon tenderness",
	},
	Pancreatitis: {
		"epigastric", "epigastrium", "upper abdominal", "mid-upper abdomen", "central upper abdomen",
		"transabdominal tenderness", "midline upper abdomen", "central abdominal tenderness", "mid-epigastric",
	},
}

// GuidelineLabs returns the guideline lab categories of p.
func (p Pathology) GuidelineLabs() []GuidelineGroup { return guidelineLabs[p] }

// GuidelineImaging returns the guideline imaging categories of p.
func (p Pathology) GuidelineImaging() []GuidelineGroup { return guidelineImaging[p] }

// ExamManeuvers returns the phrasings of the key physical exam maneuver of p.
func (p Pathology) ExamManeuvers() []string { return examManeuvers[p] }

// DefaultCoverageThreshold is the fuzzy score at which a requested test
// counts as a guideline test.
const DefaultCoverageThreshold = 90

// Coverage summarizes how much of the guideline work-up a run requested. Each
// lab category is one point, any guideline imaging is one point and the key
// exam maneuver is one point.
type Coverage struct {
	LabCategories        int     `json:"lab_categories"`
	LabCategoriesCovered int     `json:"lab_categories_covered"`
	ImagingCovered       bool    `json:"imaging_covered"`
	ManeuverCovered      bool    `json:"maneuver_covered"`
	Points               int     `json:"points"`
	Possible             int     `json:"possible"`
	Ratio                float64 `json:"ratio"`
}

// Workup is the information a run requested, grouped by kind.
type Workup struct {
	Labs      []string
	Imaging   []string
	Maneuvers []string
}

// CheckCoverage scores a work-up against the guidelines of p.
func CheckCoverage(p Pathology, w Workup, threshold int) Coverage {
	if threshold <= 0 {
		threshold = DefaultCoverageThreshold
	}

	c := Coverage{LabCategories: len(p.GuidelineLabs())}
	for _, group := range p.GuidelineLabs() {
		if groupCovered(group, w.Labs, threshold) {
			c.LabCategoriesCovered++
		}
	}

	for _, group := range p.GuidelineImaging() {
		if groupCovered(group, w.Imaging, threshold) {
			c.ImagingCovered = true
			break
		}
	}

	c.ManeuverCovered = maneuverRequested(p, w.Maneuvers, threshold)

	c.Possible = c.LabCategories + 2
	c.Points = c.LabCategoriesCovered
	if c.ImagingCovered {
		c.Points++
	}
	if c.ManeuverCovered {
		c.Points++
	}
	c.Ratio = float64(c.Points) / float64(c.Possible)

	return c
}

func groupCovered(group GuidelineGroup, requested []string, threshold int) bool {
	for _, opt := range group.Options {
		for _, name := range opt.Names() {
			for _, req := range requested {
				if fuzzyCovers(req, name, threshold) {
					return true
				}
			}
		}
	}
	return false
}

func fuzzyCovers(requested, reference string, threshold int) bool {
	requested = strings.ToLower(strings.TrimSpace(requested))
	reference = strings.ToLower(strings.TrimSpace(reference))
	if requested == "" {
		return false
	}
	return max(textmatch.TokenSetRatio(requested, reference), textmatch.PartialRatio(requested, reference)) >= threshold
}

func maneuverRequested(p Pathology, maneuvers []string, threshold int) bool {
	for _, m := range maneuvers {
		m = strings.ToLower(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		for _, syn := range p.ExamManeuvers() {
			if textmatch.PartialRatio(m, syn) >= threshold {
				return true
			}
		}
	}
	return false
}
