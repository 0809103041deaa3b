package clinical

import (
	"github.com/hupe1980/clinagents/internal/textmatch"
)

// Treatment is one guideline treatment component.
type Treatment string

const (
	Appendectomy    Treatment = "appendectomy"
	Cholecystectomy Treatment = "cholecystectomy"
	Colectomy       Treatment = "colectomy"
	Drainage        Treatment = "drainage"
	ERCP            Treatment = "ercp"
	Antibiotics     Treatment = "antibiotics"
	Support         Treatment = "support"
)

// Requirement marks whether a treatment is mandatory for a pathology or merely
// acceptable.
type Requirement struct {
	Treatment Treatment
	Required  bool
}

var requirements = map[Pathology][]Requirement{
	Appendicitis: {
		{Appendectomy, true}, {Antibiotics, true}, {Support, true},
	},
	Cholecystitis: {
		{Cholecystectomy, true}, {Antibiotics, true}, {Support, true},
	},
	Diverticulitis: {
		{Antibiotics, true}, {Support, true}, {Drainage, false}, {Colectomy, false},
	},
	Pancreatitis: {
		{Support, true}, {Drainage, false}, {ERCP, false}, {Cholecystectomy, false},
	},
}

// Treatments returns the guideline treatments of p.
func (p Pathology) Treatments() []Requirement { return requirements[p] }

var standardOfCare = map[Pathology]string{
	Appendicitis:   "appendectomy",
	Cholecystitis:  "cholecystectomy",
	Diverticulitis: "antibiotics",
	Pancreatitis:   "supportive care",
}

// StandardOfCare returns the ground-truth treatment category of p.
func (p Pathology) StandardOfCare() string { return standardOfCare[p] }

// TreatmentCategories lists the treatment categories in precedence order:
// definitive procedures before conservative management.
func TreatmentCategories() []string {
	out := make([]string, len(Pathologies))
	for i, p := range Pathologies {
		out[i] = p.StandardOfCare()
	}
	return out
}

// TreatmentCategoriesFor lists the treatment categories with first moved to
// the front, so a plan naming several categories resolves to the expected one
// when it is present. Unknown or empty first keeps the precedence order.
func TreatmentCategoriesFor(first string) []string {
	all := TreatmentCategories()
	first = textmatch.Normalize(first)

	for i, c := range all {
		if c == first {
			out := make([]string, 0, len(all))
			out = append(out, c)
			out = append(out, all[:i]...)
			return append(out, all[i+1:]...)
		}
	}

	return all
}

var surgeryModifiers = []string{"surgery", "surgical", "removal", "remove"}

var drainageKeywords = []string{"drain", "pigtail", "catheter", "aspiration"}

var drainageLocations = map[Pathology][]string{
	Pancreatitis:   {"abscess", "abdom", "pelvic", "peritoneal", "pancrea", "gallbladder", "biliary", "bile duct", "perirectal"},
	Diverticulitis: {"abscess", "abdom", "pelvic", "peritoneal", "pericolonic", "sigmoid", "diverticular", "pararectal"},
}

// rule detects one treatment in free text: any keyword positively stated, or
// any alternative holding within a sentence.
type rule struct {
	keywords     []string
	alternatives []Alternative
}

func (r rule) detect(text string) bool {
	for _, kw := range r.keywords {
		if textmatch.KeywordPositive(text, kw) {
			return true
		}
	}
	for _, alt := range r.alternatives {
		if alt.Holds(text, true) {
			return true
		}
	}
	return false
}

func ruleFor(t Treatment, p Pathology) rule {
	switch t {
	case Appendectomy:
		return rule{
			keywords:     []string{"appendectomy"},
			alternatives: []Alternative{{Location: "appendix", Modifiers: surgeryModifiers}},
		}
	case Cholecystectomy:
		return rule{
			keywords: []string{
				"cholecystectomy", "cholecystecotmy", "cholecsytectomy", "cholecystecomy",
				"cholecytectomy", "laparoscopic cholecystitis", "cholecyctectomy",
			},
			alternatives: []Alternative{{Location: "gallbladder", Modifiers: surgeryModifiers}},
		}
	case Colectomy:
		return rule{
			keywords: []string{
				"low anterior resection", "colectomy", "colonic resection", "colostomy",
				"resection of rectosigmoid colon", "resection of sigmoid colon", "rectosigmoid resection",
				"resection of colon", "sigmoidectomy", "sigmoid resection", "small bowel resection",
			},
			alternatives: []Alternative{{Location: "colon", Modifiers: surgeryModifiers}},
		}
	case Drainage:
		var alts []Alternative
		for _, loc := range drainageLocations[p] {
			alts = append(alts, Alternative{Location: loc, Modifiers: drainageKeywords})
		}
		return rule{alternatives: alts}
	case ERCP:
		return rule{keywords: []string{
			"biliary stent", "biliary cannulation", "ercp", "endoscopic retrograde cholangiography",
			"endoscopic retrograde cholangiopancreatography", "cholangiogram", "cbd stent",
			"pancreatic stent", "sphincterotomy", "sphinctertomy",
		}}
	case Antibiotics:
		return rule{keywords: []string{"antibiotic"}}
	case Support:
		return rule{keywords: []string{"fluid", "analgesi", "pain"}}
	default:
		return rule{}
	}
}

// DetectTreatment reports whether text requests t, using the
// pathology-specific phrasing where one exists (drainage sites).
func DetectTreatment(t Treatment, p Pathology, text string) bool {
	return ruleFor(t, p).detect(text)
}

// Adherence is the treatment-guideline check of one treatment plan.
type Adherence struct {
	Requested   map[Treatment]bool `json:"requested"`
	Required    []Treatment        `json:"required"`
	Missing     []Treatment        `json:"missing,omitempty"`
	RequiredMet bool               `json:"required_met"`
}

// CheckTreatment scores a free-text treatment plan against the guideline
// treatments of p.
func CheckTreatment(p Pathology, text string) Adherence {
	a := Adherence{Requested: map[Treatment]bool{}}
	for _, req := range p.Treatments() {
		got := text != "" && DetectTreatment(req.Treatment, p, text)
		a.Requested[req.Treatment] = got
		if req.Required {
			a.Required = append(a.Required, req.Treatment)
			if !got {
				a.Missing = append(a.Missing, req.Treatment)
			}
		}
	}
	a.RequiredMet = len(a.Required) > 0 && len(a.Missing) == 0
	return a
}

// MatchTreatmentCategory grades text against a treatment category returned by
// StandardOfCare.
func MatchTreatmentCategory(category, text string) bool {
	switch textmatch.Normalize(category) {
	case "appendectomy":
		return DetectTreatment(Appendectomy, Appendicitis, text)
	case "cholecystectomy":
		return DetectTreatment(Cholecystectomy, Cholecystitis, text)
	case "antibiotics":
		return DetectTreatment(Antibiotics, Diverticulitis, text)
	case "supportive care":
		return DetectTreatment(Support, Pancreatitis, text)
	default:
		return textmatch.KeywordPositive(text, category)
	}
}
