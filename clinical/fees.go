package clinical

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/clinagents/internal/textmatch"
)

// FeeSchedule prices lab tests from a clinical laboratory fee schedule (the
// CMS CLFS CSV export: a metadata preamble followed by a header row starting
// with "YEAR,").
type FeeSchedule struct {
	entries   []feeEntry
	threshold int
}

type feeEntry struct {
	code  string
	short string
	long  string
	rate  float64
}

var feeAliases = map[string]string{
	"crp":                           "c reactive protein",
	"esr":                           "erythrocyte sedimentation rate",
	"cmp":                           "comprehen metabolic panel",
	"comprehensive metabolic panel": "comprehen metabolic panel",
	"serum lipase":                  "assay of lipase",
}

// DefaultFeeThreshold is the token-set score needed for a fuzzy fee lookup.
const DefaultFeeThreshold = 70

// LoadFeeSchedule reads a fee schedule CSV from path.
func LoadFeeSchedule(path string) (*FeeSchedule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fee schedule: %w", err)
	}
	defer f.Close()

	return ParseFeeSchedule(f)
}

// ParseFeeSchedule reads a fee schedule CSV.
func ParseFeeSchedule(r io.Reader) (*FeeSchedule, error) {
	br := bufio.NewReader(r)

	// skip the preamble up to the header row
	var header string
	for {
		line, err := br.ReadString('\n')
		if strings.HasPrefix(strings.TrimSpace(line), "YEAR,") {
			header = line
			break
		}
		if err == io.EOF {
			return nil, fmt.Errorf("fee schedule: header row not found")
		}
		if err != nil {
			return nil, fmt.Errorf("fee schedule: %w", err)
		}
	}

	cr := csv.NewReader(io.MultiReader(strings.NewReader(header), br))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	cols, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("fee schedule header: %w", err)
	}

	idx := map[string]int{}
	for i, c := range cols {
		idx[strings.ToUpper(strings.TrimSpace(c))] = i
	}
	for _, want := range []string{"HCPCS", "RATE", "SHORTDESC", "LONGDESC"} {
		if _, ok := idx[want]; !ok {
			return nil, fmt.Errorf("fee schedule: missing column %s", want)
		}
	}

	s := &FeeSchedule{threshold: DefaultFeeThreshold}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fee schedule row: %w", err)
		}

		field := func(name string) string {
			if i := idx[name]; i < len(rec) {
				return rec[i]
			}
			return ""
		}

		rate, err := strconv.ParseFloat(strings.TrimSpace(field("RATE")), 64)
		if err != nil {
			continue
		}

		s.entries = append(s.entries, feeEntry{
			code:  strings.TrimSpace(field("HCPCS")),
			short: cleanFeeText(field("SHORTDESC")),
			long:  cleanFeeText(field("LONGDESC")),
			rate:  rate,
		})
	}

	return s, nil
}

// Len returns the number of priced entries.
func (s *FeeSchedule) Len() int { return len(s.entries) }

// FeeMatch is the result of pricing one requested test.
type FeeMatch struct {
	Requested string  `json:"requested"`
	Code      string  `json:"code,omitempty"`
	Rate      float64 `json:"rate"`
	Score     int     `json:"score"`
	Matched   bool    `json:"matched"`
}

// Price looks a requested test up: first by n-gram containment, then by the
// best token-set score above the threshold.
func (s *FeeSchedule) Price(test string) FeeMatch {
	m := FeeMatch{Requested: test}

	key := cleanFeeText(stripParenthetical(test))
	if alias, ok := feeAliases[key]; ok {
		key = alias
	}
	if key == "" || len(s.entries) == 0 {
		return m
	}

	if e, ok := s.ngramMatch(key); ok {
		m.Code, m.Rate, m.Score, m.Matched = e.code, e.rate, 100, true
		return m
	}

	best, bestScore := -1, -1
	for i, e := range s.entries {
		score := max(textmatch.TokenSetRatio(key, e.short), textmatch.TokenSetRatio(key, e.long))
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	m.Score = bestScore
	if bestScore >= s.threshold {
		e := s.entries[best]
		m.Code, m.Rate, m.Matched = e.code, e.rate, true
	}

	return m
}

// Total prices every test and sums the matched rates.
func (s *FeeSchedule) Total(tests []string) float64 {
	total := 0.0
	for _, t := range tests {
		total += s.Price(t).Rate
	}
	return total
}

func (s *FeeSchedule) ngramMatch(key string) (feeEntry, bool) {
	toks := strings.Fields(key)
	for n := len(toks); n > 1; n-- {
		for i := 0; i+n <= len(toks); i++ {
			gram := strings.Join(toks[i:i+n], " ")
			for _, e := range s.entries {
				if strings.Contains(e.short, gram) || strings.Contains(e.long, gram) {
					return e, true
				}
			}
		}
	}
	if len(toks) == 1 {
		for _, e := range s.entries {
			if strings.Contains(e.short, toks[0]) {
				return e, true
			}
		}
	}
	return feeEntry{}, false
}

func cleanFeeText(s string) string {
	s = strings.NewReplacer("(", " ", ")", " ", ",", " ").Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}
