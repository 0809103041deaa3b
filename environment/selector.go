package environment

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/hupe1980/clinagents/clinical"
	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/internal/textmatch"
	"github.com/hupe1980/clinagents/logging"
	"github.com/hupe1980/clinagents/model"
)

// Selector picks which recorded items answer one requested lab or imaging
// name. It returns indices into candidates; an empty result means the item is
// not available.
type Selector interface {
	Select(ctx context.Context, kind core.FindingKind, requested string, candidates []string) ([]int, error)
}

// DefaultThreshold is the fuzzy score a candidate must reach.
const DefaultThreshold = 85

// FuzzySelector selects items by fuzzy string similarity. Lab panels expand
// into their components; imaging is matched by modality and body region.
type FuzzySelector struct {
	Threshold int
}

// NewFuzzySelector returns a FuzzySelector with the default threshold.
func NewFuzzySelector() *FuzzySelector { return &FuzzySelector{Threshold: DefaultThreshold} }

// Select implements Selector.
func (s *FuzzySelector) Select(_ context.Context, kind core.FindingKind, requested string, candidates []string) ([]int, error) {
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	switch kind {
	case core.KindLaboratory:
		return selectLabs(requested, candidates, threshold), nil
	case core.KindImaging:
		return selectImaging(requested, candidates, threshold), nil
	default:
		return nil, fmt.Errorf("selector: unsupported kind %q", kind)
	}
}

func selectLabs(requested string, candidates []string, threshold int) []int {
	names, panel := clinical.ExpandLabRequest(requested)

	var out []int
	for _, name := range names {
		if panel {
			// panel components must be present by name, never approximated
			for i, c := range candidates {
				if textmatch.Normalize(c) == name || strings.HasPrefix(textmatch.Normalize(c), name+" ") {
					out = appendUnique(out, i)
				}
			}
			continue
		}
		if idx, _ := textmatch.BestMatch(name, candidates, threshold); idx >= 0 {
			out = appendUnique(out, idx)
		}
	}

	return out
}

// term is a canonical name plus the words that imply it.
type term struct {
	name     string
	synonyms []string
}

var modalities = []term{
	{"ct", []string{"ct", "cat", "computed tomography", "cta", "ce ct"}},
	{"mri", []string{"mri", "mr", "magnetic resonance", "mrcp"}},
	{"ultrasound", []string{"ultrasound", "us", "sonography", "ultrasonography", "sonogram", "duplex", "eus"}},
	{"radiograph", []string{"radiograph", "x ray", "xray", "xr", "film", "cxr", "kub"}},
	{"nuclear", []string{"hida", "cholescintigraphy", "nuclear", "scintigraphy", "nm"}},
	{"fluoroscopy", []string{"fluoroscopy", "ercp", "cholangiogram", "esophagram", "swallow"}},
}

var regions = []term{
	{"abdomen", []string{"abdomen", "abdominal", "abd", "ruq", "rlq", "luq", "llq", "liver", "gallbladder", "biliary", "appendix", "pancreas", "pancreatic", "kub", "hida", "mrcp"}},
	{"pelvis", []string{"pelvis", "pelvic", "transvaginal", "rectal"}},
	{"chest", []string{"chest", "thorax", "thoracic", "lung", "cxr"}},
	{"head", []string{"head", "brain", "skull"}},
}

func classify(text string, table []term) []string {
	words := " " + textmatch.Normalize(text) + " "
	var out []string
	for _, e := range table {
		for _, syn := range e.synonyms {
			if strings.Contains(words, " "+syn+" ") {
				out = append(out, e.name)
				break
			}
		}
	}
	return out
}

func selectImaging(requested string, candidates []string, threshold int) []int {
	wantMod := classify(requested, modalities)
	wantReg := classify(requested, regions)

	if len(wantMod) == 0 {
		if idx, _ := textmatch.BestMatch(requested, candidates, threshold); idx >= 0 {
			return []int{idx}
		}
		return nil
	}

	var out []int
	for i, c := range candidates {
		if !overlaps(wantMod, classify(c, modalities)) {
			continue
		}
		reg := classify(c, regions)
		if len(wantReg) > 0 && len(reg) > 0 && !overlaps(wantReg, reg) {
			continue
		}
		out = append(out, i)
	}
	return out
}

func overlaps(a, b []string) bool {
	for _, v := range a {
		if slices.Contains(b, v) {
			return true
		}
	}
	return false
}

func appendUnique(s []int, v int) []int {
	if slices.Contains(s, v) {
		return s
	}
	return append(s, v)
}

// ModelSelector asks a model which recorded items answer a request. Answers
// are memoized so the environment stays idempotent. Any model failure falls
// back to the fallback selector.
type ModelSelector struct {
	client   model.Client
	policy   model.RetryPolicy
	fallback Selector
	logger   logging.Logger

	mu    sync.Mutex
	cache map[string][]int
}

// ModelSelectorOptions configure a ModelSelector.
type ModelSelectorOptions struct {
	Retry    model.RetryPolicy
	Fallback Selector
	Logger   logging.Logger
}

// NewModelSelector creates a model-backed selector.
func NewModelSelector(client model.Client, optFns ...func(o *ModelSelectorOptions)) *ModelSelector {
	opts := ModelSelectorOptions{
		Retry:    model.DefaultRetryPolicy(),
		Fallback: NewFuzzySelector(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &ModelSelector{
		client:   client,
		policy:   opts.Retry,
		fallback: opts.Fallback,
		logger:   logging.OrNoOp(opts.Logger),
		cache:    map[string][]int{},
	}
}

const selectorSystem = `You match requested clinical tests to the tests available in a patient's chart.
Reply with the names of the available tests that answer the request, exactly as listed, separated by " | ".
Reply with NONE if no available test answers the request. Do not add anything else.`

// Select implements Selector.
func (s *ModelSelector) Select(ctx context.Context, kind core.FindingKind, requested string, candidates []string) ([]int, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	key := string(kind) + "\x00" + requested + "\x00" + strings.Join(candidates, "\x00")

	s.mu.Lock()
	cached, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	req := model.Request{
		Role:        core.RoleMatcher,
		System:      selectorSystem,
		Temperature: model.Float(0),
		Tag:         "environment.select",
		Messages: []model.Message{model.User(fmt.Sprintf(
			"Requested %s: %s\n\nAvailable:\n- %s",
			kind.Label(), requested, strings.Join(candidates, "\n- "),
		))},
	}

	resp, err := model.InvokeWithRetry(ctx, s.client, req, s.policy, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("environment.select.fallback", "kind", kind, "requested", requested, "error", err)
		return s.fallback.Select(ctx, kind, requested, candidates)
	}

	out := parseSelection(resp.Text, candidates)

	s.mu.Lock()
	s.cache[key] = out
	s.mu.Unlock()

	return out, nil
}

func parseSelection(text string, candidates []string) []int {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "none") {
		return nil
	}

	var out []int
	for _, part := range strings.FieldsFunc(text, func(r rune) bool { return r == '|' || r == '\n' }) {
		part = strings.Trim(strings.TrimSpace(part), "-*• ")
		if part == "" || strings.EqualFold(part, "none") {
			continue
		}
		if idx, _ := textmatch.BestMatch(part, candidates, 90); idx >= 0 {
			out = appendUnique(out, idx)
		}
	}
	return out
}
