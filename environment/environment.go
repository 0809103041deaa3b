// Package environment exposes patient cases to agents. A CaseEnvironment
// resolves one information request (physical exam, labs, imaging) into a
// core.Finding; it never mutates the case and returns the same finding for the
// same request.
package environment

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/clinagents/core"
	"github.com/hupe1980/clinagents/internal/textmatch"
	"github.com/hupe1980/clinagents/logging"
)

// CaseEnvironment resolves information requests against recorded cases.
type CaseEnvironment interface {
	Resolve(ctx context.Context, caseID string, kind core.FindingKind, params []string) (core.Finding, error)
}

// Options configure an Environment.
type Options struct {
	Selector Selector
	Logger   logging.Logger
}

// Environment is the dataset-backed CaseEnvironment.
type Environment struct {
	ds       *Dataset
	selector Selector
	logger   logging.Logger
}

// New creates an environment over ds. Labs and imaging are selected fuzzily
// unless another Selector is configured.
func New(ds *Dataset, optFns ...func(o *Options)) *Environment {
	opts := Options{
		Selector: NewFuzzySelector(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Environment{
		ds:       ds,
		selector: opts.Selector,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Dataset returns the backing dataset.
func (e *Environment) Dataset() *Dataset { return e.ds }

// Resolve implements CaseEnvironment. Unknown case ids are an error; unknown
// kinds and unrecorded items yield an Unavailable finding. A lab or imaging
// request without parameters returns everything recorded of that kind.
func (e *Environment) Resolve(ctx context.Context, caseID string, kind core.FindingKind, params []string) (core.Finding, error) {
	if err := ctx.Err(); err != nil {
		return core.Finding{}, err
	}

	c, ok := e.ds.Case(caseID)
	if !ok {
		return core.Finding{}, fmt.Errorf("%w: %s", core.ErrCaseNotFound, caseID)
	}

	requested := splitParams(params)

	var (
		f   core.Finding
		err error
	)

	switch kind {
	case core.KindPhysicalExam:
		f = physicalExam(c, requested)
	case core.KindLaboratory:
		f, err = e.labs(ctx, c, requested)
	case core.KindImaging:
		f, err = e.imaging(ctx, c, requested)
	default:
		f = core.UnavailableFinding(kind, requested)
	}

	if err != nil {
		return core.Finding{}, err
	}

	e.logger.Debug("environment.resolve",
		"case_id", caseID,
		"kind", kind,
		"requested", len(requested),
		"available", f.Available(),
		"unavailable", f.Unavailable,
	)

	return f, nil
}

func physicalExam(c core.PatientCase, requested []string) core.Finding {
	if c.PhysicalExam == "" {
		return core.UnavailableFinding(core.KindPhysicalExam, requested)
	}
	return core.Finding{Kind: core.KindPhysicalExam, Requested: requested, Text: c.PhysicalExam}
}

func (e *Environment) labs(ctx context.Context, c core.PatientCase, requested []string) (core.Finding, error) {
	if len(c.Labs) == 0 {
		return core.UnavailableFinding(core.KindLaboratory, requested), nil
	}

	if len(requested) == 0 {
		f := core.Finding{Kind: core.KindLaboratory}
		for _, l := range c.Labs {
			f.Items = append(f.Items, core.FindingItem{Name: l.Name, Value: l.Value, Lower: l.Lower, Upper: l.Upper})
		}
		return f, nil
	}

	names := make([]string, len(c.Labs))
	for i, l := range c.Labs {
		names[i] = l.Name
	}

	f := core.Finding{Kind: core.KindLaboratory, Requested: requested}
	seen := map[int]bool{}

	for _, req := range requested {
		idx, err := e.selector.Select(ctx, core.KindLaboratory, req, names)
		if err != nil {
			return core.Finding{}, fmt.Errorf("select labs: %w", err)
		}
		if len(idx) == 0 {
			f.Items = append(f.Items, core.FindingItem{Requested: req, Unavailable: true})
			continue
		}
		for _, i := range idx {
			if seen[i] {
				continue
			}
			seen[i] = true
			l := c.Labs[i]
			f.Items = append(f.Items, core.FindingItem{Requested: req, Name: l.Name, Value: l.Value, Lower: l.Lower, Upper: l.Upper})
		}
	}

	if f.Available() == 0 {
		return core.UnavailableFinding(core.KindLaboratory, requested), nil
	}

	return f, nil
}

func (e *Environment) imaging(ctx context.Context, c core.PatientCase, requested []string) (core.Finding, error) {
	if len(c.Imaging) == 0 {
		return core.UnavailableFinding(core.KindImaging, requested), nil
	}

	if len(requested) == 0 {
		f := core.Finding{Kind: core.KindImaging}
		for _, s := range c.Imaging {
			f.Items = append(f.Items, core.FindingItem{Name: s.Title(), Value: s.Report})
		}
		return f, nil
	}

	titles := make([]string, len(c.Imaging))
	for i, s := range c.Imaging {
		titles[i] = strings.TrimSpace(s.Title() + " " + s.Region)
	}

	f := core.Finding{Kind: core.KindImaging, Requested: requested}
	seen := map[int]bool{}

	for _, req := range requested {
		idx, err := e.selector.Select(ctx, core.KindImaging, req, titles)
		if err != nil {
			return core.Finding{}, fmt.Errorf("select imaging: %w", err)
		}
		if len(idx) == 0 {
			f.Items = append(f.Items, core.FindingItem{Requested: req, Unavailable: true})
			continue
		}
		for _, i := range idx {
			if seen[i] {
				continue
			}
			seen[i] = true
			s := c.Imaging[i]
			f.Items = append(f.Items, core.FindingItem{Requested: req, Name: s.Title(), Value: s.Report})
		}
	}

	if f.Available() == 0 {
		return core.UnavailableFinding(core.KindImaging, requested), nil
	}

	return f, nil
}

// splitParams flattens comma separated parameter lists, keeping commas inside
// parentheses.
func splitParams(params []string) []string {
	var out []string
	for _, p := range params {
		out = append(out, textmatch.SplitOutsideParens(p, ',')...)
	}
	return out
}
