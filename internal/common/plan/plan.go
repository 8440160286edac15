// Package plan orders provisioning steps explicitly. A step may depend on
// another without consuming any of its data; those edges exist purely to
// sequence side effects such as post-creation API calls.
package plan

import (
	"errors"
	"fmt"
)

// ErrCycle is returned by Order when the dependency edges form a cycle.
var ErrCycle = errors.New("plan: dependency cycle")

// StepFunc performs one step.
type StepFunc func() error

type step struct {
	name  string
	after []string
	run   StepFunc
}

// Plan is an ordered set of named steps.
type Plan struct {
	steps []*step
	index map[string]*step
}

// New returns an empty plan.
func New() *Plan {
	return &Plan{index: map[string]*step{}}
}

// Step is returned by Add so callers can declare ordering edges.
type Step struct {
	s *step
}

// After records that the step runs only once every named step has run.
func (s Step) After(names ...string) Step {
	s.s.after = append(s.s.after, names...)
	return s
}

// Add registers a step. Names are unique within a plan.
func (p *Plan) Add(name string, run StepFunc) (Step, error) {
	if name == "" {
		return Step{}, fmt.Errorf("plan: step name is required")
	}
	if _, dup := p.index[name]; dup {
		return Step{}, fmt.Errorf("plan: duplicate step %q", name)
	}
	s := &step{name: name, run: run}
	p.steps = append(p.steps, s)
	p.index[name] = s
	return Step{s: s}, nil
}

// MustAdd is Add for statically known step names.
func (p *Plan) MustAdd(name string, run StepFunc) Step {
	s, err := p.Add(name, run)
	if err != nil {
		panic(err)
	}
	return s
}

// Order returns step names in dependency order. Among steps that are ready at
// the same time the insertion order wins, so the result is deterministic.
func (p *Plan) Order() ([]string, error) {
	pending := map[string]int{}
	for _, s := range p.steps {
		for _, dep := range s.after {
			if _, ok := p.index[dep]; !ok {
				return nil, fmt.Errorf("plan: step %q depends on unknown step %q", s.name, dep)
			}
		}
		pending[s.name] = len(unique(s.after))
	}
	done := map[string]bool{}
	out := make([]string, 0, len(p.steps))
	for len(out) < len(p.steps) {
		progressed := false
		for _, s := range p.steps {
			if done[s.name] || pending[s.name] > 0 {
				continue
			}
			done[s.name] = true
			out = append(out, s.name)
			progressed = true
			for _, other := range p.steps {
				if !done[other.name] && contains(unique(other.after), s.name) {
					pending[other.name]--
				}
			}
			break
		}
		if !progressed {
			return nil, fmt.Errorf("%w among %v", ErrCycle, remaining(p.steps, done))
		}
	}
	return out, nil
}

// Execute runs every step in order and stops at the first failure.
func (p *Plan) Execute() error {
	order, err := p.Order()
	if err != nil {
		return err
	}
	for _, name := range order {
		s := p.index[name]
		if s.run == nil {
			continue
		}
		if err := s.run(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func unique(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func contains(in []string, v string) bool {
	for _, x := range in {
		if x == v {
			return true
		}
	}
	return false
}

func remaining(steps []*step, done map[string]bool) []string {
	out := []string{}
	for _, s := range steps {
		if !done[s.name] {
			out = append(out, s.name)
		}
	}
	return out
}
