// Package registry implements the per-build-file Context: the set of
// Rules, PatternRules, and requested targets a single REMAKEFILE (or
// sub-build) registers, plus the parent/child nesting used by
// sub-builds. Thread-local carrying of the active Registry during
// Starlark evaluation is the starlarkfile package's concern, not this
// one's: Registry itself is an ordinary Go value.
package registry

import (
	"github.com/remake-build/remake/artifact"
	"github.com/remake-build/remake/pattern"
	"github.com/remake-build/remake/rule"
)

// Registry holds every Rule, PatternRule, and requested target
// registered while evaluating one build file.
type Registry struct {
	// Cwd is the directory this build file lives in; relative paths
	// registered through this Registry are normalized against it.
	Cwd string

	Parent *Registry

	rules         []*rule.Rule
	patterns      []*pattern.PatternRule
	byName        map[string]*rule.Rule
	requested     []artifact.Artifact
	subRegistries []*Registry
}

// New creates a root Registry rooted at cwd.
func New(cwd string) *Registry {
	return &Registry{Cwd: cwd, byName: make(map[string]*rule.Rule)}
}

// NewChild creates a Registry for a nested sub-build, scoped to subCwd
// and linked to its parent for diagnostics (not for rule visibility:
// resolution isolation between parent and child is enforced by the
// resolver/subbuild packages, not here).
func (r *Registry) NewChild(subCwd string) *Registry {
	child := New(subCwd)
	child.Parent = r
	r.subRegistries = append(r.subRegistries, child)
	return child
}

// Children returns the sub-build Registries created from this one.
func (r *Registry) Children() []*Registry { return r.subRegistries }

// AddRule registers a Rule. When two Rules are registered under the same
// name, RuleByName returns the later one: last registration wins, the
// same way a REMAKEFILE re-evaluated top to bottom would let a later
// definition shadow an earlier one. The earlier Rule stays in Rules()
// and still produces any target the later one does not list.
func (r *Registry) AddRule(rl *rule.Rule) {
	r.rules = append(r.rules, rl)
	if rl.Name != "" {
		r.byName[rl.Name] = rl
	}
}

// AddPatternRule registers a PatternRule.
func (r *Registry) AddPatternRule(p *pattern.PatternRule) {
	r.patterns = append(r.patterns, p)
}

// AddTarget marks target as requested: a top-level build goal even if
// nothing else in the graph depends on it.
func (r *Registry) AddTarget(a artifact.Artifact) {
	r.requested = append(r.requested, a)
}

// Requested returns every artifact explicitly requested in this
// Registry, in registration order.
func (r *Registry) Requested() []artifact.Artifact {
	return append([]artifact.Artifact(nil), r.requested...)
}

// Rules returns every Rule registered in this Registry, in registration
// order.
func (r *Registry) Rules() []*rule.Rule {
	return append([]*rule.Rule(nil), r.rules...)
}

// PatternRules returns every PatternRule registered in this Registry.
func (r *Registry) PatternRules() []*pattern.PatternRule {
	return append([]*pattern.PatternRule(nil), r.patterns...)
}

// RuleByName looks up a Rule registered under name in this Registry only
// (not its children or parent).
func (r *Registry) RuleByName(name string) (*rule.Rule, bool) {
	rl, ok := r.byName[name]
	return rl, ok
}

// FindProducer searches this Registry's named rules, then pattern rules,
// for one that produces target. Named/explicit rules take precedence
// over pattern rules. Among named rules, the *last* registered producer
// of target wins — two rules targeting the same file silently shadow,
// later wins — so rules are searched in reverse registration order.
// Among pattern rules the *first* match in registration order wins
// instead; a tie between patterns is not an error.
func (r *Registry) FindProducer(target artifact.Artifact) (*rule.Rule, error) {
	for i := len(r.rules) - 1; i >= 0; i-- {
		if r.rules[i].Produces(target) {
			return r.rules[i], nil
		}
	}
	for _, p := range r.patterns {
		if rl, ok := p.Matches(target); ok {
			return rl, nil
		}
	}
	return nil, nil
}
