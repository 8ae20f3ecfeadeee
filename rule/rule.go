// Package rule implements Rule: a fixed binding of targets, dependencies,
// and the Builder that produces the former from the latter.
package rule

import (
	"fmt"

	"github.com/remake-build/remake/artifact"
	"github.com/remake-build/remake/builder"
)

// Rule binds a concrete set of targets to the deps and Builder that
// produce them. Name is optional; unnamed rules are addressed only
// through their targets.
type Rule struct {
	Name    string
	Targets []artifact.Artifact
	Deps    []artifact.Artifact
	Builder *builder.Builder
	Kwargs  map[string]string
}

// New validates and constructs a Rule. At least one target is required;
// a Rule with zero targets cannot be resolved to anything and is
// rejected at registration time rather than silently ignored later.
// Targets must also be unique within the Rule: a Rule naming the same
// target twice can never mean two different things, so it's rejected
// rather than silently deduplicated.
func New(name string, targets, deps []artifact.Artifact, b *builder.Builder, kwargs map[string]string) (*Rule, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("rule %q: at least one target is required", name)
	}
	if dup, ok := firstDuplicate(targets); ok {
		return nil, fmt.Errorf("rule %q: target %q is listed more than once", name, dup.String())
	}
	if b == nil {
		return nil, fmt.Errorf("rule %q: builder is required", name)
	}
	return &Rule{
		Name:    name,
		Targets: targets,
		Deps:    deps,
		Builder: b,
		Kwargs:  kwargs,
	}, nil
}

// firstDuplicate reports the first artifact repeated in arts, if any.
func firstDuplicate(arts []artifact.Artifact) (artifact.Artifact, bool) {
	seen := make(map[string]bool, len(arts))
	for _, a := range arts {
		k := a.Kind().String() + ":" + a.Key()
		if seen[k] {
			return a, true
		}
		seen[k] = true
	}
	return artifact.Artifact{}, false
}

// Produces reports whether the rule lists target among its targets.
func (r *Rule) Produces(target artifact.Artifact) bool {
	for _, t := range r.Targets {
		if t.Key() == target.Key() && t.Kind() == target.Kind() {
			return true
		}
	}
	return false
}

// Action binds this rule's builder against its own deps/targets, ready
// to hand to the executor.
func (r *Rule) Action() *builder.Action {
	return &builder.Action{
		Builder: r.Builder,
		Deps:    r.Deps,
		Targets: r.Targets,
		Kwargs:  r.Kwargs,
	}
}

// String renders a short human summary used in logs and error messages.
func (r *Rule) String() string {
	if r.Name != "" {
		return r.Name
	}
	if len(r.Targets) > 0 {
		return r.Targets[0].String()
	}
	return "<rule>"
}
