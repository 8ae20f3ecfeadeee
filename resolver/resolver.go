// Package resolver builds the dependency DAG: given a requested artifact,
// it finds the Rule that produces it (searching named rules before
// pattern rules, per registry.Registry.FindProducer), recursively
// resolves that rule's dependencies, and detects cycles along the way.
//
// File-kind artifacts are addressable across the whole build regardless
// of which Registry registered their producing rule — the same way a
// Bazel label is visible outside the package that defines it even though
// rule *registration* stays package-scoped. Virtual-kind artifacts have
// no such global namespace: a VirtualTarget named "all" in one sub-build
// is a different node from "all" in another, so Virtual nodes are keyed
// per-Registry. ExternalLookup is how a resolver asks outside its own
// Registry for a File producer; subbuild.Orchestrator supplies it.
package resolver

import (
	"fmt"
	"os"
	"strings"

	"github.com/remake-build/remake/artifact"
	"github.com/remake-build/remake/registry"
	"github.com/remake-build/remake/rule"
)

// Node is one resolved entry in the dependency DAG: an artifact, the
// Rule that produces it (nil for leaf sources with no producer), and
// its resolved dependency Nodes.
type Node struct {
	Artifact artifact.Artifact
	Rule     *rule.Rule // nil if this artifact is a leaf source
	Deps     []*Node
}

// IsSource reports whether this node has no producing rule: a plain
// file that already exists on disk, or a virtual name no rule produces.
func (n *Node) IsSource() bool { return n.Rule == nil }

// ExternalLookup searches outside the resolver's own Registry for a Rule
// producing target. It returns ok=false if nothing outside matches.
type ExternalLookup func(target artifact.Artifact) (rl *rule.Rule, ok bool)

// CycleError reports a dependency cycle, carrying the offending chain
// for diagnostics.
type CycleError struct {
	Chain []artifact.Artifact
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Chain))
	for i, a := range e.Chain {
		parts[i] = a.String()
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(parts, " -> "))
}

// UnresolvedTargetError reports an artifact that no registered Rule or
// PatternRule produces, and that (for File artifacts) doesn't already
// exist on disk to be treated as a leaf source.
type UnresolvedTargetError struct {
	Target artifact.Artifact
}

func (e *UnresolvedTargetError) Error() string {
	return fmt.Sprintf("unresolved target: %s", e.Target.String())
}

// Resolver builds DAG nodes against one Registry, optionally falling
// back to External for File-kind artifacts the Registry itself doesn't
// produce.
type Resolver struct {
	Registry *registry.Registry
	External ExternalLookup

	nodes  map[string]*Node
	active map[string]bool
	stack  []artifact.Artifact
}

// New constructs a Resolver scoped to reg. external may be nil for a
// standalone build with no sub-build composition.
func New(reg *registry.Registry, external ExternalLookup) *Resolver {
	return &Resolver{
		Registry: reg,
		External: external,
		nodes:    make(map[string]*Node),
		active:   make(map[string]bool),
	}
}

// nodeKey returns the memoization key for a within this Resolver's node
// cache: the bare path for File artifacts (one node per file, whichever
// Registry's rule produces it), and a registry-qualified key for Virtual
// artifacts so that identically-named virtual targets in different
// sub-builds never collide.
func (rv *Resolver) nodeKey(a artifact.Artifact) string {
	if a.Kind() == artifact.FileKind {
		return "f:" + a.Key()
	}
	return fmt.Sprintf("v:%p:%s", rv.Registry, a.Key())
}

// Resolve builds (or returns the memoized) Node for target.
func (rv *Resolver) Resolve(target artifact.Artifact) (*Node, error) {
	key := rv.nodeKey(target)
	if n, ok := rv.nodes[key]; ok {
		return n, nil
	}
	if rv.active[key] {
		chain := append(append([]artifact.Artifact(nil), rv.stack...), target)
		return nil, &CycleError{Chain: chain}
	}

	rl, err := rv.Registry.FindProducer(target)
	if err != nil {
		return nil, err
	}
	if rl == nil && target.Kind() == artifact.FileKind && rv.External != nil {
		if extRule, ok := rv.External(target); ok {
			rl = extRule
		}
	}

	if rl == nil {
		// A virtual artifact with no producing Rule is a valid leaf: it
		// is never checked for on-disk existence. A File artifact must
		// already exist on disk to stand in as a leaf source; otherwise
		// it can be neither produced nor found, and resolution fails.
		if target.Kind() == artifact.FileKind {
			if _, err := os.Stat(target.Path()); err != nil {
				return nil, &UnresolvedTargetError{Target: target}
			}
		}
		node := &Node{Artifact: target}
		rv.nodes[key] = node
		return node, nil
	}

	rv.active[key] = true
	rv.stack = append(rv.stack, target)
	defer func() {
		rv.active[key] = false
		rv.stack = rv.stack[:len(rv.stack)-1]
	}()

	node := &Node{Artifact: target, Rule: rl}
	for _, dep := range rl.Deps {
		depNode, err := rv.Resolve(dep)
		if err != nil {
			return nil, err
		}
		node.Deps = append(node.Deps, depNode)
	}
	rv.nodes[key] = node
	for _, t := range rl.Targets {
		if t.Key() != target.Key() || t.Kind() != target.Kind() {
			rv.nodes[rv.nodeKey(t)] = &Node{Artifact: t, Rule: rl, Deps: node.Deps}
		}
	}
	return node, nil
}

// ResolveAll resolves every artifact in targets, returning one Node per
// entry in the same order.
func (rv *Resolver) ResolveAll(targets []artifact.Artifact) ([]*Node, error) {
	nodes := make([]*Node, len(targets))
	for i, t := range targets {
		n, err := rv.Resolve(t)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}
