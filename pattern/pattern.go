// Package pattern implements PatternRule: a rule template whose target
// and dependency paths carry a single stem wildcard, expanded against
// the filesystem to synthesize concrete Rules on demand. "*" and "%"
// are interchangeable wildcard spellings; patterns are normalized to
// "%" once, at construction, so every other function in this package
// only ever has to recognize one.
package pattern

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/remake-build/remake/artifact"
	"github.com/remake-build/remake/builder"
	"github.com/remake-build/remake/rule"
)

// PatternRule is a rule template. TargetPatterns and DepPatterns each
// contain exactly one "%" standing for the matched stem; a pattern with
// no "%" is treated as a literal (stem-independent) dependency, e.g. a
// shared header every object file depends on. Patterns are stored
// normalized to absolute paths, the same way artifacts are, so matching
// a pattern against an artifact path is always absolute-vs-absolute and
// a pattern carrying a directory component ("src/%.c") works.
type PatternRule struct {
	Name           string
	TargetPatterns []string
	DepPatterns    []string
	Builder        *builder.Builder
	Kwargs         map[string]string
	Exclude        []artifact.Artifact
	cwd            string
}

// New constructs a PatternRule. At least one target pattern containing a
// stem wildcard is required, or no stem could ever be inferred.
func New(cwd, name string, targetPatterns, depPatterns []string, b *builder.Builder, kwargs map[string]string) (*PatternRule, error) {
	return NewWithExclude(cwd, name, targetPatterns, depPatterns, b, kwargs, nil)
}

// MalformedPatternError reports a pattern string carrying more than one
// wildcard character: a stem substitution is only well defined for one.
type MalformedPatternError struct {
	Pattern string
}

func (e *MalformedPatternError) Error() string {
	return fmt.Sprintf("malformed pattern %q: must contain exactly one wildcard", e.Pattern)
}

// NewWithExclude is New plus an explicit exclude set, removed from both
// AllTargets' enumeration and Matches' acceptance.
func NewWithExclude(cwd, name string, targetPatterns, depPatterns []string, b *builder.Builder, kwargs map[string]string, exclude []artifact.Artifact) (*PatternRule, error) {
	if len(targetPatterns) == 0 {
		return nil, fmt.Errorf("pattern rule %q: at least one target pattern is required", name)
	}
	targetPatterns = normalizeAll(targetPatterns)
	depPatterns = normalizeAll(depPatterns)

	hasStem := false
	for _, t := range targetPatterns {
		if wildcardCount(t) > 1 {
			return nil, &MalformedPatternError{Pattern: t}
		}
		if strings.Contains(t, "%") {
			hasStem = true
		}
	}
	for _, d := range depPatterns {
		if wildcardCount(d) > 1 {
			return nil, &MalformedPatternError{Pattern: d}
		}
	}
	if !hasStem {
		return nil, fmt.Errorf("pattern rule %q: at least one target pattern must contain a wildcard", name)
	}
	if b == nil {
		return nil, fmt.Errorf("pattern rule %q: builder is required", name)
	}
	return &PatternRule{
		Name:           name,
		TargetPatterns: resolveAll(cwd, targetPatterns),
		DepPatterns:    resolveAll(cwd, depPatterns),
		Builder:        b,
		Kwargs:         kwargs,
		Exclude:        exclude,
		cwd:            cwd,
	}, nil
}

// normalize maps the "*" wildcard spelling onto "%"; every other
// function in this package recognizes only "%".
func normalize(pattern string) string {
	return strings.ReplaceAll(pattern, "*", "%")
}

func normalizeAll(patterns []string) []string {
	if patterns == nil {
		return nil
	}
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = normalize(p)
	}
	return out
}

// resolveAll absolutizes every validated pattern against cwd, matching
// how artifact paths are normalized. Done after wildcard validation so
// the count reflects the user's pattern, not cwd's spelling.
func resolveAll(cwd string, patterns []string) []string {
	if patterns == nil {
		return nil
	}
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = artifact.Normalize(cwd, p)
	}
	return out
}

// wildcardCount counts the (already-normalized) "%" occurrences in
// pattern.
func wildcardCount(pattern string) int {
	return strings.Count(pattern, "%")
}

func (p *PatternRule) excludes(target artifact.Artifact) bool {
	for _, ex := range p.Exclude {
		if ex.Key() == target.Key() && ex.Kind() == target.Kind() {
			return true
		}
	}
	return false
}

// Stem extracts the wildcard substring from a concrete path against one
// of the rule's target patterns, returning ok=false if none match. path
// must be normalized absolute, as artifact paths are.
func (p *PatternRule) Stem(path string) (stem string, ok bool) {
	for _, tp := range p.TargetPatterns {
		if s, matched := matchStem(tp, path); matched {
			return s, true
		}
	}
	return "", false
}

// Instantiate binds this pattern against a concrete stem, substituting it
// into every target and dependency pattern to produce a real Rule.
func (p *PatternRule) Instantiate(stem string) *rule.Rule {
	targets := make([]artifact.Artifact, len(p.TargetPatterns))
	for i, tp := range p.TargetPatterns {
		targets[i] = artifact.NewFileTarget(p.cwd, substitute(tp, stem))
	}
	deps := make([]artifact.Artifact, len(p.DepPatterns))
	for i, dp := range p.DepPatterns {
		deps[i] = artifact.NewFileDep(p.cwd, substitute(dp, stem))
	}
	r, _ := rule.New(p.Name, targets, deps, p.Builder, p.Kwargs)
	return r
}

// Matches reports whether target could be produced by this pattern,
// returning the instantiated Rule if so. Targets named in Exclude never
// match.
func (p *PatternRule) Matches(target artifact.Artifact) (*rule.Rule, bool) {
	if target.IsVirtual() {
		return nil, false
	}
	if p.excludes(target) {
		return nil, false
	}
	stem, ok := p.Stem(target.Path())
	if !ok {
		return nil, false
	}
	return p.Instantiate(stem), true
}

// AllTargets enumerates every concrete target this pattern could produce
// given the files currently on disk: the *first* dep pattern is globbed
// against the filesystem (with its stem wildcard replaced by "*"), each
// matched stem is substituted into the target pattern to yield a
// FileTarget, and Exclude is subtracted. Directories matching the glob
// are skipped. Results are sorted for
// deterministic build-graph construction. A PatternRule with no dep
// patterns has nothing to glob and enumerates no targets.
func (p *PatternRule) AllTargets() ([]artifact.Artifact, error) {
	if len(p.DepPatterns) == 0 {
		return nil, nil
	}
	depPattern := p.DepPatterns[0]
	globPattern := strings.Replace(depPattern, "%", "*", 1)
	matches, err := filepath.Glob(globPattern)
	if err != nil {
		return nil, fmt.Errorf("pattern rule %q: invalid glob %q: %w", p.Name, globPattern, err)
	}
	sort.Strings(matches)

	out := make([]artifact.Artifact, 0, len(matches))
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			continue
		}
		stem, ok := matchStem(depPattern, m)
		if !ok {
			continue
		}
		target := artifact.NewFileTarget(p.cwd, substitute(p.TargetPatterns[0], stem))
		if p.excludes(target) {
			continue
		}
		out = append(out, target)
	}
	return out, nil
}

// substitute replaces the single "%" wildcard in pattern with stem. A
// pattern with no wildcard is returned unchanged (a literal dependency).
func substitute(pattern, stem string) string {
	if !strings.Contains(pattern, "%") {
		return pattern
	}
	return strings.Replace(pattern, "%", stem, 1)
}

// matchStem extracts the wildcard portion of path against pattern, which
// must contain exactly one "%". Returns ok=false if path doesn't fit the
// prefix/suffix shape implied by the pattern.
func matchStem(pattern, path string) (string, bool) {
	idx := strings.Index(pattern, "%")
	if idx < 0 {
		return "", false
	}
	prefix, suffix := pattern[:idx], pattern[idx+1:]
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", false
	}
	stem := path[len(prefix) : len(path)-len(suffix)]
	if stem == "" {
		return "", false
	}
	return stem, true
}
