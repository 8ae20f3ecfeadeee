// Package exec implements staleness analysis and the sequential
// post-order executor: for each requested DAG node, build its deps
// first, then decide whether the node itself needs rebuilding based on
// file modification times, mirroring the classic "is any prereq newer
// than me" rule with virtual targets always treated as stale.
package exec

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/remake-build/remake/artifact"
	"github.com/remake-build/remake/builder"
	"github.com/remake-build/remake/console"
	"github.com/remake-build/remake/resolver"
	"github.com/remake-build/remake/rule"
)

// Mode selects what Executor.Run actually does to a stale node.
type Mode int

const (
	// Build runs stale rules' actions.
	Build Mode = iota
	// DryRun reports what would run without running anything.
	DryRun
	// Clean removes every target this node's rule (transitively)
	// produces, instead of building.
	Clean
)

// status tracks a single Rule's outcome across the traversal so a
// multi-target rule runs its action at most once even though each of
// its targets is reached as a separate DAG node.
type status int

const (
	pending status = iota
	running
	done
	failed
)

// Executor walks a resolved DAG and builds, dry-runs, or cleans it.
type Executor struct {
	Runner   builder.CommandRunner
	Reporter console.Reporter
	Log      *logrus.Entry
	Mode     Mode

	stateByRule map[*rule.Rule]status
	errByRule   map[*rule.Rule]error
	// ranByRule records whether a Rule's action executed (Build mode) or
	// would have executed (DryRun mode, simulated) this invocation. A dep
	// whose rule ran forces its dependents stale regardless of mtimes,
	// closing the race where disk mtime resolution is too coarse to see
	// the rebuild.
	ranByRule map[*rule.Rule]bool
}

// New constructs an Executor. log may be nil, in which case diagnostics
// are discarded.
func New(runner builder.CommandRunner, reporter console.Reporter, log *logrus.Entry, mode Mode) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	return &Executor{
		Runner:      runner,
		Reporter:    reporter,
		Log:         log,
		Mode:        mode,
		stateByRule: make(map[*rule.Rule]status),
		errByRule:   make(map[*rule.Rule]error),
		ranByRule:   make(map[*rule.Rule]bool),
	}
}

// Run processes node (and, recursively, its dependencies) per the
// Executor's Mode.
func (ex *Executor) Run(node *resolver.Node) error {
	if ex.Mode == Clean {
		return ex.clean(node, make(map[*rule.Rule]bool))
	}
	_, err := ex.build(node)
	return err
}

// build processes node post-order: dependencies first, then this node's
// own rule, returning the effective mtime used by callers to decide
// their own staleness.
func (ex *Executor) build(node *resolver.Node) (time.Time, error) {
	var latestDep time.Time
	depFailed := false
	depForcesStale := false
	for _, dep := range node.Deps {
		t, err := ex.build(dep)
		if err != nil {
			return time.Time{}, err
		}
		if t.After(latestDep) {
			latestDep = t
		}
		// A virtual dep's effective mtime is "newer than any file", and
		// a dep whose rule ran (or, in dry-run, would have run) this
		// build forces its dependent stale too, regardless of mtimes.
		if dep.Artifact.IsVirtual() {
			depForcesStale = true
		}
		if dep.Rule != nil {
			if ex.errByRule[dep.Rule] != nil {
				depFailed = true
			}
			if ex.ranByRule[dep.Rule] {
				depForcesStale = true
			}
		}
	}

	if node.IsSource() {
		return effectiveMtime(node.Artifact), nil
	}

	rl := node.Rule
	if st, ok := ex.stateByRule[rl]; ok {
		switch st {
		case done:
			return effectiveMtime(node.Artifact), nil
		case failed:
			return time.Time{}, ex.errByRule[rl]
		}
	}

	if depFailed {
		err := errDepFailed(node.Artifact)
		ex.stateByRule[rl] = failed
		ex.errByRule[rl] = err
		ex.report(node.Artifact, "", console.Failed, err)
		return time.Time{}, err
	}

	stale := depForcesStale || ex.isStale(node, latestDep)
	if !stale {
		ex.stateByRule[rl] = done
		ex.report(node.Artifact, "", console.Skipped, nil)
		return effectiveMtime(node.Artifact), nil
	}

	action := rl.Action()
	ex.stateByRule[rl] = running
	ex.ranByRule[rl] = true
	ex.Log.WithField("target", node.Artifact.String()).Debug("building")

	if ex.Mode == DryRun {
		ex.report(node.Artifact, action.Describe(), console.Built, nil)
		ex.stateByRule[rl] = done
		return time.Now(), nil
	}

	if err := action.Run(ex.Runner); err != nil {
		failure := &BuilderFailureError{Target: node.Artifact, Err: err}
		ex.stateByRule[rl] = failed
		ex.errByRule[rl] = failure
		ex.report(node.Artifact, action.Describe(), console.Failed, failure)
		return time.Time{}, failure
	}

	ex.stateByRule[rl] = done
	ex.report(node.Artifact, action.Describe(), console.Built, nil)
	return effectiveMtime(node.Artifact), nil
}

// isStale reports whether node must be (re)built: it's always stale if
// any of its rule's targets is virtual, if any target file doesn't
// exist yet, or if any dependency's effective timestamp is newer than
// the oldest existing target's mtime. Staleness is a property of the
// whole Rule, not of the single target this Node happens to represent —
// a multi-target Rule with one missing output must rebuild even if the
// node reached first has an up-to-date file on disk, and a rule mixing
// a virtual target with file targets must run even when its file
// outputs look up to date, since the virtual one has no mtime and is
// stale by definition. Ephemeral is a Builder registration-visibility
// attribute, not a staleness signal, so it plays no part here.
func (ex *Executor) isStale(node *resolver.Node, latestDep time.Time) bool {
	for _, t := range node.Rule.Targets {
		if t.IsVirtual() {
			return true
		}
	}
	var oldest time.Time
	for i, t := range node.Rule.Targets {
		mtime, err := sourceMtime(t)
		if err != nil {
			return true
		}
		if i == 0 || mtime.Before(oldest) {
			oldest = mtime
		}
	}
	return oldest.Before(latestDep)
}

// clean removes every target reachable from node, visiting each rule at
// most once. An already-missing target is logged at debug level and
// skipped; one that can't be deleted (permission denied, non-empty
// directory) is logged as a warning, reported as failed, and skipped.
// Either way the remaining deletions still happen.
func (ex *Executor) clean(node *resolver.Node, seen map[*rule.Rule]bool) error {
	for _, dep := range node.Deps {
		if err := ex.clean(dep, seen); err != nil {
			return err
		}
	}
	if node.IsSource() {
		return nil
	}
	if seen[node.Rule] {
		return nil
	}
	seen[node.Rule] = true

	for _, t := range node.Rule.Targets {
		if t.IsVirtual() {
			continue
		}
		if err := os.Remove(t.Path()); err != nil {
			if os.IsNotExist(err) {
				ex.Log.WithField("target", t.Path()).Debug("target already absent")
			} else {
				ex.Log.WithField("target", t.Path()).WithError(err).Warn("could not clean target")
				ex.report(t, "", console.Failed, err)
			}
			continue
		}
		ex.report(t, "", console.Cleaned, nil)
	}
	return nil
}

func (ex *Executor) report(a artifact.Artifact, cmd string, outcome console.Outcome, err error) {
	if ex.Reporter == nil {
		return
	}
	ex.Reporter.Report(console.Event{
		Target:  a.String(),
		Command: cmd,
		Outcome: outcome,
		Err:     err,
	})
}

// farFuture stands in for a virtual artifact's effective mtime. It must
// compare newer than any real file, so that a file rule depending on a
// virtual artifact is always stale and a dependent downstream of a
// virtual dep never mistakes it for up to date.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// sourceMtime stats a's on-disk mtime. Only meaningful for File
// artifacts; callers must not invoke it on a Virtual one.
func sourceMtime(a artifact.Artifact) (time.Time, error) {
	info, err := os.Stat(a.Path())
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// effectiveMtime is the timestamp a dependent compares itself against:
// farFuture for virtual artifacts, the real mtime for files that exist,
// and time.Now() as a conservative fallback if a file vanished between
// resolution and execution.
func effectiveMtime(a artifact.Artifact) time.Time {
	if a.IsVirtual() {
		return farFuture
	}
	t, err := sourceMtime(a)
	if err != nil {
		return time.Now()
	}
	return t
}

func errDepFailed(a artifact.Artifact) error {
	return &DepFailedError{Target: a}
}

// BuilderFailureError reports that a rule's action failed: its command
// exited non-zero, or its native callback returned an error.
type BuilderFailureError struct {
	Target artifact.Artifact
	Err    error
}

func (e *BuilderFailureError) Error() string {
	return "building " + e.Target.String() + ": " + e.Err.Error()
}

func (e *BuilderFailureError) Unwrap() error { return e.Err }

// DepFailedError reports that a node was skipped because one of its
// dependencies failed to build.
type DepFailedError struct {
	Target artifact.Artifact
}

func (e *DepFailedError) Error() string {
	return "not built: a dependency of " + e.Target.String() + " failed"
}
