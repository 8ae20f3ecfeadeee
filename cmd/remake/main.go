// Command remake evaluates a REMAKEFILE and builds, dry-runs, or cleans
// the requested targets.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	goerrors "github.com/go-errors/errors"
	"github.com/integrii/flaggy"

	"github.com/remake-build/remake/artifact"
	"github.com/remake-build/remake/builder"
	"github.com/remake-build/remake/console"
	"github.com/remake-build/remake/exec"
	"github.com/remake-build/remake/loader"
	"github.com/remake-build/remake/registry"
	"github.com/remake-build/remake/remakecfg"
	"github.com/remake-build/remake/resolver"
	"github.com/remake-build/remake/rlog"
	"github.com/remake-build/remake/starlarkfile"
	"github.com/remake-build/remake/subbuild"
)

const defaultVersion = "unversioned"

var version = defaultVersion

func main() {
	resolveVersion()

	var (
		target    string
		buildFile string
		verbose   bool
		dryRun    bool
		clean     bool
	)

	flaggy.SetName("remake")
	flaggy.SetDescription("A declarative, incremental build engine.")
	flaggy.SetVersion(version)
	flaggy.String(&buildFile, "f", "file", "Use FILE as the top-level build file instead of the configured default")
	flaggy.Bool(&verbose, "v", "verbose", "Print diagnostics and full error stack traces")
	flaggy.Bool(&dryRun, "n", "dry-run", "Print what would be built without building it")
	flaggy.Bool(&clean, "c", "clean", "Remove the targets' built outputs instead of building them")
	flaggy.AddPositionalValue(&target, "target", 1, false, "Target to build (defaults to every requested target)")
	flaggy.Parse()

	if err := run(runOptions{
		target:    target,
		buildFile: buildFile,
		verbose:   verbose,
		dryRun:    dryRun,
		clean:     clean,
	}); err != nil {
		fail(err, verbose)
	}
}

type runOptions struct {
	target    string
	buildFile string
	verbose   bool
	dryRun    bool
	clean     bool
}

// lazySubBuilder breaks the construction cycle between the Starlark
// evaluator (which needs a SubBuilder) and the sub-build orchestrator
// (which needs the evaluator's EvalFile as its callback): it is handed
// to the evaluator before orch exists, then pointed at orch once both
// are built.
type lazySubBuilder struct {
	orch *subbuild.Orchestrator
}

func (l *lazySubBuilder) SubBuild(parent *registry.Registry, subdir string) (*registry.Registry, error) {
	return l.orch.SubBuild(parent, subdir)
}

func run(opts runOptions) error {
	cfg, err := remakecfg.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	buildFile := cfg.Build.File
	if opts.buildFile != "" {
		buildFile = opts.buildFile
	}

	log := rlog.New(opts.verbose)

	rootDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	sb := &lazySubBuilder{}
	evaluator := starlarkfile.New(starlarkfile.Options{
		SubBuilder:   sb,
		PrintHandler: func(msg string) { fmt.Println(msg) },
	})
	// Helper modules see the same builtins a REMAKEFILE does, so a
	// load()ed .star file can define shared Builders.
	moduleLoader := loader.NewFileModuleLoader(
		loader.NewOSFileSystem(rootDir),
		loader.WithPredeclared(evaluator.Predeclared()),
	)
	evaluator.SetModuleLoader(moduleLoader)
	orch := subbuild.New(evaluator.EvalFile, buildFile)
	sb.orch = orch

	reg, err := orch.LoadRoot(rootDir)
	if err != nil {
		return err
	}

	// The combined set of requested targets is the parent's plus every
	// sub-build's reached while evaluating it, each resolved through
	// its own Registry so a VirtualTarget requested inside a sub-build
	// resolves against that sub-build's own rules, not the root's. File
	// targets still see the whole build via ExternalLookup.
	var nodes []*resolver.Node
	if opts.target != "" {
		res := resolver.New(reg, orch.ExternalLookup(reg))
		n, err := res.Resolve(parseTargetArg(rootDir, opts.target))
		if err != nil {
			return err
		}
		nodes = []*resolver.Node{n}
	} else {
		for _, r := range orch.Registries() {
			requested := r.Requested()
			if len(requested) == 0 {
				continue
			}
			res := resolver.New(r, orch.ExternalLookup(r))
			resolved, err := res.ResolveAll(requested)
			if err != nil {
				return err
			}
			nodes = append(nodes, resolved...)
		}
	}
	if len(nodes) == 0 {
		fmt.Println("remake: nothing to build")
		return nil
	}

	mode := exec.Build
	switch {
	case opts.clean:
		mode = exec.Clean
	case opts.dryRun:
		mode = exec.DryRun
	}

	reporter := console.Reporter(console.NewColorReporter(os.Stdout))
	if cfg.Log.Color == "never" || os.Getenv("NO_COLOR") != "" {
		reporter = console.NewPlainReporter(os.Stdout)
	}

	runner := builder.NewShellRunner(log)
	ex := exec.New(runner, reporter, log, mode)
	for _, n := range nodes {
		if err := ex.Run(n); err != nil {
			return err
		}
	}
	return nil
}

// parseTargetArg interprets a CLI target argument: a leading ":" names a
// virtual target, otherwise it's a filesystem path relative to cwd.
func parseTargetArg(cwd, arg string) artifact.Artifact {
	if len(arg) > 0 && arg[0] == ':' {
		return artifact.NewVirtualTarget(arg[1:])
	}
	return artifact.NewFileTarget(cwd, arg)
}

func fail(err error, verbose bool) {
	if verbose {
		wrapped := goerrors.Wrap(err, 0)
		fmt.Fprintln(os.Stderr, wrapped.ErrorStack())
	} else {
		fmt.Fprintln(os.Stderr, "remake: "+err.Error())
	}
	os.Exit(1)
}

func resolveVersion() {
	if version != defaultVersion {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			version = setting.Value[:7]
			return
		}
	}
}
