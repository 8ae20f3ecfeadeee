package builder

import (
	"os"
	"os/exec"

	goerrors "github.com/go-errors/errors"
	"github.com/mgutz/str"
	"github.com/sirupsen/logrus"
)

// ShellRunner runs command lines through os/exec, splitting argv the way a
// shell would. It is the production CommandRunner; tests use a recording
// fake instead (see RecordingRunner in this package).
type ShellRunner struct {
	Log     *logrus.Entry
	Stdout  *os.File
	Stderr  *os.File
	command func(string, ...string) *exec.Cmd
}

// NewShellRunner builds a ShellRunner that streams the child's stdout and
// stderr to the current process's.
func NewShellRunner(log *logrus.Entry) *ShellRunner {
	return &ShellRunner{
		Log:     log,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		command: exec.Command,
	}
}

// Run splits command into argv via mgutz/str and executes it, connecting
// std streams directly so the child's output is visible live.
func (r *ShellRunner) Run(command string) error {
	argv := str.ToArgv(command)
	if len(argv) == 0 || argv[0] == "" {
		return nil
	}
	cmd := r.command(argv[0], argv[1:]...)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.Env = os.Environ()

	r.Log.WithField("command", command).Debug("running action")
	if err := cmd.Run(); err != nil {
		return goerrors.Errorf("command %q failed: %w", command, err)
	}
	return nil
}

// RecordingRunner is a CommandRunner fake for tests: it never spawns a
// process, just records every command it was asked to run.
type RecordingRunner struct {
	Commands []string
	Fail     map[string]error
}

// NewRecordingRunner returns an empty RecordingRunner.
func NewRecordingRunner() *RecordingRunner {
	return &RecordingRunner{Fail: make(map[string]error)}
}

// Run records command and returns the configured failure for it, if any.
func (r *RecordingRunner) Run(command string) error {
	r.Commands = append(r.Commands, command)
	return r.Fail[command]
}
