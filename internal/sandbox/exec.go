package sandbox

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/xerrors"
)

// ProcessManager is the narrow spawn capability from spec §9
// ("ProcessManager::spawn"). Exec implements Sandbox on top of it.
type ProcessManager interface {
	Spawn(ctx context.Context, workdir, executable, arguments string) (exitCode int, stderr []byte, err error)
}

// OSProcessManager spawns real child processes, placing each in its own
// process group the way distr1-distri's internal/build package isolates
// build subprocesses (see mount.go/userns.go) so a cancelled build doesn't
// leave orphaned children behind.
type OSProcessManager struct{}

func (OSProcessManager) Spawn(ctx context.Context, workdir, executable, arguments string) (int, []byte, error) {
	cmd := exec.CommandContext(ctx, executable, strings.Fields(arguments)...)
	cmd.Dir = workdir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return 0, stderr.Bytes(), nil
	}
	var exitErr *exec.ExitError
	if xerrors.As(err, &exitErr) {
		return exitErr.ExitCode(), stderr.Bytes(), nil
	}
	// Spawn failure (e.g. executable not found): per spec §7, Io is an
	// operation failure during Evaluate, not a fatal error, so callers get
	// a clean non-zero exit rather than a Go error out of Run.
	return -1, stderr.Bytes(), nil
}

// Exec is the default, unenforced Sandbox: it actually runs the command but
// performs no real access-control enforcement or read/write instrumentation
// (that instrumentation is the external collaborator spec §1 places out of
// scope — "we consume its observations"). Lacking that instrumentation,
// Exec reports its full allowed-read/allowed-write sets back as the
// observed sets, a conservative over-approximation: the Evaluator's skip
// decision unions declared ∪ observed regardless, so over-reporting only
// costs incrementality, never correctness.
//
// Tests that need to exercise sandbox-violation handling (scenario S5)
// substitute a scripted Sandbox instead of this type.
type Exec struct {
	Process ProcessManager
}

func NewExec() *Exec {
	return &Exec{Process: OSProcessManager{}}
}

func (e *Exec) Run(ctx context.Context, req Request) (Result, error) {
	pm := e.Process
	if pm == nil {
		pm = OSProcessManager{}
	}
	exitCode, _, err := pm.Spawn(ctx, string(req.Command.WorkingDirectory), string(req.Command.Executable), req.Command.Arguments)
	if err != nil {
		return Result{}, err
	}
	return Result{
		ExitCode:       exitCode,
		ObservedReads:  req.AllowedReads,
		ObservedWrites: req.AllowedWrites,
	}, nil
}
