package worker

import (
	"context"
	"os"
	"os/exec"
)

// Command is one invocation of an external implementation tool. Env entries
// are appended to the inherited environment.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// CommandRunner abstracts process execution so processors can be tested
// without spawning anything.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecCommandRunner runs commands via os/exec. Stdout and stderr are
// combined, since failure output from a tool usually arrives on stderr and
// both end up in the attempt record.
type ExecCommandRunner struct{}

func (r ExecCommandRunner) Run(ctx context.Context, cmd Command) ([]byte, error) {
	command := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		command.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		command.Env = append(os.Environ(), cmd.Env...)
	}
	return command.CombinedOutput()
}
