package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"forgeflow.app/engine/internal/model"
)

// CommandProcessor shells out to an external implementation tool. The tool
// receives the item through environment variables and reports the artifacts
// it touched, one per stdout line. This keeps content generation outside
// the engine while still producing a real Outcome.
type CommandProcessor struct {
	name   string
	args   []string
	dir    string
	runner CommandRunner
}

func NewCommandProcessor(name string, args []string, dir string, runner CommandRunner) *CommandProcessor {
	if runner == nil {
		runner = ExecCommandRunner{}
	}
	return &CommandProcessor{
		name:   name,
		args:   args,
		dir:    dir,
		runner: runner,
	}
}

func (p *CommandProcessor) Process(ctx context.Context, item *model.WorkItem) (*model.Outcome, error) {
	start := time.Now()

	output, err := p.runner.Run(ctx, Command{
		Name: p.name,
		Args: p.args,
		Dir:  p.dir,
		Env: []string{
			fmt.Sprintf("ITEM_ID=%d", item.ID),
			"ITEM_TITLE=" + item.Title,
			"ITEM_BODY=" + item.Body,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", p.name, err, strings.TrimSpace(string(output)))
	}

	var artifacts []string
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			artifacts = append(artifacts, line)
		}
	}

	return &model.Outcome{
		Success:   true,
		Artifacts: artifacts,
		Elapsed:   time.Since(start),
	}, nil
}
