package voiceclient

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
)

// ExecPlayer shells out to a local audio player CLI for each artifact,
// the same way local speech tooling is driven elsewhere in this project
// family. Stop kills the player process.
type ExecPlayer struct {
	Command string
	Args    []string
}

// NewExecPlayer picks a sensible default player for the platform when
// no command is given.
func NewExecPlayer(command string, args ...string) *ExecPlayer {
	if command == "" {
		if runtime.GOOS == "darwin" {
			command = "afplay"
		} else {
			command = "mpg123"
		}
	}
	return &ExecPlayer{Command: command, Args: args}
}

func (p *ExecPlayer) Play(ctx context.Context, artifactURL string) (Playback, error) {
	args := append(append([]string{}, p.Args...), artifactURL)
	cmd := exec.CommandContext(ctx, p.Command, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start player %q: %w", p.Command, err)
	}

	pb := &execPlayback{cmd: cmd, done: make(chan error, 1)}
	go func() {
		pb.done <- cmd.Wait()
	}()
	return pb, nil
}

type execPlayback struct {
	cmd  *exec.Cmd
	done chan error
	once sync.Once
}

func (p *execPlayback) Done() <-chan error { return p.done }

func (p *execPlayback) Stop() {
	p.once.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
	})
}
