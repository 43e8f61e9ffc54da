package exec

import (
	"context"
	"io"
	"sync"
)

// Call is a command seen by FakeRunner, with stdin drained into a string
type Call struct {
	Command
	Input string
}

// FakeRunner records commands and answers them through Handler
type FakeRunner struct {
	mu      sync.Mutex
	Calls   []Call
	Handler func(call Call) (Output, error)
}

func (f *FakeRunner) Run(ctx context.Context, cmd Command) (Output, error) {
	call := Call{Command: cmd}
	if cmd.Stdin != nil {
		b, err := io.ReadAll(cmd.Stdin)
		if err != nil {
			return Output{}, err
		}
		call.Input = string(b)
	}
	f.mu.Lock()
	f.Calls = append(f.Calls, call)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	if f.Handler == nil {
		return Output{}, nil
	}
	return f.Handler(call)
}

// Recorded returns a copy of the calls made so far
func (f *FakeRunner) Recorded() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.Calls...)
}

var _ CommandRunner = (*FakeRunner)(nil)
