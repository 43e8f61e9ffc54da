package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/tless/tless-bench/pkg/cerrors"
)

// Action defines the prototype of action function, function as a value
type Action func(attempt uint) error

// Condition reports whether the awaited state has been reached. A non-nil
// error stops the poll immediately.
type Condition func(ctx context.Context) (bool, error)

// Model defines the schema, contains all the attributes need for retry
type Model struct {
	retry    uint
	waitTime time.Duration
	timeout  time.Duration
}

// Times is used to define the retry count
// it will run if the instance of model is not present before
func Times(retry uint) *Model {
	model := Model{}
	return model.Times(retry)
}

// Times is used to define the retry count
// it will run if the instance of model is already present
func (model *Model) Times(retry uint) *Model {
	model.retry = retry
	return model
}

// Wait is used to define the wait duration after each iteration of retry
// it will run if the instance of model is not present before
func Wait(waitTime time.Duration) *Model {
	model := Model{}
	return model.Wait(waitTime)
}

// Wait is used to define the wait duration after each iteration of retry
// it will run if the instance of model is already present
func (model *Model) Wait(waitTime time.Duration) *Model {
	model.waitTime = waitTime
	return model
}

// Timeout bounds the whole poll in Until
func Timeout(timeout time.Duration) *Model {
	model := Model{}
	return model.Timeout(timeout)
}

// Timeout bounds the whole poll in Until
func (model *Model) Timeout(timeout time.Duration) *Model {
	model.timeout = timeout
	return model
}

// Try is used to run a action with retries and some delay after each failed iteration
func (model Model) Try(action Action) error {
	if action == nil {
		return fmt.Errorf("no action specified")
	}

	var err error
	for attempt := uint(0); (attempt == 0 || err != nil) && attempt < model.retry; attempt++ {
		err = action(attempt)
		if err != nil && model.waitTime > 0 && attempt+1 < model.retry {
			time.Sleep(model.waitTime)
		}
	}

	return err
}

// Until waits for the wait interval, evaluates cond and repeats until it holds,
// cond fails, the model timeout elapses or ctx is cancelled. Expiry of the
// timeout yields a TIMEOUT_ERROR; cancellation returns ctx.Err().
// A zero timeout means the poll is bounded by ctx alone.
func (model Model) Until(ctx context.Context, target string, cond Condition) error {
	if cond == nil {
		return fmt.Errorf("no condition specified")
	}
	var deadline <-chan time.Time
	if model.timeout > 0 {
		timer := time.NewTimer(model.timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(nonZero(model.waitTime))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeTimeout,
				Target:    target,
				Reason:    fmt.Sprintf("condition not met within %v", model.timeout),
			}
		case <-ticker.C:
			done, err := cond(ctx)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

func nonZero(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
