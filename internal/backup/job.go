package backup

import (
	"context"
	"sync/atomic"
)

// Job is a backup running on its own goroutine.
type Job struct {
	progress chan float64
	done     chan struct{}
	state    atomic.Int32
	result   Result
	err      error
}

// Start runs o.Run in the background. The Orchestrator's OnState hook is
// chained, not replaced.
func Start(ctx context.Context, o *Orchestrator, src Source, outputDir string) *Job {
	j := &Job{
		progress: make(chan float64, 1),
		done:     make(chan struct{}),
	}
	runner := *o
	observe := o.OnState
	runner.OnState = func(s State) {
		j.state.Store(int32(s))
		if observe != nil {
			observe(s)
		}
	}
	go func() {
		defer close(j.done)
		defer close(j.progress)
		j.result, j.err = runner.Run(ctx, src, outputDir, j.publish)
	}()
	return j
}

// publish replaces any unread value so the producer never blocks.
func (j *Job) publish(percent float64) {
	for {
		select {
		case j.progress <- percent:
			return
		default:
		}
		select {
		case <-j.progress:
		default:
		}
	}
}

// Progress delivers the latest completion percentage. It is closed when the
// job finishes and supports a single consumer.
func (j *Job) Progress() <-chan float64 {
	return j.progress
}

// Done is closed when the job finishes.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns its outcome.
func (j *Job) Wait() (Result, error) {
	<-j.done
	return j.result, j.err
}

// State returns the most recent state machine stage.
func (j *Job) State() State {
	return State(j.state.Load())
}
