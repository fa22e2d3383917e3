package pipeline

import (
	"log/slog"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/cwbudde/clsaxpy/internal/compute"
)

var (
	// ErrOutOfOrder is returned when a stage is invoked before its predecessor completed.
	ErrOutOfOrder = errors.New("pipeline stage out of order")
	// ErrEmptyInput is returned for zero-length host arrays.
	ErrEmptyInput = errors.New("input arrays are empty")
	// ErrLengthMismatch is returned when the host arrays differ in length.
	ErrLengthMismatch = errors.New("input arrays differ in length")
)

// Argument slots of the kernel signature (x, y, out, a).
const (
	ArgX = iota
	ArgY
	ArgOut
	ArgAlpha
)

// Session owns every handle acquired while running the pipeline. Close
// releases them in reverse order of acquisition and is safe to call on any
// path, including after a failed stage.
type Session struct {
	drv   compute.Driver
	stage Stage

	platform compute.Platform
	devices  []compute.Device
	ctx      compute.Context
	program  compute.Program
	kernel   compute.Kernel
	bufX     compute.Buffer
	bufY     compute.Buffer
	bufOut   compute.Buffer
	queue    compute.Queue
	n        int

	result Result
}

// NewSession starts a session in StageUninitialized.
func NewSession(drv compute.Driver) *Session {
	return &Session{drv: drv}
}

// Stage returns the current state.
func (s *Session) Stage() Stage { return s.stage }

// Result returns what the session has learned so far. It is meaningful even
// after a failure: enumeration results are kept for reporting.
func (s *Session) Result() *Result {
	res := s.result
	res.Stage = s.stage
	return &res
}

func (s *Session) expect(from Stage, to Stage) error {
	if s.stage != from {
		return &StageError{Stage: to, Err: errors.Wrapf(ErrOutOfOrder, "in state %s", s.stage)}
	}
	return nil
}

func (s *Session) fail(to Stage, err error, msg string) error {
	s.stage = StageFailed
	slog.Debug("Pipeline stage failed", "stage", to.String(), "err", err)
	return &StageError{Stage: to, Err: errors.WithMessage(err, msg)}
}

func (s *Session) advance(to Stage) {
	slog.Debug("Pipeline stage reached", "stage", to.String())
	s.stage = to
	s.result.Reached = to
}

// Close releases every handle the session holds: queue, buffers, kernel,
// program, context. Errors from individual releases are combined.
func (s *Session) Close() error {
	var err error
	release := func(what string, r interface{ Release() error }) {
		if rerr := r.Release(); rerr != nil {
			err = multierr.Append(err, errors.WithMessage(rerr, "release "+what))
		}
	}

	if s.queue != nil {
		release("queue", s.queue)
		s.queue = nil
	}
	if s.bufOut != nil {
		release("buffer out", s.bufOut)
		s.bufOut = nil
	}
	if s.bufY != nil {
		release("buffer y", s.bufY)
		s.bufY = nil
	}
	if s.bufX != nil {
		release("buffer x", s.bufX)
		s.bufX = nil
	}
	if s.kernel != nil {
		release("kernel", s.kernel)
		s.kernel = nil
	}
	if s.program != nil {
		release("program", s.program)
		s.program = nil
	}
	if s.ctx != nil {
		release("context", s.ctx)
		s.ctx = nil
	}

	if s.stage != StageFailed && s.stage != StageReleased {
		if err != nil {
			s.stage = StageFailed
		} else {
			s.stage = StageReleased
		}
	}
	return err
}
