package host

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/clsaxpy/internal/compute"
)

// minChunk keeps tiny ranges on a single goroutine.
const minChunk = 1024

type command struct {
	run  func() error
	refs []*buffer
}

// queue executes commands lazily and strictly in submission order. Commands
// run when the host synchronises (Finish, a blocking read, or Release).
type queue struct {
	ctx      *context
	workers  int
	pending  []command
	released bool
}

func (q *queue) enqueue(cmd command) {
	for _, b := range cmd.refs {
		b.pending++
	}
	q.pending = append(q.pending, cmd)
}

func (q *queue) EnqueueNDRange(k compute.Kernel, global, local int) error {
	const op = "clEnqueueNDRangeKernel"
	if q.released {
		return compute.NewStatusError(op, compute.StatusInvalidCommandQueue)
	}
	kern, ok := k.(*kernel)
	if !ok || kern.released {
		return compute.NewStatusError(op, compute.StatusInvalidKernel)
	}
	if kern.program.ctx != q.ctx {
		return compute.NewStatusError(op, compute.StatusInvalidContext)
	}
	if global <= 0 {
		return compute.NewStatusError(op, compute.StatusInvalidGlobalWorkSize)
	}
	if local < 0 || (local > 0 && global%local != 0) {
		return compute.NewStatusError(op, compute.StatusInvalidWorkGroupSize)
	}

	bound, err := kern.snapshot(global)
	if err != nil {
		return err
	}

	args := Args{
		Buffers: make([][]float32, len(bound)),
		Floats:  make([]float32, len(bound)),
	}
	var refs []*buffer
	for i, a := range bound {
		if a.buffer != nil {
			refs = append(refs, a.buffer)
			continue
		}
		args.Floats[i] = a.value
	}

	run := kern.spec.Run
	workers := q.workers
	q.enqueue(command{
		refs: refs,
		run: func() error {
			for i, a := range bound {
				if a.buffer != nil {
					args.Buffers[i] = a.buffer.data
				}
			}
			return dispatch(run, args, global, local, workers)
		},
	})
	return nil
}

// dispatch splits [0, global) into contiguous chunks, aligned to the local
// size when one is given, and runs them on a bounded errgroup.
func dispatch(run func(Args, int, int), args Args, global, local, workers int) error {
	chunk := (global + workers - 1) / workers
	if chunk < minChunk {
		chunk = minChunk
	}
	if local > 0 && chunk%local != 0 {
		chunk += local - chunk%local
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < global; lo += chunk {
		hi := min(lo+chunk, global)
		g.Go(func() error {
			run(args, lo, hi)
			return nil
		})
	}
	return g.Wait()
}

func (q *queue) EnqueueReadBuffer(b compute.Buffer, blocking bool, dst []float32) error {
	const op = "clEnqueueReadBuffer"
	if q.released {
		return compute.NewStatusError(op, compute.StatusInvalidCommandQueue)
	}
	buf, ok := b.(*buffer)
	if !ok || buf.released || buf.ctx != q.ctx {
		return compute.NewStatusError(op, compute.StatusInvalidMemObject)
	}
	if len(dst) == 0 || len(dst) > buf.Len() {
		return compute.NewStatusError(op, compute.StatusInvalidValue)
	}

	q.enqueue(command{
		refs: []*buffer{buf},
		run: func() error {
			copy(dst, buf.data)
			return nil
		},
	})

	if blocking {
		return q.Finish()
	}
	return nil
}

func (q *queue) Finish() error {
	if q.released {
		return compute.NewStatusError("clFinish", compute.StatusInvalidCommandQueue)
	}
	return q.flush()
}

func (q *queue) flush() error {
	pending := q.pending
	q.pending = nil

	var firstErr error
	for i, cmd := range pending {
		for _, b := range cmd.refs {
			b.pending--
		}
		if firstErr != nil {
			continue
		}
		if err := cmd.run(); err != nil {
			firstErr = fmt.Errorf("command %d of %d: %w", i+1, len(pending), err)
		}
	}
	return firstErr
}

// Release flushes outstanding commands before dropping the queue.
func (q *queue) Release() error {
	if q.released {
		return compute.ErrReleased
	}
	err := q.flush()
	q.released = true
	q.ctx.children--
	return err
}
