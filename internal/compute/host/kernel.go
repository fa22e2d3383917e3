package host

import (
	"fmt"

	"github.com/cwbudde/clsaxpy/internal/compute"
)

// ParamKind is the declared type of a kernel parameter.
type ParamKind int

const (
	// ParamInput is a __global const float* the kernel only reads.
	ParamInput ParamKind = iota
	// ParamOutput is a __global float* the kernel writes.
	ParamOutput
	// ParamFloat is a by-value float.
	ParamFloat
)

// Args gives a work-item function access to the bound arguments.
type Args struct {
	Buffers [][]float32
	Floats  []float32
}

// KernelSpec describes an emulated entry point. Run is called for the
// half-open range [lo, hi) of global ids; concurrent calls receive disjoint ranges.
type KernelSpec struct {
	Params []ParamKind
	Run    func(args Args, lo, hi int)
}

func builtinKernels() map[string]KernelSpec {
	sig := []ParamKind{ParamInput, ParamInput, ParamOutput, ParamFloat}
	return map[string]KernelSpec{
		"SAXPY": {
			Params: sig,
			Run: func(args Args, lo, hi int) {
				x, y, out := args.Buffers[0], args.Buffers[1], args.Buffers[2]
				a := args.Floats[3]
				for i := lo; i < hi; i++ {
					out[i] = a*x[i] + y[i]
				}
			},
		},
		"PASSTHROUGH": {
			Params: sig,
			Run: func(args Args, lo, hi int) {
				copy(args.Buffers[2][lo:hi], args.Buffers[0][lo:hi])
			},
		},
	}
}

type arg struct {
	set    bool
	buffer *buffer
	value  float32
}

type kernel struct {
	program  *program
	name     string
	spec     KernelSpec
	args     []arg
	released bool
}

func (k *kernel) Name() string { return k.name }

func (k *kernel) SetBufferArg(index int, b compute.Buffer) error {
	op := fmt.Sprintf("clSetKernelArg(%d)", index)
	if k.released {
		return compute.NewStatusError(op, compute.StatusInvalidKernel)
	}
	if index < 0 || index >= len(k.args) {
		return compute.NewStatusError(op, compute.StatusInvalidArgIndex)
	}
	if k.spec.Params[index] == ParamFloat {
		return compute.NewStatusError(op, compute.StatusInvalidArgSize)
	}
	buf, ok := b.(*buffer)
	if !ok || buf.released || buf.ctx != k.program.ctx {
		return compute.NewStatusError(op, compute.StatusInvalidMemObject)
	}
	k.args[index] = arg{set: true, buffer: buf}
	return nil
}

func (k *kernel) SetFloat32Arg(index int, v float32) error {
	op := fmt.Sprintf("clSetKernelArg(%d)", index)
	if k.released {
		return compute.NewStatusError(op, compute.StatusInvalidKernel)
	}
	if index < 0 || index >= len(k.args) {
		return compute.NewStatusError(op, compute.StatusInvalidArgIndex)
	}
	if k.spec.Params[index] != ParamFloat {
		return compute.NewStatusError(op, compute.StatusInvalidArgValue)
	}
	k.args[index] = arg{set: true, value: v}
	return nil
}

func (k *kernel) Release() error {
	if k.released {
		return compute.ErrReleased
	}
	k.released = true
	k.program.kernels--
	return nil
}

// snapshot captures the current bindings the way clEnqueueNDRangeKernel does,
// so later SetArg calls do not affect an already enqueued dispatch.
func (k *kernel) snapshot(global int) ([]arg, error) {
	const op = "clEnqueueNDRangeKernel"
	args := make([]arg, len(k.args))
	for i, a := range k.args {
		if !a.set {
			return nil, fmt.Errorf("%s: argument %d of %s not set: %w", op, i, k.name, compute.ErrInvalidKernelArgs)
		}
		if a.buffer != nil {
			if a.buffer.released {
				return nil, fmt.Errorf("argument %d: %w", i, compute.NewStatusError(op, compute.StatusInvalidMemObject))
			}
			if k.spec.Params[i] == ParamOutput && a.buffer.flags.ReadOnly() {
				return nil, fmt.Errorf("%s: argument %d of %s: %w", op, i, k.name, compute.ErrReadOnlyWrite)
			}
			if a.buffer.Len() < global {
				return nil, fmt.Errorf("argument %d holds %d elements: %w", i, a.buffer.Len(), compute.NewStatusError(op, compute.StatusInvalidGlobalWorkSize))
			}
		}
		args[i] = a
	}
	return args, nil
}
