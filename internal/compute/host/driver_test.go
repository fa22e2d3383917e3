package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clsaxpy/internal/compute"
	"github.com/cwbudde/clsaxpy/internal/kernels"
)

type fixture struct {
	ctx     compute.Context
	device  compute.Device
	program compute.Program
	queue   compute.Queue
}

func newFixture(t *testing.T, drv *Driver) *fixture {
	t.Helper()

	platforms, err := drv.Platforms()
	require.NoError(t, err)
	require.NotEmpty(t, platforms)

	devices, err := drv.Devices(platforms[0], compute.DeviceTypeGPU)
	require.NoError(t, err)
	require.NotEmpty(t, devices)

	ctx, err := drv.CreateContext(platforms[0], devices)
	require.NoError(t, err)

	prog, err := ctx.CreateProgram(kernels.Default())
	require.NoError(t, err)
	require.NoError(t, prog.Build(devices, ""))

	q, err := ctx.CreateQueue(devices[0])
	require.NoError(t, err)

	return &fixture{ctx: ctx, device: devices[0], program: prog, queue: q}
}

func (f *fixture) buffer(t *testing.T, flags compute.MemFlags, data []float32) compute.Buffer {
	t.Helper()
	b, err := f.ctx.CreateBuffer(flags|compute.MemCopyHostPtr, len(data), data)
	require.NoError(t, err)
	return b
}

func (f *fixture) kernel(t *testing.T, name string, x, y, out compute.Buffer, a float32) compute.Kernel {
	t.Helper()
	k, err := f.program.CreateKernel(name)
	require.NoError(t, err)
	require.NoError(t, k.SetBufferArg(0, x))
	require.NoError(t, k.SetBufferArg(1, y))
	require.NoError(t, k.SetBufferArg(2, out))
	require.NoError(t, k.SetFloat32Arg(3, a))
	return k
}

func TestDefaultPlatform(t *testing.T) {
	drv := New()
	assert.Equal(t, "host", drv.Name())

	platforms, err := drv.Platforms()
	require.NoError(t, err)
	require.Len(t, platforms, 1)
	assert.Equal(t, "Host Emulation", platforms[0].Info().Name)

	gpus, err := drv.Devices(platforms[0], compute.DeviceTypeGPU)
	require.NoError(t, err)
	assert.Len(t, gpus, 1)

	cpus, err := drv.Devices(platforms[0], compute.DeviceTypeCPU)
	require.NoError(t, err)
	assert.Empty(t, cpus)

	all, err := drv.Devices(platforms[0], compute.DeviceTypeAll)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestNoPlatforms(t *testing.T) {
	platforms, err := New(WithPlatforms()).Platforms()
	require.NoError(t, err)
	assert.Empty(t, platforms)
}

func TestCreateContextRejectsForeignDevice(t *testing.T) {
	drv := New(WithPlatforms(DefaultPlatform(), DefaultPlatform()))
	platforms, err := drv.Platforms()
	require.NoError(t, err)

	devs, err := drv.Devices(platforms[1], compute.DeviceTypeGPU)
	require.NoError(t, err)

	_, err = drv.CreateContext(platforms[0], devs)
	var status *compute.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, compute.StatusInvalidDevice, status.Code)

	_, err = drv.CreateContext(platforms[0], nil)
	require.ErrorAs(t, err, &status)
	assert.Equal(t, compute.StatusInvalidValue, status.Code)
}

func TestQueueIsInOrderAndLazy(t *testing.T) {
	f := newFixture(t, New(WithWorkers(3)))

	x := f.buffer(t, compute.MemReadOnly, []float32{1, 2, 3})
	y := f.buffer(t, compute.MemReadWrite, []float32{1, 1, 1})
	out := f.buffer(t, compute.MemReadWrite, make([]float32, 3))
	k := f.kernel(t, kernels.EntrySAXPY, x, y, out, 2)

	require.NoError(t, f.queue.EnqueueNDRange(k, 3, 0))

	// Rebinding after enqueue does not affect the enqueued dispatch.
	require.NoError(t, k.SetFloat32Arg(3, 100))

	got := make([]float32, 3)
	require.NoError(t, f.queue.EnqueueReadBuffer(out, false, got))
	assert.Equal(t, []float32{0, 0, 0}, got, "non-blocking read completes at the next synchronisation point")

	require.NoError(t, f.queue.Finish())
	assert.Equal(t, []float32{3, 5, 7}, got)

	require.NoError(t, f.queue.EnqueueNDRange(k, 3, 0))
	require.NoError(t, f.queue.EnqueueReadBuffer(out, true, got))
	assert.Equal(t, []float32{101, 201, 301}, got)
}

func TestDispatchRejectsUnboundArguments(t *testing.T) {
	f := newFixture(t, New())

	x := f.buffer(t, compute.MemReadOnly, []float32{1})
	k, err := f.program.CreateKernel(kernels.EntrySAXPY)
	require.NoError(t, err)
	require.NoError(t, k.SetBufferArg(0, x))

	err = f.queue.EnqueueNDRange(k, 1, 0)
	assert.ErrorIs(t, err, compute.ErrInvalidKernelArgs)
}

func TestDispatchRejectsWriteToReadOnlyBuffer(t *testing.T) {
	f := newFixture(t, New())

	x := f.buffer(t, compute.MemReadOnly, []float32{1})
	y := f.buffer(t, compute.MemReadOnly, []float32{1})
	out := f.buffer(t, compute.MemReadOnly, []float32{0})
	k := f.kernel(t, kernels.EntrySAXPY, x, y, out, 1)

	err := f.queue.EnqueueNDRange(k, 1, 0)
	assert.ErrorIs(t, err, compute.ErrReadOnlyWrite)
}

func TestDispatchRejectsRangeLargerThanBuffers(t *testing.T) {
	f := newFixture(t, New())

	x := f.buffer(t, compute.MemReadOnly, []float32{1, 2})
	y := f.buffer(t, compute.MemReadWrite, []float32{1, 2})
	out := f.buffer(t, compute.MemReadWrite, []float32{0, 0})
	k := f.kernel(t, kernels.EntrySAXPY, x, y, out, 1)

	err := f.queue.EnqueueNDRange(k, 3, 0)
	var status *compute.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, compute.StatusInvalidGlobalWorkSize, status.Code)
}

func TestSetArgValidation(t *testing.T) {
	f := newFixture(t, New())
	x := f.buffer(t, compute.MemReadOnly, []float32{1})

	k, err := f.program.CreateKernel(kernels.EntrySAXPY)
	require.NoError(t, err)

	var status *compute.StatusError
	require.ErrorAs(t, k.SetBufferArg(4, x), &status)
	assert.Equal(t, compute.StatusInvalidArgIndex, status.Code)

	require.ErrorAs(t, k.SetBufferArg(3, x), &status)
	assert.Equal(t, compute.StatusInvalidArgSize, status.Code)

	require.ErrorAs(t, k.SetFloat32Arg(0, 1), &status)
	assert.Equal(t, compute.StatusInvalidArgValue, status.Code)
}

func TestReleaseOrdering(t *testing.T) {
	f := newFixture(t, New())

	x := f.buffer(t, compute.MemReadOnly, []float32{1})
	y := f.buffer(t, compute.MemReadWrite, []float32{1})
	out := f.buffer(t, compute.MemReadWrite, []float32{0})
	k := f.kernel(t, kernels.EntrySAXPY, x, y, out, 1)
	require.NoError(t, f.queue.EnqueueNDRange(k, 1, 0))

	assert.ErrorIs(t, out.Release(), compute.ErrStillInUse, "buffer referenced by a pending dispatch")
	assert.ErrorIs(t, f.program.Release(), compute.ErrStillInUse, "program with a live kernel")
	assert.ErrorIs(t, f.ctx.Release(), compute.ErrStillInUse, "context with live objects")

	require.NoError(t, f.queue.Release())
	require.NoError(t, out.Release())
	require.NoError(t, y.Release())
	require.NoError(t, x.Release())
	require.NoError(t, k.Release())
	require.NoError(t, f.program.Release())
	require.NoError(t, f.ctx.Release())

	assert.ErrorIs(t, f.ctx.Release(), compute.ErrReleased)
}

func TestCreateBufferValidation(t *testing.T) {
	f := newFixture(t, New())

	_, err := f.ctx.CreateBuffer(compute.MemReadOnly|compute.MemCopyHostPtr, 3, []float32{1})
	var status *compute.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, compute.StatusInvalidHostPtr, status.Code)

	_, err = f.ctx.CreateBuffer(compute.MemReadWrite, 1, []float32{1})
	require.ErrorAs(t, err, &status)
	assert.Equal(t, compute.StatusInvalidHostPtr, status.Code)

	_, err = f.ctx.CreateBuffer(compute.MemReadWrite, 0, nil)
	require.ErrorAs(t, err, &status)
	assert.Equal(t, compute.StatusInvalidBufferSize, status.Code)

	b, err := f.ctx.CreateBuffer(0, 4, nil)
	require.NoError(t, err)
	assert.Equal(t, compute.MemReadWrite, b.Flags())
	assert.Equal(t, 4, b.Len())
}

func TestCustomKernelRunsAcrossWorkers(t *testing.T) {
	drv := New(
		WithWorkers(4),
		WithKernel("SQUARE", KernelSpec{
			Params: []ParamKind{ParamInput, ParamOutput},
			Run: func(args Args, lo, hi int) {
				in, out := args.Buffers[0], args.Buffers[1]
				for i := lo; i < hi; i++ {
					out[i] = in[i] * in[i]
				}
			},
		}),
	)
	platforms, err := drv.Platforms()
	require.NoError(t, err)
	devices, err := drv.Devices(platforms[0], compute.DeviceTypeGPU)
	require.NoError(t, err)
	ctx, err := drv.CreateContext(platforms[0], devices)
	require.NoError(t, err)

	prog, err := ctx.CreateProgram(`__kernel void SQUARE(__global const float *in, __global float *out) {
	out[get_global_id(0)] = in[get_global_id(0)] * in[get_global_id(0)];
}`)
	require.NoError(t, err)
	require.NoError(t, prog.Build(nil, "-cl-fast-relaxed-math"))

	const n = 5000
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i)
	}
	in, err := ctx.CreateBuffer(compute.MemReadOnly|compute.MemCopyHostPtr, n, data)
	require.NoError(t, err)
	out, err := ctx.CreateBuffer(compute.MemWriteOnly, n, nil)
	require.NoError(t, err)

	k, err := prog.CreateKernel("SQUARE")
	require.NoError(t, err)
	require.NoError(t, k.SetBufferArg(0, in))
	require.NoError(t, k.SetBufferArg(1, out))

	q, err := ctx.CreateQueue(devices[0])
	require.NoError(t, err)
	require.NoError(t, q.EnqueueNDRange(k, n, 8))

	got := make([]float32, n)
	require.NoError(t, q.EnqueueReadBuffer(out, true, got))
	for i := range got {
		if got[i] != float32(i)*float32(i) {
			t.Fatalf("out[%d] = %g, want %g", i, got[i], float32(i)*float32(i))
		}
	}
}

func TestDispatchChunksCoverRange(t *testing.T) {
	for _, tc := range []struct {
		global, local, workers int
	}{
		{1, 0, 1},
		{1023, 0, 8},
		{4096, 0, 3},
		{10000, 16, 7},
		{2048, 2048, 4},
	} {
		seen := make([]int32, tc.global)
		run := func(_ Args, lo, hi int) {
			if tc.local > 0 && lo%tc.local != 0 {
				t.Errorf("chunk start %d not aligned to local size %d", lo, tc.local)
			}
			for i := lo; i < hi; i++ {
				seen[i]++
			}
		}
		require.NoError(t, dispatch(run, Args{}, tc.global, tc.local, tc.workers))
		for i, c := range seen {
			if c != 1 {
				t.Fatalf("global=%d: work-item %d ran %d times", tc.global, i, c)
			}
		}
	}
}
