package pipeline

import (
	"errors"
	"fmt"

	"github.com/cwbudde/clsaxpy/internal/compute"
)

// recorder wraps a driver and logs every API call made through it, so tests
// can assert on ordering and on calls that must not happen.
type recorder struct {
	calls []string
	// failRelease makes Release of the named object kind fail.
	failRelease string
}

var errInjected = errors.New("injected failure")

func (r *recorder) add(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recorder) release(kind string, inner interface{ Release() error }) error {
	r.add("Release(%s)", kind)
	err := inner.Release()
	if err == nil && r.failRelease == kind {
		return errInjected
	}
	return err
}

func record(drv compute.Driver) (compute.Driver, *recorder) {
	r := &recorder{}
	return &recDriver{Driver: drv, rec: r}, r
}

type recDriver struct {
	compute.Driver
	rec *recorder
}

func (d *recDriver) Platforms() ([]compute.Platform, error) {
	d.rec.add("Platforms")
	return d.Driver.Platforms()
}

func (d *recDriver) Devices(p compute.Platform, typ compute.DeviceType) ([]compute.Device, error) {
	d.rec.add("Devices(%s)", typ)
	return d.Driver.Devices(p, typ)
}

func (d *recDriver) CreateContext(p compute.Platform, devices []compute.Device) (compute.Context, error) {
	d.rec.add("CreateContext(%d)", len(devices))
	ctx, err := d.Driver.CreateContext(p, devices)
	if err != nil {
		return nil, err
	}
	return &recContext{Context: ctx, rec: d.rec}, nil
}

type recContext struct {
	compute.Context
	rec *recorder
}

func (c *recContext) CreateProgram(source string) (compute.Program, error) {
	c.rec.add("CreateProgram")
	p, err := c.Context.CreateProgram(source)
	if err != nil {
		return nil, err
	}
	return &recProgram{Program: p, rec: c.rec}, nil
}

func (c *recContext) CreateBuffer(flags compute.MemFlags, size int, host []float32) (compute.Buffer, error) {
	c.rec.add("CreateBuffer(%s, %d)", flags, size)
	b, err := c.Context.CreateBuffer(flags, size, host)
	if err != nil {
		return nil, err
	}
	return &recBuffer{Buffer: b, rec: c.rec}, nil
}

func (c *recContext) CreateQueue(d compute.Device) (compute.Queue, error) {
	c.rec.add("CreateQueue")
	q, err := c.Context.CreateQueue(d)
	if err != nil {
		return nil, err
	}
	return &recQueue{Queue: q, rec: c.rec}, nil
}

func (c *recContext) Release() error { return c.rec.release("context", c.Context) }

type recProgram struct {
	compute.Program
	rec *recorder
}

func (p *recProgram) Build(devices []compute.Device, options string) error {
	p.rec.add("Build")
	return p.Program.Build(devices, options)
}

func (p *recProgram) BuildLog(d compute.Device) (string, error) {
	p.rec.add("BuildLog(%s)", d.Info().Name)
	return p.Program.BuildLog(d)
}

func (p *recProgram) CreateKernel(name string) (compute.Kernel, error) {
	p.rec.add("CreateKernel(%s)", name)
	k, err := p.Program.CreateKernel(name)
	if err != nil {
		return nil, err
	}
	return &recKernel{Kernel: k, rec: p.rec}, nil
}

func (p *recProgram) Release() error { return p.rec.release("program", p.Program) }

type recKernel struct {
	compute.Kernel
	rec *recorder
}

func (k *recKernel) SetBufferArg(index int, b compute.Buffer) error {
	k.rec.add("SetArg(%d)", index)
	return k.Kernel.SetBufferArg(index, unwrapBuffer(b))
}

func (k *recKernel) SetFloat32Arg(index int, v float32) error {
	k.rec.add("SetArg(%d)", index)
	return k.Kernel.SetFloat32Arg(index, v)
}

func (k *recKernel) Release() error { return k.rec.release("kernel", k.Kernel) }

type recBuffer struct {
	compute.Buffer
	rec *recorder
}

func (b *recBuffer) Release() error { return b.rec.release("buffer", b.Buffer) }

func unwrapBuffer(b compute.Buffer) compute.Buffer {
	if rb, ok := b.(*recBuffer); ok {
		return rb.Buffer
	}
	return b
}

type recQueue struct {
	compute.Queue
	rec *recorder
}

func (q *recQueue) EnqueueNDRange(k compute.Kernel, global, local int) error {
	q.rec.add("EnqueueNDRange(%s, %d, %d)", k.Name(), global, local)
	if rk, ok := k.(*recKernel); ok {
		k = rk.Kernel
	}
	return q.Queue.EnqueueNDRange(k, global, local)
}

func (q *recQueue) EnqueueReadBuffer(b compute.Buffer, blocking bool, dst []float32) error {
	q.rec.add("EnqueueReadBuffer(%t)", blocking)
	return q.Queue.EnqueueReadBuffer(unwrapBuffer(b), blocking, dst)
}

func (q *recQueue) Finish() error {
	q.rec.add("Finish")
	return q.Queue.Finish()
}

func (q *recQueue) Release() error { return q.rec.release("queue", q.Queue) }
