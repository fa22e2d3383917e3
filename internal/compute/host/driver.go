// Package host implements compute.Driver on the CPU.
//
// It emulates a single OpenCL platform closely enough to run the program's
// kernels without an ICD: sources are scanned for __kernel entry points, each
// entry point is backed by a Go function, and NDRange dispatches are split
// across a bounded group of goroutines. The driver is stricter than most real
// implementations about ordering (unbound arguments, writes to read-only
// buffers, releasing objects that are still referenced) so that misuse shows
// up as an error rather than undefined behaviour.
//
// Handles are not safe for concurrent use; a single owner drives them.
package host

import (
	"fmt"
	"runtime"

	"github.com/cwbudde/clsaxpy/internal/compute"
)

func init() {
	compute.Register(compute.BackendHost, func() (compute.Driver, error) {
		return New(), nil
	})
}

// Driver is the host emulation driver.
type Driver struct {
	platforms []compute.PlatformInfo
	workers   int
	kernels   map[string]KernelSpec
}

// Option configures a Driver.
type Option func(*Driver)

// WithPlatforms replaces the emulated platform list. Devices are taken from
// each PlatformInfo.Devices. Passing no platforms emulates a machine without
// any OpenCL installation.
func WithPlatforms(platforms ...compute.PlatformInfo) Option {
	return func(d *Driver) {
		d.platforms = platforms
	}
}

// WithWorkers bounds the number of goroutines a single dispatch may use.
func WithWorkers(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithKernel adds or replaces an emulated entry point.
func WithKernel(name string, spec KernelSpec) Option {
	return func(d *Driver) {
		d.kernels[name] = spec
	}
}

// DefaultPlatform is the platform emulated when no WithPlatforms option is given.
func DefaultPlatform() compute.PlatformInfo {
	return compute.PlatformInfo{
		Name:    "Host Emulation",
		Vendor:  "clsaxpy",
		Version: "OpenCL 1.2 host",
		Devices: []compute.DeviceInfo{{
			Name:            "Emulated GPU",
			Vendor:          "clsaxpy",
			Version:         "OpenCL 1.2 host",
			Type:            compute.DeviceTypeGPU,
			MaxComputeUnits: uint32(runtime.NumCPU()),
		}},
	}
}

// New returns a host driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		platforms: []compute.PlatformInfo{DefaultPlatform()},
		workers:   runtime.NumCPU(),
		kernels:   builtinKernels(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (*Driver) Name() string { return string(compute.BackendHost) }

type platform struct {
	index int
	info  compute.PlatformInfo
}

func (p *platform) Info() compute.PlatformInfo { return p.info }

type device struct {
	platform int
	info     compute.DeviceInfo
}

func (d *device) Info() compute.DeviceInfo { return d.info }

// Platforms returns the emulated platforms.
func (d *Driver) Platforms() ([]compute.Platform, error) {
	out := make([]compute.Platform, 0, len(d.platforms))
	for i, info := range d.platforms {
		out = append(out, &platform{index: i, info: info})
	}
	return out, nil
}

// Devices returns the devices of p that match typ.
func (d *Driver) Devices(p compute.Platform, typ compute.DeviceType) ([]compute.Device, error) {
	pl, ok := p.(*platform)
	if !ok {
		return nil, compute.NewStatusError("clGetDeviceIDs", compute.StatusInvalidPlatform)
	}
	if typ == compute.DeviceTypeUnknown {
		return nil, compute.NewStatusError("clGetDeviceIDs", compute.StatusInvalidDeviceType)
	}

	var out []compute.Device
	for _, info := range pl.info.Devices {
		if info.Type.Matches(typ) {
			out = append(out, &device{platform: pl.index, info: info})
		}
	}
	return out, nil
}

// CreateContext binds devices of platform p into a context.
func (d *Driver) CreateContext(p compute.Platform, devices []compute.Device) (compute.Context, error) {
	pl, ok := p.(*platform)
	if !ok {
		return nil, compute.NewStatusError("clCreateContext", compute.StatusInvalidPlatform)
	}
	if len(devices) == 0 {
		return nil, compute.NewStatusError("clCreateContext", compute.StatusInvalidValue)
	}

	devs := make([]*device, 0, len(devices))
	for _, dev := range devices {
		hd, ok := dev.(*device)
		if !ok || hd.platform != pl.index {
			return nil, compute.NewStatusError("clCreateContext", compute.StatusInvalidDevice)
		}
		devs = append(devs, hd)
	}

	return &context{driver: d, devices: devs}, nil
}

type context struct {
	driver   *Driver
	devices  []*device
	children int
	released bool
}

func (c *context) owns(d compute.Device) (*device, bool) {
	hd, ok := d.(*device)
	if !ok {
		return nil, false
	}
	for _, own := range c.devices {
		if own == hd {
			return hd, true
		}
	}
	return nil, false
}

func (c *context) CreateProgram(source string) (compute.Program, error) {
	if c.released {
		return nil, compute.NewStatusError("clCreateProgramWithSource", compute.StatusInvalidContext)
	}
	if source == "" {
		return nil, compute.NewStatusError("clCreateProgramWithSource", compute.StatusInvalidValue)
	}
	c.children++
	return &program{ctx: c, source: source}, nil
}

func (c *context) CreateBuffer(flags compute.MemFlags, size int, host []float32) (compute.Buffer, error) {
	if c.released {
		return nil, compute.NewStatusError("clCreateBuffer", compute.StatusInvalidContext)
	}
	if size <= 0 {
		return nil, compute.NewStatusError("clCreateBuffer", compute.StatusInvalidBufferSize)
	}
	if flags&(compute.MemReadWrite|compute.MemWriteOnly|compute.MemReadOnly) == 0 {
		flags |= compute.MemReadWrite
	}

	data := make([]float32, size)
	if flags&compute.MemCopyHostPtr != 0 {
		if len(host) != size {
			return nil, compute.NewStatusError("clCreateBuffer", compute.StatusInvalidHostPtr)
		}
		copy(data, host)
	} else if host != nil {
		return nil, compute.NewStatusError("clCreateBuffer", compute.StatusInvalidHostPtr)
	}

	c.children++
	return &buffer{ctx: c, data: data, flags: flags}, nil
}

func (c *context) CreateQueue(d compute.Device) (compute.Queue, error) {
	if c.released {
		return nil, compute.NewStatusError("clCreateCommandQueue", compute.StatusInvalidContext)
	}
	if _, ok := c.owns(d); !ok {
		return nil, compute.NewStatusError("clCreateCommandQueue", compute.StatusInvalidDevice)
	}
	c.children++
	return &queue{ctx: c, workers: c.driver.workers}, nil
}

func (c *context) Release() error {
	if c.released {
		return compute.ErrReleased
	}
	if c.children > 0 {
		return fmt.Errorf("clReleaseContext: %d live object(s): %w", c.children, compute.ErrStillInUse)
	}
	c.released = true
	return nil
}

type buffer struct {
	ctx      *context
	data     []float32
	flags    compute.MemFlags
	pending  int
	released bool
}

func (b *buffer) Len() int                { return len(b.data) }
func (b *buffer) Flags() compute.MemFlags { return b.flags }

func (b *buffer) Release() error {
	if b.released {
		return compute.ErrReleased
	}
	if b.pending > 0 {
		return fmt.Errorf("clReleaseMemObject: %d pending command(s): %w", b.pending, compute.ErrStillInUse)
	}
	b.released = true
	b.data = nil
	b.ctx.children--
	return nil
}
