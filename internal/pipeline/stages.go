package pipeline

import (
	"log/slog"

	"github.com/cwbudde/clsaxpy/internal/compute"
)

// Acquire selects the first platform and its devices of type typ, then
// creates a context bound to all of them.
func (s *Session) Acquire(typ compute.DeviceType) error {
	if err := s.expect(StageUninitialized, StagePlatformSelected); err != nil {
		return err
	}

	platforms, err := s.drv.Platforms()
	if err != nil {
		return s.fail(StagePlatformSelected, err, "enumerate platforms")
	}
	if len(platforms) == 0 {
		return s.fail(StagePlatformSelected, compute.ErrNoPlatforms, s.drv.Name())
	}
	s.result.Platforms = make([]compute.PlatformInfo, len(platforms))
	for i, p := range platforms {
		s.result.Platforms[i] = p.Info()
	}
	s.platform = platforms[0]
	s.result.Platform = s.platform.Info()
	s.advance(StagePlatformSelected)

	devices, err := s.drv.Devices(s.platform, typ)
	if err != nil {
		return s.fail(StageDeviceSelected, err, "enumerate devices")
	}
	if len(devices) == 0 {
		return s.fail(StageDeviceSelected, compute.ErrNoDevices,
			"type "+string(typ)+" on "+s.result.Platform.Name)
	}
	s.devices = devices
	s.result.Devices = make([]compute.DeviceInfo, len(devices))
	for i, d := range devices {
		s.result.Devices[i] = d.Info()
	}
	s.advance(StageDeviceSelected)

	ctx, err := s.drv.CreateContext(s.platform, s.devices)
	if err != nil {
		return s.fail(StageContextReady, err, "create context")
	}
	s.ctx = ctx
	s.advance(StageContextReady)

	slog.Info("Compute context created",
		"driver", s.drv.Name(),
		"platform", s.result.Platform.Name,
		"devices", len(s.devices),
		"device", s.result.Devices[0].Name,
	)
	return nil
}

// BuildProgram creates a program from source, builds it for the selected
// devices and extracts the named entry point. A compiler failure carries
// the build log.
func (s *Session) BuildProgram(source, options, entry string) error {
	if err := s.expect(StageContextReady, StageProgramBuilt); err != nil {
		return err
	}

	prog, err := s.ctx.CreateProgram(source)
	if err != nil {
		return s.fail(StageProgramBuilt, err, "create program")
	}
	s.program = prog

	if err := prog.Build(s.devices, options); err != nil {
		s.logBuild(prog)
		return s.fail(StageProgramBuilt, err, "build program")
	}
	s.advance(StageProgramBuilt)

	kernel, err := prog.CreateKernel(entry)
	if err != nil {
		return s.fail(StageKernelReady, err, "create kernel")
	}
	s.kernel = kernel
	s.advance(StageKernelReady)
	return nil
}

// logBuild reports the compiler output of every selected device.
func (s *Session) logBuild(prog compute.Program) {
	for _, d := range s.devices {
		name := d.Info().Name
		log, err := prog.BuildLog(d)
		if err != nil {
			slog.Warn("Failed to fetch build log", "device", name, "err", err)
			continue
		}
		if log != "" {
			slog.Error("Kernel build log", "device", name, "log", log)
		}
	}
}

// AllocateBuffers mirrors x and y on the device and allocates the output
// buffer, all initialised from host memory at creation time.
func (s *Session) AllocateBuffers(x, y []float32) error {
	if err := s.expect(StageKernelReady, StageBuffersAllocated); err != nil {
		return err
	}
	if len(x) == 0 {
		return s.fail(StageBuffersAllocated, ErrEmptyInput, "allocate buffers")
	}
	if len(x) != len(y) {
		return s.fail(StageBuffersAllocated, ErrLengthMismatch, "allocate buffers")
	}
	n := len(x)

	var err error
	s.bufX, err = s.ctx.CreateBuffer(compute.MemReadOnly|compute.MemCopyHostPtr, n, x)
	if err != nil {
		return s.fail(StageBuffersAllocated, err, "create buffer x")
	}
	s.bufY, err = s.ctx.CreateBuffer(compute.MemReadWrite|compute.MemCopyHostPtr, n, y)
	if err != nil {
		return s.fail(StageBuffersAllocated, err, "create buffer y")
	}
	s.bufOut, err = s.ctx.CreateBuffer(compute.MemReadWrite|compute.MemCopyHostPtr, n, make([]float32, n))
	if err != nil {
		return s.fail(StageBuffersAllocated, err, "create buffer out")
	}

	s.n = n
	s.advance(StageBuffersAllocated)
	return nil
}

// Dispatch creates the command queue on the first device, binds x, y, out
// and alpha in signature order and enqueues one dimension of n work-items.
// local == 0 leaves the work-group size to the implementation.
func (s *Session) Dispatch(alpha float32, local int) error {
	if err := s.expect(StageBuffersAllocated, StageArgsBound); err != nil {
		return err
	}

	q, err := s.ctx.CreateQueue(s.devices[0])
	if err != nil {
		return s.fail(StageArgsBound, err, "create command queue")
	}
	s.queue = q

	for _, b := range []struct {
		slot int
		buf  compute.Buffer
	}{
		{ArgX, s.bufX},
		{ArgY, s.bufY},
		{ArgOut, s.bufOut},
	} {
		if err := s.kernel.SetBufferArg(b.slot, b.buf); err != nil {
			return s.fail(StageArgsBound, err, "bind argument")
		}
	}
	if err := s.kernel.SetFloat32Arg(ArgAlpha, alpha); err != nil {
		return s.fail(StageArgsBound, err, "bind argument")
	}
	s.advance(StageArgsBound)

	if err := s.queue.EnqueueNDRange(s.kernel, s.n, local); err != nil {
		return s.fail(StageDispatched, err, "enqueue kernel "+s.kernel.Name())
	}
	s.advance(StageDispatched)
	return nil
}

// Retrieve performs the blocking read of the output buffer. It is the only
// point where the host waits for the device.
func (s *Session) Retrieve() ([]float32, error) {
	if err := s.expect(StageDispatched, StageResultsRetrieved); err != nil {
		return nil, err
	}

	out := make([]float32, s.n)
	if err := s.queue.EnqueueReadBuffer(s.bufOut, true, out); err != nil {
		return nil, s.fail(StageResultsRetrieved, err, "read buffer out")
	}
	s.result.Output = out
	s.advance(StageResultsRetrieved)
	return out, nil
}
