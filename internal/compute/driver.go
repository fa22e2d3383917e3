package compute

// Driver is the entry point into a compute API implementation.
//
// Every object handed out by a Driver must be released by the caller, and must
// not be released while commands referencing it are still pending.
type Driver interface {
	// Name identifies the implementation in logs ("opencl", "host").
	Name() string

	// Platforms lists the available platforms. An empty slice is not an error.
	Platforms() ([]Platform, error)

	// Devices lists the devices of the given class on a platform. An empty
	// slice is not an error.
	Devices(p Platform, typ DeviceType) ([]Device, error)

	// CreateContext binds the devices of one platform into a session.
	CreateContext(p Platform, devices []Device) (Context, error)
}

// Platform is an opaque platform handle.
type Platform interface {
	Info() PlatformInfo
}

// Device is an opaque device handle.
type Device interface {
	Info() DeviceInfo
}

// Context owns every program, buffer and queue created under it.
type Context interface {
	// CreateProgram creates an unbuilt program from source text.
	CreateProgram(source string) (Program, error)

	// CreateBuffer allocates size float32 elements. With MemCopyHostPtr the
	// contents of host are copied in synchronously; host must then hold
	// exactly size elements.
	CreateBuffer(flags MemFlags, size int, host []float32) (Buffer, error)

	// CreateQueue creates an in-order command queue on one of the
	// context's devices.
	CreateQueue(d Device) (Queue, error)

	Release() error
}

// Program is a compiled (or compilable) unit of kernel code.
type Program interface {
	// Build compiles the program for devices. A compiler failure is reported
	// as a *BuildError carrying the build log.
	Build(devices []Device, options string) error

	// BuildLog returns the compiler output for one device.
	BuildLog(d Device) (string, error)

	// CreateKernel looks up a named entry point in a built program.
	CreateKernel(name string) (Kernel, error)

	Release() error
}

// Kernel is one entry point with positional argument slots.
type Kernel interface {
	Name() string
	SetBufferArg(index int, b Buffer) error
	SetFloat32Arg(index int, v float32) error
	Release() error
}

// Buffer is a device-resident allocation of float32 elements.
type Buffer interface {
	Len() int
	Flags() MemFlags
	Release() error
}

// Queue is an in-order command queue bound to one device.
type Queue interface {
	// EnqueueNDRange submits a kernel over a 1-D range of global work-items.
	// A local size of 0 leaves work-group sizing to the implementation.
	EnqueueNDRange(k Kernel, global, local int) error

	// EnqueueReadBuffer copies the buffer into dst. A blocking read returns
	// only after every previously enqueued command has completed.
	EnqueueReadBuffer(b Buffer, blocking bool, dst []float32) error

	// Finish blocks until every enqueued command has completed.
	Finish() error

	Release() error
}
