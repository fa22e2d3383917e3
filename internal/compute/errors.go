package compute

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPlatforms indicates that the driver exposes no platform at all.
	ErrNoPlatforms = errors.New("no OpenCL platform found")
	// ErrNoDevices indicates that the selected platform has no device of the requested type.
	ErrNoDevices = errors.New("no OpenCL devices found")
	// ErrNotBuilt indicates the binary was built without GPU support.
	ErrNotBuilt = errors.New("opencl support requires building with '-tags gpu'")
	// ErrKernelNotFound is returned when a built program has no entry point of the requested name.
	ErrKernelNotFound = errors.New("kernel entry point not found")
	// ErrInvalidKernelArgs is returned when a kernel is dispatched with unbound argument slots.
	ErrInvalidKernelArgs = errors.New("kernel arguments not set")
	// ErrReadOnlyWrite is returned when a kernel writes into a read-only buffer.
	ErrReadOnlyWrite = errors.New("write to read-only buffer")
	// ErrStillInUse is returned when an object is released before the objects it owns.
	ErrStillInUse = errors.New("object still referenced")
	// ErrReleased is returned when a released handle is used again.
	ErrReleased = errors.New("object already released")
)

// OpenCL status codes the program distinguishes. Values follow cl.h.
const (
	StatusSuccess                = 0
	StatusDeviceNotFound         = -1
	StatusOutOfResources         = -5
	StatusOutOfHostMemory        = -6
	StatusBuildProgramFailure    = -11
	StatusInvalidValue           = -30
	StatusInvalidPlatform        = -32
	StatusInvalidDevice          = -33
	StatusInvalidContext         = -34
	StatusInvalidCommandQueue    = -36
	StatusInvalidHostPtr         = -37
	StatusInvalidMemObject       = -38
	StatusInvalidProgram         = -44
	StatusInvalidProgramExec     = -45
	StatusInvalidKernelName      = -46
	StatusInvalidKernel          = -48
	StatusInvalidArgIndex        = -49
	StatusInvalidArgValue        = -50
	StatusInvalidArgSize         = -51
	StatusInvalidKernelArgs      = -52
	StatusInvalidWorkDimension   = -53
	StatusInvalidWorkGroupSize   = -54
	StatusInvalidOperation       = -59
	StatusInvalidBufferSize      = -61
	StatusInvalidGlobalWorkSize  = -63
	StatusMemObjectAllocFailure  = -4
	StatusCompilerNotAvailable   = -3
	StatusDeviceNotAvailable     = -2
	StatusInvalidBuildOptions    = -43
	StatusInvalidEventWaitList   = -57
	StatusInvalidDeviceType      = -31
	StatusInvalidQueueProperties = -35
)

var statusNames = map[int]string{
	StatusSuccess:                "CL_SUCCESS",
	StatusDeviceNotFound:         "CL_DEVICE_NOT_FOUND",
	StatusDeviceNotAvailable:     "CL_DEVICE_NOT_AVAILABLE",
	StatusCompilerNotAvailable:   "CL_COMPILER_NOT_AVAILABLE",
	StatusMemObjectAllocFailure:  "CL_MEM_OBJECT_ALLOCATION_FAILURE",
	StatusOutOfResources:         "CL_OUT_OF_RESOURCES",
	StatusOutOfHostMemory:        "CL_OUT_OF_HOST_MEMORY",
	StatusBuildProgramFailure:    "CL_BUILD_PROGRAM_FAILURE",
	StatusInvalidValue:           "CL_INVALID_VALUE",
	StatusInvalidDeviceType:      "CL_INVALID_DEVICE_TYPE",
	StatusInvalidPlatform:        "CL_INVALID_PLATFORM",
	StatusInvalidDevice:          "CL_INVALID_DEVICE",
	StatusInvalidContext:         "CL_INVALID_CONTEXT",
	StatusInvalidQueueProperties: "CL_INVALID_QUEUE_PROPERTIES",
	StatusInvalidCommandQueue:    "CL_INVALID_COMMAND_QUEUE",
	StatusInvalidHostPtr:         "CL_INVALID_HOST_PTR",
	StatusInvalidMemObject:       "CL_INVALID_MEM_OBJECT",
	StatusInvalidBuildOptions:    "CL_INVALID_BUILD_OPTIONS",
	StatusInvalidProgram:         "CL_INVALID_PROGRAM",
	StatusInvalidProgramExec:     "CL_INVALID_PROGRAM_EXECUTABLE",
	StatusInvalidKernelName:      "CL_INVALID_KERNEL_NAME",
	StatusInvalidKernel:          "CL_INVALID_KERNEL",
	StatusInvalidArgIndex:        "CL_INVALID_ARG_INDEX",
	StatusInvalidArgValue:        "CL_INVALID_ARG_VALUE",
	StatusInvalidArgSize:         "CL_INVALID_ARG_SIZE",
	StatusInvalidKernelArgs:      "CL_INVALID_KERNEL_ARGS",
	StatusInvalidWorkDimension:   "CL_INVALID_WORK_DIMENSION",
	StatusInvalidWorkGroupSize:   "CL_INVALID_WORK_GROUP_SIZE",
	StatusInvalidEventWaitList:   "CL_INVALID_EVENT_WAIT_LIST",
	StatusInvalidOperation:       "CL_INVALID_OPERATION",
	StatusInvalidBufferSize:      "CL_INVALID_BUFFER_SIZE",
	StatusInvalidGlobalWorkSize:  "CL_INVALID_GLOBAL_WORK_SIZE",
}

// StatusName returns the symbolic cl.h name of an OpenCL status code.
func StatusName(code int) string {
	if name, ok := statusNames[code]; ok {
		return name
	}
	return "CL_UNKNOWN_ERROR"
}

// StatusError is a non-success status returned by a compute API call.
type StatusError struct {
	Op   string // API call, e.g. "clCreateKernel"
	Code int
}

// NewStatusError builds a StatusError for op.
func NewStatusError(op string, code int) *StatusError {
	return &StatusError{Op: op, Code: code}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, StatusName(e.Code), e.Code)
}

// Unwrap maps status codes the program reacts to onto package sentinels so
// callers can use errors.Is regardless of the driver.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case StatusDeviceNotFound:
		return ErrNoDevices
	case StatusInvalidKernelName:
		return ErrKernelNotFound
	case StatusInvalidKernelArgs:
		return ErrInvalidKernelArgs
	default:
		return nil
	}
}

// BuildError reports a failed program build together with the compiler log.
type BuildError struct {
	Device string
	Log    string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Log == "" {
		return fmt.Sprintf("build failed for %s: %v", e.Device, e.Err)
	}
	return fmt.Sprintf("build failed for %s: %v\n%s", e.Device, e.Err, e.Log)
}

func (e *BuildError) Unwrap() error { return e.Err }
