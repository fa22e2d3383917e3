package compute

import (
	"fmt"
	"strings"
)

// DeviceType describes the class of an OpenCL device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeAll         DeviceType = "All"
	DeviceTypeUnknown     DeviceType = "Unknown"
)

// ParseDeviceType maps user input such as "gpu" to a DeviceType.
func ParseDeviceType(name string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gpu":
		return DeviceTypeGPU, nil
	case "cpu":
		return DeviceTypeCPU, nil
	case "accelerator", "acc":
		return DeviceTypeAccelerator, nil
	case "default":
		return DeviceTypeDefault, nil
	case "all", "":
		return DeviceTypeAll, nil
	default:
		return DeviceTypeUnknown, fmt.Errorf("unknown device type %q", name)
	}
}

// Matches reports whether a device of type t satisfies a query for want.
func (t DeviceType) Matches(want DeviceType) bool {
	return want == DeviceTypeAll || t == want
}

// DeviceInfo captures metadata about an OpenCL device.
type DeviceInfo struct {
	Name            string
	Vendor          string
	Version         string
	Type            DeviceType
	MaxComputeUnits uint32
}

// PlatformInfo captures metadata about an OpenCL platform and its devices.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
	Devices []DeviceInfo
}

// MemFlags mirrors the cl_mem_flags bits the program uses.
type MemFlags uint32

const (
	MemReadWrite MemFlags = 1 << iota
	MemWriteOnly
	MemReadOnly
	MemCopyHostPtr
)

// ReadOnly reports whether kernels may only read the buffer.
func (f MemFlags) ReadOnly() bool { return f&MemReadOnly != 0 }

func (f MemFlags) String() string {
	var parts []string
	if f&MemReadWrite != 0 {
		parts = append(parts, "READ_WRITE")
	}
	if f&MemWriteOnly != 0 {
		parts = append(parts, "WRITE_ONLY")
	}
	if f&MemReadOnly != 0 {
		parts = append(parts, "READ_ONLY")
	}
	if f&MemCopyHostPtr != 0 {
		parts = append(parts, "COPY_HOST_PTR")
	}
	if len(parts) == 0 {
		return "0"
	}
	return strings.Join(parts, "|")
}
