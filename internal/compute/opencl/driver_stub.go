//go:build !gpu

package opencl

import "github.com/cwbudde/clsaxpy/internal/compute"

func init() {
	compute.Register(compute.BackendOpenCL, func() (compute.Driver, error) {
		return nil, compute.ErrNotBuilt
	})
}

// Driver is a placeholder when GPU support is not compiled.
type Driver struct{}

// New returns a driver whose every call fails with compute.ErrNotBuilt.
func New() *Driver {
	return &Driver{}
}

func (*Driver) Name() string { return string(compute.BackendOpenCL) }

// Platforms returns an error when GPU support is not compiled in.
func (*Driver) Platforms() ([]compute.Platform, error) {
	return nil, compute.ErrNotBuilt
}

// Devices returns an error when GPU support is not compiled in.
func (*Driver) Devices(compute.Platform, compute.DeviceType) ([]compute.Device, error) {
	return nil, compute.ErrNotBuilt
}

// CreateContext returns an error when GPU support is not compiled in.
func (*Driver) CreateContext(compute.Platform, []compute.Device) (compute.Context, error) {
	return nil, compute.ErrNotBuilt
}
