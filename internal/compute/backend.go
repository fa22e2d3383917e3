package compute

import (
	"errors"
	"fmt"
	"strings"
)

// Backend identifies a Driver implementation.
type Backend string

const (
	BackendHost   Backend = "host"
	BackendOpenCL Backend = "opencl"
)

var (
	// ErrUnknownBackend is returned when the name does not match a known backend.
	ErrUnknownBackend = errors.New("unknown compute backend")
	// ErrBackendUnavailable indicates the backend is not available in this build.
	ErrBackendUnavailable = errors.New("compute backend unavailable")
)

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) Backend {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "host", "cpu":
		return BackendHost
	case "gpu", "opencl", "cl":
		return BackendOpenCL
	default:
		return Backend(name)
	}
}

// SupportedBackends returns the list of backends understood by the factory.
func SupportedBackends() []Backend {
	return []Backend{BackendHost, BackendOpenCL}
}

// Factory constructs a Driver.
type Factory func() (Driver, error)

var factories = map[Backend]Factory{}

// Register makes a backend available to NewDriverForBackend. Driver packages
// call it from init.
func Register(b Backend, f Factory) {
	factories[b] = f
}

// NewDriverForBackend constructs the requested driver.
func NewDriverForBackend(name string) (Driver, error) {
	backend := NormalizeBackend(name)

	known := false
	for _, b := range SupportedBackends() {
		if b == backend {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}

	f, ok := factories[backend]
	if !ok {
		return nil, fmt.Errorf("%w: %s not linked in", ErrBackendUnavailable, backend)
	}

	drv, err := f()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return drv, nil
}
