// Package pipeline runs one kernel over one device: acquire a context, build
// the program, mirror the host arrays, dispatch and read the result back.
package pipeline

import (
	"go.uber.org/multierr"

	"github.com/cwbudde/clsaxpy/internal/compute"
	"github.com/cwbudde/clsaxpy/internal/kernels"
)

// Config selects what Run builds and dispatches.
type Config struct {
	Source       string
	Entry        string
	BuildOptions string
	DeviceType   compute.DeviceType
	Alpha        float32
	LocalSize    int
}

// DefaultConfig runs the embedded SAXPY kernel on a GPU with a = 2.
func DefaultConfig() Config {
	return Config{
		Source:     kernels.Default(),
		Entry:      kernels.EntrySAXPY,
		DeviceType: compute.DeviceTypeGPU,
		Alpha:      2,
	}
}

// Result is what a run produced. Fields are filled in as stages complete.
type Result struct {
	Platforms []compute.PlatformInfo
	Platform  compute.PlatformInfo
	Devices   []compute.DeviceInfo
	Output    []float32
	// Reached is the last stage completed successfully; Stage is the final state.
	Reached Stage
	Stage   Stage
}

// Run executes every stage in order and releases all handles before
// returning, whether or not a stage failed. The returned Result is never nil.
func Run(drv compute.Driver, cfg Config, x, y []float32) (res *Result, err error) {
	s := NewSession(drv)
	defer func() {
		err = multierr.Append(err, s.Close())
		res = s.Result()
	}()

	if err := s.Acquire(cfg.DeviceType); err != nil {
		return nil, err
	}
	if err := s.BuildProgram(cfg.Source, cfg.BuildOptions, cfg.Entry); err != nil {
		return nil, err
	}
	if err := s.AllocateBuffers(x, y); err != nil {
		return nil, err
	}
	if err := s.Dispatch(cfg.Alpha, cfg.LocalSize); err != nil {
		return nil, err
	}
	if _, err := s.Retrieve(); err != nil {
		return nil, err
	}
	return nil, nil
}
