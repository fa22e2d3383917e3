// Package kernels holds the OpenCL C source the program builds.
package kernels

import (
	_ "embed"
	"fmt"
	"os"
)

// Entry points declared in saxpy.cl.
const (
	EntrySAXPY       = "SAXPY"
	EntryPassthrough = "PASSTHROUGH"
)

//go:embed saxpy.cl
var saxpySource string

// Default returns the embedded saxpy.cl source.
func Default() string {
	return saxpySource
}

// Load reads a kernel source file fully into memory. An empty path selects
// the embedded source.
func Load(path string) (string, error) {
	if path == "" {
		return saxpySource, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read kernel source: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("kernel source %s is empty", path)
	}
	return string(data), nil
}
