package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clsaxpy/internal/compute"
	_ "github.com/cwbudde/clsaxpy/internal/compute/host"
	_ "github.com/cwbudde/clsaxpy/internal/compute/opencl"
	"github.com/cwbudde/clsaxpy/internal/kernels"
	"github.com/cwbudde/clsaxpy/internal/pipeline"
	"github.com/cwbudde/clsaxpy/internal/reference"
)

type runOptions struct {
	backend      string
	kernelPath   string
	entry        string
	buildOptions string
	deviceType   string
	alpha        float32
	localSize    int
	iterations   int
	tolerance    float64
	x, y         []float32
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build the kernel, run it once and compare with the host reference",
	Long: `Selects the first platform and its devices of the requested type, builds the
kernel source, runs the entry point over x and y and reads the result back.

The device output is checked against a*x + y. The iterative host refinement
z = x + y; repeat z = (z + y) / x is printed alongside for information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := compute.NewDriverForBackend(runOpts.backend)
		if err != nil {
			return err
		}
		return runSaxpy(cmd.OutOrStdout(), drv, runOpts)
	},
}

func init() {
	runCmd.Flags().StringVar(&runOpts.backend, "backend", "opencl", "Compute backend: opencl, host")
	runCmd.Flags().StringVar(&runOpts.kernelPath, "kernel", "", "Kernel source file (default: embedded saxpy.cl); the host backend checks its syntax but runs built-in SAXPY/PASSTHROUGH code")
	runCmd.Flags().StringVar(&runOpts.entry, "entry", kernels.EntrySAXPY, "Kernel entry point")
	runCmd.Flags().StringVar(&runOpts.buildOptions, "build-options", "", "Options passed to the kernel compiler")
	runCmd.Flags().StringVar(&runOpts.deviceType, "device-type", "gpu", "Device type: gpu, cpu, accelerator, default, all")
	runCmd.Flags().Float32Var(&runOpts.alpha, "alpha", 2, "Scalar a in a*x + y")
	runCmd.Flags().IntVar(&runOpts.localSize, "local-size", 0, "Work-group size (0 = chosen by the implementation)")
	runCmd.Flags().IntVar(&runOpts.iterations, "iterations", reference.DefaultRefineIterations, "Host refinement iterations")
	runCmd.Flags().Float64Var(&runOpts.tolerance, "tolerance", 1e-5, "Absolute/relative tolerance for the device check")
	runCmd.Flags().Float32SliceVar(&runOpts.x, "x", []float32{3.1, 1.453}, "Input vector x")
	runCmd.Flags().Float32SliceVar(&runOpts.y, "y", []float32{3.3453453, 7.29009234}, "Input vector y")

	rootCmd.AddCommand(runCmd)
}

func runSaxpy(w io.Writer, drv compute.Driver, opts runOptions) error {
	typ, err := compute.ParseDeviceType(opts.deviceType)
	if err != nil {
		return err
	}

	source, err := kernels.Load(opts.kernelPath)
	if err != nil {
		return err
	}

	cfg := pipeline.Config{
		Source:       source,
		Entry:        opts.entry,
		BuildOptions: opts.buildOptions,
		DeviceType:   typ,
		Alpha:        opts.alpha,
		LocalSize:    opts.localSize,
	}

	slog.Info("Starting run", "backend", drv.Name(), "entry", cfg.Entry, "n", len(opts.x))
	start := time.Now()
	res, runErr := pipeline.Run(drv, cfg, opts.x, opts.y)
	printDiscovery(w, res)
	if runErr != nil {
		return runErr
	}
	slog.Info("Run complete", "elapsed", time.Since(start), "stage", res.Stage.String())

	return checkOutput(w, res.Output, opts)
}

func printDiscovery(w io.Writer, res *pipeline.Result) {
	if len(res.Platforms) > 0 {
		fmt.Fprintf(w, "Found %d platform(s)\n", len(res.Platforms))
		for i, p := range res.Platforms {
			fmt.Fprintf(w, "\t (%d) : %s\n", i+1, p.Name)
		}
	}
	if len(res.Devices) > 0 {
		fmt.Fprintf(w, "Found %d device(s)\n", len(res.Devices))
		for i, d := range res.Devices {
			fmt.Fprintf(w, "\t (%d) : %s\n", i+1, d.Name)
		}
	}
	if res.Reached >= pipeline.StageContextReady {
		fmt.Fprintln(w, "Context created")
	}
}

// checkOutput prints every element next to its references and fails if the
// device output is outside tolerance of the reference for the entry point.
func checkOutput(w io.Writer, out []float32, opts runOptions) error {
	var want []float32
	var err error
	switch opts.entry {
	case kernels.EntryPassthrough:
		want = opts.x
	default:
		want, err = reference.Saxpy(opts.alpha, opts.x, opts.y)
	}
	if err != nil {
		return err
	}

	refined, err := reference.Refine(opts.x, opts.y, opts.iterations)
	if err != nil {
		return err
	}

	for i := range out {
		fmt.Fprintf(w, "Value %d: %f, CPU: %f, refined: %f\n", i, out[i], want[i], refined[i])
	}

	mismatches, err := reference.Compare(out, want, opts.tolerance)
	if err != nil {
		return err
	}
	for _, m := range mismatches {
		slog.Error("Device result outside tolerance", "index", m.Index, "got", m.Got, "want", m.Want)
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("device output differs from reference in %d of %d element(s): first %s",
			len(mismatches), len(out), mismatches[0])
	}

	fmt.Fprintf(w, "All %d value(s) match within %g\n", len(out), opts.tolerance)
	return nil
}
