package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clsaxpy/internal/compute"
)

var devicesBackend string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List platforms and their devices",
	Long:  `Enumerates every platform of the backend and all of its devices, whatever their type.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := compute.NewDriverForBackend(devicesBackend)
		if err != nil {
			return err
		}
		return listDevices(cmd.OutOrStdout(), drv)
	},
}

func init() {
	devicesCmd.Flags().StringVar(&devicesBackend, "backend", "opencl", "Compute backend: opencl, host")
	rootCmd.AddCommand(devicesCmd)
}

func listDevices(out io.Writer, drv compute.Driver) error {
	platforms, err := drv.Platforms()
	if err != nil {
		return fmt.Errorf("failed to enumerate platforms: %w", err)
	}
	if len(platforms) == 0 {
		return compute.ErrNoPlatforms
	}

	fmt.Fprintf(out, "Found %d platform(s)\n\n", len(platforms))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLATFORM\tDEVICE\tTYPE\tVENDOR\tVERSION\tCOMPUTE UNITS")
	fmt.Fprintln(w, "--------\t------\t----\t------\t-------\t-------------")

	for i, p := range platforms {
		info := p.Info()
		devices, err := drv.Devices(p, compute.DeviceTypeAll)
		if err != nil {
			return fmt.Errorf("failed to enumerate devices of %s: %w", info.Name, err)
		}
		if len(devices) == 0 {
			fmt.Fprintf(w, "(%d) %s\t-\t-\t%s\t%s\t-\n", i+1, info.Name, info.Vendor, info.Version)
			continue
		}
		for _, d := range devices {
			di := d.Info()
			fmt.Fprintf(w, "(%d) %s\t%s\t%s\t%s\t%s\t%d\n",
				i+1, info.Name, di.Name, di.Type, di.Vendor, di.Version, di.MaxComputeUnits)
		}
	}

	return w.Flush()
}
