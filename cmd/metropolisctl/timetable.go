package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/metropolis-api/internal/timetable"
)

var timetableCmd = &cobra.Command{
	Use:   "timetable",
	Short: "Inspect timetable formats",
}

var timetableValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a formats file, or the built-in formats when no file is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		registry, err := loadRegistry(path)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, f := range registry.Formats() {
			fmt.Fprintf(out, "%s: %d %s cycle, %s, variants %v\n", f.Name, f.Cycle.Length, f.Cycle.Unit, f.DayNumMethod, f.VariantNames())
		}
		return nil
	},
}

func init() {
	timetableCmd.AddCommand(timetableValidateCmd)
}

func loadRegistry(path string) (*timetable.Registry, error) {
	if path != "" {
		return timetable.LoadFile(path)
	}
	return timetable.Load(timetable.Defaults())
}
