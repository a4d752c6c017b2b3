package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "orrery",
		Short: "Star-system modeling engine with Keplerian kinematics and pluggable calendars",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(calendarCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var systemPath, statePath, rulesPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service: positions, zones, calendars, SSE frame stream",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(systemPath, statePath, rulesPath)
		},
	}

	cmd.Flags().StringVar(&systemPath, "system", "", "system file to load on startup (YAML)")
	cmd.Flags().StringVar(&statePath, "state", "", "temporal state file with calendar registry (YAML)")
	cmd.Flags().StringVar(&rulesPath, "rules", "", "rule pack file (YAML, defaults to built-in constants)")
	return cmd
}

func resolveCmd() *cobra.Command {
	var t int64
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "resolve [system-file]",
		Short: "Resolve absolute positions for every node at a master time",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runResolve(args[0], t, jsonOut)
		},
	}

	cmd.Flags().Int64VarP(&t, "time", "t", 0, "master time in seconds")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the frame as JSON")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [system-file]",
		Short: "Validate a system file without resolving it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runValidate(args[0])
		},
	}
}

func calendarCmd() *cobra.Command {
	var t int64
	var key, fieldsJSON string
	var value float64
	var convertValue bool

	cmd := &cobra.Command{
		Use:   "calendar [state-file]",
		Short: "Render a master time against a calendar, or convert fields back to seconds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case fieldsJSON != "":
				return runCalendarConvertFields(args[0], key, fieldsJSON)
			case convertValue:
				return runCalendarConvertValue(args[0], key, value)
			default:
				return runCalendarRender(args[0], key, t, cmd.Flags().Changed("time"))
			}
		},
	}

	cmd.Flags().Int64VarP(&t, "time", "t", 0, "master time in seconds (defaults to the state file's master time)")
	cmd.Flags().StringVarP(&key, "key", "k", "", "calendar key (defaults to the active calendar)")
	cmd.Flags().StringVar(&fieldsJSON, "fields", "", `convert calendar fields to master seconds, e.g. '{"year":4,"month":2,"day":3}'`)
	cmd.Flags().Float64Var(&value, "value", 0, "convert a ratio-linear display value to master seconds")
	cmd.Flags().BoolVar(&convertValue, "convert-value", false, "treat --value as a conversion input")
	return cmd
}
