package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/patternbus/pkg/metrics"
	"github.com/shashiranjanraj/patternbus/pkg/script"
)

var (
	runJSONFlag    bool
	runMetricsFlag bool
)

// busctl run <scenario>
var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Run a scenario file and print every listener call",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := script.Load(args[0])
		if err != nil {
			return err
		}

		runner, cleanup, err := runnerFor(cmd.Context(), newBus(), sc)
		if err != nil {
			return err
		}
		defer cleanup()

		rep, err := runner.Run(sc)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if runJSONFlag {
			err = writeReportJSON(out, rep)
		} else {
			err = writeReport(out, rep)
		}
		if err != nil {
			return err
		}

		if runMetricsFlag {
			if err := writeMetrics(out); err != nil {
				return err
			}
		}

		if n := rep.Failed(); n > 0 {
			return fmt.Errorf("%d of %d steps failed", n, len(rep.Steps))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runJSONFlag, "json", false, "Print the report as JSON")
	runCmd.Flags().BoolVarP(&runMetricsFlag, "metrics", "m", false, "Print dispatch counters after the run")
}

func writeReport(out io.Writer, rep *script.Report) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "STEP\tACTION\tTARGET\tLISTENER\tRESULT")
	fmt.Fprintln(w, "----\t------\t------\t--------\t------")
	for _, st := range rep.Steps {
		if len(st.Calls) == 0 {
			fmt.Fprintf(w, "%d\t%s\t%s\t-\t%s\n", st.Index, st.Action, st.Target, outcome(st.Err))
			continue
		}
		for _, c := range st.Calls {
			result := c.Result.String()
			if c.Err != "" {
				result = "error: " + c.Err
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", st.Index, st.Action, st.Target, c.Binding, result)
		}
		if st.Err != nil {
			fmt.Fprintf(w, "%d\t%s\t%s\t-\t%s\n", st.Index, st.Action, st.Target, outcome(st.Err))
		}
	}
	return w.Flush()
}

func outcome(err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

type jsonStep struct {
	script.StepResult
	Error string `json:"error,omitempty"`
}

func writeReportJSON(out io.Writer, rep *script.Report) error {
	steps := make([]jsonStep, len(rep.Steps))
	for i, st := range rep.Steps {
		steps[i] = jsonStep{StepResult: st}
		if st.Err != nil {
			steps[i].Error = st.Err.Error()
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"steps": steps})
}

func writeMetrics(out io.Writer) error {
	samples, err := metrics.Summary()
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "METRIC\tLABELS\tVALUE")
	for _, s := range samples {
		fmt.Fprintf(w, "%s\t%s\t%g\n", s.Name, s.Labels, s.Value)
	}
	return w.Flush()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the busctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "busctl", version)
	},
}

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"
