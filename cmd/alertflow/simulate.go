package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/alertflow/internal/monitor"
	"github.com/jmylchreest/alertflow/internal/output"
	"github.com/jmylchreest/alertflow/internal/scenario"
	"github.com/jmylchreest/alertflow/internal/trace"
)

var simulateOpts struct {
	trace    string
	format   string
	template string
	steps    bool
	index    bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate FILE",
	Short: "Replay a scenario script against a fresh scope",
	Long: `Replay a YAML scenario against a fresh scope on a simulated clock.

Each step submits, withdraws, raises interrupts, enters or exits levels,
dismisses, resolves, advances the clock or checks what is visible. Every
event the scope produced is printed with its offset from the start.

The command exits non-zero when an expect step fails.

Examples:
  alertflow simulate checkout.yaml
  alertflow simulate checkout.yaml --steps --trace events.jsonl
  alertflow simulate checkout.yaml -o json | jq '.events[].kind'
  alertflow simulate checkout.yaml --template '{{ms .Offset}} {{.Event.Kind}} {{.Title}}'`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVar(&simulateOpts.trace, "trace", "",
		"Append the events to a JSONL trace file")
	simulateCmd.Flags().StringVarP(&simulateOpts.format, "format", "o", "plain",
		"Output format: plain, json, kinds")
	simulateCmd.Flags().StringVar(&simulateOpts.template, "template", "",
		"Go template for each event line (plain format)")
	simulateCmd.Flags().BoolVar(&simulateOpts.steps, "steps", false,
		"Show what was visible after every step (plain format)")
	simulateCmd.Flags().BoolVar(&simulateOpts.index, "index", false,
		"Prefix events with their index (plain format)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(simulateOpts.format)
	if err != nil {
		return err
	}
	opts := output.DefaultFormatterOptions()
	opts.Template = simulateOpts.template
	opts.ShowSteps = simulateOpts.steps
	opts.ShowIndex = simulateOpts.index
	formatter, err := output.NewFormatter(format, opts)
	if err != nil {
		return err
	}

	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}

	runOpts := scenario.Options{Logger: logger}
	if simulateOpts.trace != "" {
		w, err := trace.NewFileWriter(simulateOpts.trace, sc.Name)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		w.SetLogger(logger)
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("failed to close trace", "error", err)
			}
		}()
		runOpts.Observers = map[string]monitor.Observer{"trace": w}
	}

	res, runErr := scenario.Run(cmd.Context(), sc, runOpts)
	if res != nil {
		if err := formatter.Format(os.Stdout, res); err != nil {
			return err
		}
	}
	return runErr
}
