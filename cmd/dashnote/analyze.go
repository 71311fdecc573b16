package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ternarybob/dashnote/internal/app"
	"github.com/ternarybob/dashnote/internal/models"
	"github.com/ternarybob/dashnote/internal/services/session"
)

type runFlags struct {
	image  string
	data   string
	asJSON bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.image, "image", "i", "", "Dashboard image (png, jpg, jpeg, gif)")
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "Data file (csv, txt, xlsx)")
	cmd.Flags().BoolVarP(&f.asJSON, "json", "j", false, "Output as JSON")
}

func annotateCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Write the annotation for a chart image and/or its data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(ctx context.Context, p *app.Pipeline) (models.AgentState, error) {
				return p.Orchestrator.Annotate(ctx, flags.image, flags.data)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func askCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question about a chart image and/or its data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(ctx context.Context, p *app.Pipeline) (models.AgentState, error) {
				return p.Orchestrator.Ask(ctx, flags.image, flags.data, args[0], nil)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func run(cmd *cobra.Command, flags runFlags, invoke func(context.Context, *app.Pipeline) (models.AgentState, error)) error {
	config, logger, err := loadConfig(true)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	pipeline, err := app.NewPipeline(config, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	state, err := invoke(ctx, pipeline)
	if err != nil {
		return err
	}

	result := session.ResultOf(state)
	if flags.asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		printResult(cmd.OutOrStdout(), result)
	}

	if state.Outcome == models.OutcomeInputError {
		return fmt.Errorf("input rejected")
	}
	return nil
}

func printResult(w io.Writer, result session.Result) {
	switch result.Outcome {
	case models.OutcomeInputError, models.OutcomeUnavailable:
		fmt.Fprintln(w, color.New(color.FgRed, color.Bold).Sprint(result.Text))
		return
	case models.OutcomeInsufficientData, models.OutcomeReformulate:
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint(result.Text))
		return
	}

	fmt.Fprintln(w, result.Text)
	if result.Agent != "" {
		fmt.Fprintln(w, color.New(color.FgHiBlack).Sprintf("(answered by %s)", result.Agent))
	}
	if len(result.Discrepancies) > 0 {
		fmt.Fprintln(w)
		warn := color.New(color.FgYellow).SprintFunc()
		for _, d := range result.Discrepancies {
			fmt.Fprintf(w, "%s %s\n", warn("!"), d)
		}
	}
}
