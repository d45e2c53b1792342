package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rd3/internal/config"
	"rd3/internal/core"
)

func (a *app) newIngestShipmentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-shipment",
		Short: "Triage the shipment staging table into subjects and samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), config.Needs{}, func(ctx context.Context, e *core.Engine) (*core.Report, error) {
				return e.IngestShipments(ctx)
			})
		},
	}
}

func (a *app) newIngestExperimentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-experiment",
		Short: "Triage the experiment staging table into experiments and files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), config.Needs{}, func(ctx context.Context, e *core.Engine) (*core.Report, error) {
				return e.IngestExperiments(ctx)
			})
		},
	}
}

func (a *app) newIngestPEDCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-ped <release>",
		Short: "Apply the pedigree files of a release to known subjects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), config.Needs{Cluster: true}, func(ctx context.Context, e *core.Engine) (*core.Report, error) {
				return e.IngestPED(ctx, args[0])
			})
		},
	}
}

func (a *app) newIngestPhenopacketsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-phenopackets <release>",
		Short: "Apply the phenopackets of a release to known subjects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), config.Needs{Cluster: true}, func(ctx context.Context, e *core.Engine) (*core.Report, error) {
				return e.IngestPhenopackets(ctx, args[0])
			})
		},
	}
}

func (a *app) newReconcileSolvedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-solved <date|all>",
		Short: "Merge new solved-status portal rows into subjects",
		Long: `Merge the new rows of the recontact-and-solved portal into subjects.
The date (YYYY-MM-DD) selects rows by date_solved; "all" takes every new row.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), config.Needs{}, func(ctx context.Context, e *core.Engine) (*core.Report, error) {
				return e.ReconcileSolved(ctx, args[0])
			})
		},
	}
}

func (a *app) newAggregateDatasetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "aggregate-datasets",
		Short: "Recompute dataset statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context(), config.Needs{}, func(ctx context.Context, e *core.Engine) (*core.Report, error) {
				return e.AggregateDatasets(ctx)
			})
		},
	}
}

func (a *app) newRetractCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retract <file-of-ids>",
		Short: "Tombstone records and their dependents",
		Long: `Tombstone the subjects, samples, experiments or files listed in a file,
one or more ids per line, together with the records that depend on them.
Use "-" to read the ids from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := a.readIDs(args[0])
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), config.Needs{}, func(ctx context.Context, e *core.Engine) (*core.Report, error) {
				return e.Retract(ctx, ids)
			})
		},
	}
}

func (a *app) readIDs(path string) ([]string, error) {
	if path == "-" {
		return core.ReadIDs(a.stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	defer f.Close()
	return core.ReadIDs(f)
}
