// Package cli builds the rd3 command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rd3/internal/blob"
	"rd3/internal/cluster"
	"rd3/internal/config"
	"rd3/internal/core"
	"rd3/internal/gateway"
	"rd3/internal/vocab"
)

// app holds the state shared by all subcommands.
type app struct {
	cfg    config.Config
	file   string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewRootCommand returns the rd3 command with every subcommand attached.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{cfg: config.Default(), stdin: stdin, stdout: stdout, stderr: stderr}
	rc := &cobra.Command{
		Use:   "rd3",
		Short: "Ingest partner submissions into the RD3 catalog.",
		Long: `rd3 triages partner staging tables, applies pedigree and phenopacket
files from the cluster, merges the solved-status portal and keeps dataset
statistics current.

Settings come from flags, then environment variables (BACKEND_HOST,
CLUSTER_ROOT, OUTPUT_DIR, ...), then the optional YAML file given by --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load(viper.New(), cmd.Flags(), a.file)
		},
	}
	a.cfg.RegisterFlags(rc.PersistentFlags())
	rc.PersistentFlags().StringVarP(&a.file, "config", "c", "", "YAML configuration file")

	rc.AddCommand(a.newIngestShipmentCommand())
	rc.AddCommand(a.newIngestExperimentCommand())
	rc.AddCommand(a.newIngestPEDCommand())
	rc.AddCommand(a.newIngestPhenopacketsCommand())
	rc.AddCommand(a.newReconcileSolvedCommand())
	rc.AddCommand(a.newAggregateDatasetsCommand())
	rc.AddCommand(a.newRetractCommand())

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// command is one engine operation.
type command func(ctx context.Context, e *core.Engine) (*core.Report, error)

// run wires the configured backend, artifact store and cluster into an
// engine and executes fn. The backend session is released on return.
func (a *app) run(ctx context.Context, needs config.Needs, fn command) error {
	if err := a.cfg.Validate(needs); err != nil {
		return err
	}
	level, err := a.cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	metrics := core.NewMetrics()

	mapper := vocab.New()
	if a.cfg.VocabAliases != "" {
		if err := loadAliases(mapper, a.cfg.VocabAliases); err != nil {
			return err
		}
	}

	store, err := blob.Open(ctx, blob.Options{
		Driver: blob.Driver(a.cfg.Output.Driver),
		Dir:    a.cfg.Output.Dir,
		S3: blob.S3Config{
			Bucket:   a.cfg.Output.S3Bucket,
			Region:   a.cfg.Output.S3Region,
			Endpoint: a.cfg.Output.S3Endpoint,
		},
	})
	if err != nil {
		return fmt.Errorf("open output store: %w", err)
	}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithArtifacts(store),
		core.WithStopFile(a.cfg.StopFile),
		core.WithDryRun(a.cfg.DryRun),
		core.WithPhenopacketTimeout(a.cfg.PhenopacketTimeout),
	}
	if a.cfg.Backend.User != "" {
		opts = append(opts, core.WithUser(a.cfg.Backend.User))
	}
	if needs.Cluster {
		fsys, closeFS, err := a.openCluster(ctx)
		if err != nil {
			return err
		}
		defer closeFS()
		opts = append(opts, core.WithCluster(fsys, a.cfg.Cluster.Root))
	}

	backend, err := gateway.Open(ctx, gateway.Options{
		Driver:            gateway.Driver(a.cfg.Backend.Driver),
		Host:              a.cfg.Backend.Host,
		Token:             a.cfg.Backend.Token,
		Username:          a.cfg.Backend.User,
		Password:          a.cfg.Backend.Password,
		Retries:           a.cfg.Backend.Retries,
		RequestsPerSecond: a.cfg.Backend.RPS,
		Timeout:           a.cfg.Backend.Timeout,
		SQLitePath:        a.cfg.Backend.SQLitePath,
		PostgresDSN:       a.cfg.Backend.PostgresDSN,
		Logger:            logger,
		Observe:           metrics.ObserveRequest,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Logout(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("logout failed", "error", err)
		}
	}()

	rep, err := fn(ctx, core.NewEngine(backend, mapper, opts...))
	if rep != nil {
		a.summarize(rep)
	}
	return err
}

func (a *app) openCluster(ctx context.Context) (cluster.FS, func(), error) {
	if a.cfg.Cluster.SSHAlias == "" {
		return cluster.Local{}, func() {}, nil
	}
	remote, err := cluster.Dial(ctx, cluster.DialOptions{Host: a.cfg.Cluster.SSHAlias, User: a.cfg.Cluster.SSHUser})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", gateway.ErrTransport, err)
	}
	return remote, func() { _ = remote.Close() }, nil
}

func loadAliases(m *vocab.Mapper, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("vocabulary aliases: %w", err)
	}
	defer f.Close()
	if err := m.LoadAliases(f); err != nil {
		return fmt.Errorf("vocabulary aliases %s: %w", path, err)
	}
	return nil
}

// summarize prints the end-of-run summary.
func (a *app) summarize(rep *core.Report) {
	w := a.stdout
	fmt.Fprintf(w, "%s %s (run %s)\n", rep.Command, rep.Status, rep.RunID)
	if rep.DryRun {
		fmt.Fprintln(w, "  dry run: nothing was written")
	}
	for _, k := range sortedKeys(rep.Outcomes) {
		fmt.Fprintf(w, "  %-20s %d\n", k, rep.Outcomes[k])
	}
	for _, e := range rep.Errors {
		fmt.Fprintf(w, "  error %-40s %d\n", e.Error, e.Count)
	}
	for _, k := range sortedKeys(rep.Written) {
		fmt.Fprintf(w, "  written %-25s %d\n", k, rep.Written[k])
	}
	for _, f := range rep.FailedChunks {
		fmt.Fprintf(w, "  failed %s rows %d-%d: %s\n", f.Table, f.Offset, f.Offset+f.Size-1, f.Message)
	}
	if len(rep.Structural) > 0 {
		fmt.Fprintf(w, "  skipped files: %d\n", len(rep.Structural))
	}
	if len(rep.Unresolved) > 0 {
		fmt.Fprintf(w, "  unresolved: %s\n", strings.Join(rep.Unresolved, ", "))
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
