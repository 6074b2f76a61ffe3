package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	lodelibrary "github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/turnstream/cli/config"
	"github.com/pithecene-io/turnstream/cli/render"
	"github.com/pithecene-io/turnstream/cli/tui"
	"github.com/pithecene-io/turnstream/lode"
)

// statsTimeout bounds the dataset scan.
const statsTimeout = 30 * time.Second

// StatsView is the latest stored turn record and its metrics record.
// Metrics is nil when only the turn record was found.
type StatsView struct {
	Turn    map[string]any `json:"turn" yaml:"turn"`
	Metrics map[string]any `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// StatsCommand returns the stats command.
// Stats reads the latest stored turn and metrics records.
func StatsCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Lode dataset ID (default: \"turnstream\")",
		},
		&cli.StringFlag{
			Name:  "turn-id",
			Usage: "Read records for a specific turn ID",
		},
		&cli.StringFlag{
			Name:  "source",
			Usage: "Filter by source partition",
		},
	}
	flags = append(flags, storageFlags()...)

	return &cli.Command{
		Name:   "stats",
		Usage:  "Show the latest stored turn and its metrics",
		Flags:  append(flags, ReadOnlyFlags()...),
		Action: statsAction,
	}
}

func statsAction(c *cli.Context) error {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	storage := cfg.Storage
	if v := c.String("storage-backend"); v != "" {
		storage.Backend = v
	}
	if v := c.String("storage-path"); v != "" {
		storage.Path = v
	}
	if v := c.String("storage-region"); v != "" {
		storage.Region = v
	}
	if v := c.String("storage-dataset"); v != "" {
		storage.Dataset = v
	}
	if storage.Path == "" {
		return cli.Exit("no storage: pass --storage-path or set storage.path", exitUsage)
	}
	if storage.Dataset == "" {
		storage.Dataset = lode.DefaultDataset
	}

	ctx, cancel := context.WithTimeout(c.Context, statsTimeout)
	defer cancel()

	ds, err := buildReadDataset(ctx, storage)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize storage reader: %v", err), exitStorage)
	}

	view, err := queryStats(ctx, ds, c.String("turn-id"), c.String("source"))
	if err != nil {
		if errors.Is(err, lode.ErrNoTurnFound) {
			return cli.Exit(err.Error(), exitStorage)
		}
		return cli.Exit(fmt.Sprintf("failed to read stats: %v", err), exitStorage)
	}

	if c.Bool("tui") {
		return tui.RunStatsTUI(view.Turn, view.Metrics)
	}

	r, err := render.NewRenderer(c, nil)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if r.Format() != render.FormatTable {
		return r.Render(view)
	}

	// Tables flatten one record at a time.
	if err := r.Render(view.Turn); err != nil {
		return err
	}
	if view.Metrics == nil {
		return nil
	}
	fmt.Fprintln(c.App.Writer)
	return r.Render(view.Metrics)
}

// queryStats reads the latest turn record and the metrics record of the same turn.
func queryStats(ctx context.Context, ds lodelibrary.Dataset, turnID, source string) (*StatsView, error) {
	turn, err := lode.QueryLatestTurn(ctx, ds, turnID, source)
	if err != nil {
		return nil, err
	}

	if turnID == "" {
		turnID, _ = turn["turn_id"].(string)
	}
	view := &StatsView{Turn: turn}
	m, err := lode.QueryLatestMetrics(ctx, ds, turnID, source)
	switch {
	case err == nil:
		view.Metrics = m
	case !errors.Is(err, lode.ErrNoMetricsFound):
		return nil, err
	}
	return view, nil
}

// buildReadDataset creates a Lode Dataset for reading.
func buildReadDataset(ctx context.Context, storage config.StorageConfig) (lodelibrary.Dataset, error) {
	switch storage.Backend {
	case "", "fs":
		return lode.NewReadDatasetFS(storage.Dataset, storage.Path)
	case "s3":
		return lode.NewReadDatasetS3(ctx, storage.Dataset, s3Config(storage))
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (must be fs or s3)", storage.Backend)
	}
}
