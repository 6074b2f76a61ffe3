package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/turnstream/adapter"
	"github.com/pithecene-io/turnstream/adapter/redis"
	"github.com/pithecene-io/turnstream/adapter/webhook"
	"github.com/pithecene-io/turnstream/channel"
	"github.com/pithecene-io/turnstream/cli/config"
	"github.com/pithecene-io/turnstream/cli/render"
	"github.com/pithecene-io/turnstream/cli/tui"
	"github.com/pithecene-io/turnstream/lode"
	"github.com/pithecene-io/turnstream/log"
	"github.com/pithecene-io/turnstream/metrics"
	"github.com/pithecene-io/turnstream/runtime"
	"github.com/pithecene-io/turnstream/types"
)

// postTurnTimeout bounds storage, notification, and metrics writes after a
// turn ends. Those writes run even when the turn itself was canceled.
const postTurnTimeout = 30 * time.Second

// turnSettings is the resolved configuration of one stream or replay.
type turnSettings struct {
	cfg         *config.Config
	endpoint    string
	transport   string
	source      string
	category    string
	logLevel    zapcore.Level
	quiet       bool
	tui         bool
	recordPath  string
	metricsFile string
	storage     config.StorageConfig
}

// TurnSummaryView is the rendered account of a finished turn.
// It never carries prompt or explanation text.
type TurnSummaryView struct {
	TurnID             string `json:"turn_id" yaml:"turn_id"`
	SessionID          string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Outcome            string `json:"outcome" yaml:"outcome"`
	Message            string `json:"message" yaml:"message"`
	StatusCode         int    `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	ErrorKind          string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	RPCGlobalID        int64  `json:"rpc_global_id" yaml:"rpc_global_id"`
	Yields             int    `json:"yields" yaml:"yields"`
	FragmentsRead      int    `json:"fragments_read" yaml:"fragments_read"`
	ExplanationBytes   int    `json:"explanation_bytes" yaml:"explanation_bytes"`
	AttributionEntries int    `json:"attribution_entries" yaml:"attribution_entries"`
	CitationCount      int    `json:"citation_count" yaml:"citation_count"`
	DurationMs         int64  `json:"duration_ms" yaml:"duration_ms"`
	Transport          string `json:"transport" yaml:"transport"`
	Endpoint           string `json:"endpoint" yaml:"endpoint"`
}

// resolveSettings merges flags over the config file. Flags win.
func resolveSettings(c *cli.Context, cfg *config.Config) (turnSettings, error) {
	levelName := firstNonEmpty(c.String("log-level"), cfg.LogLevel, "warn")
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return turnSettings{}, err
	}

	st := turnSettings{
		cfg:         cfg,
		category:    c.String("category"),
		source:      c.String("source"),
		logLevel:    level,
		quiet:       c.Bool("quiet"),
		tui:         c.Bool("tui"),
		metricsFile: firstNonEmpty(c.String("metrics-file"), cfg.MetricsFile),
		storage:     cfg.Storage,
	}
	if v := c.String("storage-backend"); v != "" {
		st.storage.Backend = v
	}
	if v := c.String("storage-path"); v != "" {
		st.storage.Path = v
	}
	if v := c.String("storage-region"); v != "" {
		st.storage.Region = v
	}
	switch st.storage.Backend {
	case "", "fs", "s3":
	default:
		return turnSettings{}, fmt.Errorf("invalid storage backend %q (must be fs or s3)", st.storage.Backend)
	}
	return st, nil
}

// runTurn drives one turn over opener, prints it, and records its outcome.
// It returns a cli.Exit error carrying the outcome's exit code.
func runTurn(c *cli.Context, opener channel.Opener, req *types.ConversationRequest, st turnSettings) error {
	stdout, stderr := c.App.Writer, c.App.ErrWriter

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout := st.cfg.Endpoint.Timeout.Duration; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	meta := types.NewTurnMeta(req.SessionID)
	logger := log.NewLogger(meta).WithOutput(stderr).WithLevel(st.logLevel)
	defer func() { _ = logger.Sync() }()
	collector := metrics.NewCollector(st.endpoint, st.transport, meta.TurnID)

	var recorder *channel.RecordingOpener
	var transcript *os.File
	if st.recordPath != "" {
		f, err := os.Create(st.recordPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot create transcript: %v", err), exitUsage)
		}
		transcript = f
		recorder = channel.NewRecordingOpener(opener, f)
		opener = recorder
	}

	driver := runtime.NewConversationDriver(opener, req,
		runtime.WithLogger(logger),
		runtime.WithCollector(collector),
		runtime.WithTurnMeta(meta),
	)
	defer func() { _ = driver.Close() }()

	startedAt := time.Now()
	var err error
	if st.tui {
		err = streamTUI(ctx, driver, st.endpoint)
	} else {
		err = streamPlain(ctx, driver, stdout)
	}
	if err != nil {
		logger.Warn("output failed", map[string]any{"error": err.Error()})
	}
	_ = driver.Close()

	if transcript != nil {
		if err := recorder.Err(); err != nil {
			logger.Warn("transcript recording failed", map[string]any{"error": err.Error()})
		}
		if err := transcript.Close(); err != nil {
			logger.Warn("transcript close failed", map[string]any{"error": err.Error()})
		}
	}

	summary := driver.Summary()
	completedAt := time.Now()

	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postTurnTimeout)
	defer cancel()
	notify(postCtx, st, summary, collector, logger, completedAt)
	persist(postCtx, st, summary, collector, logger, startedAt, completedAt)
	if st.metricsFile != "" {
		if err := metrics.WriteTextfile(st.metricsFile, collector); err != nil {
			logger.Warn("metrics textfile write failed", map[string]any{"error": err.Error()})
		}
	}

	if !st.quiet {
		r, err := render.NewRenderer(c, stderr)
		if err != nil {
			return cli.Exit(err.Error(), exitUsage)
		}
		if err := r.Render(newSummaryView(summary, st)); err != nil {
			return err
		}
	}

	if code := runtime.ExitCode(summary.Outcome); code != runtime.ExitCodeCompleted {
		return cli.Exit("", code)
	}
	return nil
}

// streamPlain prints each snapshot's new text to out as it arrives.
func streamPlain(ctx context.Context, driver *runtime.ConversationDriver, out io.Writer) error {
	dw := render.NewDeltaWriter(out)
	for resp, err := range driver.Responses(ctx) {
		if err != nil {
			break
		}
		if err := dw.Write(resp.Explanation); err != nil {
			return err
		}
	}
	return dw.Finish(driver.Snapshot().Explanation)
}

// streamTUI feeds snapshots to the live view until the turn ends and the
// user quits. Quitting early cancels the turn.
func streamTUI(ctx context.Context, driver *runtime.ConversationDriver, endpoint string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	prog := tui.NewProgram(tui.NewTurnModel(driver.TurnMeta().TurnID, endpoint, cancel))
	g, gctx := errgroup.WithContext(turnCtx)

	g.Go(func() error {
		defer cancel()
		return prog.Run()
	})
	g.Go(func() error {
		for resp, err := range driver.Responses(gctx) {
			if err != nil {
				break
			}
			prog.Send(tui.SnapshotMsg{Response: resp})
		}
		prog.Send(tui.DoneMsg{Summary: driver.Summary(), Err: driver.Err()})
		return nil
	})

	return g.Wait()
}

func notify(ctx context.Context, st turnSettings, summary runtime.TurnSummary, collector *metrics.Collector, logger *log.Logger, completedAt time.Time) {
	a, err := openAdapter(st.cfg.Adapter)
	if err != nil {
		collector.IncNotifyFailure()
		logger.Warn("adapter setup failed", map[string]any{"error": err.Error()})
		return
	}
	if a == nil {
		return
	}
	defer func() { _ = a.Close() }()

	event := adapter.NewTurnCompletedEvent(summary.TurnID, st.endpoint, completedAt)
	if summary.SessionID != nil {
		event.SessionID = *summary.SessionID
	}
	event.RPCGlobalID = summary.RPCGlobalID
	event.Outcome = outcomeStatus(summary)
	event.ErrorKind = string(summary.ErrorKind)
	event.Yields = summary.Yields
	event.ExplanationBytes = summary.ExplanationBytes
	event.DurationMs = summary.Duration.Milliseconds()

	if err := a.Publish(ctx, event); err != nil {
		collector.IncNotifyFailure()
		logger.Warn("turn notification failed", map[string]any{"adapter": st.cfg.Adapter.Type, "error": err.Error()})
		return
	}
	collector.IncNotifySuccess()
	logger.Debug("turn notification published", map[string]any{"adapter": st.cfg.Adapter.Type})
}

// openAdapter returns nil when no adapter is configured.
func openAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "redis":
		return redis.New(redis.Config{URL: cfg.URL, Channel: cfg.Channel, Timeout: cfg.Timeout.Duration})
	case "webhook":
		return webhook.New(webhook.Config{URL: cfg.URL, Headers: cfg.Headers, Timeout: cfg.Timeout.Duration})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Type)
	}
}

func persist(ctx context.Context, st turnSettings, summary runtime.TurnSummary, collector *metrics.Collector, logger *log.Logger, startedAt, completedAt time.Time) {
	if st.storage.Path == "" {
		return
	}

	cfg := lode.Config{
		Dataset:  st.storage.Dataset,
		Source:   st.source,
		Category: st.category,
		Day:      lode.DeriveDay(startedAt),
		TurnID:   summary.TurnID,
	}
	inner, err := openStore(ctx, cfg, st.storage)
	if err != nil {
		collector.IncStorageWriteFailure()
		logger.Warn("storage setup failed", map[string]any{"error": err.Error()})
		return
	}
	client := lode.NewInstrumentedClient(inner, collector)
	defer func() { _ = client.Close() }()

	if err := client.WriteTurn(ctx, newTurnRecord(summary, st.transport), completedAt); err != nil {
		logger.Warn("turn record write failed", map[string]any{"error": err.Error()})
	}
	if err := client.WriteMetrics(ctx, collector.Snapshot(), completedAt); err != nil {
		logger.Warn("metrics record write failed", map[string]any{"error": err.Error()})
	}
}

func openStore(ctx context.Context, cfg lode.Config, storage config.StorageConfig) (lode.Client, error) {
	switch storage.Backend {
	case "", "fs":
		return lode.NewLodeClient(cfg, storage.Path)
	case "s3":
		return lode.NewLodeS3Client(ctx, cfg, s3Config(storage))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", storage.Backend)
	}
}

func s3Config(storage config.StorageConfig) lode.S3Config {
	bucket, prefix := lode.ParseS3Path(storage.Path)
	return lode.S3Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Region:       storage.Region,
		Endpoint:     storage.Endpoint,
		UsePathStyle: storage.S3PathStyle,
	}
}

func newTurnRecord(s runtime.TurnSummary, transport string) lode.TurnRecord {
	rec := lode.TurnRecord{
		TurnID:             s.TurnID,
		Outcome:            outcomeStatus(s),
		ErrorKind:          string(s.ErrorKind),
		RPCGlobalID:        s.RPCGlobalID,
		Yields:             s.Yields,
		FragmentsRead:      s.FragmentsRead,
		ExplanationBytes:   s.ExplanationBytes,
		AttributionEntries: s.AttributionEntries,
		CitationCount:      s.CitationCount,
		DurationMs:         s.Duration.Milliseconds(),
		Transport:          transport,
	}
	if s.SessionID != nil {
		rec.SessionID = *s.SessionID
	}
	if s.Outcome != nil {
		rec.StatusCode = s.Outcome.StatusCode
	}
	return rec
}

func newSummaryView(s runtime.TurnSummary, st turnSettings) TurnSummaryView {
	v := TurnSummaryView{
		TurnID:             s.TurnID,
		Outcome:            outcomeStatus(s),
		ErrorKind:          string(s.ErrorKind),
		RPCGlobalID:        s.RPCGlobalID,
		Yields:             s.Yields,
		FragmentsRead:      s.FragmentsRead,
		ExplanationBytes:   s.ExplanationBytes,
		AttributionEntries: s.AttributionEntries,
		CitationCount:      s.CitationCount,
		DurationMs:         s.Duration.Milliseconds(),
		Transport:          st.transport,
		Endpoint:           st.endpoint,
	}
	if s.SessionID != nil {
		v.SessionID = *s.SessionID
	}
	if s.Outcome != nil {
		v.Message = s.Outcome.Message
		v.StatusCode = s.Outcome.StatusCode
	}
	return v
}

func outcomeStatus(s runtime.TurnSummary) string {
	if s.Outcome == nil {
		return ""
	}
	return string(s.Outcome.Status)
}

// endpointHost returns the host of a URL, or the input if it does not parse.
func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Hostname()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
