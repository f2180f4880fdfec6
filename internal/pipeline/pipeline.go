package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/couchcryptid/bikeshare-etl/internal/archive"
	"github.com/couchcryptid/bikeshare-etl/internal/domain"
	"github.com/couchcryptid/bikeshare-etl/internal/observability"
	"github.com/couchcryptid/bikeshare-etl/internal/tabular"
)

// Provisioner makes the database instance reachable and returns its endpoint.
type Provisioner interface {
	Ensure(ctx context.Context) (domain.Endpoint, error)
}

// Database is the admin connection used for every stage after provisioning.
type Database interface {
	CreateTables(ctx context.Context) error
	IsPopulated(ctx context.Context, table string) (bool, error)
	Load(ctx context.Context, table string, columns []string, rows tabular.RowReader) (int64, error)
	CreateReadOnlyRole(ctx context.Context, role domain.ReadOnlyRole) error
	Close() error
}

// Connector opens the admin connection to an endpoint.
type Connector func(ctx context.Context, ep domain.Endpoint) (Database, error)

// ArchiveStreamer downloads and extracts the trip archives.
type ArchiveStreamer interface {
	Stream(ctx context.Context) (archive.Result, error)
}

// WeatherFetcher returns the daily and hourly weather series.
type WeatherFetcher interface {
	Fetch(ctx context.Context) (daily, hourly tabular.Table, err error)
}

// Notifier receives every stage transition.
type Notifier interface {
	Notify(ctx context.Context, event domain.StageEvent) error
}

// Deps are the collaborators a run drives. A nil Provisioner means the
// database is already reachable at Options.Endpoint; a nil Notifier disables
// stage events.
type Deps struct {
	Provisioner Provisioner
	Connect     Connector
	Streamer    ArchiveStreamer
	Transformer *TripTransformer
	Weather     WeatherFetcher
	Notifier    Notifier
}

// Options hold run settings.
type Options struct {
	Endpoint domain.Endpoint
	CSVDir   string
	Role     domain.ReadOnlyRole
}

// Pipeline drives a run through Provisioned, SchemaReady, TripsLoaded,
// WeatherLoaded and AccessGranted, halting at the first failure.
type Pipeline struct {
	deps    Deps
	opts    Options
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer

	endpoint domain.Endpoint
	db       Database

	mu     sync.RWMutex
	status domain.RunStatus
}

// New creates a Pipeline with the given collaborators and observability.
func New(deps Deps, opts Options, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		deps:    deps,
		opts:    opts,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer("github.com/couchcryptid/bikeshare-etl/internal/pipeline"),
		status:  domain.RunStatus{Stage: domain.StagePending.String()},
	}
}

type stageFunc func(ctx context.Context) (outcome, detail string, err error)

// Run executes every stage in order. Rerunning after a failure resumes
// naturally: completed stages are detected and skipped.
func (p *Pipeline) Run(ctx context.Context) error {
	runID := uuid.NewString()
	p.mu.Lock()
	p.status = domain.RunStatus{RunID: runID, Stage: domain.StagePending.String(), Running: true}
	p.mu.Unlock()

	p.logger.Info("pipeline started", "run_id", runID)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	defer p.closeDB()

	stages := []struct {
		stage domain.Stage
		run   stageFunc
	}{
		{domain.StageProvisioned, p.provision},
		{domain.StageSchemaReady, p.prepareSchema},
		{domain.StageTripsLoaded, p.loadTrips},
		{domain.StageWeatherLoaded, p.loadWeather},
		{domain.StageAccessGranted, p.grantAccess},
	}

	for _, s := range stages {
		if err := p.runStage(ctx, runID, s.stage, s.run); err != nil {
			p.finish(err)
			return err
		}
	}

	p.finish(nil)
	p.logger.Info("pipeline finished", "run_id", runID)
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, runID string, stage domain.Stage, run stageFunc) error {
	ctx, span := p.tracer.Start(ctx, "stage "+stage.String(),
		trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	start := p.clock.Now()
	outcome, detail, err := run(ctx)
	elapsed := p.clock.Since(start)

	if err != nil {
		outcome = domain.OutcomeFailed
		detail = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("outcome", outcome))

	p.metrics.StageDuration.WithLabelValues(stage.String()).Observe(elapsed.Seconds())
	p.metrics.StageTransitions.WithLabelValues(stage.String(), outcome).Inc()

	event := domain.StageEvent{
		RunID:    runID,
		Stage:    stage.String(),
		Outcome:  outcome,
		Detail:   detail,
		Duration: elapsed,
		At:       p.clock.Now(),
	}
	p.record(event, err == nil)
	p.notify(ctx, event)

	if err != nil {
		p.logger.Error("stage failed", "stage", stage.String(), "error", err, "elapsed", elapsed)
		return fmt.Errorf("%s: %w", stage, err)
	}
	p.logger.Info("stage "+outcome, "stage", stage.String(), "detail", detail, "elapsed", elapsed)
	return nil
}

func (p *Pipeline) provision(ctx context.Context) (string, string, error) {
	if p.deps.Provisioner == nil {
		p.endpoint = p.opts.Endpoint
		return domain.OutcomeSkipped, "using configured endpoint " + p.endpoint.Host, nil
	}
	ep, err := p.deps.Provisioner.Ensure(ctx)
	if err != nil {
		return "", "", err
	}
	p.endpoint = ep
	return domain.OutcomeCompleted, "endpoint " + ep.Host, nil
}

func (p *Pipeline) prepareSchema(ctx context.Context) (string, string, error) {
	db, err := p.deps.Connect(ctx, p.endpoint)
	if err != nil {
		return "", "", err
	}
	p.db = db
	if err := db.CreateTables(ctx); err != nil {
		return "", "", err
	}
	return domain.OutcomeCompleted, "", nil
}

func (p *Pipeline) loadTrips(ctx context.Context) (string, string, error) {
	populated, err := p.db.IsPopulated(ctx, domain.TripsTable)
	if err != nil {
		return "", "", err
	}
	if populated {
		return domain.OutcomeSkipped, domain.TripsTable + " already populated", nil
	}

	res, err := p.deps.Streamer.Stream(ctx)
	if err != nil {
		return "", "", err
	}

	files, err := tripFiles(p.opts.CSVDir)
	if err != nil {
		return "", "", err
	}

	var total int64
	for _, path := range files {
		n, err := p.loadTripFile(ctx, path)
		if err != nil {
			return "", "", err
		}
		total += n
	}

	return domain.OutcomeCompleted,
		fmt.Sprintf("%d archives, %d files, %d rows", res.Archives, len(files), total), nil
}

func (p *Pipeline) loadTripFile(ctx context.Context, path string) (int64, error) {
	rows, f, err := p.deps.Transformer.Transform(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return p.db.Load(ctx, domain.TripsTable, domain.CanonicalColumns, rows)
}

func (p *Pipeline) loadWeather(ctx context.Context) (string, string, error) {
	dailyDone, err := p.db.IsPopulated(ctx, domain.DailyWeatherTable)
	if err != nil {
		return "", "", err
	}
	hourlyDone, err := p.db.IsPopulated(ctx, domain.HourlyWeatherTable)
	if err != nil {
		return "", "", err
	}
	if dailyDone && hourlyDone {
		return domain.OutcomeSkipped, "weather tables already populated", nil
	}

	daily, hourly, err := p.deps.Weather.Fetch(ctx)
	if err != nil {
		return "", "", err
	}

	targets := []struct {
		done    bool
		table   string
		columns []string
		data    tabular.Table
	}{
		{dailyDone, domain.DailyWeatherTable, domain.DailyColumns, daily},
		{hourlyDone, domain.HourlyWeatherTable, domain.HourlyColumns, hourly},
	}

	var loaded []string
	for _, t := range targets {
		if t.done {
			p.logger.Info("table already populated", "table", t.table)
			continue
		}
		if _, err := p.db.Load(ctx, t.table, t.columns, t.data.Reader()); err != nil {
			return "", "", err
		}
		loaded = append(loaded, t.table)
	}
	return domain.OutcomeCompleted, fmt.Sprintf("loaded %v", loaded), nil
}

func (p *Pipeline) grantAccess(ctx context.Context) (string, string, error) {
	role := p.opts.Role
	if role.Database == "" {
		role.Database = p.endpoint.Database
	}
	if err := p.db.CreateReadOnlyRole(ctx, role); err != nil {
		return "", "", err
	}
	return domain.OutcomeCompleted, "role " + role.Name, nil
}

func (p *Pipeline) notify(ctx context.Context, event domain.StageEvent) {
	if p.deps.Notifier == nil {
		return
	}
	if err := p.deps.Notifier.Notify(ctx, event); err != nil {
		p.logger.Warn("stage event not published", "stage", event.Stage, "error", err)
	}
}

func (p *Pipeline) record(event domain.StageEvent, advanced bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.History = append(p.status.History, event)
	if advanced {
		p.status.Stage = event.Stage
	}
}

func (p *Pipeline) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Running = false
	if err != nil {
		p.status.Error = err.Error()
	}
}

func (p *Pipeline) closeDB() {
	if p.db == nil {
		return
	}
	if err := p.db.Close(); err != nil {
		p.logger.Warn("database close failed", "error", err)
	}
	p.db = nil
}

// Status returns a snapshot of the current run.
func (p *Pipeline) Status() domain.RunStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.status
	s.History = append([]domain.StageEvent(nil), p.status.History...)
	return s
}

// CheckReadiness returns nil once the run has reached SchemaReady without
// failing, or an error describing why it is not ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	s := p.Status()
	if s.Error != "" {
		return errors.New("pipeline failed: " + s.Error)
	}
	switch s.Stage {
	case domain.StagePending.String(), domain.StageProvisioned.String():
		return fmt.Errorf("pipeline has not reached %s (at %s)", domain.StageSchemaReady, s.Stage)
	}
	return nil
}
