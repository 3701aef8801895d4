package orchestration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/cache"
	"github.com/impedance-lab/ubcal/internal/dataset"
	"github.com/impedance-lab/ubcal/internal/gum"
	"github.com/impedance-lab/ubcal/internal/models"
	"github.com/impedance-lab/ubcal/internal/utils"
	"github.com/impedance-lab/ubcal/internal/uut"
	"golang.org/x/sync/errgroup"
)

// ErrDuplicateOutput is returned by RunAll when two jobs write the same workbook.
var ErrDuplicateOutput = errors.New("output workbook shared by several jobs")

// Settings are the project level defaults a job may override.
type Settings struct {
	Coverage   float64               `json:"coverage"`
	Ambient    models.UncertainValue `json:"ambient"`
	Resolution bool                  `json:"resolution"`
	ZeroLabels []string              `json:"zero_labels"`
}

// DefaultSettings matches the project defaults.
func DefaultSettings() Settings {
	return Settings{
		Coverage:   gum.DefaultCoverageProbability,
		Ambient:    models.UncertainValue{Value: 20, Uncertainty: 0.5, DOF: 10, Label: "temperature"},
		Resolution: true,
		ZeroLabels: uut.DefaultZeroLabels,
	}
}

// JobRunner runs calibration jobs: it evaluates the measurement block of a
// job on the bridge model and writes the report.
type JobRunner struct {
	settings Settings
	open     func(path string) dataset.BlockReader
	create   func(path string) dataset.BlockWriter
	budget   int
	cache    *cache.Cache

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

// EventType constants
const (
	EventJobStart    EventType = "job_start"
	EventJobComplete EventType = "job_complete"
	EventJobCached   EventType = "job_cached"
	EventJobFailed   EventType = "job_failed"
	EventStep        EventType = "step"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	EventType  EventType
	JobName    string
	JobNum     int
	TotalJobs  int
	Step       string
	Status     models.Status
	DurationMs int64
	Details    map[string]any
}

// RunnerOption configures a JobRunner.
type RunnerOption func(*JobRunner)

// WithReader replaces the workbook reader, for tests.
func WithReader(open func(path string) dataset.BlockReader) RunnerOption {
	return func(r *JobRunner) {
		r.open = open
	}
}

// WithWriter replaces the workbook writer, for tests.
func WithWriter(create func(path string) dataset.BlockWriter) RunnerOption {
	return func(r *JobRunner) {
		r.create = create
	}
}

// WithBudget logs the largest limit components of every result at debug level.
func WithBudget(limit int) RunnerOption {
	return func(r *JobRunner) {
		r.budget = limit
	}
}

// WithCache skips jobs whose inputs match a cached run.
func WithCache(c *cache.Cache) RunnerOption {
	return func(r *JobRunner) {
		r.cache = c
	}
}

// NewJobRunner creates a new job runner
func NewJobRunner(settings Settings, opts ...RunnerOption) *JobRunner {
	r := &JobRunner{
		settings: settings,
		open: func(path string) dataset.BlockReader {
			return dataset.NewWorkbook(path)
		},
		create: func(path string) dataset.BlockWriter {
			return dataset.NewWorkbook(path)
		},
		listeners: []ProgressListener{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// OnProgress registers a progress listener
func (r *JobRunner) OnProgress(listener ProgressListener) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *JobRunner) notifyProgress(event ProgressEvent) {
	r.progressMu.Lock()
	listeners := make([]ProgressListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Outcome is the result of one job.
type Outcome struct {
	Record *models.RunOutcome
	// Results and Corrected are nil when the record came from the cache.
	Results   []uut.Result
	Corrected []uut.Corrected
	TanDelta  bool
	Cached    bool
}

// Run evaluates one job and writes its report. Every run mints its leaves in
// a fresh gum.Context, so concurrent runs never share uncertainty sources.
func (r *JobRunner) Run(ctx context.Context, job *models.Job) (*Outcome, error) {
	return r.run(ctx, job, 1, 1)
}

func (r *JobRunner) run(ctx context.Context, job *models.Job, num, total int) (*Outcome, error) {
	started := time.Now()
	r.notifyProgress(ProgressEvent{EventType: EventJobStart, JobName: job.Name, JobNum: num, TotalJobs: total})

	out, err := r.runCached(ctx, job)
	if err != nil {
		r.notifyProgress(ProgressEvent{
			EventType:  EventJobFailed,
			JobName:    job.Name,
			JobNum:     num,
			TotalJobs:  total,
			Status:     models.StatusError,
			DurationMs: time.Since(started).Milliseconds(),
			Details:    map[string]any{"error": err.Error()},
		})
		return nil, fmt.Errorf("job %s: %w", job.Name, err)
	}

	event := EventJobComplete
	if out.Cached {
		event = EventJobCached
	}
	r.notifyProgress(ProgressEvent{
		EventType:  event,
		JobName:    job.Name,
		JobNum:     num,
		TotalJobs:  total,
		Status:     out.Record.Digest.Status,
		DurationMs: time.Since(started).Milliseconds(),
		Details: map[string]any{
			"rows":      out.Record.Digest.TotalRows,
			"failed":    out.Record.Digest.Failed,
			"min_ratio": out.Record.Digest.MinRatio,
		},
	})
	return out, nil
}

func (r *JobRunner) runCached(ctx context.Context, job *models.Job) (*Outcome, error) {
	if r.cache == nil {
		return r.evaluate(ctx, job)
	}

	key, err := cache.CacheKey(job, r.effective(job))
	if err != nil {
		slog.Warn("cache key failed, running job", "job", job.Name, "error", err)
		return r.evaluate(ctx, job)
	}
	if rec, ok := r.cache.Get(key); ok {
		if _, err := os.Stat(job.Path(job.Output.Workbook)); err == nil {
			slog.Debug("Using cached run", "job", job.Name, "run_id", rec.RunID)
			return &Outcome{Record: rec, Cached: true}, nil
		}
	}

	out, err := r.evaluate(ctx, job)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Put(key, out.Record); err != nil {
		slog.Warn("caching run failed", "job", job.Name, "error", err)
	}
	return out, nil
}

// effective applies the job overrides to the runner settings.
func (r *JobRunner) effective(job *models.Job) Settings {
	s := r.settings
	if job.Ambient != nil {
		s.Ambient = *job.Ambient
	}
	if job.Resolution != nil {
		s.Resolution = *job.Resolution
	}
	s.Coverage = cmp.Or(s.Coverage, gum.DefaultCoverageProbability)
	s.Ambient.Label = cmp.Or(s.Ambient.Label, "temperature")
	return s
}

func (r *JobRunner) step(job *models.Job, name string, details map[string]any) {
	slog.Debug("Job step", "job", job.Name, "step", name)
	r.notifyProgress(ProgressEvent{EventType: EventStep, JobName: job.Name, Step: name, Details: details})
}

func (r *JobRunner) evaluate(ctx context.Context, job *models.Job) (*Outcome, error) {
	started := time.Now()
	s := r.effective(job)

	gctx := gum.NewContext()
	temp, err := gctx.Leaf(s.Ambient.Value, s.Ambient.Uncertainty, s.Ambient.DOF, s.Ambient.Label)
	if err != nil {
		return nil, fmt.Errorf("ambient temperature: %w", err)
	}

	calPath := job.Path(job.Calibration)
	model, err := bridge.Open(gctx, calPath, temp)
	if err != nil {
		return nil, err
	}
	r.step(job, "calibration", map[string]any{"path": calPath})

	items, err := r.readItems(job)
	if err != nil {
		return nil, err
	}
	r.step(job, "input", map[string]any{"items": len(items)})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := uut.New(model,
		uut.WithAmbient(temp),
		uut.WithResolution(s.Resolution),
		uut.WithZeroLabels(s.ZeroLabels...),
	)
	values, err := p.CalculateValues(items)
	if err != nil {
		return nil, err
	}
	corrected, tanDelta, err := subtractZeros(gctx, job, values)
	if err != nil {
		return nil, err
	}
	r.step(job, "zeros", map[string]any{"mode": string(job.Zero.Mode)})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmcs, err := p.CMCCheck(items)
	if err != nil {
		return nil, err
	}
	results, err := uut.Tabulate(items, corrected, cmcs, s.Coverage)
	if err != nil {
		return nil, err
	}
	if r.budget > 0 {
		for i, c := range corrected {
			utils.BudgetToSlog(items[i].Key()+" reactive", c.Reactive, r.budget)
			utils.BudgetToSlog(items[i].Key()+" real", c.Real, r.budget)
		}
	}

	if err := r.writeReport(job, results, tanDelta); err != nil {
		return nil, err
	}
	r.step(job, "output", map[string]any{"rows": len(results)})

	rec := &models.RunOutcome{
		RunID:     uuid.NewString(),
		JobName:   job.Name,
		Timestamp: started,
		Setup: models.OutcomeSetup{
			Calibration: calPath,
			Input:       fmt.Sprintf("%s %s%v", job.Path(job.Input.Workbook), job.Input.Sheet, job.Input.Block),
			Output:      job.Path(job.Output.Workbook),
			ZeroMode:    job.Zero.Mode,
			Coverage:    s.Coverage,
			Resolution:  s.Resolution,
			Ambient:     s.Ambient,
		},
		Rows: make([]models.RowOutcome, 0, len(results)),
	}
	for _, res := range results {
		rec.Rows = append(rec.Rows, rowOutcome(res))
	}
	rec.Digest.DurationMs = time.Since(started).Milliseconds()
	rec.Summarize()

	slog.Info("Job complete",
		"job", job.Name,
		"run_id", rec.RunID,
		"rows", rec.Digest.TotalRows,
		"failed", rec.Digest.Failed,
		"min_ratio", rec.Digest.MinRatio)

	return &Outcome{Record: rec, Results: results, Corrected: corrected, TanDelta: tanDelta}, nil
}

// readItems reads the input block; item rows are numbered as in the sheet.
func (r *JobRunner) readItems(job *models.Job) ([]models.Item, error) {
	block, err := job.Block()
	if err != nil {
		return nil, err
	}
	path := job.Path(job.Input.Workbook)
	rows, err := r.open(path).ReadBlock(job.Input.Sheet, block)
	if err != nil {
		return nil, fmt.Errorf("reading %s %v: %w", filepath.Base(path), block, err)
	}
	items, err := models.DecodeItems(rows)
	if err != nil {
		return nil, fmt.Errorf("reading %s %v: %w", filepath.Base(path), block, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("reading %s %v: no items", filepath.Base(path), block)
	}
	for i := range items {
		items[i].Row += block.FirstRow - 1
	}
	return items, nil
}

func subtractZeros(gctx *gum.Context, job *models.Job, values []uut.Value) ([]uut.Corrected, bool, error) {
	switch job.Zero.Mode {
	case models.ZeroCoax:
		c, err := uut.SubtractCoaxZeros(values, uut.CoaxOptions{Label: job.Zero.Label, TanDelta: job.Zero.TanDelta})
		return c, job.Zero.TanDelta, err
	case models.ZeroTwist:
		c, err := uut.SubtractTwistZeros(values)
		return c, false, err
	case models.ZeroBox:
		return subtractBoxZeros(gctx, job, values)
	default:
		out := make([]uut.Corrected, len(values))
		for i, v := range values {
			out[i] = uut.Corrected{Real: v.Real, Reactive: v.Reactive}
		}
		return out, false, nil
	}
}

func subtractBoxZeros(gctx *gum.Context, job *models.Job, values []uut.Value) ([]uut.Corrected, bool, error) {
	box := job.Zero.Box
	if box == nil {
		box = &models.BoxSpec{}
	}
	vernier, err := leaf(gctx, box.Vernier, "vernier")
	if err != nil {
		return nil, false, err
	}
	series, err := leaf(gctx, box.SeriesResistance, "series_resistance")
	if err != nil {
		return nil, false, err
	}
	corrected, err := uut.SubtractBoxZeros(values, uut.BoxOptions{
		Label:            job.Zero.Label,
		Exclude:          box.Exclude,
		VernierItems:     box.VernierItems,
		Vernier:          vernier,
		SeriesResistance: series,
	})
	if err != nil {
		return nil, false, err
	}

	if box.MainZero != nil {
		def, err := leaf(gctx, box.MainZero, "zero_definition")
		if err != nil {
			return nil, false, err
		}
		mz, idx, err := uut.MainZero(values, uut.MainZeroOptions{BoxLabel: job.Zero.Label, Definition: def})
		if err != nil {
			return nil, false, err
		}
		corrected[idx] = mz
	}
	return corrected, true, nil
}

// leaf turns an optional job quantity into a leaf; absent means exactly zero.
func leaf(gctx *gum.Context, v *models.UncertainValue, label string) (gum.Quantity, error) {
	if v == nil {
		return gum.Constant(0), nil
	}
	return gctx.Leaf(v.Value, v.Uncertainty, v.DOF, cmp.Or(v.Label, label))
}

// writeReport writes a heading row and one row per result. Input rows are
// read from a rectangular block, so they all have the same width.
func (r *JobRunner) writeReport(job *models.Job, results []uut.Result, tanDelta bool) error {
	width := 0
	for _, res := range results {
		width = max(width, len(res.Item.Cells))
	}
	header := make([]any, 0, width+11)
	for i := range width {
		name := ""
		if i < len(models.ItemColumns) {
			name = models.ItemColumns[i]
		}
		header = append(header, name)
	}
	for _, c := range uut.ResultColumns(tanDelta) {
		header = append(header, c)
	}

	rows := make([][]any, 0, len(results)+1)
	rows = append(rows, header)
	for _, res := range results {
		rows = append(rows, res.Cells(tanDelta))
	}

	path := job.Path(job.Output.Workbook)
	if err := r.create(path).WriteBlock(job.Output.Sheet, job.Output.FirstRow(), rows); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func rowOutcome(res uut.Result) models.RowOutcome {
	row := models.RowOutcome{
		Row:              res.Item.Row,
		Label:            res.Item.Label,
		NominalFrequency: res.Item.NominalFrequency,
		Range:            res.Item.Range,
		Reactive:         models.Expanded{Value: res.Reactive, U: res.ReactiveU, K: res.ReactiveK},
		Real:             models.Expanded{Value: res.Real, U: res.RealU, K: res.RealK},
		CMCReactive:      res.CMC.Reactive(),
		CMCReal:          res.CMC.Real(),
		RatioReactive:    res.RatioReactive,
		RatioReal:        res.RatioReal,
		Status:           models.RowStatus(res.RatioReactive, res.RatioReal),
	}
	if res.HasTanDelta {
		row.TanDelta = &models.Expanded{Value: res.TanDelta, U: res.TanDeltaU, K: res.TanDeltaK}
	}
	return row
}

// RunAll runs jobs with at most limit running at once (limit <= 0 means no
// limit). Every job runs even when another fails; the returned outcomes
// line up with jobs and failed jobs carry their error in the record.
func (r *JobRunner) RunAll(ctx context.Context, jobs []*models.Job, limit int) ([]*Outcome, error) {
	seen := make(map[string]string, len(jobs))
	for _, job := range jobs {
		out := filepath.Clean(job.Path(job.Output.Workbook))
		if prev, ok := seen[out]; ok {
			return nil, fmt.Errorf("%w: %s (jobs %s and %s)", ErrDuplicateOutput, out, prev, job.Name)
		}
		seen[out] = job.Name
	}

	outcomes := make([]*Outcome, len(jobs))
	errs := make([]error, len(jobs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, job := range jobs {
		g.Go(func() error {
			out, err := r.run(ctx, job, i+1, len(jobs))
			if err != nil {
				errs[i] = err
				rec := &models.RunOutcome{
					RunID:     uuid.NewString(),
					JobName:   job.Name,
					Timestamp: time.Now(),
					Setup:     models.OutcomeSetup{Output: job.Path(job.Output.Workbook), ZeroMode: job.Zero.Mode},
					Error:     err.Error(),
				}
				rec.Summarize()
				out = &Outcome{Record: rec}
			}
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, errors.Join(errs...)
}
