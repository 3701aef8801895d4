package main

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/impedance-lab/ubcal/internal/cache"
	"github.com/impedance-lab/ubcal/internal/models"
	"github.com/impedance-lab/ubcal/internal/orchestration"
	"github.com/impedance-lab/ubcal/internal/projectconfig"
	"github.com/impedance-lab/ubcal/internal/reporting"
	"github.com/impedance-lab/ubcal/internal/spinner"
	"github.com/impedance-lab/ubcal/internal/validation"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type runOptions struct {
	workers    int
	budget     int
	strict     bool
	verbose    bool
	interpret  bool
	resultsDir string
	junitPath  string
	htmlPath   string
	cache      bool
	noCache    bool
	cacheDir   string
}

func newRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [job.yaml...]",
		Short: "Run calibration jobs",
		Long: `Run one or more calibration jobs.

Each job reads a block of bridge readings, evaluates them with the bridge
calibration, subtracts the zero references and writes the results with
their expanded uncertainties and CMC ratios to the output workbook.

Without arguments every *.yaml file in the jobs directory of .ubcal.yaml
is run. Jobs run concurrently; each one has its own uncertainty sources.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommandE(cmd, args, &opts)
		},
	}

	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Number of jobs run at once (default: defaults.workers)")
	cmd.Flags().IntVar(&opts.budget, "budget", 0, "Log the N largest uncertainty components of every result with --debug (default: defaults.budget)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit with code 1 when any result exceeds its CMC")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output with every job step")
	cmd.Flags().BoolVar(&opts.interpret, "interpret", false, "Print a plain-language report for every job")
	cmd.Flags().StringVarP(&opts.resultsDir, "output-dir", "o", "", "Directory for JSON run records (default: paths.results)")
	cmd.Flags().StringVar(&opts.junitPath, "junit", "", "Write a JUnit XML report to this file")
	cmd.Flags().StringVar(&opts.htmlPath, "html", "", "Write an HTML report to this file")
	cmd.Flags().BoolVar(&opts.cache, "cache", false, "Enable result caching (default: cache.enabled)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Disable result caching")
	cmd.Flags().StringVar(&opts.cacheDir, "cache-dir", "", "Cache directory (default: cache.dir)")

	return cmd
}

func runCommandE(cmd *cobra.Command, args []string, opts *runOptions) error {
	cfg, err := projectconfig.Load(".")
	if err != nil {
		return err
	}

	paths, err := jobPaths(cfg, args)
	if err != nil {
		return err
	}
	jobs, err := loadJobs(paths)
	if err != nil {
		return err
	}

	runnerOpts := []orchestration.RunnerOption{
		orchestration.WithBudget(cmp.Or(opts.budget, cfg.Defaults.Budget)),
	}
	useCache := (opts.cache || (cfg.Cache.Enabled != nil && *cfg.Cache.Enabled)) && !opts.noCache
	if useCache {
		dir, err := filepath.Abs(cmp.Or(opts.cacheDir, cfg.Path(cfg.Cache.Dir)))
		if err != nil {
			return fmt.Errorf("resolving cache directory: %w", err)
		}
		runnerOpts = append(runnerOpts, orchestration.WithCache(cache.New(dir)))
	}

	out := cmd.OutOrStdout()
	runner := orchestration.NewJobRunner(runnerSettings(cfg), runnerOpts...)

	workers := cmp.Or(opts.workers, cfg.Defaults.Workers)
	fmt.Fprintf(out, "Running %d job(s), %d at a time\n\n", len(jobs), workers)

	// On a terminal a spinner replaces the per-job lines.
	stop := func() {}
	if errOut := cmd.ErrOrStderr(); !opts.verbose && isTerminal(errOut) {
		var finished atomic.Int32
		runner.OnProgress(func(e orchestration.ProgressEvent) {
			switch e.EventType {
			case orchestration.EventJobComplete, orchestration.EventJobCached, orchestration.EventJobFailed:
				finished.Add(1)
			}
		})
		stop = spinner.Start(errOut, func() string {
			return fmt.Sprintf("Running jobs: %d/%d done", finished.Load(), len(jobs))
		})
	} else {
		runner.OnProgress(progressListener(out, opts.verbose))
	}

	outcomes, runErr := runner.RunAll(cmd.Context(), jobs, workers)
	stop()
	if errors.Is(runErr, orchestration.ErrDuplicateOutput) {
		return runErr
	}

	records := make([]*models.RunOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		records = append(records, o.Record)
	}

	fmt.Fprintln(out)
	printSummary(out, records)
	if opts.interpret {
		for _, rec := range records {
			fmt.Fprintln(out)
			fmt.Fprint(out, reporting.FormatSummaryReport(rec))
		}
	}

	resultsDir := cmp.Or(opts.resultsDir, cfg.Path(cfg.Paths.Results))
	if err := saveOutcomes(resultsDir, records); err != nil {
		return fmt.Errorf("saving results: %w", err)
	}
	fmt.Fprintf(out, "\nResults saved to: %s\n", resultsDir)

	if opts.junitPath != "" {
		if err := reporting.WriteJUnitXML(records, opts.junitPath); err != nil {
			return fmt.Errorf("writing JUnit report: %w", err)
		}
	}
	if opts.htmlPath != "" {
		html, err := reporting.RenderHTML(reporting.FormatMarkdown(records))
		if err != nil {
			return fmt.Errorf("rendering HTML report: %w", err)
		}
		if err := os.WriteFile(opts.htmlPath, html, 0644); err != nil {
			return fmt.Errorf("writing HTML report: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	if opts.strict || (cfg.Defaults.Strict != nil && *cfg.Defaults.Strict) {
		return checkCompliance(records)
	}
	return nil
}

// checkCompliance returns a *ComplianceError when any row exceeds its CMC.
func checkCompliance(records []*models.RunOutcome) error {
	summary := models.Summarize(records, time.Now())
	if summary.Overall.FailedRows == 0 {
		return nil
	}
	return &ComplianceError{
		Message: fmt.Sprintf("%d result(s) in %d job(s) exceed the declared CMC",
			summary.Overall.FailedRows, summary.Overall.FailedJobs),
	}
}

// jobPaths returns the job files named on the command line, or every YAML
// file in the configured jobs directory.
func jobPaths(cfg *projectconfig.ProjectConfig, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	dir := cfg.Path(cfg.Paths.Jobs)
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no job files in %s", dir)
	}
	return paths, nil
}

// loadJobs checks every file against the job schema before decoding it.
func loadJobs(paths []string) ([]*models.Job, error) {
	jobs := make([]*models.Job, 0, len(paths))
	for _, p := range paths {
		msgs, err := validation.ValidateJobFile(p)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return nil, fmt.Errorf("job file %s does not match the schema:\n  %s", p, strings.Join(msgs, "\n  "))
		}
		job, err := models.LoadJob(p)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// progressListener prints job progress. Jobs report from several goroutines.
func progressListener(w io.Writer, verbose bool) orchestration.ProgressListener {
	var mu sync.Mutex
	return func(event orchestration.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()

		duration := time.Duration(event.DurationMs) * time.Millisecond
		switch event.EventType {
		case orchestration.EventJobStart:
			if verbose {
				fmt.Fprintf(w, "[%d/%d] Running job: %s\n", event.JobNum, event.TotalJobs, event.JobName)
			}
		case orchestration.EventStep:
			if verbose {
				fmt.Fprintf(w, "  %s: %s %v\n", event.JobName, event.Step, event.Details)
			}
		case orchestration.EventJobCached:
			fmt.Fprintf(w, "✓ [%d/%d] %s [cached]\n", event.JobNum, event.TotalJobs, event.JobName)
		case orchestration.EventJobComplete:
			status := "✓"
			if event.Status != models.StatusPassed {
				status = "✗"
			}
			fmt.Fprintf(w, "%s [%d/%d] %s (%v)\n", status, event.JobNum, event.TotalJobs, event.JobName, duration)
		case orchestration.EventJobFailed:
			fmt.Fprintf(w, "✗ [%d/%d] %s: %v\n", event.JobNum, event.TotalJobs, event.JobName, event.Details["error"])
		}
	}
}

func printSummary(w io.Writer, records []*models.RunOutcome) {
	fmt.Fprintln(w, "="+strings.Repeat("=", 50))
	fmt.Fprintln(w, " CALIBRATION RESULTS")
	fmt.Fprintln(w, "="+strings.Repeat("=", 50))
	fmt.Fprintln(w)

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		d := rec.Digest
		minRatio := "-"
		if d.MinRatio > 0 {
			minRatio = fmt.Sprintf("%.3f", d.MinRatio)
		}
		rows = append(rows, []string{
			rec.JobName,
			string(d.Status),
			fmt.Sprintf("%d", d.TotalRows),
			fmt.Sprintf("%d", d.Passed),
			fmt.Sprintf("%d", d.Failed),
			fmt.Sprintf("%d", d.NotRated),
			minRatio,
		})
	}
	writeTable(w, []string{"Job", "Status", "Rows", "Passed", "Failed", "Not rated", "Min ratio"}, rows)
}

// saveOutcomes writes one JSON record per job and a summary.json.
func saveOutcomes(dir string, records []*models.RunOutcome) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, rec := range records {
		if err := saveJSON(filepath.Join(dir, sanitizeJobName(rec.JobName)+".json"), rec); err != nil {
			return err
		}
	}
	return saveJSON(filepath.Join(dir, "summary.json"), models.Summarize(records, time.Now()))
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// sanitizeJobName replaces characters that are invalid in filenames.
func sanitizeJobName(name string) string {
	r := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")
	return r.Replace(name)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
