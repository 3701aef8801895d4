package models

import "time"

// MultiJobSummary aggregates the outcomes of several job files run together.
type MultiJobSummary struct {
	Timestamp time.Time      `json:"timestamp"`
	Jobs      []JobSummary   `json:"jobs"`
	Overall   OverallSummary `json:"overall"`
}

// JobSummary contains the digest of a single job run.
type JobSummary struct {
	JobName    string  `json:"job"`
	RunID      string  `json:"run_id"`
	Status     Status  `json:"status"`
	Rows       int     `json:"rows"`
	Failed     int     `json:"failed"`
	MinRatio   float64 `json:"min_ratio"`
	OutputFile string  `json:"output_file"`
}

// OverallSummary contains cross-job totals.
type OverallSummary struct {
	TotalJobs  int     `json:"total_jobs"`
	FailedJobs int     `json:"failed_jobs"`
	TotalRows  int     `json:"total_rows"`
	FailedRows int     `json:"failed_rows"`
	MinRatio   float64 `json:"min_ratio"`
}

// Summarize builds a MultiJobSummary from run outcomes.
func Summarize(outcomes []*RunOutcome, at time.Time) MultiJobSummary {
	s := MultiJobSummary{Timestamp: at, Jobs: make([]JobSummary, 0, len(outcomes))}
	for _, o := range outcomes {
		s.Jobs = append(s.Jobs, JobSummary{
			JobName:    o.JobName,
			RunID:      o.RunID,
			Status:     o.Digest.Status,
			Rows:       o.Digest.TotalRows,
			Failed:     o.Digest.Failed,
			MinRatio:   o.Digest.MinRatio,
			OutputFile: o.Setup.Output,
		})
		s.Overall.TotalJobs++
		if o.Digest.Status != StatusPassed {
			s.Overall.FailedJobs++
		}
		s.Overall.TotalRows += o.Digest.TotalRows
		s.Overall.FailedRows += o.Digest.Failed
		if m := o.Digest.MinRatio; m != 0 && (s.Overall.MinRatio == 0 || m < s.Overall.MinRatio) {
			s.Overall.MinRatio = m
		}
	}
	return s
}
