package models

import "time"

// Status is the CMC compliance of a reported row or run.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	StatusError  Status = "error"
	// StatusNA marks a row whose parts carry no uncertainty, such as a zero
	// reference subtracted from itself.
	StatusNA Status = "n/a"
)

// RunOutcome is the record of one job run, written next to the output workbook.
type RunOutcome struct {
	RunID     string        `json:"run_id"`
	JobName   string        `json:"job"`
	Timestamp time.Time     `json:"timestamp"`
	Setup     OutcomeSetup  `json:"config"`
	Digest    OutcomeDigest `json:"summary"`
	Rows      []RowOutcome  `json:"rows"`
	Error     string        `json:"error,omitempty"`
}

type OutcomeSetup struct {
	Calibration string         `json:"calibration"`
	Input       string         `json:"input"`
	Output      string         `json:"output"`
	ZeroMode    ZeroMode       `json:"zero_mode"`
	Coverage    float64        `json:"coverage"`
	Resolution  bool           `json:"resolution"`
	Ambient     UncertainValue `json:"ambient"`
}

type OutcomeDigest struct {
	TotalRows  int     `json:"total_rows"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	NotRated   int     `json:"not_rated"`
	MinRatio   float64 `json:"min_ratio"`
	DurationMs int64   `json:"duration_ms"`
	Status     Status  `json:"status"`
}

// Expanded is a value with its expanded uncertainty U and coverage factor K.
type Expanded struct {
	Value float64 `json:"value"`
	U     float64 `json:"U"`
	K     float64 `json:"k"`
}

// RowOutcome is one reported row.
type RowOutcome struct {
	Row              int       `json:"row"`
	Label            string    `json:"label"`
	NominalFrequency string    `json:"nominal_frequency"`
	Range            string    `json:"range"`
	Reactive         Expanded  `json:"reactive"`
	Real             Expanded  `json:"real"`
	TanDelta         *Expanded `json:"tan_delta,omitempty"`
	CMCReactive      float64   `json:"cmc_reactive"`
	CMCReal          float64   `json:"cmc_real"`
	RatioReactive    float64   `json:"cmc_ratio_reactive"`
	RatioReal        float64   `json:"cmc_ratio_real"`
	Status           Status    `json:"status"`
}

// RowStatus rates a row from its CMC ratios. A zero ratio is not rated; the
// row fails when any rated ratio is below 1.
func RowStatus(ratios ...float64) Status {
	rated := false
	for _, r := range ratios {
		if r == 0 {
			continue
		}
		rated = true
		if r < 1 {
			return StatusFailed
		}
	}
	if !rated {
		return StatusNA
	}
	return StatusPassed
}

// Summarize fills the digest from the rows.
func (o *RunOutcome) Summarize() {
	d := OutcomeDigest{TotalRows: len(o.Rows), DurationMs: o.Digest.DurationMs}
	for _, r := range o.Rows {
		switch r.Status {
		case StatusPassed:
			d.Passed++
		case StatusFailed:
			d.Failed++
		default:
			d.NotRated++
		}
		for _, ratio := range []float64{r.RatioReactive, r.RatioReal} {
			if ratio != 0 && (d.MinRatio == 0 || ratio < d.MinRatio) {
				d.MinRatio = ratio
			}
		}
	}
	switch {
	case o.Error != "":
		d.Status = StatusError
	case d.Failed > 0:
		d.Status = StatusFailed
	default:
		d.Status = StatusPassed
	}
	o.Digest = d
}
