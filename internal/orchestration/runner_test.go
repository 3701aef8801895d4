package orchestration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/impedance-lab/ubcal/internal/cache"
	"github.com/impedance-lab/ubcal/internal/dataset"
	"github.com/impedance-lab/ubcal/internal/models"
	"github.com/impedance-lab/ubcal/internal/utils"
	"github.com/impedance-lab/ubcal/internal/uut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// row is a reading at 20 °C; xdial and rdial are dial counts.
func row(label, nominal, rng, xdial, rdial string) []string {
	return []string{label, nominal, rng, xdial, rdial, nominal,
		"20", "0.1", "10", "0", "1e-6", "10", "0", "1e-4", "10"}
}

func testJob(name string, mode models.ZeroMode) *models.Job {
	return &models.Job{
		Name:        name,
		Calibration: "ub_nominal.csv",
		Input:       models.InputSpec{Workbook: "readings.xlsx", Sheet: "Readings", Block: []int{5, 6, 1, 15}},
		Output:      models.OutputSpec{Workbook: name + ".xlsx", Sheet: "Results", StartRow: 3},
		Zero:        models.ZeroSpec{Mode: mode},
		Dir:         "testdata",
	}
}

func inputBlock() dataset.Block {
	return dataset.Block{FirstRow: 5, LastRow: 6, FirstCol: 1, LastCol: 15}
}

func newMockRunner(reader dataset.BlockReader, writer dataset.BlockWriter, opts ...RunnerOption) *JobRunner {
	opts = append([]RunnerOption{
		WithReader(func(string) dataset.BlockReader { return reader }),
		WithWriter(func(string) dataset.BlockWriter { return writer }),
	}, opts...)
	return NewJobRunner(DefaultSettings(), opts...)
}

func TestJobRunner_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := dataset.NewMockBlockReader(ctrl)
	writer := dataset.NewMockBlockWriter(ctrl)

	reader.EXPECT().ReadBlock("Readings", inputBlock()).Return([][]string{
		row(uut.CoaxZeroLabel, "1000", "5Z", "120", "-35"),
		row("L1", "1000", "5Z", "999731", "1234567"),
	}, nil)

	var written [][]any
	writer.EXPECT().WriteBlock("Results", 3, gomock.Any()).DoAndReturn(
		func(sheet string, startRow int, rows [][]any) error {
			written = rows
			return nil
		})

	runner := newMockRunner(reader, writer)
	var events []EventType
	runner.OnProgress(func(e ProgressEvent) {
		events = append(events, e.EventType)
	})

	out, err := runner.Run(context.Background(), testJob("inductors", models.ZeroCoax))
	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.False(t, out.TanDelta)
	assert.False(t, out.Cached)

	rec := out.Record
	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, "inductors", rec.JobName)
	assert.Equal(t, models.ZeroCoax, rec.Setup.ZeroMode)
	assert.Equal(t, 0.95, rec.Setup.Coverage)
	require.Len(t, rec.Rows, 2)
	assert.Equal(t, 5, rec.Rows[0].Row, "rows are numbered as in the sheet")
	assert.Equal(t, 6, rec.Rows[1].Row)
	assert.Equal(t, models.StatusNA, rec.Rows[0].Status, "zero cancels against itself")
	assert.NotEqual(t, models.StatusNA, rec.Rows[1].Status)
	assert.Equal(t, 2, rec.Digest.TotalRows)
	assert.Greater(t, rec.Digest.MinRatio, 0.0)

	require.Len(t, written, 3)
	header := written[0]
	assert.Len(t, header, len(models.ItemColumns)+len(uut.ResultColumns(false)))
	assert.Equal(t, "item", header[0])
	assert.Equal(t, "x", header[len(models.ItemColumns)])
	assert.Equal(t, "L1", written[2][0])
	assert.Equal(t, 0.0, written[1][len(models.ItemColumns)])

	assert.Equal(t, EventJobStart, events[0])
	assert.Equal(t, EventJobComplete, events[len(events)-1])
	assert.Contains(t, events, EventStep)
}

func TestJobRunner_Run_JobOverrides(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := dataset.NewMockBlockReader(ctrl)
	writer := dataset.NewMockBlockWriter(ctrl)
	reader.EXPECT().ReadBlock(gomock.Any(), gomock.Any()).Return([][]string{
		row("L1", "1000", "5Z", "999731", "1234567"),
		{},
	}, nil)
	writer.EXPECT().WriteBlock(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	job := testJob("override", models.ZeroNone)
	job.Ambient = &models.UncertainValue{Value: 23, Uncertainty: 0.2, DOF: 30, Label: "lab"}
	job.Resolution = utils.Ptr(false)

	out, err := newMockRunner(reader, writer).Run(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, out.Results, 1, "blank rows are skipped")
	assert.Equal(t, 23.0, out.Record.Setup.Ambient.Value)
	assert.False(t, out.Record.Setup.Resolution)

	_, ok := out.Corrected[0].Real.Component("lab")
	assert.True(t, ok, "the ambient leaf takes the job label")
	_, ok = out.Corrected[0].Real.Component("uuttempL1*rtempcoL1")
	assert.True(t, ok)
}

func TestJobRunner_Run_BoxMainZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := dataset.NewMockBlockReader(ctrl)
	writer := dataset.NewMockBlockWriter(ctrl)

	job := testJob("box", models.ZeroBox)
	job.Input.Block = []int{5, 7, 1, 15}
	job.Zero.Box = &models.BoxSpec{
		Exclude:  []string{uut.CopperZeroLabel},
		MainZero: &models.UncertainValue{Uncertainty: 1e-16, DOF: 20},
	}
	reader.EXPECT().ReadBlock("Readings", dataset.Block{FirstRow: 5, LastRow: 7, FirstCol: 1, LastCol: 15}).Return([][]string{
		row(uut.BoxZeroLabel, "1000", "6Y", "1000", "10"),
		row("C1", "1000", "6Y", "999731", "-187"),
		row(uut.CopperZeroLabel, "1000", "6Y", "400", "2"),
	}, nil)

	var written [][]any
	writer.EXPECT().WriteBlock("Results", 3, gomock.Any()).DoAndReturn(
		func(sheet string, startRow int, rows [][]any) error {
			written = rows
			return nil
		})

	out, err := newMockRunner(reader, writer).Run(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, out.TanDelta)

	main := out.Corrected[0]
	u, ok := main.Reactive.Component("zero_definition")
	require.True(t, ok, "the box zero row reports the main zero")
	assert.Equal(t, 1e-16, u)
	assert.NotEqual(t, 0.0, main.Reactive.Value())
	require.NotNil(t, out.Record.Rows[0].TanDelta)

	require.Len(t, written, 4)
	assert.Contains(t, written[0], "tand")
}

func TestJobRunner_Run_Errors(t *testing.T) {
	t.Run("read error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reader := dataset.NewMockBlockReader(ctrl)
		writer := dataset.NewMockBlockWriter(ctrl)
		reader.EXPECT().ReadBlock(gomock.Any(), gomock.Any()).Return(nil, errors.New("no sheet Readings"))

		runner := newMockRunner(reader, writer)
		var failed bool
		runner.OnProgress(func(e ProgressEvent) {
			if e.EventType == EventJobFailed {
				failed = true
				assert.Equal(t, models.StatusError, e.Status)
			}
		})

		_, err := runner.Run(context.Background(), testJob("bad", models.ZeroNone))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "job bad: reading readings.xlsx [5:6, 1:15]")
		assert.True(t, failed)
	})

	t.Run("missing zero writes nothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reader := dataset.NewMockBlockReader(ctrl)
		writer := dataset.NewMockBlockWriter(ctrl)
		reader.EXPECT().ReadBlock(gomock.Any(), gomock.Any()).Return([][]string{
			row(uut.CoaxZeroLabel, "1000", "5Z", "120", "-35"),
			row("L1", "1000", "4Z", "999731", "1234567"),
		}, nil)

		_, err := newMockRunner(reader, writer).Run(context.Background(), testJob("coax", models.ZeroCoax))
		assert.ErrorIs(t, err, uut.ErrMissingZero)
	})

	t.Run("empty block", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reader := dataset.NewMockBlockReader(ctrl)
		writer := dataset.NewMockBlockWriter(ctrl)
		reader.EXPECT().ReadBlock(gomock.Any(), gomock.Any()).Return([][]string{{}, {}}, nil)

		_, err := newMockRunner(reader, writer).Run(context.Background(), testJob("empty", models.ZeroNone))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no items")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		reader := dataset.NewMockBlockReader(ctrl)
		writer := dataset.NewMockBlockWriter(ctrl)
		reader.EXPECT().ReadBlock(gomock.Any(), gomock.Any()).Return([][]string{
			row("L1", "1000", "5Z", "999731", "1234567"),
		}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newMockRunner(reader, writer).Run(ctx, testJob("cancelled", models.ZeroNone))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("missing calibration", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		job := testJob("nocal", models.ZeroNone)
		job.Calibration = "absent.csv"

		_, err := newMockRunner(dataset.NewMockBlockReader(ctrl), dataset.NewMockBlockWriter(ctrl)).Run(context.Background(), job)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loading calibration file")
	})
}

func TestJobRunner_RunAll(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := dataset.NewMockBlockReader(ctrl)
	writer := dataset.NewMockBlockWriter(ctrl)

	reader.EXPECT().ReadBlock(gomock.Any(), gomock.Any()).Return([][]string{
		row("L1", "1000", "5Z", "999731", "1234567"),
		row("L2", "1000", "4Z", "500000", "40000"),
	}, nil).Times(3)
	writer.EXPECT().WriteBlock(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	jobs := []*models.Job{
		testJob("a", models.ZeroNone),
		testJob("b", models.ZeroCoax),
		testJob("c", models.ZeroNone),
	}

	runner := newMockRunner(reader, writer)
	var mu sync.Mutex
	started := map[string]int{}
	runner.OnProgress(func(e ProgressEvent) {
		if e.EventType != EventJobStart {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		started[e.JobName] = e.JobNum
		assert.Equal(t, 3, e.TotalJobs)
	})

	outcomes, err := runner.RunAll(context.Background(), jobs, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, uut.ErrMissingZero)
	require.Len(t, outcomes, 3)

	assert.Equal(t, models.StatusError, outcomes[1].Record.Digest.Status)
	assert.Contains(t, outcomes[1].Record.Error, "job b")
	for _, i := range []int{0, 2} {
		assert.Empty(t, outcomes[i].Record.Error)
		assert.Len(t, outcomes[i].Results, 2)
	}
	assert.NotEqual(t, outcomes[0].Record.RunID, outcomes[2].Record.RunID)
	assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, started)
}

func TestJobRunner_RunAll_DuplicateOutput(t *testing.T) {
	a := testJob("a", models.ZeroNone)
	b := testJob("b", models.ZeroNone)
	b.Output.Workbook = "./a.xlsx"

	_, err := NewJobRunner(DefaultSettings()).RunAll(context.Background(), []*models.Job{a, b}, 0)
	require.ErrorIs(t, err, ErrDuplicateOutput)
	assert.Contains(t, err.Error(), "jobs a and b")
}

func TestJobRunner_Cache(t *testing.T) {
	dir := t.TempDir()
	cal, err := filepath.Abs("testdata/ub_nominal.csv")
	require.NoError(t, err)

	input := strings.Join([]string{
		strings.Join(models.ItemColumns, ","),
		strings.Join(row("L1", "1000", "5Z", "999731", "1234567"), ","),
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readings.csv"), []byte(input), 0644))

	job := &models.Job{
		Name:        "cached",
		Calibration: cal,
		Input:       models.InputSpec{Workbook: "readings.csv", Block: []int{2, 2, 1, 15}},
		Output:      models.OutputSpec{Workbook: "results.csv"},
		Zero:        models.ZeroSpec{Mode: models.ZeroNone},
		Dir:         dir,
	}
	runner := NewJobRunner(DefaultSettings(), WithCache(cache.New(filepath.Join(dir, ".cache"))))

	first, err := runner.Run(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	data, err := os.ReadFile(filepath.Join(dir, "results.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "item,nom_freq,ubrange"))
	assert.True(t, strings.HasPrefix(lines[1], "L1,1000,5Z"))

	second, err := runner.Run(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Record.RunID, second.Record.RunID)
	assert.Nil(t, second.Results)

	require.NoError(t, os.Remove(filepath.Join(dir, "results.csv")))
	third, err := runner.Run(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, third.Cached, "a missing report is recomputed")
}
