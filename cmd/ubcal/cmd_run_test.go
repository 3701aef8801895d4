package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/impedance-lab/ubcal/internal/models"
	"github.com/impedance-lab/ubcal/internal/orchestration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readingRow is a reading at 20 °C; xdial and rdial are dial counts.
func readingRow(label, rng, xdial, rdial string) string {
	return strings.Join([]string{label, "1000", rng, xdial, rdial, "1000",
		"20", "0.1", "10", "0", "1e-6", "10", "0", "1e-4", "10"}, ",")
}

// createTestJob writes a readings file and a job file in dir and returns the
// job path.
func createTestJob(t *testing.T, dir, name, output string) string {
	t.Helper()
	cal, err := filepath.Abs(testCal)
	require.NoError(t, err)

	readings := strings.Join([]string{
		strings.Join(models.ItemColumns, ","),
		readingRow("coax zero", "5Z", "120", "-35"),
		readingRow("L1", "5Z", "999731", "1234567"),
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+"-readings.csv"), []byte(readings), 0644))

	job := `name: ` + name + `
calibration: ` + cal + `
input:
  workbook: ` + name + `-readings.csv
  block: [2, 3, 1, 15]
output:
  workbook: ` + output + `
zero:
  mode: coax
`
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(job), 0644))
	return path
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	jobPath := createTestJob(t, dir, "inductors", "inductors-results.csv")
	resultsDir := filepath.Join(dir, "results")
	junitPath := filepath.Join(dir, "junit.xml")
	htmlPath := filepath.Join(dir, "report.html")

	out, err := executeCommand(t, "run", jobPath,
		"-o", resultsDir, "--junit", junitPath, "--html", htmlPath, "--interpret", "-v")
	require.NoError(t, err)

	assert.Contains(t, out, "Running 1 job(s)")
	assert.Contains(t, out, "[1/1] Running job: inductors")
	assert.Contains(t, out, "CALIBRATION RESULTS")
	assert.Contains(t, out, "=== inductors ===")

	report, err := os.ReadFile(filepath.Join(dir, "inductors-results.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(report)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "item,nom_freq,ubrange"))
	assert.True(t, strings.HasPrefix(lines[2], "L1,1000,5Z"))

	data, err := os.ReadFile(filepath.Join(resultsDir, "inductors.json"))
	require.NoError(t, err)
	var rec models.RunOutcome
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "inductors", rec.JobName)
	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, 2, rec.Digest.TotalRows)
	assert.Equal(t, models.ZeroCoax, rec.Setup.ZeroMode)

	data, err = os.ReadFile(filepath.Join(resultsDir, "summary.json"))
	require.NoError(t, err)
	var summary models.MultiJobSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 1, summary.Overall.TotalJobs)
	require.Len(t, summary.Jobs, 1)
	assert.Equal(t, rec.RunID, summary.Jobs[0].RunID)

	junit, err := os.ReadFile(junitPath)
	require.NoError(t, err)
	assert.Contains(t, string(junit), "<testsuites")
	assert.Contains(t, string(junit), "inductors")

	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "inductors")
}

func TestRunCommand_ProjectConfig(t *testing.T) {
	dir := t.TempDir()
	jobsDir := filepath.Join(dir, "jobs")
	require.NoError(t, os.MkdirAll(jobsDir, 0755))
	createTestJob(t, jobsDir, "a", "a-results.csv")
	createTestJob(t, jobsDir, "b", "b-results.csv")

	cfg := `paths:
  jobs: jobs/
  results: out/
defaults:
  workers: 1
cache:
  enabled: true
  dir: .cache
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".ubcal.yaml"), []byte(cfg), 0644))
	t.Chdir(dir)

	out, err := executeCommand(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "Running 2 job(s), 1 at a time")
	assert.FileExists(t, filepath.Join(dir, "out", "a.json"))
	assert.FileExists(t, filepath.Join(dir, "out", "b.json"))
	assert.DirExists(t, filepath.Join(dir, ".cache"))

	out, err = executeCommand(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "[cached]")

	out, err = executeCommand(t, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache cleared")
	assert.NoDirExists(t, filepath.Join(dir, ".cache"))
}

func TestRunCommand_Errors(t *testing.T) {
	t.Run("no job files", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".ubcal.yaml"), []byte("paths:\n  jobs: none/\n"), 0644))
		t.Chdir(dir)

		_, err := executeCommand(t, "run")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no job files")
	})

	t.Run("schema violation", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("name: bad\ncalibration: cal.csv\n"), 0644))

		_, err := executeCommand(t, "run", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match the schema")
	})

	t.Run("shared output", func(t *testing.T) {
		dir := t.TempDir()
		a := createTestJob(t, dir, "a", "shared.csv")
		b := createTestJob(t, dir, "b", "shared.csv")

		_, err := executeCommand(t, "run", a, b, "-o", filepath.Join(dir, "results"))
		assert.ErrorIs(t, err, orchestration.ErrDuplicateOutput)
	})

	t.Run("failed job is recorded", func(t *testing.T) {
		dir := t.TempDir()
		path := createTestJob(t, dir, "broken", "broken-results.csv")
		require.NoError(t, os.Remove(filepath.Join(dir, "broken-readings.csv")))
		resultsDir := filepath.Join(dir, "results")

		out, err := executeCommand(t, "run", path, "-o", resultsDir)
		require.Error(t, err)
		assert.Equal(t, ExitError, exitCode(err))
		assert.Contains(t, out, "✗ [1/1] broken")

		data, err := os.ReadFile(filepath.Join(resultsDir, "broken.json"))
		require.NoError(t, err)
		var rec models.RunOutcome
		require.NoError(t, json.Unmarshal(data, &rec))
		assert.Equal(t, models.StatusError, rec.Digest.Status)
	})
}

func TestCheckCompliance(t *testing.T) {
	passed := &models.RunOutcome{JobName: "a", Rows: []models.RowOutcome{
		{Status: models.StatusPassed, RatioReactive: 1.5, RatioReal: 2},
	}}
	failed := &models.RunOutcome{JobName: "b", Rows: []models.RowOutcome{
		{Status: models.StatusPassed, RatioReactive: 1.5, RatioReal: 2},
		{Status: models.StatusFailed, RatioReactive: 0.5, RatioReal: 2},
	}}
	passed.Summarize()
	failed.Summarize()

	assert.NoError(t, checkCompliance([]*models.RunOutcome{passed}))

	err := checkCompliance([]*models.RunOutcome{passed, failed})
	var complianceErr *ComplianceError
	require.ErrorAs(t, err, &complianceErr)
	assert.Equal(t, "1 result(s) in 1 job(s) exceed the declared CMC", complianceErr.Message)
	assert.Equal(t, ExitCMCFailure, exitCode(err))
}

func TestSanitizeJobName(t *testing.T) {
	assert.Equal(t, "box-zero-6Y", sanitizeJobName("box zero/6Y"))
	assert.Equal(t, "a-b-c", sanitizeJobName(`a:b\c`))
}
