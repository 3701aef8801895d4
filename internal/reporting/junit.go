package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/impedance-lab/ubcal/internal/models"
)

// JUnit XML schema types

// JUnitTestSuites is the top-level container.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite maps to one job run.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase maps to one reported row.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

// JUnitFailure is a row whose uncertainty exceeds the CMC.
type JUnitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitError is a job that could not be evaluated.
type JUnitError struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// JUnitSkipped marks a row without uncertainty, such as a zero reference.
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitProperty is a key-value metadata entry.
type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// ConvertToJUnit converts run records to JUnit XML, one suite per job and
// one test case per reported row.
func ConvertToJUnit(outcomes []*models.RunOutcome) *JUnitTestSuites {
	out := &JUnitTestSuites{}
	for _, o := range outcomes {
		suite := convertRun(o)
		out.Tests += suite.Tests
		out.Failures += suite.Failures
		out.Errors += suite.Errors
		out.Time += suite.Time
		out.TestSuites = append(out.TestSuites, suite)
	}
	return out
}

func convertRun(o *models.RunOutcome) JUnitTestSuite {
	suite := JUnitTestSuite{
		Name:      o.JobName,
		Time:      float64(o.Digest.DurationMs) / 1000.0,
		Timestamp: o.Timestamp.Format(time.RFC3339),
		Properties: []JUnitProperty{
			{Name: "run_id", Value: o.RunID},
			{Name: "calibration", Value: o.Setup.Calibration},
			{Name: "zero_mode", Value: string(o.Setup.ZeroMode)},
			{Name: "coverage", Value: fmt.Sprintf("%g", o.Setup.Coverage)},
			{Name: "min_ratio", Value: fmt.Sprintf("%.4f", o.Digest.MinRatio)},
		},
	}

	if o.Error != "" {
		suite.Tests = 1
		suite.Errors = 1
		suite.TestCases = []JUnitTestCase{{
			Name:      "run",
			Classname: o.JobName,
			Error:     &JUnitError{Message: o.Error, Type: "RunError"},
		}}
		return suite
	}

	for _, r := range o.Rows {
		tc := JUnitTestCase{
			Name:      fmt.Sprintf("row %d %s %s Hz %s", r.Row, r.Label, r.NominalFrequency, r.Range),
			Classname: o.JobName,
		}
		switch r.Status {
		case models.StatusFailed:
			tc.Failure = buildFailure(r)
			suite.Failures++
		case models.StatusNA:
			tc.Skipped = &JUnitSkipped{Message: "no uncertainty to compare with the CMC"}
			suite.Skipped++
		}
		suite.TestCases = append(suite.TestCases, tc)
	}
	suite.Tests = len(o.Rows)
	return suite
}

func buildFailure(r models.RowOutcome) *JUnitFailure {
	return &JUnitFailure{
		Message: fmt.Sprintf("%s: CMC ratio x=%.3f r=%.3f", r.Label, r.RatioReactive, r.RatioReal),
		Type:    "CMCExceeded",
		Body: fmt.Sprintf("x=%.9g U=%.3g CMC=%.3g\nr=%.9g U=%.3g CMC=%.3g\n",
			r.Reactive.Value, r.Reactive.U, r.CMCReactive,
			r.Real.Value, r.Real.U, r.CMCReal),
	}
}

// WriteJUnitXML writes JUnit XML to the specified file path.
func WriteJUnitXML(outcomes []*models.RunOutcome, path string) error {
	suites := ConvertToJUnit(outcomes)

	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JUnit XML: %w", err)
	}

	output := append([]byte(xml.Header), data...)
	return os.WriteFile(path, output, 0644)
}
