// Package wizard prompts for a single bridge balance at the terminal.
package wizard

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/impedance-lab/ubcal/internal/bridge"
	"github.com/impedance-lab/ubcal/internal/dial"
	"golang.org/x/term"
)

// ReadingEntry holds the fields collected by the wizard, as typed.
type ReadingEntry struct {
	Range      string
	Frequency  string
	Resistance string
	Reactance  string
}

// Reading converts the entry to a bridge reading.
func (e *ReadingEntry) Reading(resolution bool) (bridge.Reading, error) {
	rg, err := bridge.ParseRange(normalizeRange(e.Range))
	if err != nil {
		return bridge.Reading{}, err
	}
	f, err := ParseFrequency(e.Frequency)
	if err != nil {
		return bridge.Reading{}, err
	}
	a, err := ParseDials(dial.ResistanceDials, e.Resistance)
	if err != nil {
		return bridge.Reading{}, fmt.Errorf("resistance dial: %w", err)
	}
	b, err := ParseDials(dial.ReactanceDials, e.Reactance)
	if err != nil {
		return bridge.Reading{}, fmt.Errorf("reactance dial: %w", err)
	}
	return bridge.Reading{Range: rg, Resistance: a, Reactance: b, Frequency: f, Resolution: resolution}, nil
}

// ParseFrequency reads a positive frequency in Hz.
func ParseFrequency(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%w: %q", bridge.ErrInvalidFrequency, s)
	}
	return f, nil
}

// ParseDials accepts either the compact dial notation ("-1X3x-16") or a
// plain integer count.
func ParseDials(p dial.Pattern, s string) (int, error) {
	s = strings.TrimSpace(s)
	setting, err := p.Parse(s)
	if err == nil {
		return setting.Count(), nil
	}
	if n, convErr := strconv.Atoi(s); convErr == nil {
		return n, nil
	}
	return 0, err
}

// RunReadingWizard runs an interactive huh form to collect one bridge balance.
// If initialRange is non-empty, it pre-populates the range field.
func RunReadingWizard(in io.Reader, out io.Writer, initialRange string) (*ReadingEntry, error) {
	entry := &ReadingEntry{Range: initialRange}

	// Accessible fields each scan the input afresh, so a piped input has to be
	// handed out one line at a time.
	accessible := !isTerminal(in)
	if accessible {
		in = &lineReader{r: bufio.NewReader(in)}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Range").
				Description("Range switch and configuration, 1Z to 7Z or 1Y to 7Y").
				Placeholder("4Z").
				Value(&entry.Range).
				Validate(func(s string) error {
					_, err := bridge.ParseRange(normalizeRange(s))
					return err
				}),
			huh.NewInput().
				Title("Frequency (Hz)").
				Placeholder("1000").
				Value(&entry.Frequency).
				Validate(func(s string) error {
					_, err := ParseFrequency(s)
					return err
				}),
			huh.NewInput().
				Title("Resistance dials").
				Description("Seven dials, each -1, 0 to 9 or X").
				Placeholder("1000000").
				Value(&entry.Resistance).
				Validate(func(s string) error {
					_, err := ParseDials(dial.ResistanceDials, s)
					return err
				}),
			huh.NewInput().
				Title("Reactance dials").
				Description("Six dials, each -1, 0 to 9 or X").
				Placeholder("100000").
				Value(&entry.Reactance).
				Validate(func(s string) error {
					_, err := ParseDials(dial.ReactanceDials, s)
					return err
				}),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if accessible {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	entry.Range = normalizeRange(entry.Range)
	return entry, nil
}

func normalizeRange(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// lineReader returns at most one line per Read.
type lineReader struct {
	r *bufio.Reader
}

func (l *lineReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		b, err := l.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		p[n] = b
		n++
		if b == '\n' {
			break
		}
	}
	return n, nil
}
