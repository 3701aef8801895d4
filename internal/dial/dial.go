// Package dial decodes the settings of inductive voltage divider dials as
// they are written in a lab book: an optional sign dial followed by decade
// dials that may read -1 and X (ten) as well as 0 to 9.
package dial

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidSetting is returned when a dial setting does not fit its pattern.
var ErrInvalidSetting = errors.New("invalid dial setting")

// Step is the set of positions a decade dial can take.
type Step string

const (
	TenStep    Step = "ten_step"    // 0..9
	ElevenStep Step = "eleven_step" // 0..9, X
	TwelveStep Step = "twelve_step" // -1, 0..9, X
)

func (s Step) valid() bool {
	return s == TenStep || s == ElevenStep || s == TwelveStep
}

// digit returns the value of one dial position.
func (s Step) digit(tok string) (int, bool) {
	switch {
	case len(tok) == 1 && tok[0] >= '0' && tok[0] <= '9':
		return int(tok[0] - '0'), true
	case (tok == "x" || tok == "X") && s != TenStep:
		return 10, true
	case tok == "-1" && s == TwelveStep:
		return -1, true
	}
	return 0, false
}

// Pattern describes a bank of dials.
type Pattern struct {
	// Digits is the number of decade dials, not counting the sign dial.
	Digits int  `yaml:"digits" json:"digits"`
	Step   Step `yaml:"step" json:"step"`
	Sign   bool `yaml:"sign" json:"sign"`
}

// The two dividers of the universal bridge.
var (
	ResistanceDials = Pattern{Digits: 7, Step: TwelveStep}
	ReactanceDials  = Pattern{Digits: 6, Step: TwelveStep}
)

// Validate checks the pattern itself.
func (p Pattern) Validate() error {
	if p.Digits < 1 || p.Digits > 18 {
		return fmt.Errorf("dial pattern: %d digits out of range 1..18", p.Digits)
	}
	if !p.Step.valid() {
		return fmt.Errorf("dial pattern: unknown step %q", p.Step)
	}
	return nil
}

// Len is the number of dials including the sign dial.
func (p Pattern) Len() int {
	if p.Sign {
		return p.Digits + 1
	}
	return p.Digits
}

// Setting is a decoded dial bank.
type Setting struct {
	Negative bool
	Digits   []int
}

// Decode interprets one token per dial, sign first when the pattern has one.
func (p Pattern) Decode(tokens []string) (Setting, error) {
	if err := p.Validate(); err != nil {
		return Setting{}, err
	}
	if len(tokens) != p.Len() {
		return Setting{}, fmt.Errorf("%w: %d dials, want %d", ErrInvalidSetting, len(tokens), p.Len())
	}
	var s Setting
	if p.Sign {
		switch tokens[0] {
		case "+":
		case "-":
			s.Negative = true
		default:
			return Setting{}, fmt.Errorf("%w: sign dial reads %q", ErrInvalidSetting, tokens[0])
		}
		tokens = tokens[1:]
	}
	s.Digits = make([]int, len(tokens))
	for i, tok := range tokens {
		d, ok := p.Step.digit(tok)
		if !ok {
			return Setting{}, fmt.Errorf("%w: dial %d reads %q, not a %s position", ErrInvalidSetting, i+1, tok, p.Step)
		}
		s.Digits[i] = d
	}
	return s, nil
}

// Tokens splits a compact entry such as "-1X3x-16" into one token per dial.
// Every character must be used.
func (p Pattern) Tokens(entry string) ([]string, error) {
	var out []string
	rest := entry
	if p.Sign {
		if rest == "" || (rest[0] != '+' && rest[0] != '-') {
			return nil, fmt.Errorf("%w: %q must start with a sign", ErrInvalidSetting, entry)
		}
		out = append(out, rest[:1])
		rest = rest[1:]
	}
	for len(out) < p.Len() && rest != "" {
		n := 1
		if p.Step == TwelveStep && strings.HasPrefix(rest, "-1") {
			n = 2
		}
		out = append(out, rest[:n])
		rest = rest[n:]
	}
	if rest != "" {
		return nil, fmt.Errorf("%w: %q has %q left over after %d dials", ErrInvalidSetting, entry, rest, p.Len())
	}
	if len(out) != p.Len() {
		return nil, fmt.Errorf("%w: %q has %d dials, want %d", ErrInvalidSetting, entry, len(out), p.Len())
	}
	return out, nil
}

// Parse decodes a compact entry.
func (p Pattern) Parse(entry string) (Setting, error) {
	tokens, err := p.Tokens(strings.TrimSpace(entry))
	if err != nil {
		return Setting{}, err
	}
	return p.Decode(tokens)
}

// Count returns the setting as an integer number of least-significant steps,
// the form the bridge model takes.
func (s Setting) Count() int {
	n := 0
	for _, d := range s.Digits {
		n = n*10 + d
	}
	if s.Negative {
		return -n
	}
	return n
}

// Fraction returns the setting as a fraction of full scale, up to about ±1.11.
func (s Setting) Fraction() float64 {
	v := 0.0
	scale := 0.1
	for _, d := range s.Digits {
		v += float64(d) * scale
		scale /= 10
	}
	if s.Negative {
		return -v
	}
	return v
}

func (s Setting) String() string {
	var b strings.Builder
	if s.Negative {
		b.WriteByte('-')
	}
	for _, d := range s.Digits {
		if d == 10 {
			b.WriteByte('X')
			continue
		}
		b.WriteString(strconv.Itoa(d))
	}
	return b.String()
}
