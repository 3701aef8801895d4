package gum

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrDuplicateLabel is returned when a label is already registered in a Context.
	ErrDuplicateLabel = errors.New("duplicate uncertainty label")

	// ErrReservedLabel is returned when a label passed to Leaf, Result or
	// ComplexResult contains the suffix separator '#'.
	ErrReservedLabel = errors.New("reserved character in uncertainty label")

	// ErrInvalidUncertainty is returned for negative or non-finite standard uncertainties.
	ErrInvalidUncertainty = errors.New("invalid standard uncertainty")

	// ErrInvalidDOF is returned when an uncertain leaf has degrees of freedom that are not > 0.
	ErrInvalidDOF = errors.New("invalid degrees of freedom")
)

// sourceSeq orders sources globally so second-order pairs have a canonical form
// even when quantities from two contexts meet.
var sourceSeq atomic.Uint64

type sourceKind uint8

const (
	kindLeaf sourceKind = iota
	kindIntermediate
)

// Source is one named influence quantity. Leaves are independent inputs;
// intermediates only label a result for budget reporting and never add variance.
type Source struct {
	id    uint64
	label string
	u     float64
	dof   float64
	kind  sourceKind
}

// Label returns the registered label.
func (s *Source) Label() string { return s.label }

// Uncertainty returns the standard uncertainty the source was created with.
func (s *Source) Uncertainty() float64 { return s.u }

// DOF returns the degrees of freedom of the source.
func (s *Source) DOF() float64 { return s.dof }

func newSource(label string, u, dof float64, kind sourceKind) *Source {
	return &Source{id: sourceSeq.Add(1), label: label, u: u, dof: dof, kind: kind}
}

// Context is the registry of uncertainty labels for one processing run.
// Every leaf and named result is minted through a Context so that two runs,
// or two concurrent batches, never share or collide labels. A Context is
// safe for concurrent use.
type Context struct {
	mu     sync.Mutex
	labels map[string]struct{}
}

// NewContext returns an empty label registry.
func NewContext() *Context {
	return &Context{labels: make(map[string]struct{})}
}

// Has reports whether label is registered.
func (c *Context) Has(label string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.labels[label]
	return ok
}

// Len returns the number of registered labels.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.labels)
}

// suffixSep separates a base label from the counter appended by reserveNext.
// Labels registered strictly may not contain it, so that a generated label
// can never be claimed again by Leaf or Result.
const suffixSep = "#"

func (c *Context) reserve(label string) error {
	if strings.Contains(label, suffixSep) {
		return fmt.Errorf("%w: %q: %q is kept for generated suffixes", ErrReservedLabel, label, suffixSep)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.labels[label]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
	}
	c.labels[label] = struct{}{}
	return nil
}

// reserveNext registers base, or base#2, base#3... when base is taken.
func (c *Context) reserveNext(base string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	label := base
	for n := 2; ; n++ {
		if _, ok := c.labels[label]; !ok {
			break
		}
		label = base + suffixSep + strconv.Itoa(n)
	}
	c.labels[label] = struct{}{}
	return label
}

// Leaf registers a new independent uncertainty source with value x, standard
// uncertainty u and dof degrees of freedom. The label must be unique in c.
// When u is zero the dof is irrelevant and is stored as +Inf.
func (c *Context) Leaf(x, u, dof float64, label string) (Quantity, error) {
	dof, err := checkLeaf(u, dof, label)
	if err != nil {
		return Quantity{}, err
	}
	if err := c.reserve(label); err != nil {
		return Quantity{}, err
	}
	return leafQuantity(x, u, dof, label), nil
}

// Fresh is like Leaf but never collides: when base is already registered a
// numeric suffix is appended. Used for leaves minted once per evaluation, such
// as dial linearity and resolution, whose natural label repeats across calls.
func (c *Context) Fresh(x, u, dof float64, base string) Quantity {
	u = math.Abs(u)
	if math.IsNaN(dof) || dof <= 0 || u == 0 {
		dof = math.Inf(1)
	}
	return leafQuantity(x, u, dof, c.reserveNext(base))
}

// Unique validates like Leaf but, like Fresh, suffixes base when it is
// already registered. Used for per-row inputs whose natural label may repeat,
// such as a unit's temperature read on several ranges.
func (c *Context) Unique(x, u, dof float64, base string) (Quantity, error) {
	dof, err := checkLeaf(u, dof, base)
	if err != nil {
		return Quantity{}, err
	}
	return leafQuantity(x, u, dof, c.reserveNext(base)), nil
}

// Result labels q as a named intermediate. The returned quantity has the same
// value and uncertainty; quantities derived from it report their sensitivity to
// the label through IntermediateBudget.
func (c *Context) Result(q Quantity, label string) (Quantity, error) {
	if err := c.reserve(label); err != nil {
		return Quantity{}, err
	}
	return q.withIntermediate(label), nil
}

// ComplexResult labels both parts of z. The real and imaginary parts are
// reported as re(label) and im(label).
func (c *Context) ComplexResult(z Complex, label string) (Complex, error) {
	if err := c.reserve(label); err != nil {
		return Complex{}, err
	}
	return labelComplex(z, label), nil
}

// UniqueComplexResult is like ComplexResult but suffixes base when it is
// already registered, as Unique does for leaves. It returns the label used.
func (c *Context) UniqueComplexResult(z Complex, base string) (Complex, string) {
	label := c.reserveNext(base)
	return labelComplex(z, label), label
}

func labelComplex(z Complex, label string) Complex {
	return Complex{
		re: z.re.withIntermediate("re(" + label + ")"),
		im: z.im.withIntermediate("im(" + label + ")"),
	}
}

func checkLeaf(u, dof float64, label string) (float64, error) {
	if u < 0 || math.IsNaN(u) || math.IsInf(u, 0) {
		return 0, fmt.Errorf("%w: %q has u=%g", ErrInvalidUncertainty, label, u)
	}
	if u == 0 {
		return math.Inf(1), nil
	}
	if math.IsNaN(dof) || dof <= 0 {
		return 0, fmt.Errorf("%w: %q has dof=%g", ErrInvalidDOF, label, dof)
	}
	return dof, nil
}

func leafQuantity(x, u, dof float64, label string) Quantity {
	s := newSource(label, u, dof, kindLeaf)
	return Quantity{x: x, comps: map[key]float64{{a: s}: u}}
}
