// Package gum implements quantities carrying a standard uncertainty that is
// propagated by the law of propagation of uncertainty from the Guide to the
// Expression of Uncertainty in Measurement (GUM).
//
// A Quantity stores its value and one uncertainty component per influence
// source: the sensitivity coefficient times the standard uncertainty of the
// source. Components are matched by source identity, so two quantities built
// from the same source stay correlated through any chain of arithmetic.
// Quantities are immutable; every operation returns a new one.
package gum

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDivisionByZero is returned when dividing by a quantity whose value is exactly zero.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrIndeterminate is returned for 0/0. Callers that use a zeroed numerator
	// as a sentinel should treat it as an exact zero.
	ErrIndeterminate = errors.New("indeterminate form 0/0")
)

// key identifies one uncertainty component: a single source, or for
// second-order products the unordered pair of two sources.
type key struct {
	a, b *Source
}

func pairKey(s, t *Source) key {
	if t.id < s.id {
		s, t = t, s
	}
	return key{a: s, b: t}
}

func (k key) label() string {
	if k.b == nil {
		return k.a.label
	}
	return k.a.label + "*" + k.b.label
}

func (k key) dof() float64 {
	if k.b == nil {
		return k.a.dof
	}
	return math.Min(k.a.dof, k.b.dof)
}

func (k key) intermediate() bool {
	return k.b == nil && k.a.kind == kindIntermediate
}

func (k key) leaf() bool {
	return k.b == nil && k.a.kind == kindLeaf
}

// Quantity is a real value with its uncertainty components.
// The zero Quantity is the exact constant 0.
type Quantity struct {
	x     float64
	comps map[key]float64
}

// Constant returns an exact value: zero uncertainty, infinite degrees of freedom.
func Constant(x float64) Quantity {
	return Quantity{x: x}
}

// Value returns the estimate.
func (q Quantity) Value() float64 { return q.x }

// Variance returns the combined variance u²(q).
func (q Quantity) Variance() float64 {
	var v float64
	for k, u := range q.comps {
		if k.intermediate() {
			continue
		}
		v += u * u
	}
	return v
}

// Uncertainty returns the combined standard uncertainty u(q).
func (q Quantity) Uncertainty() float64 {
	return math.Sqrt(q.Variance())
}

// DOF returns the effective degrees of freedom from the Welch-Satterthwaite
// formula. An exact constant has +Inf. A quantity whose components all
// cancelled to zero has NaN, meaning no uncertainty statement applies.
func (q Quantity) DOF() float64 {
	var v, denom float64
	n := 0
	for k, u := range q.comps {
		if k.intermediate() {
			continue
		}
		n++
		u2 := u * u
		v += u2
		if d := k.dof(); !math.IsInf(d, 1) && u2 != 0 {
			denom += u2 * u2 / d
		}
	}
	switch {
	case n == 0:
		return math.Inf(1)
	case v == 0:
		return math.NaN()
	case denom == 0:
		return math.Inf(1)
	}
	return v * v / denom
}

// IsConstant reports whether q depends on no uncertainty source.
func (q Quantity) IsConstant() bool {
	for k := range q.comps {
		if !k.intermediate() {
			return false
		}
	}
	return true
}

// Component returns the uncertainty component of q with respect to the source
// registered as label, and whether q depends on it. Second-order components
// are addressed as "a*b".
func (q Quantity) Component(label string) (float64, bool) {
	var sum float64
	found := false
	for k, u := range q.comps {
		if k.label() == label {
			sum += u
			found = true
		}
	}
	return sum, found
}

func (q Quantity) String() string {
	return fmt.Sprintf("%.12g(%.3g)", q.x, q.Uncertainty())
}

// combine builds x with components ka·a + kb·b, matched by source.
func combine(x float64, a map[key]float64, ka float64, b map[key]float64, kb float64) Quantity {
	if len(a)+len(b) == 0 {
		return Quantity{x: x}
	}
	comps := make(map[key]float64, len(a)+len(b))
	for k, u := range a {
		comps[k] += ka * u
	}
	for k, u := range b {
		comps[k] += kb * u
	}
	return Quantity{x: x, comps: comps}
}

// Add returns q + r.
func (q Quantity) Add(r Quantity) Quantity {
	return combine(q.x+r.x, q.comps, 1, r.comps, 1)
}

// Sub returns q − r.
func (q Quantity) Sub(r Quantity) Quantity {
	return combine(q.x-r.x, q.comps, 1, r.comps, -1)
}

// Neg returns −q.
func (q Quantity) Neg() Quantity {
	return combine(-q.x, q.comps, -1, nil, 0)
}

// Scale returns k·q for an exact k.
func (q Quantity) Scale(k float64) Quantity {
	return combine(k*q.x, q.comps, k, nil, 0)
}

// Shift returns q + k for an exact k.
func (q Quantity) Shift(k float64) Quantity {
	return combine(q.x+k, q.comps, 1, nil, 0)
}

// Mul returns q·r to first order.
func (q Quantity) Mul(r Quantity) Quantity {
	return combine(q.x*r.x, q.comps, r.x, r.comps, q.x)
}

// Mul2 returns q·r with the second-order cross terms retained. Each pair of
// leaf sources (i from q, j from r) contributes a component u_i(q)·u_j(r)
// attached to the pair, so the same product of sources stays correlated
// across results. A source common to both operands contributes √2·u_i(q)·u_i(r).
// Only first-order components of the operands take part in the cross terms.
//
// Use Mul2 wherever an uncertain coefficient multiplies an uncertain
// difference that may have a zero estimate, such as a temperature coefficient
// times a temperature offset; Mul would drop that contribution entirely.
func (q Quantity) Mul2(r Quantity) Quantity {
	p := q.Mul(r)
	if len(q.comps) == 0 || len(r.comps) == 0 {
		return p
	}
	if p.comps == nil {
		p.comps = make(map[key]float64)
	}
	for ka, ua := range q.comps {
		if !ka.leaf() {
			continue
		}
		for kb, ub := range r.comps {
			if !kb.leaf() {
				continue
			}
			if ka.a == kb.a {
				p.comps[key{a: ka.a, b: ka.a}] += math.Sqrt2 * ua * ub
				continue
			}
			p.comps[pairKey(ka.a, kb.a)] += ua * ub
		}
	}
	return p
}

// Div returns q / r. A zero divisor fails with ErrDivisionByZero, or with
// ErrIndeterminate when q is also exactly zero.
func (q Quantity) Div(r Quantity) (Quantity, error) {
	if r.x == 0 {
		if q.x == 0 {
			return Quantity{}, ErrIndeterminate
		}
		return Quantity{}, ErrDivisionByZero
	}
	y := q.x / r.x
	return combine(y, q.comps, 1/r.x, r.comps, -y/r.x), nil
}

// Inv returns 1 / q.
func (q Quantity) Inv() (Quantity, error) {
	if q.x == 0 {
		return Quantity{}, ErrDivisionByZero
	}
	return combine(1/q.x, q.comps, -1/(q.x*q.x), nil, 0), nil
}

func (q Quantity) withIntermediate(label string) Quantity {
	u := q.Uncertainty()
	s := newSource(label, u, q.DOF(), kindIntermediate)
	comps := make(map[key]float64, len(q.comps)+1)
	for k, v := range q.comps {
		comps[k] = v
	}
	comps[key{a: s}] = u
	return Quantity{x: q.x, comps: comps}
}
