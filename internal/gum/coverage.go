package gum

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultCoverageProbability is the level of confidence used for reported
// expanded uncertainties.
const DefaultCoverageProbability = 0.95

// Above this the Student-t quantile is indistinguishable from the normal one.
const normalDOFLimit = 1e7

// CoverageFactor returns the two-sided Student-t quantile for dof degrees of
// freedom at coverage probability p: about 12.7 for dof=1 and 1.96 for
// infinite dof at p=0.95. A NaN dof yields 0, so that an exact reference
// zero is reported without an uncertainty.
func CoverageFactor(dof, p float64) float64 {
	if math.IsNaN(dof) {
		return 0
	}
	q := (1 + p) / 2
	if dof > normalDOFLimit {
		return distuv.UnitNormal.Quantile(q)
	}
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dof}
	return t.Quantile(q)
}

// Expanded returns the expanded uncertainty U = k·u(q) and the coverage
// factor k derived from the effective degrees of freedom of q.
func (q Quantity) Expanded(p float64) (U, k float64) {
	k = CoverageFactor(q.DOF(), p)
	return k * q.Uncertainty(), k
}
