package gum

import "fmt"

// Complex is a complex quantity held as two real quantities. Real and
// imaginary parts keep separate components because their sensitivity
// coefficients differ, while sharing sources keeps them correlated.
type Complex struct {
	re, im Quantity
}

// NewComplex returns re + i·im.
func NewComplex(re, im Quantity) Complex {
	return Complex{re: re, im: im}
}

// Real returns the real part.
func (z Complex) Real() Quantity { return z.re }

// Imag returns the imaginary part.
func (z Complex) Imag() Quantity { return z.im }

// Value returns the complex estimate.
func (z Complex) Value() complex128 {
	return complex(z.re.x, z.im.x)
}

// Add returns z + w.
func (z Complex) Add(w Complex) Complex {
	return Complex{re: z.re.Add(w.re), im: z.im.Add(w.im)}
}

// Sub returns z − w.
func (z Complex) Sub(w Complex) Complex {
	return Complex{re: z.re.Sub(w.re), im: z.im.Sub(w.im)}
}

// Mul returns z·w to first order.
func (z Complex) Mul(w Complex) Complex {
	return Complex{
		re: z.re.Mul(w.re).Sub(z.im.Mul(w.im)),
		im: z.re.Mul(w.im).Add(z.im.Mul(w.re)),
	}
}

// MulReal returns q·z for a real quantity q.
func (z Complex) MulReal(q Quantity) Complex {
	return Complex{re: z.re.Mul(q), im: z.im.Mul(q)}
}

// Scale returns k·z for an exact real k.
func (z Complex) Scale(k float64) Complex {
	return Complex{re: z.re.Scale(k), im: z.im.Scale(k)}
}

func (z Complex) String() string {
	return fmt.Sprintf("(%v, %v)", z.re, z.im)
}
