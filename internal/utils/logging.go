package utils

import (
	"context"
	"log/slog"

	"github.com/impedance-lab/ubcal/internal/gum"
)

// BudgetToSlog logs the largest uncertainty components of q at debug level.
// limit <= 0 logs every component.
func BudgetToSlog(label string, q gum.Quantity, limit int) {
	if !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}

	attrs := []any{
		"value", q.Value(),
		"u", q.Uncertainty(),
		"dof", q.DOF(),
	}
	n := 0
	for source, u := range q.Budget() {
		if limit > 0 && n == limit {
			break
		}
		attrs = addIf(attrs, source, nonZero(u))
		n++
	}

	slog.Debug("Uncertainty budget "+label, attrs...)
}

func nonZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

func addIf[T any](attrs []any, name string, v *T) []any {
	if v != nil {
		attrs = append(attrs, name)
		attrs = append(attrs, *v)
	}

	return attrs
}
