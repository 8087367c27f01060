package mining

import (
	"math"

	"github.com/logflow/pmlens/internal/model"
	pmerrors "github.com/logflow/pmlens/pkg/errors"
)

// ErrUndefinedCorrelation means the coefficient cannot be computed: fewer
// than two pairs, or one series has zero variance.
var ErrUndefinedCorrelation = pmerrors.Sentinel(pmerrors.CodeUndefinedCorrelation, "correlation undefined")

// Pearson returns the Pearson correlation coefficient of xs and ys.
// The slices must have equal length.
func Pearson(xs, ys []float64) (float64, error) {
	n := len(xs)
	if n != len(ys) || n < 2 {
		return 0, ErrUndefinedCorrelation
	}
	// A constant series has zero variance even when its mean is inexact.
	if constant(xs) || constant(ys) {
		return 0, ErrUndefinedCorrelation
	}

	var mx, my float64
	for i := 0; i < n; i++ {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}

	if sxx == 0 || syy == 0 {
		return 0, ErrUndefinedCorrelation
	}

	r := sxy / math.Sqrt(sxx*syy)
	if math.IsNaN(r) {
		return 0, ErrUndefinedCorrelation
	}
	// Clamp rounding drift.
	return math.Max(-1, math.Min(1, r)), nil
}

// Correlate computes the correlation between precomputed case duration and
// satisfaction, one pair per case. Cases missing either value are skipped.
// An undefined coefficient is returned as null with ErrUndefinedCorrelation.
func Correlate(cases []Case) (model.NullFloat, error) {
	xs := make([]float64, 0, len(cases))
	ys := make([]float64, 0, len(cases))
	for i := range cases {
		c := &cases[i]
		if !c.CaseDuration.Valid || !c.Satisfaction.Valid {
			continue
		}
		xs = append(xs, c.CaseDuration.Float64)
		ys = append(ys, c.Satisfaction.Float64)
	}

	r, err := Pearson(xs, ys)
	if err != nil {
		return model.Null(), err
	}
	return model.Float(r), nil
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}
