package optimization

import (
	"math"
	"sort"
)

// feasibilityEps absorbs rounding when checking that the box admits a budget.
const feasibilityEps = 1e-12

// FeasibleSet is the intersection of a per-asset box, the budget hyperplane
// Σw = 1 and, optionally, a return hyperplane μᵗw = target.
type FeasibleSet struct {
	lower  []float64
	upper  []float64
	mu     []float64
	target float64
}

// NewFeasibleSet builds the box-and-budget set for n assets. A box that cannot
// hold a fully invested portfolio is rejected.
func NewFeasibleSet(n int, limits PositionLimits) (*FeasibleSet, error) {
	if n < 1 {
		return nil, validationErrorf("tickers", "empty universe")
	}
	if float64(n)*limits.Max < 1-feasibilityEps {
		return nil, validationErrorf("position_limits",
			"max weight %v is too small for %d assets to sum to 1", limits.Max, n)
	}
	if float64(n)*limits.Min > 1+feasibilityEps {
		return nil, validationErrorf("position_limits",
			"min weight %v is too large for %d assets to sum to 1", limits.Min, n)
	}

	fs := &FeasibleSet{
		lower: make([]float64, n),
		upper: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		fs.lower[i] = limits.Min
		fs.upper[i] = limits.Max
	}
	return fs, nil
}

// Dim returns the number of assets.
func (fs *FeasibleSet) Dim() int { return len(fs.lower) }

// ReturnRange returns the smallest and largest μᵗw achievable within the box
// and budget. Both are attained by filling assets greedily in μ order.
func (fs *FeasibleSet) ReturnRange(mu []float64) (float64, float64) {
	order := make([]int, len(mu))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return mu[order[a]] > mu[order[b]] })

	greedy := func(idx []int) float64 {
		w := make([]float64, len(mu))
		left := 1.0
		for i := range w {
			w[i] = fs.lower[i]
			left -= fs.lower[i]
		}
		for _, i := range idx {
			add := math.Min(fs.upper[i]-fs.lower[i], left)
			if add <= 0 {
				break
			}
			w[i] += add
			left -= add
		}
		r := 0.0
		for i := range w {
			r += w[i] * mu[i]
		}
		return r
	}

	hi := greedy(order)
	rev := make([]int, len(order))
	for i, j := range order {
		rev[len(order)-1-i] = j
	}
	lo := greedy(rev)
	return lo, hi
}

// WithReturnTarget returns a copy of fs restricted to μᵗw = target. The second
// result is false when the target lies outside the achievable range. When every
// asset has the same expected return the hyperplane coincides with the budget and
// is dropped.
func (fs *FeasibleSet) WithReturnTarget(mu []float64, target float64) (*FeasibleSet, bool) {
	lo, hi := fs.ReturnRange(mu)
	tol := 1e-10 * math.Max(1, math.Abs(target))
	if target < lo-tol || target > hi+tol {
		return nil, false
	}

	out := &FeasibleSet{lower: fs.lower, upper: fs.upper}
	if hi-lo < 1e-12 {
		return out, true
	}
	out.mu = append([]float64(nil), mu...)
	out.target = math.Min(math.Max(target, lo), hi)
	return out, true
}

// Contains reports whether w satisfies every constraint within tol.
func (fs *FeasibleSet) Contains(w []float64, tol float64) bool {
	sum, ret := 0.0, 0.0
	for i, x := range w {
		if x < fs.lower[i]-tol || x > fs.upper[i]+tol {
			return false
		}
		sum += x
		if fs.mu != nil {
			ret += x * fs.mu[i]
		}
	}
	if math.Abs(sum-1) > tol {
		return false
	}
	return fs.mu == nil || math.Abs(ret-fs.target) <= tol
}

// Project writes the Euclidean projection of v onto the set into dst.
//
// The KKT conditions give w_i = clip(v_i - a - b·μ_i, l_i, u_i). The budget
// multiplier a is found by a monotone root search for each b, and b in turn by a
// monotone root search on the return constraint.
func (fs *FeasibleSet) Project(dst, v []float64) {
	if fs.mu == nil {
		fs.projectBudget(dst, v, 0)
		return
	}

	excess := func(b float64) float64 {
		fs.projectBudget(dst, v, b)
		r := 0.0
		for i, x := range dst {
			r += x * fs.mu[i]
		}
		return r - fs.target
	}

	// excess is nonincreasing in b; widen the bracket until it straddles zero.
	lo, hi := -1.0, 1.0
	for i := 0; i < 200 && excess(lo) < 0; i++ {
		lo *= 2
	}
	for i := 0; i < 200 && excess(hi) > 0; i++ {
		hi *= 2
	}
	b := findDecreasingRoot(excess, lo, hi, 1e-13)
	fs.projectBudget(dst, v, b)
}

// projectBudget solves for a in Σ clip(v_i - b·μ_i - a) = 1 and writes the result.
func (fs *FeasibleSet) projectBudget(dst, v []float64, b float64) {
	n := len(v)
	shifted := make([]float64, n)
	minS, maxS := math.Inf(1), math.Inf(-1)
	for i := range v {
		shifted[i] = v[i]
		if fs.mu != nil {
			shifted[i] -= b * fs.mu[i]
		}
		minS = math.Min(minS, shifted[i])
		maxS = math.Max(maxS, shifted[i])
	}

	fill := func(a float64) float64 {
		s := 0.0
		for i := range shifted {
			x := shifted[i] - a
			if x < fs.lower[i] {
				x = fs.lower[i]
			} else if x > fs.upper[i] {
				x = fs.upper[i]
			}
			dst[i] = x
			s += x
		}
		return s - 1
	}

	lo := minS - fs.upper[0] - 1
	hi := maxS - fs.lower[0] + 1
	for i := 1; i < n; i++ {
		lo = math.Min(lo, minS-fs.upper[i]-1)
		hi = math.Max(hi, maxS-fs.lower[i]+1)
	}
	a := findDecreasingRoot(fill, lo, hi, 1e-15)
	residual := fill(a)

	// Spread the last rounding residual over the free coordinates.
	free := 0
	for i := range dst {
		if dst[i] > fs.lower[i] && dst[i] < fs.upper[i] {
			free++
		}
	}
	if free > 0 && residual != 0 {
		shift := residual / float64(free)
		for i := range dst {
			if dst[i] > fs.lower[i] && dst[i] < fs.upper[i] {
				dst[i] = math.Min(math.Max(dst[i]-shift, fs.lower[i]), fs.upper[i])
			}
		}
	}
}

// findDecreasingRoot locates a zero of a nonincreasing function with f(lo) >= 0 >= f(hi)
// using the Illinois variant of regula falsi, which terminates quickly on the
// piecewise linear functions produced by clipping.
func findDecreasingRoot(f func(float64) float64, lo, hi, tol float64) float64 {
	flo, fhi := f(lo), f(hi)
	if flo <= 0 {
		return lo
	}
	if fhi >= 0 {
		return hi
	}

	side := 0
	x := lo
	for i := 0; i < 300; i++ {
		x = (lo*fhi - hi*flo) / (fhi - flo)
		if !(x > lo && x < hi) {
			x = lo + (hi-lo)/2
		}
		fx := f(x)
		if math.Abs(fx) <= tol || hi-lo <= 1e-16*math.Max(1, math.Abs(x)) {
			return x
		}
		if fx > 0 {
			lo, flo = x, fx
			if side == 1 {
				fhi /= 2
			}
			side = 1
		} else {
			hi, fhi = x, fx
			if side == -1 {
				flo /= 2
			}
			side = -1
		}
	}
	return x
}
