package hmm

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultMaxIter = 1000
	DefaultTol     = 1e-2
	DefaultMinVar  = 1e-3

	// a state whose expected occupancy falls below this has collapsed
	minOccupancy = 1e-10

	kmeansMaxIter = 300
)

// Fitter trains Gaussian HMMs with Baum-Welch. The zero value uses the
// package defaults.
type Fitter struct {
	// MaxIter caps the number of EM iterations.
	MaxIter int
	// Tol is the log-likelihood gain below which EM is considered
	// converged.
	Tol float64
	// MinVar is added to every variance estimate.
	MinVar float64
}

func (f Fitter) withDefaults() Fitter {
	if f.MaxIter <= 0 {
		f.MaxIter = DefaultMaxIter
	}
	if f.Tol <= 0 {
		f.Tol = DefaultTol
	}
	if f.MinVar <= 0 {
		f.MinVar = DefaultMinVar
	}
	return f
}

// Fit trains a model with the given number of states on the concatenated
// observations. The same seed always produces the same model.
func (f Fitter) Fit(obs [][]float64, lengths []int, states int, seed uint64) (*Model, error) {
	f = f.withDefaults()

	if states < 1 {
		return nil, fmt.Errorf("%w: %d states", ErrInvalidInput, states)
	}
	if err := checkInput(obs, lengths); err != nil {
		return nil, err
	}
	if len(obs) < states {
		return nil, fmt.Errorf("%w: %d frames for %d states", ErrTooFewSamples, len(obs), states)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	m := f.initialModel(obs, states, rng)

	seqs := split(obs, lengths)
	acc := newAccumulator(states, len(obs[0]))

	prev := math.Inf(-1)
	for iter := 1; iter <= f.MaxIter; iter++ {
		acc.reset()
		ll, err := acc.estep(m, seqs)
		if err != nil {
			return nil, err
		}
		if err := acc.mstep(m, f.MinVar); err != nil {
			return nil, err
		}
		m.LogLikelihood = ll
		m.Iterations = iter

		if iter > 1 && ll-prev < f.Tol {
			// ll was computed before the M-step; report the final parameters
			final, err := m.Score(obs, lengths)
			if err != nil {
				return nil, err
			}
			m.LogLikelihood = final
			return m, nil
		}
		prev = ll
	}

	return nil, fmt.Errorf("%w: %d iterations, log-likelihood %.4f", ErrNotConverged, f.MaxIter, m.LogLikelihood)
}

// initialModel starts from uniform start and transition probabilities,
// k-means centroids as state means and the pooled feature variance.
func (f Fitter) initialModel(obs [][]float64, states int, rng *rand.Rand) *Model {
	d := len(obs[0])

	start := make([]float64, states)
	for i := range start {
		start[i] = 1 / float64(states)
	}
	trans := makeMatrix(states, states)
	for i := range trans {
		for j := range trans[i] {
			trans[i][j] = 1 / float64(states)
		}
	}

	col := make([]float64, len(obs))
	pooled := make([]float64, d)
	for k := 0; k < d; k++ {
		for t, x := range obs {
			col[t] = x[k]
		}
		_, v := stat.MeanVariance(col, nil)
		if math.IsNaN(v) {
			v = 0
		}
		pooled[k] = v + f.MinVar
	}
	vars := makeMatrix(states, d)
	for i := range vars {
		copy(vars[i], pooled)
	}

	return &Model{p: Params{
		StartProb: start,
		TransMat:  trans,
		Means:     kmeans(obs, states, rng),
		Vars:      vars,
	}}
}

func split(obs [][]float64, lengths []int) [][][]float64 {
	seqs := make([][][]float64, len(lengths))
	start := 0
	for i, l := range lengths {
		seqs[i] = obs[start : start+l]
		start += l
	}
	return seqs
}

// accumulator collects the expected sufficient statistics of one EM pass.
type accumulator struct {
	n, d int

	start  []float64
	trans  [][]float64
	occ    []float64
	sumX   [][]float64
	sumXX  [][]float64
	wkNext []float64
}

func newAccumulator(n, d int) *accumulator {
	return &accumulator{
		n:      n,
		d:      d,
		start:  make([]float64, n),
		trans:  makeMatrix(n, n),
		occ:    make([]float64, n),
		sumX:   makeMatrix(n, d),
		sumXX:  makeMatrix(n, d),
		wkNext: make([]float64, n),
	}
}

func (a *accumulator) reset() {
	zero(a.start)
	zero(a.occ)
	for i := 0; i < a.n; i++ {
		zero(a.trans[i])
		zero(a.sumX[i])
		zero(a.sumXX[i])
	}
}

// estep runs forward-backward over every sequence and accumulates the
// posterior statistics. It returns the total log-likelihood.
func (a *accumulator) estep(m *Model, seqs [][][]float64) (float64, error) {
	var total float64
	for _, seq := range seqs {
		T := len(seq)
		alpha := makeMatrix(T, a.n)
		beta := makeMatrix(T, a.n)
		b := makeMatrix(T, a.n)
		scale := make([]float64, T)

		ll := m.forward(seq, alpha, scale, b)
		if math.IsNaN(ll) || math.IsInf(ll, 0) {
			return 0, fmt.Errorf("%w: log-likelihood is %v", ErrDegenerate, ll)
		}
		total += ll

		for i := 0; i < a.n; i++ {
			beta[T-1][i] = 1
		}
		for t := T - 2; t >= 0; t-- {
			for j := 0; j < a.n; j++ {
				a.wkNext[j] = b[t+1][j] * beta[t+1][j] / scale[t+1]
			}
			for i := 0; i < a.n; i++ {
				beta[t][i] = floats.Dot(m.p.TransMat[i], a.wkNext)
			}
			// expected transitions t -> t+1
			for i := 0; i < a.n; i++ {
				for j := 0; j < a.n; j++ {
					a.trans[i][j] += alpha[t][i] * m.p.TransMat[i][j] * a.wkNext[j]
				}
			}
		}

		for t, x := range seq {
			for i := 0; i < a.n; i++ {
				g := alpha[t][i] * beta[t][i]
				if t == 0 {
					a.start[i] += g
				}
				a.occ[i] += g
				for k, v := range x {
					a.sumX[i][k] += g * v
					a.sumXX[i][k] += g * v * v
				}
			}
		}
	}
	return total, nil
}

// mstep replaces the model parameters with their re-estimates.
func (a *accumulator) mstep(m *Model, minVar float64) error {
	p := &m.p

	copy(p.StartProb, a.start)
	if err := normalize(p.StartProb); err != nil {
		return fmt.Errorf("%w: start probabilities: %w", ErrDegenerate, err)
	}

	for i := 0; i < a.n; i++ {
		copy(p.TransMat[i], a.trans[i])
		if err := normalize(p.TransMat[i]); err != nil {
			return fmt.Errorf("%w: transitions from state %d: %w", ErrDegenerate, i, err)
		}
	}

	for i := 0; i < a.n; i++ {
		w := a.occ[i]
		if w < minOccupancy {
			return fmt.Errorf("%w: state %d has occupancy %g", ErrDegenerate, i, w)
		}
		for k := 0; k < a.d; k++ {
			mean := a.sumX[i][k] / w
			v := a.sumXX[i][k]/w - mean*mean
			if v < 0 {
				v = 0
			}
			p.Means[i][k] = mean
			p.Vars[i][k] = v + minVar
		}
	}
	return nil
}

func normalize(x []float64) error {
	s := floats.Sum(x)
	if !(s > 0) || math.IsInf(s, 0) {
		return fmt.Errorf("sum is %g", s)
	}
	floats.Scale(1/s, x)
	return nil
}

func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}

// kmeans returns k centroids of obs, seeded with k-means++.
func kmeans(obs [][]float64, k int, rng *rand.Rand) [][]float64 {
	d := len(obs[0])
	centers := makeMatrix(k, d)

	// k-means++ seeding
	dist := make([]float64, len(obs))
	copy(centers[0], obs[rng.IntN(len(obs))])
	for c := 1; c < k; c++ {
		for t, x := range obs {
			dist[t] = math.Inf(1)
			for j := 0; j < c; j++ {
				dist[t] = math.Min(dist[t], sqDist(x, centers[j]))
			}
		}
		total := floats.Sum(dist)
		if total == 0 {
			// fewer distinct points than centers
			copy(centers[c], obs[rng.IntN(len(obs))])
			continue
		}
		u := rng.Float64() * total
		idx := len(obs) - 1
		var acc float64
		for t, v := range dist {
			acc += v
			if u < acc {
				idx = t
				break
			}
		}
		copy(centers[c], obs[idx])
	}

	assign := make([]int, len(obs))
	for i := range assign {
		assign[i] = -1
	}
	counts := make([]float64, k)
	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for t, x := range obs {
			best, bestD := 0, math.Inf(1)
			for j := 0; j < k; j++ {
				if dd := sqDist(x, centers[j]); dd < bestD {
					best, bestD = j, dd
				}
			}
			if assign[t] != best {
				assign[t] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		zero(counts)
		sums := makeMatrix(k, d)
		for t, x := range obs {
			counts[assign[t]]++
			floats.Add(sums[assign[t]], x)
		}
		for j := 0; j < k; j++ {
			// empty clusters keep their previous center
			if counts[j] == 0 {
				continue
			}
			floats.ScaleTo(centers[j], 1/counts[j], sums[j])
		}
	}
	return centers
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		z := a[i] - b[i]
		s += z * z
	}
	return s
}
