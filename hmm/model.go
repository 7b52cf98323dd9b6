// Package hmm implements a hidden Markov model with diagonal-covariance
// Gaussian emissions.
//
// Models are trained with Baum-Welch (see Fitter) on one or more
// observation sequences passed as a single concatenated frame matrix plus
// the length of each sequence. Scores are log-likelihoods computed with the
// scaled forward algorithm.
package hmm

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

const log2Pi = 1.8378770664093453 // math.Log(2 * math.Pi)

// Params holds the parameters of a trained model. Matrices are stored
// row-major: TransMat[i][j] is the probability of moving from state i to j,
// Means[i][d] and Vars[i][d] describe feature d in state i.
type Params struct {
	StartProb []float64   `json:"start_prob" msgpack:"start_prob"`
	TransMat  [][]float64 `json:"trans_mat" msgpack:"trans_mat"`
	Means     [][]float64 `json:"means" msgpack:"means"`
	Vars      [][]float64 `json:"vars" msgpack:"vars"`
}

// Model is a trained Gaussian HMM.
type Model struct {
	p Params

	// LogLikelihood is the training log-likelihood under the returned
	// parameters.
	LogLikelihood float64
	// Iterations is the number of EM passes that were run.
	Iterations int
}

// NewModel validates p and returns a model using a copy of it.
func NewModel(p Params) (*Model, error) {
	n := len(p.StartProb)
	if n == 0 {
		return nil, fmt.Errorf("%w: no states", ErrInvalidInput)
	}
	if len(p.TransMat) != n || len(p.Means) != n || len(p.Vars) != n {
		return nil, fmt.Errorf("%w: parameter shapes disagree on state count %d", ErrInvalidInput, n)
	}
	d := len(p.Means[0])
	if d == 0 {
		return nil, fmt.Errorf("%w: no features", ErrInvalidInput)
	}
	for i := 0; i < n; i++ {
		if len(p.TransMat[i]) != n {
			return nil, fmt.Errorf("%w: transition row %d has %d columns", ErrInvalidInput, i, len(p.TransMat[i]))
		}
		if len(p.Means[i]) != d || len(p.Vars[i]) != d {
			return nil, fmt.Errorf("%w: state %d has inconsistent feature count", ErrInvalidInput, i)
		}
		for _, v := range p.Vars[i] {
			if !(v > 0) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: state %d has non-positive variance", ErrInvalidInput, i)
			}
		}
	}
	return &Model{p: p.clone()}, nil
}

func (p Params) clone() Params {
	c := Params{
		StartProb: append([]float64(nil), p.StartProb...),
		TransMat:  make([][]float64, len(p.TransMat)),
		Means:     make([][]float64, len(p.Means)),
		Vars:      make([][]float64, len(p.Vars)),
	}
	for i := range p.TransMat {
		c.TransMat[i] = append([]float64(nil), p.TransMat[i]...)
	}
	for i := range p.Means {
		c.Means[i] = append([]float64(nil), p.Means[i]...)
	}
	for i := range p.Vars {
		c.Vars[i] = append([]float64(nil), p.Vars[i]...)
	}
	return c
}

// States returns the number of hidden states.
func (m *Model) States() int { return len(m.p.StartProb) }

// Features returns the emission dimensionality.
func (m *Model) Features() int { return len(m.p.Means[0]) }

// Params returns a copy of the model parameters.
func (m *Model) Params() Params { return m.p.clone() }

// Score returns the log-likelihood of the observations under the model.
// Sequences are scored independently and their log-likelihoods summed.
func (m *Model) Score(obs [][]float64, lengths []int) (float64, error) {
	if err := checkInput(obs, lengths); err != nil {
		return 0, err
	}
	if d := len(obs[0]); d != m.Features() {
		return 0, fmt.Errorf("%w: model has %d features, observations have %d", ErrDimension, m.Features(), d)
	}

	var total float64
	start := 0
	for _, l := range lengths {
		ll := m.forward(obs[start:start+l], nil, nil, nil)
		if math.IsNaN(ll) || math.IsInf(ll, 0) {
			return 0, fmt.Errorf("%w: log-likelihood is %v", ErrDegenerate, ll)
		}
		total += ll
		start += l
	}
	return total, nil
}

// logEmission fills lb[t][i] with log N(obs[t] | state i).
func (m *Model) logEmission(obs [][]float64, lb [][]float64) {
	for t, x := range obs {
		for i := range m.p.Means {
			mean, vars := m.p.Means[i], m.p.Vars[i]
			var s float64
			for d, v := range x {
				z := v - mean[d]
				s += log2Pi + math.Log(vars[d]) + z*z/vars[d]
			}
			lb[t][i] = -0.5 * s
		}
	}
}

// forward runs the scaled forward pass over one sequence and returns its
// log-likelihood. When alpha, scale and b are non-nil they receive the
// normalized forward variables, the per-frame scaling factors and the
// emission probabilities rescaled per frame, for reuse by the backward pass.
func (m *Model) forward(obs [][]float64, alpha [][]float64, scale []float64, b [][]float64) float64 {
	n := m.States()
	T := len(obs)
	if alpha == nil {
		alpha = makeMatrix(T, n)
		scale = make([]float64, T)
		b = makeMatrix(T, n)
	}

	m.logEmission(obs, b)

	var ll float64
	for t := 0; t < T; t++ {
		// rescale emissions by the frame maximum to stay in range
		mx := floats.Max(b[t])
		if math.IsInf(mx, -1) || math.IsNaN(mx) {
			return math.Inf(-1)
		}
		for i := range b[t] {
			b[t][i] = math.Exp(b[t][i] - mx)
		}
		ll += mx

		if t == 0 {
			for i := 0; i < n; i++ {
				alpha[0][i] = m.p.StartProb[i] * b[0][i]
			}
		} else {
			for j := 0; j < n; j++ {
				var s float64
				for i := 0; i < n; i++ {
					s += alpha[t-1][i] * m.p.TransMat[i][j]
				}
				alpha[t][j] = s * b[t][j]
			}
		}

		c := floats.Sum(alpha[t])
		if !(c > 0) {
			return math.Inf(-1)
		}
		floats.Scale(1/c, alpha[t])
		scale[t] = c
		ll += math.Log(c)
	}
	return ll
}

// Sample draws a state path and observation sequence of the given length.
func (m *Model) Sample(r *rand.Rand, frames int) ([][]float64, []int) {
	obs := make([][]float64, frames)
	states := make([]int, frames)
	st := pick(r, m.p.StartProb)
	for t := 0; t < frames; t++ {
		if t > 0 {
			st = pick(r, m.p.TransMat[st])
		}
		states[t] = st
		x := make([]float64, m.Features())
		for d := range x {
			x[d] = m.p.Means[st][d] + r.NormFloat64()*math.Sqrt(m.p.Vars[st][d])
		}
		obs[t] = x
	}
	return obs, states
}

func pick(r *rand.Rand, p []float64) int {
	u := r.Float64()
	var acc float64
	for i, v := range p {
		acc += v
		if u < acc {
			return i
		}
	}
	return len(p) - 1
}

func makeMatrix(r, c int) [][]float64 {
	buf := make([]float64, r*c)
	x := make([][]float64, r)
	for i := range x {
		x[i] = buf[i*c : (i+1)*c : (i+1)*c]
	}
	return x
}

// checkInput validates a concatenated observation matrix against the
// per-sequence lengths.
func checkInput(obs [][]float64, lengths []int) error {
	if len(obs) == 0 {
		return fmt.Errorf("%w: no observations", ErrInvalidInput)
	}
	if len(lengths) == 0 {
		return fmt.Errorf("%w: no sequence lengths", ErrInvalidInput)
	}
	total := 0
	for i, l := range lengths {
		if l <= 0 {
			return fmt.Errorf("%w: sequence %d has length %d", ErrInvalidInput, i, l)
		}
		total += l
	}
	if total != len(obs) {
		return fmt.Errorf("%w: lengths sum to %d, have %d frames", ErrInvalidInput, total, len(obs))
	}
	d := len(obs[0])
	if d == 0 {
		return fmt.Errorf("%w: frames have no features", ErrInvalidInput)
	}
	for t, x := range obs {
		if len(x) != d {
			return fmt.Errorf("%w: frame %d has %d features, want %d", ErrDimension, t, len(x), d)
		}
		for _, v := range x {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: frame %d is not finite", ErrInvalidInput, t)
			}
		}
	}
	return nil
}
