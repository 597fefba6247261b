package classifier

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/srujkamble02/ishara/internal/detector"
)

// Activation functions supported by MLP layers.
const (
	ActivationLinear  = "linear"
	ActivationReLU    = "relu"
	ActivationSigmoid = "sigmoid"
	ActivationTanh    = "tanh"
	ActivationSoftmax = "softmax"
)

// Layer is one dense layer: out = activation(Weights * in + Bias).
// Weights is row-major with len(Bias) rows.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"`
}

type denseLayer struct {
	w          *mat.Dense
	b          *mat.VecDense
	activation string
}

// MLP is a feed-forward network taking FeatureSize inputs and producing
// NumLabels outputs.
type MLP struct {
	layers []denseLayer
}

// NewMLP validates layer shapes and builds the network.
func NewMLP(layers []Layer) (*MLP, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: mlp has no layers", ErrArtifact)
	}

	m := &MLP{layers: make([]denseLayer, 0, len(layers))}
	in := detector.FeatureSize
	for i, l := range layers {
		rows := len(l.Weights)
		if rows == 0 || rows != len(l.Bias) {
			return nil, fmt.Errorf("%w: layer %d has %d weight rows and %d biases", ErrArtifact, i, rows, len(l.Bias))
		}

		data := make([]float64, 0, rows*in)
		for r, row := range l.Weights {
			if len(row) != in {
				return nil, fmt.Errorf("%w: layer %d row %d has %d inputs, want %d", ErrArtifact, i, r, len(row), in)
			}
			data = append(data, row...)
		}

		act := l.Activation
		if act == "" {
			act = ActivationLinear
		}
		switch act {
		case ActivationLinear, ActivationReLU, ActivationSigmoid, ActivationTanh, ActivationSoftmax:
		default:
			return nil, fmt.Errorf("%w: layer %d has unknown activation %q", ErrArtifact, i, l.Activation)
		}

		m.layers = append(m.layers, denseLayer{
			w:          mat.NewDense(rows, in, data),
			b:          mat.NewVecDense(rows, append([]float64(nil), l.Bias...)),
			activation: act,
		})
		in = rows
	}

	if in != NumLabels {
		return nil, fmt.Errorf("%w: mlp produces %d outputs, want %d", ErrArtifact, in, NumLabels)
	}
	return m, nil
}

// Name implements Model.
func (m *MLP) Name() string { return KindMLP }

// Score runs a forward pass.
func (m *MLP) Score(ctx context.Context, fv detector.FeatureVector) (Scores, error) {
	var scores Scores
	if err := ctx.Err(); err != nil {
		return scores, err
	}

	x := mat.NewVecDense(detector.FeatureSize, append([]float64(nil), fv[:]...))
	for _, l := range m.layers {
		rows, _ := l.w.Dims()
		out := mat.NewVecDense(rows, nil)
		out.MulVec(l.w, x)
		out.AddVec(out, l.b)
		activate(l.activation, out.RawVector().Data)
		x = out
	}

	copy(scores[:], x.RawVector().Data)
	return scores, nil
}

func activate(name string, v []float64) {
	switch name {
	case ActivationReLU:
		for i := range v {
			if v[i] < 0 {
				v[i] = 0
			}
		}
	case ActivationSigmoid:
		for i := range v {
			v[i] = 1 / (1 + math.Exp(-v[i]))
		}
	case ActivationTanh:
		for i := range v {
			v[i] = math.Tanh(v[i])
		}
	case ActivationSoftmax:
		softmax(v)
	}
}

func softmax(v []float64) {
	peak := math.Inf(-1)
	for _, x := range v {
		peak = math.Max(peak, x)
	}
	var sum float64
	for i := range v {
		v[i] = math.Exp(v[i] - peak)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}
