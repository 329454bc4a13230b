package agent

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// network is a single-hidden-layer MLP with ReLU activation mapping a state
// feature vector to one Q-value per action.
type network struct {
	in, hidden, out int

	w1 *mat.Dense    // hidden x in
	b1 *mat.VecDense // hidden
	w2 *mat.Dense    // out x hidden
	b2 *mat.VecDense // out
}

// newNetwork initializes weights with scaled uniform noise (Xavier-style).
func newNetwork(in, hidden, out int, rng *rand.Rand) *network {
	w1 := make([]float64, hidden*in)
	limit1 := math.Sqrt(6.0 / float64(in+hidden))
	for i := range w1 {
		w1[i] = (rng.Float64()*2 - 1) * limit1
	}
	w2 := make([]float64, out*hidden)
	limit2 := math.Sqrt(6.0 / float64(hidden+out))
	for i := range w2 {
		w2[i] = (rng.Float64()*2 - 1) * limit2
	}
	return &network{
		in:     in,
		hidden: hidden,
		out:    out,
		w1:     mat.NewDense(hidden, in, w1),
		b1:     mat.NewVecDense(hidden, nil),
		w2:     mat.NewDense(out, hidden, w2),
		b2:     mat.NewVecDense(out, nil),
	}
}

// clone deep-copies the network.
func (n *network) clone() *network {
	return &network{
		in:     n.in,
		hidden: n.hidden,
		out:    n.out,
		w1:     mat.DenseCopyOf(n.w1),
		b1:     mat.VecDenseCopyOf(n.b1),
		w2:     mat.DenseCopyOf(n.w2),
		b2:     mat.VecDenseCopyOf(n.b2),
	}
}

// forward runs one pass, returning the pre-activation hidden vector, the
// activated hidden vector, and the output Q-values.
func (n *network) forward(x *mat.VecDense) (z1, h, y *mat.VecDense) {
	z1 = mat.NewVecDense(n.hidden, nil)
	z1.MulVec(n.w1, x)
	z1.AddVec(z1, n.b1)

	h = mat.NewVecDense(n.hidden, nil)
	for i := 0; i < n.hidden; i++ {
		h.SetVec(i, math.Max(0, z1.AtVec(i)))
	}

	y = mat.NewVecDense(n.out, nil)
	y.MulVec(n.w2, h)
	y.AddVec(y, n.b2)
	return z1, h, y
}

// qValues evaluates the network for a feature vector.
func (n *network) qValues(features []float64) ([]float64, error) {
	if len(features) != n.in {
		return nil, fmt.Errorf("feature vector has %d entries, network expects %d", len(features), n.in)
	}
	_, _, y := n.forward(mat.NewVecDense(n.in, features))
	out := make([]float64, n.out)
	for i := range out {
		out[i] = y.AtVec(i)
	}
	return out, nil
}

// gradSample is one mini-batch element: the error is taken on the chosen
// action only, against a fixed learning target.
type gradSample struct {
	features []float64
	action   int
	target   float64
}

// step applies one averaged SGD step of the squared TD error over the batch.
func (n *network) step(batch []gradSample, lr float64) {
	dw1 := mat.NewDense(n.hidden, n.in, nil)
	db1 := mat.NewVecDense(n.hidden, nil)
	dw2 := mat.NewDense(n.out, n.hidden, nil)
	db2 := mat.NewVecDense(n.out, nil)

	for _, sample := range batch {
		x := mat.NewVecDense(n.in, sample.features)
		z1, h, y := n.forward(x)

		// Error only on the selected action's output.
		delta := y.AtVec(sample.action) - sample.target

		db2.SetVec(sample.action, db2.AtVec(sample.action)+delta)
		for j := 0; j < n.hidden; j++ {
			dw2.Set(sample.action, j, dw2.At(sample.action, j)+delta*h.AtVec(j))
		}
		for j := 0; j < n.hidden; j++ {
			if z1.AtVec(j) <= 0 {
				continue
			}
			dz := delta * n.w2.At(sample.action, j)
			db1.SetVec(j, db1.AtVec(j)+dz)
			for i := 0; i < n.in; i++ {
				dw1.Set(j, i, dw1.At(j, i)+dz*x.AtVec(i))
			}
		}
	}

	scale := lr / float64(len(batch))
	dw1.Scale(scale, dw1)
	db1.ScaleVec(scale, db1)
	dw2.Scale(scale, dw2)
	db2.ScaleVec(scale, db2)

	n.w1.Sub(n.w1, dw1)
	n.b1.SubVec(n.b1, db1)
	n.w2.Sub(n.w2, dw2)
	n.b2.SubVec(n.b2, db2)
}

// deepqParams is the serialized form of the online network.
type deepqParams struct {
	In     int         `json:"in"`
	Hidden int         `json:"hidden"`
	Out    int         `json:"out"`
	W1     [][]float64 `json:"w1"`
	B1     []float64   `json:"b1"`
	W2     [][]float64 `json:"w2"`
	B2     []float64   `json:"b2"`
}

func (n *network) params() deepqParams {
	p := deepqParams{
		In:     n.in,
		Hidden: n.hidden,
		Out:    n.out,
		W1:     make([][]float64, n.hidden),
		B1:     make([]float64, n.hidden),
		W2:     make([][]float64, n.out),
		B2:     make([]float64, n.out),
	}
	for j := 0; j < n.hidden; j++ {
		row := make([]float64, n.in)
		mat.Row(row, j, n.w1)
		p.W1[j] = row
		p.B1[j] = n.b1.AtVec(j)
	}
	for k := 0; k < n.out; k++ {
		row := make([]float64, n.hidden)
		mat.Row(row, k, n.w2)
		p.W2[k] = row
		p.B2[k] = n.b2.AtVec(k)
	}
	return p
}

func networkFromParams(p deepqParams) (*network, error) {
	if p.In <= 0 || p.Hidden <= 0 || p.Out <= 0 {
		return nil, fmt.Errorf("non-positive network dimensions %dx%dx%d", p.In, p.Hidden, p.Out)
	}
	if len(p.W1) != p.Hidden || len(p.B1) != p.Hidden || len(p.W2) != p.Out || len(p.B2) != p.Out {
		return nil, fmt.Errorf("parameter shapes do not match dimensions %dx%dx%d", p.In, p.Hidden, p.Out)
	}
	n := &network{
		in:     p.In,
		hidden: p.Hidden,
		out:    p.Out,
		w1:     mat.NewDense(p.Hidden, p.In, nil),
		b1:     mat.NewVecDense(p.Hidden, p.B1),
		w2:     mat.NewDense(p.Out, p.Hidden, nil),
		b2:     mat.NewVecDense(p.Out, p.B2),
	}
	for j, row := range p.W1 {
		if len(row) != p.In {
			return nil, fmt.Errorf("w1 row %d has %d entries, want %d", j, len(row), p.In)
		}
		n.w1.SetRow(j, row)
	}
	for k, row := range p.W2 {
		if len(row) != p.Hidden {
			return nil, fmt.Errorf("w2 row %d has %d entries, want %d", k, len(row), p.Hidden)
		}
		n.w2.SetRow(k, row)
	}
	return n, nil
}
