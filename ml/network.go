package ml

import (
	"fmt"
	"math/rand/v2"
)

// Model is the contract the training driver relies on. Feedforward caches
// per-layer state, so every Feedforward must be followed by the Backprop of
// the same example before the next Feedforward.
type Model interface {
	Feedforward(x *Matrix) *Matrix
	// Backprop derives the loss gradient itself and updates every parameter.
	Backprop(pred, target *Matrix)
	Loss(pred, target *Matrix) float64
}

// Network is a fixed chain of layers trained against one loss.
type Network struct {
	Layers *Stack
	LossFn Loss
}

func NewNetwork(loss Loss, layers ...Layer) *Network {
	return &Network{Layers: NewStack(layers...), LossFn: loss}
}

func (nw *Network) Feedforward(x *Matrix) *Matrix {
	return nw.Layers.Forward(x)
}

func (nw *Network) Backprop(pred, target *Matrix) {
	nw.Layers.Backward(nw.LossFn.Grad(pred, target))
}

func (nw *Network) Loss(pred, target *Matrix) float64 {
	return nw.LossFn.Func(pred, target)
}

func (nw *Network) InShape() Shape  { return nw.Layers.InShape() }
func (nw *Network) OutShape() Shape { return nw.Layers.OutShape() }

// -------- DENSE -------- //

// DenseConfig describes a Dense block: an input affine layer, HiddenLayers
// identical hidden layers, a linear output layer, layer normalisation and
// softmax.
type DenseConfig struct {
	Inputs       int
	Hidden       int
	HiddenLayers int
	Outputs      int
	Activation   ElementwiseActivation
	InitRange    float64 // zero means 0.5
}

func (cfg DenseConfig) layerOptions(act Activation) []LayerOption {
	opts := []LayerOption{WithActivation(act)}
	if cfg.InitRange > 0 {
		opts = append(opts, WithInitRange(cfg.InitRange))
	}
	return opts
}

func NewDenseBlock(cfg DenseConfig, opt OptimizerFactory, rng *rand.Rand) *Stack {
	if cfg.Activation.fn == nil {
		cfg.Activation = Relu
	}
	hidden := cfg.layerOptions(cfg.Activation)

	layers := []Layer{NewAffine(cfg.Inputs, cfg.Hidden, opt, rng, hidden...)}
	for i := 0; i < cfg.HiddenLayers; i++ {
		layers = append(layers, NewAffine(cfg.Hidden, cfg.Hidden, opt, rng, hidden...))
	}
	layers = append(layers,
		NewAffine(cfg.Hidden, cfg.Outputs, opt, rng, cfg.layerOptions(Linear)...),
		NewLayerNorm(cfg.Outputs, 1),
		NewSoftmax(cfg.Outputs),
	)
	return NewStack(layers...)
}

// NewANN is a Dense block trained against loss.
func NewANN(cfg DenseConfig, loss Loss, opt OptimizerFactory, rng *rand.Rand) *Network {
	return NewNetwork(loss, NewDenseBlock(cfg, opt, rng))
}

// MLPConfig lists layer widths from input to output; Activations[i] is
// applied by the layer mapping Sizes[i] to Sizes[i+1].
type MLPConfig struct {
	Sizes       []int
	Activations []Activation
	Loss        Loss
}

func NewMLP(cfg MLPConfig, opt OptimizerFactory, rng *rand.Rand) *Network {
	if len(cfg.Sizes) < 2 || len(cfg.Activations) != len(cfg.Sizes)-1 {
		panic(fmt.Sprintf("MLP needs one activation per layer: %d sizes, %d activations", len(cfg.Sizes), len(cfg.Activations)))
	}
	layers := make([]Layer, 0, len(cfg.Activations))
	for i, act := range cfg.Activations {
		layers = append(layers, NewAffine(cfg.Sizes[i], cfg.Sizes[i+1], opt, rng, WithActivation(act)))
	}
	return NewNetwork(cfg.Loss, layers...)
}

// -------- CNN -------- //

// ConvStage is one convolution -> relu -> max-pool step with square kernel
// and pooling window.
type ConvStage struct {
	Kernel int
	Pool   int
}

// CNNConfig describes Branches parallel convolutional branches over the same
// image. Their flattened outputs are concatenated and fed to a sigmoid affine
// stack of widths Hidden, a linear layer of Classes and a softmax.
type CNNConfig struct {
	Height, Width int
	Branches      int
	Stages        []ConvStage
	Hidden        []int
	Classes       int
}

func NewCNN(cfg CNNConfig, opt OptimizerFactory, rng *rand.Rand) *Network {
	if cfg.Branches < 1 || len(cfg.Stages) == 0 {
		panic("CNN needs at least one branch and one stage")
	}
	branches := make([]Layer, cfg.Branches)
	for b := range branches {
		h, w := cfg.Height, cfg.Width
		var layers []Layer
		for _, st := range cfg.Stages {
			conv := NewConv2D(h, w, st.Kernel, st.Kernel, opt, rng)
			h, w = conv.OutShape().Rows, conv.OutShape().Cols
			pool := NewMaxPool2D(h, w, st.Pool, st.Pool)
			layers = append(layers, conv, NewActivationLayer(h, w, Relu), pool)
			h, w = pool.OutShape().Rows, pool.OutShape().Cols
		}
		branches[b] = NewStack(append(layers, NewFlatten(h, w))...)
	}

	parallel := NewParallel(branches...)
	layers := []Layer{parallel}
	in := parallel.OutShape().Rows
	for _, width := range cfg.Hidden {
		layers = append(layers, NewAffine(in, width, opt, rng, WithActivation(Sigmoid)))
		in = width
	}
	layers = append(layers,
		NewAffine(in, cfg.Classes, opt, rng, WithActivation(Linear)),
		NewSoftmax(cfg.Classes),
	)
	return NewNetwork(CrossEntropy, layers...)
}

// -------- RECURRENT -------- //

// RNNConfig feeds the last output of a recurrent layer into a Dense block.
// Dense.Inputs must equal Outputs for the RNN and Hidden for the LSTM.
type RNNConfig struct {
	Steps, Inputs, Hidden, Outputs int
	Dense                          DenseConfig
	LayerOptions                   []LayerOption
}

func NewRNNClassifier(cfg RNNConfig, opt OptimizerFactory, rng *rand.Rand) *Network {
	cell := NewRNNCell(cfg.Steps, cfg.Inputs, cfg.Hidden, cfg.Outputs, opt, rng, cfg.LayerOptions...)
	return NewNetwork(CrossEntropy,
		cell,
		NewLastStep(cfg.Steps, cfg.Outputs),
		NewDenseBlock(cfg.Dense, opt, rng),
	)
}

func NewLSTMClassifier(cfg RNNConfig, opt OptimizerFactory, rng *rand.Rand) *Network {
	lstm := NewLSTM(cfg.Steps, cfg.Inputs, cfg.Hidden, opt, rng, cfg.LayerOptions...)
	return NewNetwork(CrossEntropy,
		lstm,
		NewLastStep(cfg.Steps, cfg.Hidden),
		NewDenseBlock(cfg.Dense, opt, rng),
	)
}

// -------- TRANSFORMER -------- //

// TransformerConfig describes an encoder over a Steps×Embed sequence:
// positional encoding, Blocks repetitions of attention followed by a relu
// affine layer over the flattened sequence, then a sigmoid head of widths
// Hidden and a softmax output of Classes.
type TransformerConfig struct {
	Steps, Embed, KeyDim int
	Blocks               int
	Hidden               []int
	Classes              int
}

func NewTransformer(cfg TransformerConfig, opt OptimizerFactory, rng *rand.Rand) *Network {
	n, m := cfg.Steps, cfg.Embed
	layers := []Layer{NewPositionalEncoding(n, m)}
	for b := 0; b < cfg.Blocks; b++ {
		layers = append(layers,
			NewAttention(n, m, cfg.KeyDim, opt, rng),
			NewFlatten(n, m),
			NewAffine(n*m, n*m, opt, rng, WithActivation(Relu)),
			NewUnflatten(n, m),
		)
	}
	layers = append(layers, NewFlatten(n, m))
	in := n * m
	for _, width := range cfg.Hidden {
		layers = append(layers, NewAffine(in, width, opt, rng, WithActivation(Sigmoid)))
		in = width
	}
	layers = append(layers, NewAffine(in, cfg.Classes, opt, rng, WithActivation(Softmax)))
	return NewNetwork(CrossEntropy, layers...)
}

// -------- COMPOSITION LAYERS -------- //

// LastStep keeps the final row of a T×Y sequence as a Y×1 vector. Earlier
// steps receive a zero gradient.
type LastStep struct {
	in Shape
}

func NewLastStep(steps, width int) *LastStep {
	return &LastStep{in: Shape{steps, width}}
}

func (l *LastStep) InShape() Shape  { return l.in }
func (l *LastStep) OutShape() Shape { return Shape{l.in.Cols, 1} }

func (l *LastStep) Forward(x *Matrix) *Matrix {
	mustShape("LastStep input", x, l.in.Rows, l.in.Cols)
	return x.Row(l.in.Rows - 1)
}

func (l *LastStep) Backward(g *Matrix) *Matrix {
	out := NewMatrix(l.in.Rows, l.in.Cols)
	out.SetRow(l.in.Rows-1, g)
	return out
}

// Parallel runs every branch on the same input and stacks their vector
// outputs into one column. The input gradient is the sum over branches.
type Parallel struct {
	Branches []Layer
}

func NewParallel(branches ...Layer) *Parallel {
	if len(branches) == 0 {
		panic("NewParallel: no branches")
	}
	in := branches[0].InShape()
	for i, b := range branches {
		if b.InShape() != in {
			panic(fmt.Sprintf("branch %d expects %v, branch 0 expects %v", i, b.InShape(), in))
		}
		if b.OutShape().Cols != 1 {
			panic(fmt.Sprintf("branch %d outputs %v, want a column vector", i, b.OutShape()))
		}
	}
	return &Parallel{Branches: branches}
}

func (p *Parallel) InShape() Shape { return p.Branches[0].InShape() }

func (p *Parallel) OutShape() Shape {
	rows := 0
	for _, b := range p.Branches {
		rows += b.OutShape().Rows
	}
	return Shape{rows, 1}
}

func (p *Parallel) Forward(x *Matrix) *Matrix {
	out := NewVector(p.OutShape().Rows)
	offset := 0
	for _, b := range p.Branches {
		y := b.Forward(x)
		copy(out.data[offset:], y.data)
		offset += len(y.data)
	}
	return out
}

func (p *Parallel) Backward(g *Matrix) *Matrix {
	mustShape("Parallel gradient", g, p.OutShape().Rows, 1)
	in := p.InShape()
	dx := NewMatrix(in.Rows, in.Cols)
	offset := 0
	for _, b := range p.Branches {
		n := b.OutShape().Rows
		dx.Add(b.Backward(VectorFromSlice(g.data[offset : offset+n])))
		offset += n
	}
	return dx
}
