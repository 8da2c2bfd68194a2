package ml

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// ReportPoints is roughly how many loss samples one pass over the training
// set sends to the cost channel.
const ReportPoints = 400

// Classifier drives a Model over labelled examples.
type Classifier struct {
	Model Model
	// Costs receives sampled loss values during Train. Nil disables reporting.
	Costs chan<- float64
}

// Train makes one pass over the examples in order: feedforward, optionally
// report the loss, backprop. Nothing is shuffled or batched.
func (c *Classifier) Train(xs, ys []*Matrix) error {
	if len(xs) != len(ys) {
		return fmt.Errorf("train: %d inputs but %d targets", len(xs), len(ys))
	}
	n := len(xs)
	every := n / ReportPoints

	for i, x := range xs {
		pred := c.Model.Feedforward(x)
		if c.Costs != nil && (n < ReportPoints || i%every == 0) {
			c.Costs <- c.Model.Loss(pred, ys[i])
		}
		c.Model.Backprop(pred, ys[i])
	}
	return nil
}

// Predict returns the index of the largest output; the first maximum wins.
func (c *Classifier) Predict(x *Matrix) int {
	return c.Model.Feedforward(x).ArgMax()
}

// Validate returns the fraction of examples whose prediction equals the label.
func (c *Classifier) Validate(xs []*Matrix, labels []int) (float64, error) {
	if len(xs) != len(labels) {
		return 0, fmt.Errorf("validate: %d inputs but %d labels", len(xs), len(labels))
	}
	if len(xs) == 0 {
		return 0, fmt.Errorf("validate: no examples")
	}
	correct := 0
	for i, x := range xs {
		if c.Predict(x) == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(xs)), nil
}

// OneHot returns a classes×1 target vector with a one at label.
func OneHot(label, classes int) *Matrix {
	if label < 0 || label >= classes {
		panic(fmt.Sprintf("label %d out of range [0, %d)", label, classes))
	}
	v := NewVector(classes)
	v.data[label] = 1
	return v
}

func OneHotAll(labels []int, classes int) []*Matrix {
	out := make([]*Matrix, len(labels))
	for i, l := range labels {
		out[i] = OneHot(l, classes)
	}
	return out
}

// -------- EXPERIMENTS -------- //

// Experiment is one independent training run. Build receives a private RNG
// seeded with Seed and must return a fresh model.
type Experiment struct {
	Name    string
	Seed    uint64
	Classes int
	Build   func(rng *rand.Rand) Model

	TrainX      []*Matrix
	TrainLabels []int
	TestX       []*Matrix
	TestLabels  []int
}

type Result struct {
	Name     string
	Accuracy float64
	Duration time.Duration
	Err      error
}

// CostSink consumes the loss samples of one experiment until costs is closed.
// It must keep draining costs after an error.
type CostSink func(name string, costs <-chan float64) error

// RunExperiments trains every experiment in its own goroutine with its own
// model, RNG and cost channel. A panic inside one experiment is reported in
// its Result and does not affect the others. Results keep the input order.
func RunExperiments(exps []Experiment, sink CostSink) []Result {
	results := make([]Result, len(exps))

	var wg sync.WaitGroup
	wg.Add(len(exps))
	for i := range exps {
		go func(id int) {
			defer wg.Done()
			results[id] = runExperiment(exps[id], sink)
		}(i)
	}
	wg.Wait()
	return results
}

func runExperiment(exp Experiment, sink CostSink) (res Result) {
	res.Name = exp.Name
	start := time.Now()

	var costs chan float64
	sinkErr := make(chan error, 1)
	if sink != nil {
		costs = make(chan float64, ReportPoints)
		go func() { sinkErr <- sink(exp.Name, costs) }()
	}

	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("experiment %s panicked: %v", exp.Name, r)
		}
		if costs != nil {
			close(costs)
			if err := <-sinkErr; err != nil && res.Err == nil {
				res.Err = fmt.Errorf("experiment %s: cost sink: %w", exp.Name, err)
			}
		}
		res.Duration = time.Since(start)
	}()

	rng := rand.New(rand.NewPCG(exp.Seed, exp.Seed^0x9e3779b97f4a7c15))
	clf := &Classifier{Model: exp.Build(rng), Costs: costs}

	if err := clf.Train(exp.TrainX, OneHotAll(exp.TrainLabels, exp.Classes)); err != nil {
		res.Err = err
		return res
	}
	acc, err := clf.Validate(exp.TestX, exp.TestLabels)
	if err != nil {
		res.Err = err
		return res
	}
	res.Accuracy = acc
	return res
}
