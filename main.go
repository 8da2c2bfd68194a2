package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/b0tShaman/gradflow/config"
	"github.com/b0tShaman/gradflow/data"
	"github.com/b0tShaman/gradflow/ml"
)

// plan is the set of experiments one suite runs. When Rows and Cols are set
// the inputs are images and the best trained model can classify an image
// file afterwards.
type plan struct {
	Experiments []ml.Experiment
	Rows, Cols  int

	trained []ml.Model
}

type suite func(cfg *config.Config) (*plan, error)

var suites = map[string]suite{
	"ann":         annSuite,
	"cnn":         cnnSuite,
	"rnn":         rnnSuite,
	"lstm":        lstmSuite,
	"transformer": transformerSuite,
	"synthetic":   syntheticSuite,
}

// -------- MAIN -------- //
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <suite>\nsuites: %v\n", filepath.Base(os.Args[0]), suiteNames())
		os.Exit(2)
	}
	build, ok := suites[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Invalid suite %q, want one of %v\n", os.Args[1], suiteNames())
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	G := runtime.GOMAXPROCS(runtime.NumCPU())
	fmt.Printf("Loading %s data from %s (GOMAXPROCS=%d)\n", os.Args[1], cfg.DataDir, G)
	p, err := build(cfg)
	if err != nil {
		fmt.Println("Error preparing data:", err)
		os.Exit(1)
	}
	p.track()

	fmt.Printf("Training %d experiments...\n", len(p.Experiments))
	results := ml.RunExperiments(p.Experiments, data.CostWriter(cfg.DebugDir))
	failed := report(os.Stdout, results)

	if cfg.Image != "" && p.Rows > 0 {
		if model := p.best(results); model != nil {
			if _, _, err := ml.InferenceImg(model, cfg.Image, p.Rows, p.Cols, data.LoadGrayscale); err != nil {
				fmt.Println("Inference failed:", err)
				failed++
			}
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func suiteNames() []string {
	names := make([]string, 0, len(suites))
	for name := range suites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// track wraps every Build so the model it returns is kept for inference.
// Each experiment writes only its own slot.
func (p *plan) track() {
	p.trained = make([]ml.Model, len(p.Experiments))
	for i := range p.Experiments {
		build := p.Experiments[i].Build
		slot := &p.trained[i]
		p.Experiments[i].Build = func(rng *rand.Rand) ml.Model {
			m := build(rng)
			*slot = m
			return m
		}
	}
}

// best returns the trained model of the most accurate successful experiment.
func (p *plan) best(results []ml.Result) ml.Model {
	var model ml.Model
	top := -1.0
	for i, res := range results {
		if res.Err == nil && res.Accuracy > top && p.trained[i] != nil {
			model, top = p.trained[i], res.Accuracy
		}
	}
	return model
}

// report prints one line per experiment and returns how many failed.
func report(w io.Writer, results []ml.Result) int {
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			fmt.Fprintf(w, "Name: %s\t Error: %v\n", res.Name, res.Err)
			failed++
			continue
		}
		fmt.Fprintf(w, "Name: %s\t Score: %.3f%%\t Time: %s\n", res.Name, res.Accuracy*100, res.Duration.Round(time.Millisecond))
	}
	return failed
}

// -------- SUITES -------- //

type csvTask struct {
	file     string
	features int
	hidden   int
	classes  int
	act      ml.ElementwiseActivation
	opt      ml.OptimizerConfig
}

var csvTasks = []csvTask{
	{"knn.csv", 2, 10, 3, ml.Relu, ml.OptimizerConfig{Type: ml.OptAdam, Alpha: ml.R(1, 100), Beta1: ml.R(9, 10), Beta2: ml.R(9, 10)}},
	{"gda.csv", 2, 7, 3, ml.Relu, ml.OptimizerConfig{Type: ml.OptAdam, Alpha: ml.R(1, 100), Beta1: ml.R(9, 10), Beta2: ml.R(9, 10)}},
	{"nb.csv", 8, 10, 2, ml.Sigmoid, ml.OptimizerConfig{Type: ml.OptRMSProp, Alpha: ml.R(1, 1000), Rho: ml.R(9, 10)}},
	{"neg_square.csv", 2, 12, 2, ml.Relu, ml.OptimizerConfig{Type: ml.OptAdam, Alpha: ml.R(1, 2), Beta1: ml.R(8, 10), Beta2: ml.R(8, 10)}},
	{"circle.csv", 2, 15, 2, ml.Relu, ml.OptimizerConfig{Type: ml.OptMomentum, Alpha: ml.R(1, 2), Beta: ml.R(8, 10)}},
}

func annSuite(cfg *config.Config) (*plan, error) {
	p := &plan{}
	for i, task := range csvTasks {
		split, err := data.LoadCSV(filepath.Join(cfg.DataDir, task.file), task.features, 0.8)
		if err != nil {
			return nil, err
		}
		opt := ml.NewOptimizerFactory(task.opt)
		dense := ml.DenseConfig{
			Inputs:       task.features,
			Hidden:       task.hidden,
			HiddenLayers: 5,
			Outputs:      task.classes,
			Activation:   task.act,
		}
		p.Experiments = append(p.Experiments, experiment(
			fmt.Sprintf("%s-%s", strings.TrimSuffix(task.file, ".csv"), task.opt.Type), cfg.Seed+uint64(i), task.classes, split,
			func(rng *rand.Rand) ml.Model { return ml.NewANN(dense, ml.CrossEntropy, opt, rng) },
		))
	}
	return p, nil
}

const (
	mnistTrain = 20000
	mnistTest  = 2000
	mnistRuns  = 6
)

func cnnSuite(cfg *config.Config) (*plan, error) {
	load := func(images, labels string, limit int) ([]*ml.Matrix, []int, error) {
		xs, err := data.LoadIDXImages(filepath.Join(cfg.DataDir, images))
		if err != nil {
			return nil, nil, err
		}
		ys, err := data.LoadIDXLabels(filepath.Join(cfg.DataDir, labels))
		if err != nil {
			return nil, nil, err
		}
		if len(xs) != len(ys) {
			return nil, nil, fmt.Errorf("%s: %d images but %d labels", images, len(xs), len(ys))
		}
		if len(xs) > limit {
			xs, ys = xs[:limit], ys[:limit]
		}
		return xs, ys, nil
	}

	split := &data.Split{}
	var err error
	split.TrainX, split.TrainLabels, err = load("train-images-idx3-ubyte", "train-labels-idx1-ubyte", mnistTrain)
	if err != nil {
		return nil, err
	}
	split.TestX, split.TestLabels, err = load("t10k-images-idx3-ubyte", "t10k-labels-idx1-ubyte", mnistTest)
	if err != nil {
		return nil, err
	}

	cnn := ml.CNNConfig{
		Height: 28, Width: 28,
		Branches: 4,
		Stages:   []ml.ConvStage{{Kernel: 9, Pool: 6}},
		Hidden:   []int{100, 50, 20},
		Classes:  10,
	}
	opt := ml.Adagrad{Alpha: ml.R(1, 100)}

	p := &plan{Rows: 28, Cols: 28}
	for i := 0; i < mnistRuns; i++ {
		p.Experiments = append(p.Experiments, experiment(
			fmt.Sprintf("cnn-%d", i), cfg.Seed+uint64(i), cnn.Classes, split,
			func(rng *rand.Rand) ml.Model { return ml.NewCNN(cnn, opt, rng) },
		))
	}
	return p, nil
}

const (
	seqSamples = 4000
	seqSteps   = 10
	seqWidth   = 4
)

func sequenceSplit(cfg *config.Config) *data.Split {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
	xs, labels := data.SequenceSign(seqSamples, seqSteps, seqWidth, rng)
	return data.SplitAt(xs, labels, 0.8)
}

var seqOptimizer = ml.Adam{Alpha: ml.R(1, 100), Beta1: ml.R(95, 100), Beta2: ml.R(95, 100)}

func rnnSuite(cfg *config.Config) (*plan, error) {
	split := sequenceSplit(cfg)
	rnn := ml.RNNConfig{
		Steps: seqSteps, Inputs: seqWidth, Hidden: 16, Outputs: 8,
		Dense: ml.DenseConfig{Inputs: 8, Hidden: 10, HiddenLayers: 1, Outputs: 2},
	}
	p := &plan{}
	for i := 0; i < 3; i++ {
		p.Experiments = append(p.Experiments, experiment(
			fmt.Sprintf("rnn-%d", i), cfg.Seed+uint64(i), 2, split,
			func(rng *rand.Rand) ml.Model { return ml.NewRNNClassifier(rnn, seqOptimizer, rng) },
		))
	}
	return p, nil
}

func lstmSuite(cfg *config.Config) (*plan, error) {
	split := sequenceSplit(cfg)
	base := ml.RNNConfig{
		Steps: seqSteps, Inputs: seqWidth, Hidden: 16,
		Dense: ml.DenseConfig{Inputs: 16, Hidden: 12, HiddenLayers: 5, Outputs: 2},
	}
	candidates := []ml.Activation{ml.Tanh, ml.Sigmoid}

	p := &plan{}
	for i, cand := range candidates {
		lstm := base
		lstm.LayerOptions = []ml.LayerOption{ml.WithCandidateActivation(cand)}
		p.Experiments = append(p.Experiments, experiment(
			fmt.Sprintf("lstm-%s", cand.Name()), cfg.Seed+uint64(i), 2, split,
			func(rng *rand.Rand) ml.Model { return ml.NewLSTMClassifier(lstm, seqOptimizer, rng) },
		))
	}
	return p, nil
}

func transformerSuite(cfg *config.Config) (*plan, error) {
	split := sequenceSplit(cfg)
	tr := ml.TransformerConfig{
		Steps: seqSteps, Embed: seqWidth, KeyDim: 4,
		Blocks:  2,
		Hidden:  []int{20, 10},
		Classes: 2,
	}
	p := &plan{}
	for i := 0; i < 3; i++ {
		p.Experiments = append(p.Experiments, experiment(
			fmt.Sprintf("transformer-%d", i), cfg.Seed+uint64(i), tr.Classes, split,
			func(rng *rand.Rand) ml.Model { return ml.NewTransformer(tr, seqOptimizer, rng) },
		))
	}
	return p, nil
}

const syntheticSamples = 5000

func syntheticSuite(cfg *config.Config) (*plan, error) {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
	type set struct {
		name     string
		features int
		classes  int
		xs       []*ml.Matrix
		labels   []int
	}
	circle, circleLabels := data.Circle(syntheticSamples, rng)
	linear, linearLabels := data.Linear(syntheticSamples, 4, rng)
	noise, noiseLabels := data.Noise(syntheticSamples, 4, 3, rng)
	sets := []set{
		{"circle", 2, 2, circle, circleLabels},
		{"linear", 4, 2, linear, linearLabels},
		{"noise", 4, 3, noise, noiseLabels},
	}
	optimizers := []ml.OptimizerConfig{
		{Type: ml.OptSGD, Alpha: ml.R(1, 10)},
		{Type: ml.OptAdam},
	}

	p := &plan{}
	for _, s := range sets {
		split := data.SplitAt(s.xs, s.labels, 0.8)
		dense := ml.DenseConfig{Inputs: s.features, Hidden: 8, HiddenLayers: 1, Outputs: s.classes}
		for _, oc := range optimizers {
			opt := ml.NewOptimizerFactory(oc)
			p.Experiments = append(p.Experiments, experiment(
				fmt.Sprintf("%s-%s", s.name, oc.Type), cfg.Seed+uint64(len(p.Experiments)), s.classes, split,
				func(rng *rand.Rand) ml.Model { return ml.NewANN(dense, ml.CrossEntropy, opt, rng) },
			))
		}
	}
	return p, nil
}

func experiment(name string, seed uint64, classes int, split *data.Split, build func(*rand.Rand) ml.Model) ml.Experiment {
	return ml.Experiment{
		Name:        name,
		Seed:        seed,
		Classes:     classes,
		Build:       build,
		TrainX:      split.TrainX,
		TrainLabels: split.TrainLabels,
		TestX:       split.TestX,
		TestLabels:  split.TestLabels,
	}
}
