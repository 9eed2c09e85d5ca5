package boosting

import (
	"math"
	"sort"
	"time"

	"github.com/YuminosukeSato/penguinml/pkg/log"
)

// CallbackEnv contains the environment for callbacks
type CallbackEnv struct {
	Booster      *Booster
	Iteration    int
	BeginTime    time.Time
	EndTime      time.Time
	EvalResults  map[string]float64
	StopTraining bool
}

// Callback is called after every boosting round.
type Callback func(env *CallbackEnv) error

// LogEvaluation logs the evaluation results every period rounds.
func LogEvaluation(logger log.Logger, period int) Callback {
	if period < 1 {
		period = 1
	}
	return func(env *CallbackEnv) error {
		if env.Iteration%period != 0 {
			return nil
		}
		names := make([]string, 0, len(env.EvalResults))
		for name := range env.EvalResults {
			names = append(names, name)
		}
		sort.Strings(names)

		fields := []any{log.IterationKey, env.Iteration}
		for _, name := range names {
			fields = append(fields, name, env.EvalResults[name])
		}
		logger.Info("Boosting round", fields...)
		return nil
	}
}

// RecordEvaluation records evaluation history
func RecordEvaluation(history *map[string][]float64) Callback {
	return func(env *CallbackEnv) error {
		if *history == nil {
			*history = make(map[string][]float64)
		}
		for name, value := range env.EvalResults {
			(*history)[name] = append((*history)[name], value)
		}
		return nil
	}
}

// EarlyStopping stops training when metric has not decreased for rounds
// consecutive rounds.
func EarlyStopping(rounds int, metric string) Callback {
	bestScore := math.Inf(1)
	roundsNoImprove := 0

	return func(env *CallbackEnv) error {
		value, ok := env.EvalResults[metric]
		if !ok {
			return nil
		}
		if value < bestScore {
			bestScore = value
			roundsNoImprove = 0
			return nil
		}
		roundsNoImprove++
		if roundsNoImprove >= rounds {
			env.StopTraining = true
		}
		return nil
	}
}

// CallbackList manages multiple callbacks
type CallbackList struct {
	callbacks []Callback
	env       *CallbackEnv
	lastEnd   time.Time
}

// NewCallbackList creates a new callback list
func NewCallbackList(callbacks ...Callback) *CallbackList {
	return &CallbackList{
		callbacks: callbacks,
		env: &CallbackEnv{
			EvalResults: make(map[string]float64),
		},
	}
}

// AfterIteration calls callbacks after each iteration
func (cl *CallbackList) AfterIteration(iteration int, b *Booster, evalResults map[string]float64) error {
	now := time.Now()
	if cl.lastEnd.IsZero() {
		cl.lastEnd = now
	}
	cl.env.Iteration = iteration
	cl.env.Booster = b
	cl.env.BeginTime = cl.lastEnd
	cl.env.EndTime = now
	cl.env.EvalResults = evalResults
	cl.lastEnd = now

	for _, cb := range cl.callbacks {
		if err := cb(cl.env); err != nil {
			return err
		}
		if cl.env.StopTraining {
			break
		}
	}
	return nil
}

// ShouldStop returns whether training should stop
func (cl *CallbackList) ShouldStop() bool {
	return cl.env.StopTraining
}

func (cl *CallbackList) reset() {
	cl.env = &CallbackEnv{EvalResults: make(map[string]float64)}
	cl.lastEnd = time.Time{}
}
