package core

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/zeu5/lux-rl-env/util"
)

type RunConfig struct {
	TotalSteps int

	ThresholdConsecutiveFailures int
}

type RunResult struct {
	Episodes          int
	CompletedEpisodes int
	FailedEpisodes    int
	TruncatedEpisodes int
	TotalTimeSteps    int
	MeanReturn        float64

	Error error
}

func (r *RunResult) IsError() bool {
	return r.Error != nil
}

// Runner is the training loop: it asks the learner for actions and feeds
// Step results back, notifying callbacks after every step.
type Runner struct {
	Name        string
	Environment *Environment
	Learner     Learner
	Callbacks   []Callback
}

func (r *Runner) Run(ctx context.Context, config *RunConfig, writer io.Writer) *RunResult {
	result := &RunResult{}
	r.Learner.Reset()

	consecutiveFailures := 0
	returns := 0.0
EpisodeLoop:
	for episode := 0; result.TotalTimeSteps < config.TotalSteps; episode++ {
		select {
		case <-ctx.Done():
			result.Error = errors.New("context cancelled")
			break EpisodeLoop
		default:
		}

		fmt.Fprintf(
			writer,
			"Worker: %s, Timesteps: %d/%d, Episode %d, Failed: %d\n",
			r.Name, result.TotalTimeSteps, config.TotalSteps, episode, result.FailedEpisodes,
		)
		eCtx := NewEpisodeContext(ctx)
		eCtx.Episode = episode
		eCtx.StartTimeStep = result.TotalTimeSteps

		obs, err := r.Environment.Reset()
		if err != nil {
			result.Error = err
			break EpisodeLoop
		}
		r.Learner.ResetEpisode(eCtx)

		stop := false
		truncated := false
		for step := 0; ; step++ {
			sCtx := &StepContext{Step: step, EpisodeContext: eCtx}
			point, _ := r.Environment.Pending()
			action := r.Learner.PickAction(sCtx, obs)
			res, err := r.Environment.Step(action)
			if err != nil {
				result.Error = err
				break EpisodeLoop
			}
			r.Learner.UpdateStep(sCtx, obs, action, res)
			eCtx.Trace.AddStep(&Step{
				Point:       point,
				Observation: obs,
				Action:      action,
				Reward:      res.Reward,
				Done:        res.Done,
			})
			result.TotalTimeSteps++

			for _, cb := range r.Callbacks {
				if !cb.OnStep(result.TotalTimeSteps) {
					stop = true
				}
			}
			if res.Done {
				if res.StepFailed() {
					eCtx.Fail(fmt.Errorf("%v", res.Info[InfoStepFailure]))
				}
				break
			}
			if stop || ctx.Err() != nil || result.TotalTimeSteps >= config.TotalSteps {
				truncated = true
				break
			}
			obs = res.Observation
		}
		eCtx.Return = eCtx.Trace.Return()
		r.Learner.UpdateEpisode(eCtx)
		result.Episodes++
		returns += eCtx.Return

		switch {
		case eCtx.IsFailed():
			result.FailedEpisodes++
			consecutiveFailures++
			if last := eCtx.Trace.Last(); last != nil && last.Point.Actor != nil {
				fmt.Fprintf(
					writer,
					"Worker: %s, Episode %d failed at timestep %d (%s): %v\n",
					r.Name, eCtx.Episode, eCtx.StartTimeStep+eCtx.Trace.Len(), last.Point.Actor.ID(), eCtx.Err(),
				)
			}
			if config.ThresholdConsecutiveFailures > 0 && consecutiveFailures >= config.ThresholdConsecutiveFailures {
				result.Error = ErrTooManyFailures
				break EpisodeLoop
			}
		case truncated:
			result.TruncatedEpisodes++
		default:
			consecutiveFailures = 0
			result.CompletedEpisodes++
		}
		if stop {
			break EpisodeLoop
		}
	}
	if result.Episodes > 0 {
		result.MeanReturn = returns / float64(result.Episodes)
	}
	if result.Error != nil {
		fmt.Fprintf(writer, "Worker: %s, Error: %v\n", r.Name, result.Error)
	}
	return result
}

// RunnerConstructor builds an independent runner for a worker. Runners built
// for different workers must share no mutable state.
type RunnerConstructor interface {
	NewRunner(worker int) (*Runner, error)
}

type parallelResult struct {
	worker int
	result *RunResult
}

// RunParallel trains one runner per worker concurrently and returns the
// results indexed by worker. Progress is redrawn on out.
func RunParallel(ctx context.Context, rc RunnerConstructor, config *RunConfig, parallelism int, out io.Writer) []*RunResult {
	printer := util.NewTerminalPrinter(out, 500*time.Millisecond)

	results := make([]*RunResult, parallelism)
	resultsCh := make(chan *parallelResult, parallelism)
	wg := new(sync.WaitGroup)

	lines := make([]*util.StatusLine, parallelism)
	for i := range lines {
		lines[i] = printer.NewLine()
	}
	printer.Start(ctx)
	defer printer.Stop()

	for i := 0; i < parallelism; i++ {
		out := lines[i]
		runner, err := rc.NewRunner(i)
		if err != nil {
			results[i] = &RunResult{Error: err}
			continue
		}
		wg.Add(1)
		go func(worker int, runner *Runner, out io.Writer) {
			defer wg.Done()
			resultsCh <- &parallelResult{worker: worker, result: runner.Run(ctx, config, out)}
		}(i, runner, out)
	}

	wg.Wait()
	close(resultsCh)
	for r := range resultsCh {
		results[r.worker] = r.result
	}
	return results
}
