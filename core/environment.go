package core

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InfoStepFailure is set in StepResult.Info when the episode ended by a step failure.
const InfoStepFailure = "step_failure"

type StepResult struct {
	Observation Observation
	Reward      float64
	Done        bool
	Info        map[string]interface{}
}

func (r *StepResult) StepFailed() bool {
	_, ok := r.Info[InfoStepFailure]
	return ok
}

type observeFunc func(DecisionPoint) (Observation, error)

// Environment exposes a whole match as one decision point per Step.
// An Environment is owned by a single training worker and is not safe for
// concurrent use.
type Environment struct {
	game    Game
	driver  TurnDriver
	learner Adapter
	observe observeFunc

	scheduler     OpponentScheduler
	updateEvery   int
	failureReward FailureReward

	replayFolder string
	replayPrefix string

	currentStep int
	totalSteps  int
	seq         Sequence
	last        *DecisionPoint
	prior       Observation

	logger zerolog.Logger
}

type Option func(*Environment)

// WithScheduler seats the scheduler's active opponent and lets it swap
// opponents every updateEvery cumulative steps.
func WithScheduler(s OpponentScheduler, updateEvery int) Option {
	return func(e *Environment) {
		e.scheduler = s
		e.updateEvery = updateEvery
	}
}

func WithReplay(folder, prefix string) Option {
	return func(e *Environment) {
		e.replayFolder = folder
		e.replayPrefix = prefix
	}
}

func WithFailureReward(f FailureReward) Option {
	return func(e *Environment) {
		e.failureReward = f
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Environment) {
		e.logger = l
	}
}

func NewEnvironment(game Game, driver TurnDriver, learner Adapter, opts ...Option) (*Environment, error) {
	e := &Environment{
		game:          game,
		driver:        driver,
		learner:       learner,
		failureReward: AdapterFailureReward,
		replayPrefix:  "replay",
		logger:        log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	switch b := learner.(type) {
	case HistoryObservationBuilder:
		e.observe = func(dp DecisionPoint) (Observation, error) {
			base, err := b.BaseObservation(e.game, dp.Team, e.prior)
			if err != nil {
				return nil, err
			}
			obs, err := b.ObservationFrom(e.game, dp, base)
			if err != nil {
				return nil, err
			}
			e.prior = base
			return obs, nil
		}
	case ObservationBuilder:
		e.observe = func(dp DecisionPoint) (Observation, error) {
			return b.Observation(e.game, dp)
		}
	default:
		return nil, ErrNoObservationBuilder
	}

	if e.scheduler != nil {
		e.driver.SetAgent(OpponentSeat, e.scheduler.Active())
		e.logger.Info().Str("policy", e.scheduler.ActiveName()).Msg("initial opponent policy")
	}
	return e, nil
}

func (e *Environment) Game() Game {
	return e.game
}

func (e *Environment) CurrentStep() int {
	return e.currentStep
}

func (e *Environment) TotalSteps() int {
	return e.totalSteps
}

// Pending returns the decision point the next Step acts on.
func (e *Environment) Pending() (DecisionPoint, bool) {
	if e.seq == nil || e.last == nil {
		return DecisionPoint{}, false
	}
	return *e.last, true
}

// Spaces reports the learning agent's action and observation spaces when
// its adapter describes them.
func (e *Environment) Spaces() (action, observation Space, ok bool) {
	s, ok := e.learner.(Spaces)
	if !ok {
		return Space{}, Space{}, false
	}
	return s.ActionSpace(), s.ObservationSpace(), true
}

// SetReplayPath overrides where the next episode writes its replay.
func (e *Environment) SetReplayPath(folder, prefix string) {
	e.replayFolder = folder
	e.replayPrefix = prefix
}

func (e *Environment) clear() {
	e.currentStep = 0
	e.seq = nil
	e.last = nil
	e.prior = nil
}

func (e *Environment) start(randomizeTeamOrder bool) error {
	if err := e.driver.Reset(randomizeTeamOrder); err != nil {
		return errors.Wrap(err, "reset match")
	}
	if e.replayFolder != "" {
		if err := e.game.StartReplayLogging(e.replayFolder, e.replayPrefix, true); err != nil {
			return errors.Wrap(err, "start replay logging")
		}
	}
	e.seq = e.driver.RunToNextObservation()
	return nil
}

// Reset starts a new episode and returns the observation of its first decision point.
// Failing to produce that first decision point is returned as an error.
func (e *Environment) Reset() (Observation, error) {
	e.clear()
	if err := e.start(true); err != nil {
		return nil, err
	}

	dp, err := e.seq.Next()
	if err != nil {
		e.seq = nil
		return nil, errors.Wrap(err, "first decision point")
	}
	obs, err := e.observe(dp)
	if err != nil {
		return nil, err
	}
	e.last = &dp
	return obs, nil
}

// Step applies action to the decision point returned by the previous call and
// advances to the next one. Ordinary completion and step failures end the
// episode with Done set; any other error is returned.
func (e *Environment) Step(action Action) (*StepResult, error) {
	if e.seq == nil || e.last == nil {
		return nil, ErrNotReady
	}
	if err := e.learner.TakeAction(action, e.game, *e.last); err != nil {
		return nil, err
	}
	e.currentStep++
	e.totalSteps++

	result := &StepResult{Info: make(map[string]interface{})}
	newTurn := true
	gameOver := false
	gameError := false

	dp, err := e.seq.Next()
	switch {
	case err == nil:
		obs, err := e.observe(dp)
		if err != nil {
			return nil, err
		}
		result.Observation = obs
		newTurn = dp.NewTurn
		e.last = &dp
	case errors.Is(err, ErrEpisodeDone):
		gameOver = true
	case IsStepFailed(err):
		gameOver = true
		gameError = true
		result.Info[InfoStepFailure] = err.Error()
		e.logger.Warn().Err(err).Int("step", e.totalSteps).Msg("game step failed")
	default:
		return nil, err
	}

	if gameError {
		result.Reward, err = e.failureReward(e.game, e.learner, newTurn)
	} else {
		result.Reward, err = e.learner.Reward(e.game, gameOver, newTurn, false)
	}
	if err != nil {
		return nil, err
	}
	if gameOver {
		result.Done = true
		e.seq = nil
		e.last = nil
	}

	if e.scheduler != nil && e.updateEvery > 0 && e.totalSteps%e.updateEvery == 0 {
		if e.scheduler.Update(e.totalSteps) {
			e.driver.SetAgent(OpponentSeat, e.scheduler.Active())
		}
	}
	result.Info["opponent"] = e.opponentName()
	return result, nil
}

func (e *Environment) opponentName() string {
	if e.scheduler == nil {
		return ""
	}
	return e.scheduler.ActiveName()
}

// RunToCompletion plays a whole episode without trainer input. Every seated
// agent must be an inference agent. It reports whether the episode ended by
// a step failure.
func (e *Environment) RunToCompletion() (bool, error) {
	for seat, a := range e.driver.Agents() {
		if a.Type() != InferenceAgent {
			return false, errors.Wrapf(ErrLearningAgentSeated, "seat %d is a %s agent", seat, a.Type())
		}
	}

	e.clear()
	if err := e.start(false); err != nil {
		return false, err
	}
	_, err := e.seq.Next()
	e.seq = nil
	e.currentStep = e.driver.Decisions()

	switch {
	case errors.Is(err, ErrEpisodeDone):
		e.logger.Debug().Int("decisions", e.currentStep).Msg("episode run finished successfully")
		return false, nil
	case IsStepFailed(err):
		e.logger.Warn().Err(err).Msg("episode run ended by step failure")
		return true, nil
	case err == nil:
		return false, errors.New("turn driver paused with only inference agents seated")
	default:
		return false, err
	}
}

// Render writes the current step index followed by the board.
func (e *Environment) Render(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d\n%s\n", e.currentStep, e.game.MapString())
	return err
}
