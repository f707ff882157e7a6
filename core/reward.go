package core

// FailureReward computes the reward handed to the trainer when the episode
// ends by a step failure.
type FailureReward func(g Game, learner Adapter, newTurn bool) (float64, error)

// AdapterFailureReward defers to the adapter's own error branch.
func AdapterFailureReward(g Game, learner Adapter, newTurn bool) (float64, error) {
	return learner.Reward(g, true, newTurn, true)
}

// LosingReward always returns v, regardless of the adapter.
func LosingReward(v float64) FailureReward {
	return func(Game, Adapter, bool) (float64, error) {
		return v, nil
	}
}
