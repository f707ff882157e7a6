package cmd

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func ValidateCommand() *cobra.Command {
	var episodes int
	var render bool
	cmd := &cobra.Command{
		Use:   "validate [model]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Play whole episodes with inference agents and report step failures",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, player, err := newReplayEnv(flags, log.Logger)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if err := player.LoadModel(args[0]); err != nil {
					return err
				}
			}

			failures := 0
			for i := 0; i < episodes; i++ {
				env.Game().SetSeed(flags.Game.Seed + int64(i))
				failed, err := env.RunToCompletion()
				if err != nil {
					return err
				}
				if failed {
					failures++
				}
				if render {
					if err := env.Render(os.Stdout); err != nil {
						return err
					}
				}
				log.Info().
					Int("episode", i).
					Int("decisions", env.CurrentStep()).
					Bool("step_failure", failed).
					Msg("episode finished")
			}
			log.Info().Int("episodes", episodes).Int("step_failures", failures).Msg("validation finished")
			return nil
		},
	}
	cmd.Flags().IntVar(&episodes, "episodes", 10, "Number of episodes to play")
	cmd.Flags().BoolVar(&render, "render", false, "Print the final board of every episode")
	return cmd
}
