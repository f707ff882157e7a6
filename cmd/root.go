package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zeu5/lux-rl-env/common"
)

var flags *common.Flags = common.DefaultFlags()

func RootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "lux-rl-env",
		Short:        "Train and replay agents on a turn-based two-team game",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := common.Load(cmd.Flags(), flags); err != nil {
				return err
			}
			setupLogging(flags.Debug)
			return flags.Record()
		},
	}
	common.AddFlags(cmd.PersistentFlags(), flags)

	cmd.AddCommand(
		TrainCommand(),
		ValidateCommand(),
		ReplayCommand(),
	)

	return cmd
}

func setupLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}
