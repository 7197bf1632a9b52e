package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var rootDescription = "train, evaluate and run CNN age/gender models on face images."

var rootCmd = &cobra.Command{
	Use:               "agegender <command> [flags]",
	Short:             rootDescription,
	Long:              rootDescription,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	viper.SetEnvPrefix("AGEGENDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.String("data-path", "data/UTKFace", "directory holding the UTKFace images")
	flags.String("save-path", "models/saved", "directory the checkpoints are written to and read from")
	flags.Int("batch-size", 64, "number of images per batch")
	flags.Int("num-workers", 2, "number of image decoding workers")
	flags.Bool("use-cache", false, "keep decoded images in a shared in-memory cache")
	flags.Int64("seed", 4444, "seed for the train/val/test split and shuffling")
	flags.Bool("verbose", false, "enable debug logging")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
}

// newLogger builds the process logger honoring the verbose flag.
func newLogger() (*zap.SugaredLogger, error) {
	config := zap.NewDevelopmentConfig()
	if !viper.GetBool("verbose") {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
