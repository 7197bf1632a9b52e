package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OscarLlorente/AgeGenderDetector/training"
)

var testDescription = "evaluate every stored checkpoint on the train/val/test splits."

var testCmd = &cobra.Command{
	Use:               "test [flags]",
	Short:             testDescription,
	Long:              testDescription,
	Args:              cobra.NoArgs,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		config := training.EvalConfig{
			DataPath:   viper.GetString("data-path"),
			SavePath:   viper.GetString("save-path"),
			NRuns:      viper.GetInt("n-runs"),
			BatchSize:  viper.GetInt("batch-size"),
			NumWorkers: viper.GetInt("num-workers"),
			Save:       viper.GetBool("save-results"),
			UseCache:   viper.GetBool("use-cache"),
			Seed:       viper.GetInt64("seed"),
			Logger:     logger,
		}

		results, err := training.Test(config)
		if err != nil {
			return err
		}
		for _, result := range results {
			fmt.Printf("%s\n", result.Folder)
			for _, key := range []string{"test_acc", "test_mcc", "test_mae", "test_mse"} {
				fmt.Printf("  %s: %.4f\n", key, result.Record.Metrics.Results[key])
			}
		}
		return nil
	},
}

func init() {
	flags := testCmd.Flags()
	flags.Int("n-runs", 1, "number of evaluation passes to average over")
	flags.Bool("save-results", false, "write aggregated results next to each checkpoint")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(testCmd)
}
