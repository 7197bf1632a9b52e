package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OscarLlorente/AgeGenderDetector/checkpoints"
	"github.com/OscarLlorente/AgeGenderDetector/nn"
	"github.com/OscarLlorente/AgeGenderDetector/tensor"
	"github.com/OscarLlorente/AgeGenderDetector/training"
)

var trainDescription = "train an age/gender model on a UTKFace directory."

var trainCmd = &cobra.Command{
	Use:               "train [flags]",
	Short:             trainDescription,
	Long:              trainDescription,
	Args:              cobra.NoArgs,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer logger.Sync()

		modelConfig := nn.ModelConfig{
			InChannels:      3,
			OutChannels:     2,
			DimLayers:       viper.GetIntSlice("dim-layers"),
			BlockConvLayers: viper.GetInt("block-conv-layers"),
			Residual:        viper.GetBool("residual"),
			MaxPooling:      viper.GetBool("max-pooling"),
		}

		tensor.SetRandomSeed(viper.GetInt64("seed"))
		model, err := nn.NewCNNClassifier(modelConfig)
		if err != nil {
			return err
		}
		record := checkpoints.Record{Model: modelConfig}

		config := training.TrainConfig{
			LogDir:            viper.GetString("log-dir"),
			DataPath:          viper.GetString("data-path"),
			SavePath:          viper.GetString("save-path"),
			LR:                viper.GetFloat64("lr"),
			OptimizerName:     viper.GetString("optimizer"),
			NEpochs:           viper.GetInt("epochs"),
			BatchSize:         viper.GetInt("batch-size"),
			NumWorkers:        viper.GetInt("num-workers"),
			SchedulerMode:     viper.GetString("scheduler-mode"),
			StepsSave:         viper.GetInt("steps-save"),
			LossAgeWeight:     viper.GetFloat64("loss-age-weight"),
			SchedulerPatience: viper.GetInt("patience"),
			Suffix:            viper.GetString("image-size"),
			UseCache:          viper.GetBool("use-cache"),
			Seed:              viper.GetInt64("seed"),
			Logger:            logger,
		}
		return training.Train(model, &record, config)
	},
}

func init() {
	flags := trainCmd.Flags()
	flags.String("log-dir", "logs", "directory the scalar logs are written to")
	flags.Float64("lr", 1e-2, "learning rate")
	flags.String("optimizer", "adamw", "optimizer: sgd, adam or adamw")
	flags.Int("epochs", 65, "number of training epochs")
	flags.String("scheduler-mode", "min_mse", "metric driving the LR scheduler and best-checkpoint policy: min_loss, min_mse, max_acc, max_val_acc or max_val_mcc")
	flags.Int("steps-save", 1, "periodic checkpoint interval in epochs")
	flags.Float64("loss-age-weight", 1e-2, "weight of the age MSE term in the combined loss")
	flags.Int("patience", 10, "epochs without improvement before the LR is reduced")
	flags.String("image-size", "200", "square size the training images are resized to")
	flags.IntSlice("dim-layers", []int{32, 64, 128}, "channel widths of the convolutional blocks")
	flags.Int("block-conv-layers", 3, "convolutions per block")
	flags.Bool("residual", true, "use residual connections inside each block")
	flags.Bool("max-pooling", true, "downsample with max pooling after each block")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(trainCmd)
}
