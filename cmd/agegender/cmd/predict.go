package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OscarLlorente/AgeGenderDetector/checkpoints"
	"github.com/OscarLlorente/AgeGenderDetector/training"
)

var predictDescription = "predict age and gender for one or more face images."

var predictCmd = &cobra.Command{
	Use:               "predict <image>... [flags]",
	Short:             predictDescription,
	Long:              predictDescription,
	Args:              cobra.MinimumNArgs(1),
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	RunE: func(cmd *cobra.Command, args []string) error {
		folder := viper.GetString("checkpoint")
		if folder == "" {
			// Default to the first checkpoint under the save path.
			folders, err := checkpoints.List(viper.GetString("save-path"))
			if err != nil {
				return err
			}
			if len(folders) == 0 {
				return fmt.Errorf("no checkpoints under %s, pass --checkpoint", viper.GetString("save-path"))
			}
			folder = folders[0]
		}

		ckpt, err := checkpoints.Load(folder)
		if err != nil {
			return err
		}
		model, err := ckpt.RestoreModel()
		if err != nil {
			return err
		}

		returnPr := viper.GetBool("probabilities")
		out, err := training.PredictAgeGender(model, ckpt.Record, args,
			returnPr, viper.GetInt("batch-size"), viper.GetInt("num-workers"))
		if err != nil {
			return err
		}

		data, err := out.GetFloat32Data()
		if err != nil {
			return err
		}
		for i, path := range args {
			gender, age := data[i*2], data[i*2+1]
			if returnPr {
				fmt.Printf("%s: gender_pr=%.3f age=%.1f\n", filepath.Base(path), gender, age)
			} else {
				label := "male"
				if gender == 1 {
					label = "female"
				}
				fmt.Printf("%s: gender=%s age=%.1f\n", filepath.Base(path), label, age)
			}
		}
		return nil
	},
}

func init() {
	flags := predictCmd.Flags()
	flags.String("checkpoint", "", "checkpoint folder to load, defaults to the first one under the save path")
	flags.Bool("probabilities", false, "print the gender probability instead of the hard label")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(predictCmd)
}
