package main

import (
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <id> <name>",
	Short: "Capture face samples for a person",
	Long: `Saves the person's name, removes any samples captured for the same id
before and captures new ones from the camera.`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the classifier on all captured samples",
	Args:  cobra.NoArgs,
	RunE:  runTrain,
}

var registerCmd = &cobra.Command{
	Use:   "register <id> <name>",
	Short: "Enroll a person and retrain",
	Args:  cobra.ExactArgs(2),
	RunE:  runRegister,
}

func init() {
	enrollCmd.Flags().Int("samples", 0, "Number of samples to capture (default SAMPLE_COUNT)")
	registerCmd.Flags().Int("samples", 0, "Number of samples to capture (default SAMPLE_COUNT)")

	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(registerCmd)
}

func runEnroll(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	_, err = a.enroll(cmd.Context(), args[0], args[1], mustGetInt(cmd, "samples"))
	return err
}

func runTrain(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	_, err = a.train(cmd.Context())
	return err
}

func runRegister(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if _, err := a.enroll(cmd.Context(), args[0], args[1], mustGetInt(cmd, "samples")); err != nil {
		return err
	}
	_, err = a.train(cmd.Context())
	return err
}
