package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/richxcame/taxi-eta/internal/bootstrap"
	"github.com/richxcame/taxi-eta/pkg/config"
	"github.com/richxcame/taxi-eta/pkg/logger"
)

func newTrainCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Run bootstrap training once, writing a new artifact to the registry, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain()
		},
	}
}

func runTrain() error {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return &exitConfigError{cause: err}
	}
	if err := logger.Init(cfg.Server.Environment); err != nil {
		return err
	}
	defer logger.Sync()

	trainer := bootstrap.NewTrainer(cfg.Registry.Root, cfg.Registry.ExperimentID, cfg.Registry.ModelName, cfg.Training.SeedSamples, logger.Get())
	runID, err := trainer.Train()
	if err != nil {
		return err
	}

	fmt.Printf("trained run %s\n", runID)
	return nil
}
