package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/richxcame/taxi-eta/internal/eta"
	"github.com/richxcame/taxi-eta/pkg/config"
	"github.com/richxcame/taxi-eta/pkg/logger"
)

func newScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan the model registry, print the ranked candidates as JSON, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan()
		},
	}
}

func runScan() error {
	cfg, err := config.Load(serviceName)
	if err != nil {
		return &exitConfigError{cause: err}
	}
	if err := logger.Init(cfg.Server.Environment); err != nil {
		return err
	}
	defer logger.Sync()

	scanner := eta.NewScanner(cfg.Registry.Root, cfg.Registry.ExperimentID, cfg.Registry.ModelName, logger.Get())
	result, err := scanner.Scan()
	if err != nil {
		return err
	}
	if len(result.Candidates) == 0 {
		return &eta.ErrNoModelAvailable{Reason: "registry scan found no valid candidates"}
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
