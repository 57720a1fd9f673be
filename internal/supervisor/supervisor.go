// Package supervisor is C5: it resolves where the service actually lives on
// disk, bootstraps an empty model registry, performs the initial model
// load, and supervises the optional dashboard/tracking-UI subprocesses for
// the life of the process (§4.5).
package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/richxcame/taxi-eta/internal/bootstrap"
	"github.com/richxcame/taxi-eta/internal/eta"
	"github.com/richxcame/taxi-eta/pkg/config"
)

// ResolveProjectRoot returns the absolute directory containing the running
// executable, not the process's current working directory (§4.5 "absolute
// project-root resolution"). config.Load resolves a relative
// MODEL_REGISTRY_ROOT against this same directory, so the registry is found
// regardless of where the binary was launched from.
func ResolveProjectRoot() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exePath)
	if err != nil {
		resolved = exePath
	}
	return filepath.Dir(resolved), nil
}

// Supervisor owns the service's model lifecycle and its subprocesses.
type Supervisor struct {
	cfg       *config.Config
	service   *eta.Service
	scanner   *eta.Scanner
	logger    *zap.Logger
	metrics   *SupervisorMetrics
	processes []*ManagedProcess
}

// New constructs a Supervisor around an already-built Service/Scanner pair.
func New(cfg *config.Config, service *eta.Service, scanner *eta.Scanner, metrics *SupervisorMetrics, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{cfg: cfg, service: service, scanner: scanner, metrics: metrics, logger: logger}
}

// Bootstrap ensures the registry has at least one candidate before the
// first Reload, training a seed model if the registry is empty (§4.5 step
// 2, §8 scenario 4). It is idempotent: a non-empty registry is left alone.
func (s *Supervisor) Bootstrap() error {
	result, err := s.scanner.Scan()
	if err != nil {
		return fmt.Errorf("probe registry: %w", err)
	}
	if len(result.Candidates) > 0 {
		return nil
	}

	s.logger.Info("model registry is empty, bootstrapping a seed model")
	trainer := bootstrap.NewTrainer(s.scanner.Root, s.scanner.ExperimentID, s.scanner.ModelName, s.cfg.Training.SeedSamples, s.logger)
	runID, err := trainer.Train()
	if err != nil {
		return fmt.Errorf("bootstrap training: %w", err)
	}
	s.logger.Info("bootstrap training complete", zap.String("run_id", runID))
	return nil
}

// LoadInitialModel runs the first Reload, required before the service can
// answer predictions (§4.5 step 3).
func (s *Supervisor) LoadInitialModel() error {
	_, err := s.service.Reload()
	return err
}

// StartSubprocesses launches the dashboard and tracking-UI subprocesses
// unless disabled by configuration (§6 DISABLE_SUBPROCESSES).
func (s *Supervisor) StartSubprocesses(ctx context.Context) {
	if s.cfg.Supervisor.DisableSubprocesses {
		s.logger.Info("subprocess supervision disabled, skipping dashboard/tracking UI")
		return
	}

	backoffCap := time.Duration(s.cfg.Supervisor.RestartBackoffCapSeconds) * time.Second
	var observer RestartObserver
	if s.metrics != nil {
		observer = s.metrics.Observe
	}

	if s.cfg.Supervisor.DashboardCommand != "" {
		dashboard := NewManagedProcess("dashboard", s.cfg.Supervisor.DashboardCommand, nil, backoffCap, observer, s.logger)
		s.processes = append(s.processes, dashboard)
		dashboard.Start(ctx)
	}
	if s.cfg.Supervisor.TrackingUICommand != "" {
		tracking := NewManagedProcess("tracking-ui", s.cfg.Supervisor.TrackingUICommand, nil, backoffCap, observer, s.logger)
		s.processes = append(s.processes, tracking)
		tracking.Start(ctx)
	}
}

// Shutdown stops every supervised subprocess, giving each up to the
// configured grace period before escalating to SIGKILL (§4.5, §6
// SHUTDOWN_GRACE_SECONDS).
func (s *Supervisor) Shutdown() {
	grace := time.Duration(s.cfg.Supervisor.ShutdownGraceSeconds) * time.Second
	for _, p := range s.processes {
		p.Stop(grace)
	}
}
