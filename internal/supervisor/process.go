package supervisor

import (
	"context"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ProcessState is one state in the subprocess lifecycle (§4.5):
// Starting -> Running -> Exited -> Backoff -> Starting, with terminal
// Stopped (clean shutdown) and Failed (crash-looped) states.
type ProcessState string

const (
	StateStarting ProcessState = "starting"
	StateRunning  ProcessState = "running"
	StateExited   ProcessState = "exited"
	StateBackoff  ProcessState = "backoff"
	StateStopped  ProcessState = "stopped"
	StateFailed   ProcessState = "failed"
)

// crashLoopWindow and crashLoopThreshold implement crash-loop detection:
// 3 consecutive attempts that each exit within 5 seconds of their own
// start (§4.5).
const (
	crashLoopWindow    = 5 * time.Second
	crashLoopThreshold = 3
)

// RestartObserver is notified on every state transition, letting the
// supervisor export Prometheus counters without process.go importing the
// metrics package directly.
type RestartObserver func(name string, state ProcessState)

// ManagedProcess supervises a single long-running subprocess (dashboard or
// tracking UI), restarting it with capped exponential backoff on
// unexpected exit (§4.5 Subprocess supervision).
type ManagedProcess struct {
	Name    string
	Command string
	Args    []string
	Env     []string

	backoffCap time.Duration
	observer   RestartObserver
	logger     *zap.Logger

	mu                   sync.Mutex
	state                ProcessState
	cmd                  *exec.Cmd
	consecutiveFastExits int
	stop                 chan struct{}
	done                 chan struct{}
}

// NewManagedProcess constructs a ManagedProcess. backoffCap bounds the
// exponential restart delay (§6 RESTART_BACKOFF_CAP_SECONDS).
func NewManagedProcess(name, command string, args []string, backoffCap time.Duration, observer RestartObserver, logger *zap.Logger) *ManagedProcess {
	if logger == nil {
		logger = zap.NewNop()
	}
	if observer == nil {
		observer = func(string, ProcessState) {}
	}
	return &ManagedProcess{
		Name:       name,
		Command:    command,
		Args:       args,
		backoffCap: backoffCap,
		observer:   observer,
		logger:     logger,
		state:      StateStopped,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// State returns the process's current lifecycle state.
func (p *ManagedProcess) State() ProcessState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *ManagedProcess) setState(s ProcessState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.observer(p.Name, s)
}

// Start launches the supervision loop in a goroutine. It returns
// immediately; use Wait or State to observe progress.
func (p *ManagedProcess) Start(ctx context.Context) {
	go p.run(ctx)
}

func (p *ManagedProcess) run(ctx context.Context) {
	defer close(p.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = p.backoffCap
	bo.MaxElapsedTime = 0 // never give up on its own; crash-loop detection decides Failed

	for {
		select {
		case <-ctx.Done():
			p.setState(StateStopped)
			return
		case <-p.stop:
			p.setState(StateStopped)
			return
		default:
		}

		p.setState(StateStarting)
		attemptStart := time.Now()
		cmd := exec.CommandContext(ctx, p.Command, p.Args...)
		cmd.Env = append(os.Environ(), p.Env...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			p.logger.Error("subprocess failed to start", zap.String("name", p.Name), zap.Error(err))
			if p.recordExitAndCheckCrashLoop(attemptStart) {
				return
			}
			p.waitBackoff(ctx, bo)
			continue
		}

		p.mu.Lock()
		p.cmd = cmd
		p.mu.Unlock()
		p.setState(StateRunning)
		bo.Reset()

		waitErr := cmd.Wait()

		select {
		case <-ctx.Done():
			p.setState(StateStopped)
			return
		case <-p.stop:
			p.setState(StateStopped)
			return
		default:
		}

		p.setState(StateExited)
		if waitErr != nil {
			p.logger.Warn("subprocess exited", zap.String("name", p.Name), zap.Error(waitErr))
		}

		if p.recordExitAndCheckCrashLoop(attemptStart) {
			return
		}

		p.waitBackoff(ctx, bo)
	}
}

// recordExitAndCheckCrashLoop checks this attempt's own start-to-exit
// duration against crashLoopWindow and transitions to Failed, returning
// true, once crashLoopThreshold consecutive attempts each exited within
// crashLoopWindow of their own start (§4.5). A slow attempt resets the
// streak, since the rule is about consecutive fast exits, not a rolling
// count of all recent exits.
func (p *ManagedProcess) recordExitAndCheckCrashLoop(startTime time.Time) bool {
	fastExit := time.Since(startTime) <= crashLoopWindow

	p.mu.Lock()
	if fastExit {
		p.consecutiveFastExits++
	} else {
		p.consecutiveFastExits = 0
	}
	looping := p.consecutiveFastExits >= crashLoopThreshold
	p.mu.Unlock()

	if looping {
		p.logger.Error("subprocess crash-looping, giving up", zap.String("name", p.Name))
		p.setState(StateFailed)
	}
	return looping
}

func (p *ManagedProcess) waitBackoff(ctx context.Context, bo *backoff.ExponentialBackOff) {
	delay := bo.NextBackOff()
	p.setState(StateBackoff)
	p.logger.Info("restarting subprocess after backoff", zap.String("name", p.Name), zap.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-p.stop:
	case <-timer.C:
	}
}

// Stop requests a graceful shutdown: sends the running process an
// interrupt and waits up to grace for the supervision loop to finish; after
// grace it kills the process and waits for the loop to exit.
func (p *ManagedProcess) Stop(grace time.Duration) {
	close(p.stop)

	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-p.done:
	case <-time.After(grace):
		if cmd != nil && cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-p.done
	}
}
