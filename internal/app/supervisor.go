package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Pmanos1/TestBot/internal/engine"
)

var (
	ErrAlreadyRunning = errors.New("algo task already running")
	ErrNotRunning     = errors.New("no algo task running")
)

// Supervisor owns the lifecycle of the single trading task. One engine
// instance is reused across start/stop cycles so trade counters and the bar
// window survive an operator restart.
type Supervisor struct {
	eng    *engine.Engine
	logger *zap.Logger

	// mu guards started/cancel/done. started is owned by the Supervisor, not
	// read from the engine: the engine's own running flag only flips inside
	// the spawned goroutine, so it cannot guard against a double start.
	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSupervisor(eng *engine.Engine, logger *zap.Logger) *Supervisor {
	return &Supervisor{eng: eng, logger: logger}
}

// Start launches the engine run loop in the background. A second Start while
// the task is alive fails; only one run loop may own the trading state.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyRunning
	}

	s.eng.ResetStop()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.started = true
	s.cancel = cancel
	s.done = done

	go func() {
		defer func() {
			s.mu.Lock()
			s.started = false
			s.mu.Unlock()
			close(done)
		}()
		if err := s.eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("algo task exited with error", zap.Error(err))
			return
		}
		s.logger.Info("algo task exited")
	}()

	return nil
}

// Stop requests a sell-only drain; the task exits on its own once flat.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotRunning
	}
	s.eng.RequestStop()
	return nil
}

// Close cancels the task immediately. An open position is left untouched and
// is restored from the ledger on the next start.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.cancel == nil {
		return ErrNotRunning
	}
	s.cancel()
	return nil
}

// Shutdown cancels the task and waits for it to finish.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Supervisor) Prediction() (high, low float64, ok bool) {
	return s.eng.Prediction()
}

func (s *Supervisor) Stats() engine.Stats {
	return s.eng.Snapshot()
}

func (s *Supervisor) PositionState() engine.PositionState {
	return s.eng.PositionState()
}
