package console

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/arzzra/sofsip/pkg/logging"
	"github.com/arzzra/sofsip/pkg/metrics"
)

// Состояния сессии
const (
	StateUninitialized = "uninitialized"
	StateStarting      = "starting"
	StateRunning       = "running"
	StateStopping      = "stopping"
	StateTerminated    = "terminated"
)

// События жизненного цикла
const (
	EventStart     = "start"
	EventRun       = "run"
	EventStop      = "stop"
	EventTerminate = "terminate"
)

// Lifecycle машина состояний сессии
type Lifecycle struct {
	fsm     *fsm.FSM
	metrics *metrics.Collector
	logger  logging.Logger
}

// NewLifecycle создает машину в состоянии uninitialized
func NewLifecycle(m *metrics.Collector, logger logging.Logger) *Lifecycle {
	if logger == nil {
		logger = logging.Default()
	}
	lc := &Lifecycle{metrics: m, logger: logger}
	lc.fsm = fsm.NewFSM(
		StateUninitialized,
		fsm.Events{
			{Name: EventStart, Src: []string{StateUninitialized}, Dst: StateStarting},
			{Name: EventRun, Src: []string{StateStarting}, Dst: StateRunning},
			{Name: EventStop, Src: []string{StateStarting, StateRunning}, Dst: StateStopping},
			{Name: EventTerminate, Src: []string{StateUninitialized, StateStarting, StateRunning, StateStopping}, Dst: StateTerminated},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				lc.metrics.SetState(e.Dst)
				lc.logger.Debug("переход состояния сессии",
					logging.String("from", e.Src),
					logging.String("to", e.Dst),
					logging.String("event", e.Event))
			},
		},
	)
	m.SetState(StateUninitialized)
	return lc
}

// Fire выполняет переход
func (lc *Lifecycle) Fire(event string) error {
	if !lc.fsm.Can(event) {
		return newError(CodeInvalidState, CategoryReactor,
			fmt.Sprintf("переход %q недопустим из состояния %q", event, lc.fsm.Current()), nil)
	}
	if err := lc.fsm.Event(context.Background(), event); err != nil {
		return newError(CodeInvalidState, CategoryReactor, "ошибка перехода состояния", err)
	}
	return nil
}

// Can допустим ли переход
func (lc *Lifecycle) Can(event string) bool { return lc.fsm.Can(event) }

// State текущее состояние
func (lc *Lifecycle) State() string { return lc.fsm.Current() }

// Is находится ли сессия в состоянии state
func (lc *Lifecycle) Is(state string) bool { return lc.fsm.Is(state) }
