package modem

import (
	"context"
	"errors"
	"log/slog"

	"github.com/looplab/fsm"
)

// Bring-up phases.
const (
	phaseOff          = "off"
	phasePoweringOn   = "powering_on"
	phaseProbing      = "probing"
	phaseInitializing = "initializing"
	phaseReady        = "ready"
)

// Lifecycle events.
const (
	eventPowerOn     = "power_on"
	eventPowered     = "powered"
	eventResponsive  = "responsive"
	eventInitialized = "initialized"
	eventDegrade     = "degrade"
	eventFail        = "fail"
	eventPowerOff    = "power_off"
)

var livePhases = []string{phasePoweringOn, phaseProbing, phaseInitializing, phaseReady}

// lifecycle tracks where the modem is in the bring-up sequence. The public
// NcpState is derived from it: On only once the phase reached ready.
type lifecycle struct {
	machine *fsm.FSM
	logger  *slog.Logger
}

func newLifecycle(logger *slog.Logger) *lifecycle {
	return &lifecycle{
		logger: logger,
		machine: fsm.NewFSM(phaseOff, fsm.Events{
			{Name: eventPowerOn, Src: []string{phaseOff}, Dst: phasePoweringOn},
			{Name: eventPowered, Src: []string{phaseOff, phasePoweringOn}, Dst: phaseProbing},
			{Name: eventResponsive, Src: []string{phaseProbing}, Dst: phaseInitializing},
			{Name: eventInitialized, Src: []string{phaseInitializing}, Dst: phaseReady},
			{Name: eventDegrade, Src: []string{phaseReady}, Dst: phaseProbing},
			{Name: eventFail, Src: livePhases, Dst: phaseOff},
			{Name: eventPowerOff, Src: livePhases, Dst: phaseOff},
		}, fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("Lifecycle transition", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		}),
	}
}

// fire applies event. Firing an event that is not valid from the current
// phase is a no-op, so teardown paths can fire unconditionally.
func (l *lifecycle) fire(event string) {
	if !l.machine.Can(event) {
		return
	}
	err := l.machine.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		l.logger.Warn("Lifecycle event rejected", "event", event, "phase", l.phase(), "error", err)
	}
}

func (l *lifecycle) phase() string {
	return l.machine.Current()
}

func (l *lifecycle) ready() bool {
	return l.machine.Is(phaseReady)
}
