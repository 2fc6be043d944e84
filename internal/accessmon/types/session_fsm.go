package types

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"
)

const (
	stateActive    = "ACTIVE"
	stateCompleted = "COMPLETED"

	eventLogout = "logout"
)

type sessionContext struct {
	SessionID string
}

// newSessionMachine builds the two-state lifecycle starting at status.
// COMPLETED is terminal: a logout there leaves the state unchanged.
func newSessionMachine(status SessionStatus, sessionID string) (*statekit.Interpreter[sessionContext], error) {
	builder := statekit.NewMachine[sessionContext]("session-machine").
		WithInitial(statekit.StateID(status)).
		WithContext(sessionContext{SessionID: sessionID})

	builder.State(stateActive).
		On(eventLogout).Target(stateCompleted).
		Done()

	builder.State(stateCompleted).
		On(eventLogout).Target(stateCompleted).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build session machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	return interpreter, nil
}

// Complete moves an active session to COMPLETED with the given logout time.
// A logout time earlier than the login time is clamped to the login time.
func (s *SessionRecord) Complete(at time.Time) error {
	sm, err := newSessionMachine(s.Status, s.ID)
	if err != nil {
		return err
	}

	before := sm.State().Value
	sm.Send(statekit.Event{Type: statekit.EventType(eventLogout)})
	after := sm.State().Value
	if before == after || s.LogoutTime != nil {
		return fmt.Errorf("%w: %s is %s", ErrSessionNotActive, s.ID, s.Status)
	}

	if at.Before(s.LoginTime) {
		at = s.LoginTime
	}
	s.LogoutTime = &at
	s.Status = SessionStatus(after)
	return nil
}
