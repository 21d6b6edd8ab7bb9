package territory

import (
	"fmt"
	"time"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

// State is the ownership state of a territory, derived from its document and the clock
type State string

const (
	StateUnclaimed State = "unclaimed"
	StateOwned     State = "owned"
	// StateContested is an owned territory inside its post-claim grace window
	StateContested State = "contested"
	// StateAbandoned is an owned territory whose owner has been inactive past the timeout
	StateAbandoned State = "abandoned"
)

const (
	DEFAULT_GRACE_PERIOD  = 5 * time.Minute
	DEFAULT_ABANDON_AFTER = 7 * 24 * time.Hour
)

// Config holds state machine timings
type Config struct {
	// GracePeriod is how long a fresh claim stays contested
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// AbandonAfter is the owner inactivity timeout
	AbandonAfter time.Duration `mapstructure:"abandon_after"`
}

// Request describes who asks for a transition
type Request struct {
	UserID     string
	AllianceID *string
	// CanReclaim is set when the requester's trust clears the reclaim threshold
	CanReclaim bool
	Privileged bool
}

// Transition is the decision for one requested transition
type Transition struct {
	From    State
	To      State
	Allowed bool
	Reason  domain.ReasonCode
}

// Machine decides ownership transitions. It never mutates its inputs.
type Machine struct {
	config Config
}

// NewMachine creates a state machine
func NewMachine(cfg Config) *Machine {
	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = 0
	}
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = DEFAULT_ABANDON_AFTER
	}
	return &Machine{config: cfg}
}

// Config returns the machine timings
func (m *Machine) Config() Config {
	return m.config
}

// StateOf derives the state of t at now
func (m *Machine) StateOf(t *domain.Territory, now time.Time) State {
	if t.OwnerID == nil {
		return StateUnclaimed
	}
	if t.ContestedUntil != nil && now.Before(*t.ContestedUntil) {
		return StateContested
	}
	if t.LastClaimedAt == nil || now.Sub(*t.LastClaimedAt) >= m.config.AbandonAfter {
		return StateAbandoned
	}
	return StateOwned
}

// Claim decides a claim by req on t
func (m *Machine) Claim(t *domain.Territory, req Request, now time.Time) Transition {
	from := m.StateOf(t, now)
	allow := func(to State, reason domain.ReasonCode) Transition {
		return Transition{From: from, To: to, Allowed: true, Reason: reason}
	}
	deny := func(reason domain.ReasonCode) Transition {
		return Transition{From: from, To: from, Reason: reason}
	}

	// Reclaiming your own territory never enters contest semantics
	if t.IsOwnedBy(req.UserID) {
		if from == StateContested {
			return allow(StateContested, domain.ReasonRefreshed)
		}
		return allow(StateOwned, domain.ReasonRefreshed)
	}

	switch from {
	case StateUnclaimed, StateAbandoned:
		return allow(StateContested, domain.ReasonClaimed)
	case StateContested:
		if !req.Privileged {
			return deny(domain.ReasonLocked)
		}
		if !req.CanReclaim {
			return deny(domain.ReasonOutOfState)
		}
		return allow(StateContested, domain.ReasonClaimed)
	case StateOwned:
		if !req.CanReclaim {
			return deny(domain.ReasonOutOfState)
		}
		return allow(StateContested, domain.ReasonClaimed)
	}
	return deny(domain.ReasonOutOfState)
}

// Abandon decides the inactivity release of t
func (m *Machine) Abandon(t *domain.Territory, now time.Time) Transition {
	from := m.StateOf(t, now)
	if from != StateAbandoned {
		return Transition{From: from, To: from, Reason: domain.ReasonOutOfState}
	}
	return Transition{From: from, To: StateUnclaimed, Allowed: true, Reason: domain.ReasonAbandoned}
}

// Apply returns the document t becomes after the allowed transition tr
func (m *Machine) Apply(t *domain.Territory, tr Transition, req Request, now time.Time) (*domain.Territory, error) {
	if !tr.Allowed {
		return nil, fmt.Errorf("transition %s -> %s not allowed: %s", tr.From, tr.To, tr.Reason)
	}

	next := t.Clone()
	next.Version = t.Version + 1

	switch tr.Reason {
	case domain.ReasonClaimed:
		owner := req.UserID
		contestedUntil := now.Add(m.config.GracePeriod)
		claimedAt := now
		next.OwnerID = &owner
		next.AllianceID = cloneString(req.AllianceID)
		next.LastClaimedAt = &claimedAt
		next.ContestedUntil = &contestedUntil
	case domain.ReasonRefreshed:
		claimedAt := now
		next.LastClaimedAt = &claimedAt
	case domain.ReasonAbandoned:
		next.OwnerID = nil
		next.AllianceID = nil
		next.ContestedUntil = nil
	default:
		return nil, fmt.Errorf("unknown transition reason %q", tr.Reason)
	}

	return next, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
