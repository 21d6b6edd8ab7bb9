package arbiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/feral-file/territory-arbiter/internal/adapter"
	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/emitter"
	"github.com/feral-file/territory-arbiter/internal/geo"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/store"
	"github.com/feral-file/territory-arbiter/internal/territory"
	"github.com/feral-file/territory-arbiter/internal/trust"
)

var errVersionMoved = errors.New("territory version moved")

// Arbiter is the only writer of territory ownership
//
//go:generate mockgen -source=arbiter.go -destination=../mocks/arbiter.go -package=mocks -mock_names=Arbiter=MockClaimArbiter
type Arbiter interface {
	// Claim arbitrates one claim attempt. Gameplay outcomes are reported through the
	// result's reason; an error is returned only for malformed or conflicting requests.
	Claim(ctx context.Context, attempt domain.ClaimAttempt) (*domain.ClaimResult, error)
	// Abandon releases a territory whose owner has been inactive past the timeout
	Abandon(ctx context.Context, territoryID string) (*domain.ClaimResult, error)
}

type arbiter struct {
	config      Config
	store       store.Store
	evaluator   trust.Evaluator
	machine     *territory.Machine
	index       geo.Index
	bus         emitter.Bus
	clock       adapter.Clock
	idempotency *idempotency
	log         *zap.Logger
}

// Deps are the collaborators of the arbiter. Index and Bus are optional.
type Deps struct {
	Store     store.Store
	Evaluator trust.Evaluator
	Machine   *territory.Machine
	Index     geo.Index
	Bus       emitter.Bus
	Clock     adapter.Clock
	Canonical adapter.CanonicalJSON
}

// NewArbiter creates a claim arbiter
func NewArbiter(cfg Config, deps Deps) (Arbiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arbiter config: %w", err)
	}
	if deps.Store == nil || deps.Evaluator == nil || deps.Machine == nil || deps.Clock == nil || deps.Canonical == nil {
		return nil, fmt.Errorf("arbiter requires store, evaluator, machine, clock and canonical json")
	}

	return &arbiter{
		config:      cfg,
		store:       deps.Store,
		evaluator:   deps.Evaluator,
		machine:     deps.Machine,
		index:       deps.Index,
		bus:         deps.Bus,
		clock:       deps.Clock,
		idempotency: newIdempotency(cfg, deps.Canonical),
		log:         logger.Named("arbiter"),
	}, nil
}

// Claim runs the attempt, replaying the earlier outcome for a repeated idempotency key
func (a *arbiter) Claim(ctx context.Context, attempt domain.ClaimAttempt) (*domain.ClaimResult, error) {
	if attempt.TerritoryID == "" {
		return nil, fmt.Errorf("%w: missing territory id", domain.ErrInvalidReport)
	}
	if attempt.Report.UserID == "" {
		attempt.Report.UserID = attempt.UserID
	}
	if attempt.Report.UserID != attempt.UserID {
		return nil, fmt.Errorf("%w: report belongs to another user", domain.ErrInvalidReport)
	}

	ctx, cancel := a.detach(ctx)
	defer cancel()

	if attempt.IdempotencyKey == "" {
		return a.claim(ctx, attempt)
	}
	return a.idempotency.do(attempt, func() (*domain.ClaimResult, error) {
		return a.claim(ctx, attempt)
	})
}

func (a *arbiter) claim(ctx context.Context, attempt domain.ClaimAttempt) (*domain.ClaimResult, error) {
	verdict, err := a.evaluator.Evaluate(attempt.Report, trust.ActionClaim)
	if err != nil {
		return nil, err
	}

	if !verdict.Accepted {
		result := &domain.ClaimResult{TrustScore: verdict.Score, Reason: domain.ReasonTrustRejected}
		a.logDecision(ctx, attempt.TerritoryID, attempt.UserID, result, zap.Any("trustReasons", verdict.Reasons))
		return result, nil
	}

	req := territory.Request{
		UserID:     attempt.UserID,
		AllianceID: attempt.AllianceID,
		CanReclaim: verdict.CanReclaim,
		Privileged: attempt.Privileged,
	}

	var firstOwner *string
	firstRead := true
	decide := func(current *domain.Territory, now time.Time) (territory.Transition, *domain.ClaimResult) {
		// Someone else took the territory while we were racing for it
		if firstRead {
			firstOwner = current.OwnerID
			firstRead = false
		} else if current.Owner() != stringValue(firstOwner) && !current.IsOwnedBy(attempt.UserID) {
			return territory.Transition{}, &domain.ClaimResult{Reason: domain.ReasonConflict}
		}

		if geo.Distance(attempt.Report.Location, current.Center) > current.RadiusMeters {
			return territory.Transition{}, &domain.ClaimResult{Reason: domain.ReasonOutOfRange}
		}

		return a.machine.Claim(current, req, now), nil
	}

	result := a.transition(ctx, attempt.TerritoryID, req, decide)
	result.TrustScore = verdict.Score
	a.logDecision(ctx, attempt.TerritoryID, attempt.UserID, result)
	return result, nil
}

// Abandon releases the territory if it is still abandoned when read
func (a *arbiter) Abandon(ctx context.Context, territoryID string) (*domain.ClaimResult, error) {
	if territoryID == "" {
		return nil, fmt.Errorf("%w: missing territory id", domain.ErrInvalidReport)
	}

	ctx, cancel := a.detach(ctx)
	defer cancel()

	decide := func(current *domain.Territory, now time.Time) (territory.Transition, *domain.ClaimResult) {
		return a.machine.Abandon(current, now), nil
	}

	result := a.transition(ctx, territoryID, territory.Request{}, decide)
	a.logDecision(ctx, territoryID, "", result)
	return result, nil
}

// detach keeps the request values but not its cancellation, so an arbitration that
// started runs to completion within the configured timeout
func (a *arbiter) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), a.config.Timeout)
}

type decideFunc func(current *domain.Territory, now time.Time) (territory.Transition, *domain.ClaimResult)

// transition reads the territory, lets decide pick a transition and commits it with a
// compare-and-swap. A moved version is retried with jittered backoff up to MaxRetries.
func (a *arbiter) transition(ctx context.Context, territoryID string, req territory.Request, decide decideFunc) *domain.ClaimResult {
	var result *domain.ClaimResult

	operation := func() error {
		current, err := a.store.Read(ctx, territoryID)
		if err != nil {
			if errors.Is(err, domain.ErrTerritoryNotFound) {
				result = &domain.ClaimResult{Reason: domain.ReasonNotFound}
				return nil
			}
			return backoff.Permanent(fmt.Errorf("failed to read territory: %w", err))
		}

		now := a.clock.Now()
		tr, early := decide(current, now)
		if early != nil {
			early.OwnerID = current.Owner()
			early.TerritoryVersion = current.Version
			result = early
			return nil
		}
		if !tr.Allowed {
			result = &domain.ClaimResult{OwnerID: current.Owner(), TerritoryVersion: current.Version, Reason: tr.Reason}
			return nil
		}

		next, err := a.machine.Apply(current, tr, req, now)
		if err != nil {
			return backoff.Permanent(err)
		}

		event := a.ownershipEvent(current, next, tr.Reason, now)
		var change *store.OwnershipChange
		if event != nil {
			change = &store.OwnershipChange{
				EventID:   event.EventID,
				OldOwner:  current.OwnerID,
				NewOwner:  next.OwnerID,
				Reason:    tr.Reason,
				ChangedAt: now,
				Meta: map[string]interface{}{
					"from_state": string(tr.From),
					"to_state":   string(tr.To),
				},
			}
		}

		ok, err := a.store.ConditionalWrite(ctx, next, current.Version, change)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to write territory: %w", err))
		}
		if !ok {
			return errVersionMoved
		}

		a.committed(ctx, next, event)
		result = &domain.ClaimResult{
			Success:          true,
			OwnerID:          next.Owner(),
			TerritoryVersion: next.Version,
			Reason:           tr.Reason,
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.config.RetryInitialInterval
	b.MaxInterval = a.config.RetryMaxInterval
	b.MaxElapsedTime = 0
	b.Multiplier = 2
	b.RandomizationFactor = 0.5

	var attemptCount int
	notify := func(err error, duration time.Duration) {
		attemptCount++
		a.log.Debug("Territory version moved, retrying",
			zap.String("territoryID", territoryID),
			zap.Int("attempt", attemptCount),
			zap.Duration("next_retry_in", duration))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(a.config.MaxRetries)), ctx)
	err := backoff.RetryNotify(operation, policy, notify)
	switch {
	case err == nil:
		return result
	case errors.Is(err, errVersionMoved):
		return &domain.ClaimResult{Reason: domain.ReasonConflict}
	default:
		logger.ErrorCtx(ctx, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err), zap.String("territoryID", territoryID))
		return &domain.ClaimResult{Reason: domain.ReasonStoreUnavailable}
	}
}

// ownershipEvent returns the event announcing an owner change, or nil for a refresh
func (a *arbiter) ownershipEvent(current, next *domain.Territory, reason domain.ReasonCode, now time.Time) *domain.TerritoryOwnershipChanged {
	if reason == domain.ReasonRefreshed {
		return nil
	}
	return &domain.TerritoryOwnershipChanged{
		EventID:     ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		TerritoryID: next.ID,
		OldOwner:    current.Owner(),
		NewOwner:    next.Owner(),
		Version:     next.Version,
		Reason:      reason,
		OccurredAt:  now,
	}
}

func (a *arbiter) committed(ctx context.Context, next *domain.Territory, event *domain.TerritoryOwnershipChanged) {
	if a.index != nil {
		a.index.Upsert(next)
	}
	if event != nil && a.bus != nil {
		a.bus.Emit(ctx, event)
	}
}

func (a *arbiter) logDecision(ctx context.Context, territoryID, userID string, result *domain.ClaimResult, fields ...zap.Field) {
	fields = append(fields,
		zap.String("territoryID", territoryID),
		zap.String("userID", userID),
		zap.String("reason", string(result.Reason)),
		zap.Bool("success", result.Success),
		zap.Int64("version", result.TerritoryVersion),
		zap.Int("trustScore", result.TrustScore))
	a.log.Debug("Claim decided", fields...)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
