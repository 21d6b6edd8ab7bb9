package arbiter

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/feral-file/territory-arbiter/internal/adapter"
	"github.com/feral-file/territory-arbiter/internal/domain"
)

// outcome is a remembered claim result together with the request it answered
type outcome struct {
	fingerprint string
	result      domain.ClaimResult
}

// claimPayload is the part of a claim attempt that identifies the request. The server
// receive time is excluded since a resubmission arrives later.
type claimPayload struct {
	TerritoryID     string    `json:"territory_id"`
	UserID          string    `json:"user_id"`
	AllianceID      *string   `json:"alliance_id,omitempty"`
	DeviceID        string    `json:"device_id"`
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	Accuracy        float64   `json:"accuracy"`
	ClientTimestamp time.Time `json:"client_timestamp"`
	Privileged      bool      `json:"privileged"`
}

type idempotency struct {
	canonical adapter.CanonicalJSON
	outcomes  *expirable.LRU[string, outcome]
	inflight  singleflight.Group
}

func newIdempotency(cfg Config, canonical adapter.CanonicalJSON) *idempotency {
	return &idempotency{
		canonical: canonical,
		outcomes:  expirable.NewLRU[string, outcome](cfg.IdempotencyCacheSize, nil, cfg.IdempotencyWindow),
	}
}

// key scopes an idempotency key to its user
func (i *idempotency) key(attempt domain.ClaimAttempt) string {
	return attempt.UserID + "\x00" + attempt.IdempotencyKey
}

func (i *idempotency) fingerprint(attempt domain.ClaimAttempt) (string, error) {
	data, err := i.canonical.Canonical(claimPayload{
		TerritoryID:     attempt.TerritoryID,
		UserID:          attempt.UserID,
		AllianceID:      attempt.AllianceID,
		DeviceID:        attempt.Report.DeviceID,
		Lat:             attempt.Report.Location.Lat,
		Lon:             attempt.Report.Location.Lon,
		Accuracy:        attempt.Report.ReportedAccuracyMeters,
		ClientTimestamp: attempt.Report.ClientTimestamp.UTC(),
		Privileged:      attempt.Privileged,
	})
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize claim: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// do replays a remembered outcome for the key or runs fn once for all concurrent duplicates
func (i *idempotency) do(attempt domain.ClaimAttempt, fn func() (*domain.ClaimResult, error)) (*domain.ClaimResult, error) {
	fingerprint, err := i.fingerprint(attempt)
	if err != nil {
		return nil, err
	}
	key := i.key(attempt)

	if cached, ok := i.outcomes.Get(key); ok {
		return replay(cached, fingerprint)
	}

	v, err, _ := i.inflight.Do(key, func() (interface{}, error) {
		if cached, ok := i.outcomes.Get(key); ok {
			return cached, nil
		}

		result, err := fn()
		if err != nil {
			return nil, err
		}

		o := outcome{fingerprint: fingerprint, result: *result}
		if cacheable(result.Reason) {
			i.outcomes.Add(key, o)
		}
		return o, nil
	})
	if err != nil {
		return nil, err
	}

	return replay(v.(outcome), fingerprint)
}

func replay(o outcome, fingerprint string) (*domain.ClaimResult, error) {
	if o.fingerprint != fingerprint {
		return nil, domain.ErrIdempotencyKeyReused
	}
	result := o.result
	return &result, nil
}

// cacheable reports whether an outcome is final for its idempotency key. Retryable
// outcomes are not remembered so the client may resubmit with the same key.
func cacheable(reason domain.ReasonCode) bool {
	return !reason.Retryable()
}
