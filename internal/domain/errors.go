package domain

import "errors"

var (
	// ErrOutOfRange is returned when the reported location is outside the territory geofence
	ErrOutOfRange = errors.New("location outside territory geofence")

	// ErrTrustRejected is returned when the trust score is below the required threshold
	ErrTrustRejected = errors.New("location report not trusted")

	// ErrLocked is returned when the territory is inside another claimant's contested window
	ErrLocked = errors.New("territory is locked")

	// ErrConflict is returned when the compare-and-swap race was lost after the retry budget
	ErrConflict = errors.New("concurrent claim conflict")

	// ErrOutOfState is returned when the territory state does not admit the requested transition
	ErrOutOfState = errors.New("transition not allowed in current territory state")

	// ErrStoreUnavailable is returned when the backing store fails
	ErrStoreUnavailable = errors.New("territory store unavailable")

	// ErrTerritoryNotFound is returned when a territory does not exist
	ErrTerritoryNotFound = errors.New("territory not found")

	// ErrTerritoryAlreadyExists is returned when seeding a territory id twice
	ErrTerritoryAlreadyExists = errors.New("territory already exists")

	// ErrIdempotencyKeyReused is returned when an idempotency key is reused with a different payload
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with a different request")

	// ErrInvalidReport is returned when a location report is malformed
	ErrInvalidReport = errors.New("invalid location report")
)
