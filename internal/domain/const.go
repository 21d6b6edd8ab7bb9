package domain

const (
	// NEUTRAL_TRUST_SCORE is the score every new session starts from
	NEUTRAL_TRUST_SCORE = 50
	// MAX_TRUST_SCORE is the upper bound of a trust score
	MAX_TRUST_SCORE = 100
	// MIN_TRUST_SCORE is the lower bound of a trust score
	MIN_TRUST_SCORE = 0
)
