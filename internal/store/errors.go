package store

import "errors"

var (
	errInvalidTerritory      = errors.New("territory must have an id")
	errVersionNotIncremented = errors.New("conditional write must increment the version by one")
)
