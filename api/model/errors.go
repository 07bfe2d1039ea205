package model

import "errors"

var (
	// ErrNoCoverage means no eligible node can answer for a location.
	ErrNoCoverage = errors.New("no eligible node for location")
	// ErrNoGeoData means a node has no usable geolocation.
	ErrNoGeoData = errors.New("node has no usable geolocation")
	// ErrConflict means a concurrent write changed the record first.
	ErrConflict     = errors.New("concurrent update conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)
