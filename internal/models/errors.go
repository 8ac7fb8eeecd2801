package models

import "errors"

var (
	// ErrInvalidRange marks a date range whose start is not strictly before its end.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrAmbiguousRoomMapping marks a source key from which no physical room can be derived.
	ErrAmbiguousRoomMapping = errors.New("ambiguous room mapping")

	// ErrSourceUnavailable marks a source that refused to serve this run (e.g. rate limited).
	// The source is skipped and the run continues with the rest.
	ErrSourceUnavailable = errors.New("source unavailable")
)
