package domain

import "errors"

var (
	// ErrMalformedEvent is returned for updates missing identifiers or text.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrUnsupportedInteraction is returned for interactions the bot recognises
	// but does not handle yet.
	ErrUnsupportedInteraction = errors.New("interaction not implemented")
	// ErrCacheMiss is returned when a dismissed message was never cached.
	ErrCacheMiss = errors.New("cached reply not found")
	// ErrInvalidOption is returned for rendering options outside the known set.
	ErrInvalidOption = errors.New("invalid reply option")
	// ErrDelivery is returned when the platform rejects an outbound call.
	ErrDelivery = errors.New("reply delivery failed")
)
