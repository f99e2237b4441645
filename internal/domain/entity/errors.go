package entity

import "errors"

// Failure taxonomy. Transient and semantic quote failures follow
// different recovery paths: transient errors are retried and then
// reported as "value unknown"; semantic errors trigger the
// reference-amount fallback. Configuration errors are fatal for the
// run and never retried.
var (
	// ErrQuoteUnavailable: the price service could not produce a quote
	// after bounded retries (outage, 5xx, transport failure).
	ErrQuoteUnavailable = errors.New("quote service unavailable")

	// ErrAmountTooSmall: the service judged the sell amount too small
	// to route reliably. Callers retry with a reference amount.
	ErrAmountTooSmall = errors.New("sell amount too small to quote")

	// ErrUnsupportedPair: the pair cannot be routed at all.
	ErrUnsupportedPair = errors.New("unsupported token pair")

	// ErrUnknownToken: a token was encountered that has no registry
	// entry. Configuration error, fatal for the run.
	ErrUnknownToken = errors.New("token not found in registry")

	// ErrUnknownNetwork: a network name with no registry entry.
	ErrUnknownNetwork = errors.New("network not found in registry")

	// ErrStoreUnavailable: the snapshot store rejected or could not
	// complete the write after its own bounded retry.
	ErrStoreUnavailable = errors.New("snapshot store unavailable")

	// ErrInvalidSnapshot: the snapshot is missing required fields and
	// must not be written.
	ErrInvalidSnapshot = errors.New("snapshot missing required fields")
)
