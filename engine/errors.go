package engine

import (
	"context"
	"errors"

	"github.com/nbekov/ytscout/ledger"
	"github.com/nbekov/ytscout/ytapi"
)

// Error taxonomy surfaced to the conversational layer. Quota exhaustion and
// upstream unavailability are deliberately distinct so the caller can tell the
// user to wait for the reset versus simply retry.
var (
	// ErrQuotaExhausted: the user has no credits left; resets at the next boundary.
	ErrQuotaExhausted = errors.New("quota exhausted")
	// ErrUpstreamUnavailable: every credential failed or the call timed out;
	// transient, safe to retry later, never cached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNotFound: the requested video does not resolve upstream.
	ErrNotFound = errors.New("video not found")
)

// mapLedgerErr converts ledger errors into the engine taxonomy.
func mapLedgerErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ledger.ErrQuotaExhausted) {
		return ErrQuotaExhausted
	}
	return err
}

// mapUpstreamErr converts client errors into the engine taxonomy.
func mapUpstreamErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ytapi.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, ytapi.ErrExhausted) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return ErrUpstreamUnavailable
	}
	return err
}
