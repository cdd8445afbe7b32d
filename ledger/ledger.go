// Package ledger implements the per-user credit ledger: lazy account creation
// at full balance, configurable reset policies, and idempotent charging keyed
// by (user, video). Charges for one user are serialized by a per-account lock.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nbekov/ytscout/telemetry"
)

// ErrQuotaExhausted is returned when a non-exempt user has no balance left for
// a video they have not paid for before. It clears at the next reset boundary.
var ErrQuotaExhausted = errors.New("quota exhausted")

// Store persists accounts and consumption records.
type Store interface {
	GetAccount(ctx context.Context, userID int64) (balance int, resetAt time.Time, exempt bool, ok bool, err error)
	PutAccount(ctx context.Context, userID int64, balance int, resetAt time.Time, exempt bool) error
	SeenConsumption(ctx context.Context, userID int64, videoID string) (bool, error)
	RecordConsumption(ctx context.Context, userID int64, videoID string) error
}

// Options configures the ledger.
type Options struct {
	// Max is the full balance granted at creation and at each reset.
	Max int
	// ChargeRepeats restores the legacy charge-every-time behavior; when false
	// (default) re-charging an already-consumed (user, video) pair is a no-op.
	ChargeRepeats bool
	// Exempt lists unlimited-quota principals.
	Exempt []int64

	// Daily selects the fixed wall-clock reset policy: the balance refills at
	// ResetAt ("HH:MM") in Timezone. Otherwise the rolling policy applies and
	// the balance refills RollingPeriod after the last reset.
	Daily         bool
	ResetAt       string
	Timezone      string
	RollingPeriod time.Duration
}

// Ledger is safe for concurrent use.
type Ledger struct {
	store         Store
	max           int
	chargeRepeats bool
	exempt        map[int64]bool

	daily      bool
	resetHour  int
	resetMin   int
	loc        *time.Location
	rolling    time.Duration

	now func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New validates options and builds a ledger over the given store.
func New(store Store, opts Options) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("ledger store is nil")
	}
	if opts.Max <= 0 {
		opts.Max = 5
	}
	if opts.RollingPeriod <= 0 {
		opts.RollingPeriod = 24 * time.Hour
	}
	l := &Ledger{
		store:         store,
		max:           opts.Max,
		chargeRepeats: opts.ChargeRepeats,
		exempt:        make(map[int64]bool, len(opts.Exempt)),
		daily:         opts.Daily,
		rolling:       opts.RollingPeriod,
		loc:           time.UTC,
		now:           time.Now,
		locks:         make(map[int64]*sync.Mutex),
	}
	for _, id := range opts.Exempt {
		l.exempt[id] = true
	}
	if opts.Daily {
		h, m, err := parseClock(opts.ResetAt)
		if err != nil {
			return nil, err
		}
		l.resetHour, l.resetMin = h, m
		if opts.Timezone != "" {
			loc, err := time.LoadLocation(opts.Timezone)
			if err != nil {
				return nil, fmt.Errorf("load reset timezone: %w", err)
			}
			l.loc = loc
		}
	}
	return l, nil
}

// SetClock overrides the time source. Tests only.
func (l *Ledger) SetClock(now func() time.Time) { l.now = now }

// Max returns the configured full balance.
func (l *Ledger) Max() int { return l.max }

// Balance returns the user's current balance, lazily creating the account at
// full balance and applying any crossed reset boundary first.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int, error) {
	if l.exempt[userID] {
		return l.max, nil
	}
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	balance, _, _, err := l.refresh(ctx, userID)
	return balance, err
}

// CanCharge reports whether a charge for (user, video) would succeed, without
// mutating the balance. It still applies lazy creation and reset crossing.
func (l *Ledger) CanCharge(ctx context.Context, userID int64, videoID string) error {
	if l.exempt[userID] {
		return nil
	}
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if !l.chargeRepeats {
		seen, err := l.store.SeenConsumption(ctx, userID, videoID)
		if err != nil {
			return fmt.Errorf("check consumption: %w", err)
		}
		if seen {
			return nil
		}
	}
	balance, _, _, err := l.refresh(ctx, userID)
	if err != nil {
		return err
	}
	if balance <= 0 {
		telemetry.Inc(telemetry.QuotaDenials)
		return ErrQuotaExhausted
	}
	return nil
}

// Charge consumes one credit for (user, video). Exempt users and idempotent
// re-access are no-ops. The per-user lock prevents a double-spend race.
func (l *Ledger) Charge(ctx context.Context, userID int64, videoID string) error {
	if l.exempt[userID] {
		return nil
	}
	mu := l.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	if !l.chargeRepeats {
		seen, err := l.store.SeenConsumption(ctx, userID, videoID)
		if err != nil {
			return fmt.Errorf("check consumption: %w", err)
		}
		if seen {
			return nil
		}
	}

	balance, resetAt, exempt, err := l.refresh(ctx, userID)
	if err != nil {
		return err
	}
	if exempt {
		return nil
	}
	if balance <= 0 {
		telemetry.Inc(telemetry.QuotaDenials)
		return ErrQuotaExhausted
	}
	if err := l.store.PutAccount(ctx, userID, balance-1, resetAt, exempt); err != nil {
		return fmt.Errorf("decrement balance: %w", err)
	}
	if err := l.store.RecordConsumption(ctx, userID, videoID); err != nil {
		return fmt.Errorf("record consumption: %w", err)
	}
	telemetry.Inc(telemetry.QuotaCharges)
	return nil
}

// refresh loads the account, creating it at full balance on first sight and
// refilling it when the reset boundary has been crossed. Caller holds the
// per-user lock.
func (l *Ledger) refresh(ctx context.Context, userID int64) (int, time.Time, bool, error) {
	balance, resetAt, exempt, ok, err := l.store.GetAccount(ctx, userID)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("load account: %w", err)
	}
	now := l.now()
	if !ok {
		balance, resetAt, exempt = l.max, l.nextReset(now), false
		if err := l.store.PutAccount(ctx, userID, balance, resetAt, exempt); err != nil {
			return 0, time.Time{}, false, fmt.Errorf("create account: %w", err)
		}
		return balance, resetAt, exempt, nil
	}
	if !now.Before(resetAt) {
		balance, resetAt = l.max, l.nextReset(now)
		if err := l.store.PutAccount(ctx, userID, balance, resetAt, exempt); err != nil {
			return 0, time.Time{}, false, fmt.Errorf("reset account: %w", err)
		}
	}
	return balance, resetAt, exempt, nil
}

// nextReset computes the boundary strictly after now for the active policy.
func (l *Ledger) nextReset(now time.Time) time.Time {
	if !l.daily {
		return now.Add(l.rolling)
	}
	local := now.In(l.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), l.resetHour, l.resetMin, 0, 0, l.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (l *Ledger) userLock(userID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.locks[userID]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[userID] = mu
	}
	return mu
}

func parseClock(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid reset time %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid reset hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid reset minute in %q", s)
	}
	return h, m, nil
}
