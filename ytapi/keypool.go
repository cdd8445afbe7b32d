package ytapi

import "errors"

// Credentials hands out one upstream API key per call attempt. Implementations
// decide the rotation strategy; callers only iterate attempts until ok is false.
// Keeping this behind an interface lets a cooldown or circuit-breaker pool
// replace the sequential one without touching the client.
type Credentials interface {
	// Key returns the credential for the given zero-based attempt, or ok=false
	// when the pool is exhausted.
	Key(attempt int) (key string, ok bool)
	// Len reports the pool size.
	Len() int
}

// KeyPool is the sequential-failover implementation over an ordered key list.
// No per-key cooldown state is kept: attempt N always maps to key N.
type KeyPool struct {
	keys []string
}

// NewKeyPool builds a pool from an ordered, non-empty key list.
func NewKeyPool(keys []string) (*KeyPool, error) {
	if len(keys) == 0 {
		return nil, errors.New("key pool requires at least one api key")
	}
	cp := make([]string, len(keys))
	copy(cp, keys)
	return &KeyPool{keys: cp}, nil
}

func (p *KeyPool) Key(attempt int) (string, bool) {
	if attempt < 0 || attempt >= len(p.keys) {
		return "", false
	}
	return p.keys[attempt], true
}

func (p *KeyPool) Len() int { return len(p.keys) }
