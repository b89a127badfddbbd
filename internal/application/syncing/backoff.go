package syncing

import (
	"math/rand"
	"sync"
	"time"
)

// RetryHint es la indicación explícita de espera que el registro adjunta a un
// 429: Retry-After (relativo) o X-RateLimit-Reset (absoluto). Cuando existe,
// gana sobre el backoff exponencial calculado.
type RetryHint struct {
	RetryAfter time.Duration
	ResetAt    time.Time
}

// BackoffPolicy calcula cuánto esperar antes de reintentar. Es una función
// pura del número de intento y del hint del registro; el jitter existe para
// desincronizar llamadores concurrentes (thundering herd).
type BackoffPolicy struct {
	BaseDelay    time.Duration // primer reintento sin hint
	MaxDelay     time.Duration // techo del crecimiento exponencial
	JitterSpan   time.Duration // jitter uniforme [0, JitterSpan)
	MinWait      time.Duration // piso cuando el hint del registro es muy corto
	SafetyBuffer time.Duration // margen sobre el hint del registro

	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NewBackoffPolicy construye la política por defecto para llamadas al
// registro: base 1.5s, techo 60s, jitter 1s.
func NewBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		BaseDelay:    1500 * time.Millisecond,
		MaxDelay:     60 * time.Second,
		JitterSpan:   time.Second,
		MinWait:      1500 * time.Millisecond,
		SafetyBuffer: 500 * time.Millisecond,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
	}
}

// NewWriteBackoffPolicy es la variante corta para conflictos transitorios de
// persistencia (deadlock/write-conflict): esperas de decenas de milisegundos,
// no de segundos.
func NewWriteBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		JitterSpan:   100 * time.Millisecond,
		MinWait:      50 * time.Millisecond,
		SafetyBuffer: 0,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
	}
}

// ComputeDelay devuelve la espera para el intento dado (0-indexado).
//
// Con hint del registro: el hint gana, con piso MinWait y SafetyBuffer de
// margen. Sin hint: min(MaxDelay, BaseDelay*2^attempt) + jitter uniforme.
// Nunca devuelve cero ni negativo.
func (p *BackoffPolicy) ComputeDelay(attempt int, hint *RetryHint) time.Duration {
	if hint != nil {
		if d := p.hintDelay(hint); d > 0 {
			return d
		}
	}

	delay := p.BaseDelay
	for i := 0; i < attempt && delay < p.MaxDelay; i++ {
		delay *= 2
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	delay += p.jitter()

	if delay <= 0 {
		delay = p.MinWait
	}
	return delay
}

// hintDelay traduce el hint a una espera concreta; 0 significa "hint vacío".
func (p *BackoffPolicy) hintDelay(hint *RetryHint) time.Duration {
	var d time.Duration
	switch {
	case hint.RetryAfter > 0:
		d = hint.RetryAfter
	case !hint.ResetAt.IsZero():
		d = hint.ResetAt.Sub(p.currentTime())
	default:
		return 0
	}
	if d < p.MinWait {
		d = p.MinWait
	}
	return d + p.SafetyBuffer
}

func (p *BackoffPolicy) jitter() time.Duration {
	if p.JitterSpan <= 0 {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Duration(p.rnd.Int63n(int64(p.JitterSpan)))
}

func (p *BackoffPolicy) currentTime() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}
