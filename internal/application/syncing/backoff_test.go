package syncing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ──────────────────────────────────────────────────────────────────────────────
// BackoffPolicy: sin hint la espera crece exponencialmente con techo y jitter;
// con hint del registro, el hint gana con piso y margen de seguridad.
// ──────────────────────────────────────────────────────────────────────────────

// Sin hint, la espera esperada (jitter aparte) nunca decrece con el intento y
// nunca supera MaxDelay + JitterSpan.
func TestComputeDelay_MonotoniaYTecho(t *testing.T) {
	p := NewBackoffPolicy()

	prevFloor := time.Duration(0)
	for attempt := 0; attempt < 12; attempt++ {
		d := p.ComputeDelay(attempt, nil)
		require.Greater(t, d, time.Duration(0), "la espera nunca puede ser cero o negativa")
		assert.LessOrEqual(t, d, p.MaxDelay+p.JitterSpan, "intento %d superó el techo", attempt)

		// El piso determinista (sin jitter) es min(MaxDelay, Base*2^attempt).
		floor := p.BaseDelay
		for i := 0; i < attempt && floor < p.MaxDelay; i++ {
			floor *= 2
		}
		if floor > p.MaxDelay {
			floor = p.MaxDelay
		}
		assert.GreaterOrEqual(t, d, floor, "intento %d quedó bajo su piso exponencial", attempt)
		assert.GreaterOrEqual(t, floor, prevFloor, "el piso debe ser monótono")
		prevFloor = floor
	}
}

// Retry-After del registro gana sobre el cálculo exponencial y recibe el
// margen de seguridad.
func TestComputeDelay_RetryAfterGana(t *testing.T) {
	p := NewBackoffPolicy()

	d := p.ComputeDelay(0, &RetryHint{RetryAfter: 10 * time.Second})
	assert.Equal(t, 10*time.Second+p.SafetyBuffer, d)

	// Un intento alto no cambia nada: el hint manda.
	d = p.ComputeDelay(9, &RetryHint{RetryAfter: 10 * time.Second})
	assert.Equal(t, 10*time.Second+p.SafetyBuffer, d)
}

// Un Retry-After ridículamente corto se eleva al piso MinWait.
func TestComputeDelay_HintCortoSubeAlPiso(t *testing.T) {
	p := NewBackoffPolicy()

	d := p.ComputeDelay(0, &RetryHint{RetryAfter: 100 * time.Millisecond})
	assert.Equal(t, p.MinWait+p.SafetyBuffer, d)
}

// X-RateLimit-Reset absoluto se traduce a espera relativa contra el reloj.
func TestComputeDelay_ResetAbsoluto(t *testing.T) {
	p := NewBackoffPolicy()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	d := p.ComputeDelay(0, &RetryHint{ResetAt: now.Add(30 * time.Second)})
	assert.Equal(t, 30*time.Second+p.SafetyBuffer, d)
}

// Un reset en el pasado no puede producir espera negativa: cae al piso.
func TestComputeDelay_ResetEnElPasado(t *testing.T) {
	p := NewBackoffPolicy()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	d := p.ComputeDelay(0, &RetryHint{ResetAt: now.Add(-time.Minute)})
	require.Greater(t, d, time.Duration(0))
	assert.Equal(t, p.MinWait+p.SafetyBuffer, d)
}

// Un hint vacío se ignora y aplica el cálculo exponencial normal.
func TestComputeDelay_HintVacio(t *testing.T) {
	p := NewBackoffPolicy()

	d := p.ComputeDelay(0, &RetryHint{})
	assert.GreaterOrEqual(t, d, p.BaseDelay)
	assert.LessOrEqual(t, d, p.BaseDelay+p.JitterSpan)
}

// La variante corta para conflictos de persistencia mantiene las mismas
// garantías con montos de milisegundos.
func TestComputeDelay_PoliticaDeEscritura(t *testing.T) {
	p := NewWriteBackoffPolicy()

	for attempt := 0; attempt < 8; attempt++ {
		d := p.ComputeDelay(attempt, nil)
		require.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, p.MaxDelay+p.JitterSpan)
	}
}
