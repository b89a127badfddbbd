package syncing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-sync/pkg/logger"
)

// newTestCache construye un cache con reloj controlado por el test.
func newTestCache(t *testing.T) (*TypedCache, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	c := NewTypedCache(5, time.Minute, logger.Nop())
	c.now = func() time.Time { return now }
	return c, &now
}

type samplePayload struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Un valor guardado bajo kind K con TTL t es recuperable antes de t y ausente
// (y expulsado) después.
func TestCache_TTLPorKind(t *testing.T) {
	c, now := newTestCache(t)

	require.NoError(t, c.Set(KindValidationResults, "doc-1", "", samplePayload{Name: "a"}))

	var out samplePayload
	require.True(t, c.Get(KindValidationResults, "doc-1", "", &out))
	assert.Equal(t, "a", out.Name)

	// validation-results expira a los 10 minutos; a los 9 sigue vivo.
	*now = now.Add(9 * time.Minute)
	require.True(t, c.Get(KindValidationResults, "doc-1", "", &out))

	*now = now.Add(2 * time.Minute)
	assert.False(t, c.Get(KindValidationResults, "doc-1", "", &out), "pasado el TTL debe contar como ausente")
	assert.Equal(t, 0, c.Len(), "la lectura expirada expulsa la entrada")
}

// Un kind desconocido recibe el TTL por defecto (15 min).
func TestCache_KindDesconocidoUsaDefault(t *testing.T) {
	c, now := newTestCache(t)

	require.NoError(t, c.Set("kind-inventado", "x", "", 42))

	var out int
	*now = now.Add(14 * time.Minute)
	require.True(t, c.Get("kind-inventado", "x", "", &out))
	assert.Equal(t, 42, out)

	*now = now.Add(2 * time.Minute)
	assert.False(t, c.Get("kind-inventado", "x", "", &out))
}

// Mutar el objeto original después de Set, o el destino después de Get, no
// puede alterar lo cacheado: el payload cruza la frontera por copia profunda.
func TestCache_AislamientoPorCopia(t *testing.T) {
	c, _ := newTestCache(t)

	original := samplePayload{Name: "original", Values: []string{"v1", "v2"}}
	require.NoError(t, c.Set(KindDocumentDetails, "doc-9", "user-1", original))

	// Mutación del original después del Set.
	original.Name = "mutado"
	original.Values[0] = "hackeado"

	var first samplePayload
	require.True(t, c.Get(KindDocumentDetails, "doc-9", "user-1", &first))
	assert.Equal(t, "original", first.Name)
	assert.Equal(t, []string{"v1", "v2"}, first.Values)

	// Mutación de lo leído tampoco contamina lecturas posteriores.
	first.Values[1] = "roto"
	var second samplePayload
	require.True(t, c.Get(KindDocumentDetails, "doc-9", "user-1", &second))
	assert.Equal(t, []string{"v1", "v2"}, second.Values)
}

// El owner segmenta las entradas: mismo kind+id con owners distintos no
// colisionan.
func TestCache_SegmentacionPorOwner(t *testing.T) {
	c, _ := newTestCache(t)

	require.NoError(t, c.Set(KindDocumentDetails, "doc-1", "user-a", "de-a"))
	require.NoError(t, c.Set(KindDocumentDetails, "doc-1", "user-b", "de-b"))

	var out string
	require.True(t, c.Get(KindDocumentDetails, "doc-1", "user-a", &out))
	assert.Equal(t, "de-a", out)
	require.True(t, c.Get(KindDocumentDetails, "doc-1", "user-b", &out))
	assert.Equal(t, "de-b", out)

	c.Invalidate(KindDocumentDetails, "doc-1", "user-a")
	assert.False(t, c.Get(KindDocumentDetails, "doc-1", "user-a", &out))
	assert.True(t, c.Get(KindDocumentDetails, "doc-1", "user-b", &out))
}

// Al llegar a la capacidad, el Set barre los expirados antes de insertar.
func TestCache_CapacidadBarreExpirados(t *testing.T) {
	c, now := newTestCache(t) // capacidad 5

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, c.Set(KindValidationResults, id, "", id)) // TTL 10 min
	}
	require.Equal(t, 5, c.Len())

	// Todo expira; el siguiente Set debe barrer en vez de crecer.
	*now = now.Add(11 * time.Minute)
	require.NoError(t, c.Set(KindValidationResults, "f", "", "f"))
	assert.Equal(t, 1, c.Len())
}

// Cleanup elimina solo lo expirado y devuelve el conteo.
func TestCache_Cleanup(t *testing.T) {
	c, now := newTestCache(t)

	require.NoError(t, c.Set(KindValidationResults, "corto", "", 1)) // 10 min
	require.NoError(t, c.Set(KindRenderedTemplate, "largo", "", 2))  // 60 min

	*now = now.Add(30 * time.Minute)
	assert.Equal(t, 1, c.Cleanup())
	assert.Equal(t, 1, c.Len())

	var out int
	assert.True(t, c.Get(KindRenderedTemplate, "largo", "", &out))
}

// Start/Stop del sweep de fondo no se cuelga ni entra en pánico al repetirse.
func TestCache_SweepDeFondoArrancaYPara(t *testing.T) {
	c := NewTypedCache(10, 10*time.Millisecond, logger.Nop())

	c.Start()
	c.Start() // idempotente
	time.Sleep(30 * time.Millisecond)
	c.Stop()
	c.Stop() // idempotente
}
