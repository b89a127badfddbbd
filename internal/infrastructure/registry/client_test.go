package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Facturacion-sync/internal/domain"
)

// staticTokens provider fijo para tests; nunca falla ni refresca de verdad.
type staticTokens struct{ token string }

func (s *staticTokens) CurrentToken(context.Context) (string, error) { return s.token, nil }
func (s *staticTokens) Refresh(context.Context) (string, error)      { return s.token, nil }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, &staticTokens{token: "tok-123"}, 5*time.Second)
}

// FetchPage manda el token, los parámetros de paginación y el orden
// descendente por fecha de validación; la respuesta vuelve normalizada.
func TestClient_FetchPageNormalizaYPropagaMetadata(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1.0/documents/recent", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("pageNo"))
		assert.Equal(t, "50", q.Get("pageSize"))
		assert.Equal(t, "dateTimeValidated", q.Get("sortBy"))
		assert.Equal(t, "desc", q.Get("sortOrder"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"result": [
				{"uuid": "doc-1", "supplierTin": "900111222", "totalAmount": "150.50", "status": "Valid"},
				{"uuid": "doc-2", "issuerTin": "900333444", "documentStatus": "Submitted"}
			],
			"metadata": {"totalPages": 4, "totalCount": 200, "pageNo": 2, "pageSize": 50}
		}`))
	})

	page, info, err := client.FetchPage(context.Background(), 2, 50)

	require.NoError(t, err)
	require.Len(t, page.Documents, 2)
	assert.Equal(t, "900111222", page.Documents[0].IssuerTin, "supplierTin alimenta issuerTin")
	assert.Equal(t, "150.50", page.Documents[0].TotalPayableAmount.StringFixed(2))
	assert.Equal(t, "Submitted", page.Documents[1].Status)
	assert.Equal(t, 4, page.TotalPages)
	assert.Equal(t, 200, page.TotalCount)
	assert.True(t, page.HasMore())
	assert.False(t, info.Known(), "sin headers de rate-limit no hay telemetría")
}

// 401 se clasifica como error de autenticación, reconocible vía errors.Is.
func TestClient_401SeClasificaComoAuth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "token expired"}`))
	})

	_, _, err := client.FetchPage(context.Background(), 1, 100)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
}

// 429 arrastra la telemetría de los headers dentro del error, para que el
// controlador espere lo que el registro pida.
func TestClient_429ArrastraTelemetria(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "300")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "1750000000")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, info, err := client.FetchPage(context.Background(), 1, 100)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 30*time.Second, rle.Info.RetryAfter)
	assert.Equal(t, time.Unix(1750000000, 0), rle.Info.ResetAt)
	assert.True(t, info.Exhausted())
	assert.Equal(t, 300, info.Limit)
}

// 5xx es indisponibilidad transitoria, no entrada inválida.
func TestClient_5xxEsIndisponibilidad(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, _, err := client.FetchPage(context.Background(), 1, 100)

	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

// GetDocument: uuid vacío no sale a la red; uuid inexistente devuelve el
// not-found del registro.
func TestClient_GetDocumentValidaYPropagaNotFound(t *testing.T) {
	hits := 0
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetDocument(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, hits)

	_, err = client.GetDocument(context.Background(), "no-existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, hits)
}

// GetSubmission normaliza el resumen por documento igual que el listado.
func TestClient_GetSubmissionNormalizaResumen(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1.0/documentsubmissions/SUB-9", r.URL.Path)
		w.Write([]byte(`{
			"submissionUid": "SUB-9",
			"overallStatus": "in progress",
			"documentCount": 1,
			"documentSummary": [{"uuid": "doc-1", "buyerTin": "800555666", "status": "Submitted"}]
		}`))
	})

	state, err := client.GetSubmission(context.Background(), "SUB-9")

	require.NoError(t, err)
	assert.False(t, state.Terminal())
	require.Len(t, state.Documents, 1)
	assert.Equal(t, "800555666", state.Documents[0].ReceiverID, "buyerTin alimenta receiverId")
}
