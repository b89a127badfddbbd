package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jhoicas/Facturacion-sync/internal/domain"
	"github.com/jhoicas/Facturacion-sync/internal/domain/entity"
)

// Headers de telemetría de rate-limit que publica el registro.
const (
	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset" // Unix segundos
	headerRetryAfter    = "Retry-After"       // segundos
)

// Client es el cliente HTTP contra el API del registro de facturación
// electrónica: listado paginado de documentos, detalle por uuid y estado de
// lotes (submissions). No reintenta nada por su cuenta: clasifica el fallo
// y deja la política de espera/reintento al controlador de sincronización.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenProvider
	now        func() time.Time
}

// NewClient construye el cliente. El timeout viene de configuración y ya
// llega acotado (30s–5min); el WS del registro puede tardar varios segundos.
func NewClient(baseURL string, tokens TokenProvider, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		tokens:     tokens,
		now:        time.Now,
	}
}

// FetchPage ejecuta una llamada al listado de documentos recientes, ordenado
// por fecha de validación descendente, y devuelve la página normalizada junto
// con la telemetría de rate-limit de la respuesta.
func (c *Client) FetchPage(ctx context.Context, pageNo, pageSize int) (*Page, *RateLimitInfo, error) {
	q := url.Values{}
	q.Set("pageNo", strconv.Itoa(pageNo))
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("sortBy", "dateTimeValidated")
	q.Set("sortOrder", "desc")

	body, info, err := c.do(ctx, c.baseURL+"/api/v1.0/documents/recent?"+q.Encode())
	if err != nil {
		return nil, info, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, info, fmt.Errorf("registro: decodificar listado: %w", err)
	}

	page := &Page{
		Documents:  NormalizeAll(resp.Result, c.now()),
		PageNo:     pageNo,
		PageSize:   pageSize,
		TotalPages: resp.Metadata.TotalPages,
		TotalCount: resp.Metadata.TotalCount,
	}
	return page, info, nil
}

// GetDocument obtiene el detalle de un documento por uuid, normalizado.
func (c *Client) GetDocument(ctx context.Context, uuid string) (*entity.SyncedDocument, error) {
	if uuid == "" {
		return nil, fmt.Errorf("%w: uuid vacío", domain.ErrInvalidInput)
	}
	body, _, err := c.do(ctx, c.baseURL+"/api/v1.0/documents/"+url.PathEscape(uuid)+"/details")
	if err != nil {
		return nil, err
	}
	var raw rawDocument
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("registro: decodificar documento %s: %w", uuid, err)
	}
	doc := Normalize(raw, c.now())
	return &doc, nil
}

// GetSubmission consulta el estado global de un lote y los resultados por
// documento que el registro haya calculado hasta el momento.
func (c *Client) GetSubmission(ctx context.Context, submissionUID string) (*entity.SubmissionPollState, error) {
	if submissionUID == "" {
		return nil, fmt.Errorf("%w: submissionUid vacío", domain.ErrInvalidInput)
	}
	body, _, err := c.do(ctx, c.baseURL+"/api/v1.0/documentsubmissions/"+url.PathEscape(submissionUID))
	if err != nil {
		return nil, err
	}
	var resp submissionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("registro: decodificar submission %s: %w", submissionUID, err)
	}
	return &entity.SubmissionPollState{
		SubmissionUID: resp.SubmissionUID,
		OverallStatus: resp.OverallStatus,
		Documents:     NormalizeAll(resp.DocumentSummary, c.now()),
	}, nil
}

// do ejecuta un GET autenticado y clasifica la respuesta:
// 401/403 → AuthError, 429 → RateLimitError con telemetría, 5xx y fallos de
// red → domain.ErrUnavailable. La telemetría se devuelve también en el caso
// exitoso para que el controlador module su ritmo.
func (c *Client) do(ctx context.Context, rawURL string) ([]byte, *RateLimitInfo, error) {
	token, err := c.tokens.CurrentToken(ctx)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("registro: crear request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w: llamada HTTP fallida: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	info := c.parseRateLimit(resp.Header)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20)) // max 8 MB
	if err != nil {
		return nil, info, fmt.Errorf("%w: leer respuesta: %v", domain.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, info, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, info, &AuthError{StatusCode: resp.StatusCode, Detail: truncate(body, 200)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, info, &RateLimitError{Info: *info}
	case resp.StatusCode == http.StatusNotFound:
		return nil, info, fmt.Errorf("%w: %s", domain.ErrNotFound, rawURL)
	case resp.StatusCode >= 500:
		return nil, info, fmt.Errorf("%w: HTTP %d: %s", domain.ErrUnavailable, resp.StatusCode, truncate(body, 200))
	default:
		return nil, info, fmt.Errorf("%w: HTTP %d: %s", domain.ErrInvalidInput, resp.StatusCode, truncate(body, 200))
	}
}

// parseRateLimit extrae la telemetría de los headers. Remaining queda en -1
// cuando el registro no lo informa, para distinguirlo de "cero disponibles".
func (c *Client) parseRateLimit(h http.Header) *RateLimitInfo {
	info := &RateLimitInfo{Remaining: -1}
	if v := h.Get(headerRateRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Remaining = n
		}
	}
	if v := h.Get(headerRateLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Limit = n
		}
	}
	if v := h.Get(headerRateReset); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			info.ResetAt = time.Unix(unix, 0)
		}
	}
	if v := h.Get(headerRetryAfter); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			info.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return info
}

func truncate(body []byte, max int) string {
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
