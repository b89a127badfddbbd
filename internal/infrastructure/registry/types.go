package registry

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-sync/internal/domain"
	"github.com/jhoicas/Facturacion-sync/internal/domain/entity"
)

// rawDocument es la forma "tal cual llega" de un documento del registro.
// El API ha cambiado de nombres entre versiones (supplier*/buyer* vs
// issuer*/receiver*, y varios sinónimos para los montos), así que aquí se
// declaran todos y Normalize resuelve la prioridad en un solo lugar.
type rawDocument struct {
	UUID          string `json:"uuid"`
	SubmissionUID string `json:"submissionUid"`
	LongID        string `json:"longId"`
	InternalID    string `json:"internalId"`

	TypeName        string `json:"typeName"`
	TypeVersionName string `json:"typeVersionName"`

	IssuerTin    string `json:"issuerTin"`
	SupplierTin  string `json:"supplierTin"`
	IssuerName   string `json:"issuerName"`
	SupplierName string `json:"supplierName"`

	ReceiverID   string `json:"receiverId"`
	BuyerTin     string `json:"buyerTin"`
	ReceiverName string `json:"receiverName"`
	BuyerName    string `json:"buyerName"`

	DateTimeIssued    *time.Time `json:"dateTimeIssued"`
	DateTimeReceived  *time.Time `json:"dateTimeReceived"`
	DateTimeValidated *time.Time `json:"dateTimeValidated"`

	TotalSales           *decimal.Decimal `json:"totalSales"`
	TotalAmount          *decimal.Decimal `json:"totalAmount"`
	TotalExcludingTax    *decimal.Decimal `json:"totalExcludingTax"`
	TotalExclusiveAmount *decimal.Decimal `json:"totalExclusiveAmount"`
	TotalDiscount        *decimal.Decimal `json:"totalDiscount"`
	DiscountAmount       *decimal.Decimal `json:"discountAmount"`
	TotalNetAmount       *decimal.Decimal `json:"totalNetAmount"`
	NetAmount            *decimal.Decimal `json:"netAmount"`
	TotalPayableAmount   *decimal.Decimal `json:"totalPayableAmount"`
	PayableAmount        *decimal.Decimal `json:"payableAmount"`

	Status               string `json:"status"`
	DocumentStatus       string `json:"documentStatus"`
	DocumentStatusReason string `json:"documentStatusReason"`
	StatusReason         string `json:"statusReason"`
}

// listResponse respuesta del endpoint de listado paginado.
type listResponse struct {
	Result   []rawDocument `json:"result"`
	Metadata struct {
		TotalPages int `json:"totalPages"`
		TotalCount int `json:"totalCount"`
		PageNo     int `json:"pageNo"`
		PageSize   int `json:"pageSize"`
	} `json:"metadata"`
}

// submissionResponse respuesta del endpoint de estado de lote.
type submissionResponse struct {
	SubmissionUID   string        `json:"submissionUid"`
	OverallStatus   string        `json:"overallStatus"`
	DocumentCount   int           `json:"documentCount"`
	DocumentSummary []rawDocument `json:"documentSummary"`
}

// Page resultado de una llamada paginada, con los documentos ya normalizados
// a la forma canónica.
type Page struct {
	Documents  []entity.SyncedDocument
	PageNo     int
	PageSize   int
	TotalPages int
	TotalCount int
}

// HasMore indica si el registro reporta páginas posteriores a ésta.
func (p *Page) HasMore() bool {
	return p.TotalPages == 0 || p.PageNo < p.TotalPages
}

// RateLimitInfo telemetría de rate-limit extraída de los headers de cada
// respuesta del registro. Remaining = -1 significa "el registro no lo informó".
type RateLimitInfo struct {
	Remaining  int
	Limit      int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Known indica si la telemetría trae datos útiles.
func (r *RateLimitInfo) Known() bool {
	return r != nil && (r.Remaining >= 0 || !r.ResetAt.IsZero() || r.RetryAfter > 0)
}

// Exhausted indica que no quedan peticiones en la ventana actual.
func (r *RateLimitInfo) Exhausted() bool {
	return r != nil && r.Remaining == 0
}

// AuthError error de autenticación contra el registro (401/403).
// Dispara refresh de token aguas arriba, nunca retry-con-backoff.
type AuthError struct {
	StatusCode int
	Detail     string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("registro: autenticación rechazada (HTTP %d): %s", e.StatusCode, e.Detail)
}

// Unwrap permite clasificar con errors.Is(err, domain.ErrUnauthorized).
func (e *AuthError) Unwrap() error { return domain.ErrUnauthorized }

// RateLimitError error 429 con la telemetría que el registro adjuntó.
// El fetcher no reintenta: la política de espera es del controlador.
type RateLimitError struct {
	Info RateLimitInfo
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("registro: rate limit alcanzado (reset %s, retry-after %s)",
		e.Info.ResetAt.Format(time.RFC3339), e.Info.RetryAfter)
}

// Unwrap permite clasificar con errors.Is(err, domain.ErrRateLimited).
func (e *RateLimitError) Unwrap() error { return domain.ErrRateLimited }
