package dto

import "github.com/jhoicas/Facturacion-sync/internal/application/syncing"

// ErrorResponse cuerpo estándar de error de la API.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"` // correlación con los logs del servidor
}

// SyncRequest cuerpo de POST /api/v1/sync.
type SyncRequest struct {
	Mode         string `json:"mode"`         // "full" | "incremental" (default incremental)
	MaxPages     int    `json:"maxPages"`     // 0 = tope de configuración
	ForceRefresh bool   `json:"forceRefresh"` // salta el cache
}

// SyncResponse respuesta de POST /api/v1/sync: el resultado del motor más
// los conteos de la corrida.
type SyncResponse struct {
	Source    string            `json:"source"` // "api" | "database" | "fallback"
	Count     int               `json:"count"`
	Stats     syncing.SyncStats `json:"stats"`
	Documents any               `json:"documents"`
}

// PollResponse respuesta de POST /api/v1/submissions/:uid/poll.
type PollResponse struct {
	SubmissionUID string `json:"submissionUid"`
	Status        string `json:"status"`
	DocumentCount int    `json:"documentCount"`
	Documents     any    `json:"documents"`
}
