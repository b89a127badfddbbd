package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Facturacion-sync/internal/application/dto"
	"github.com/jhoicas/Facturacion-sync/internal/application/syncing"
	"github.com/jhoicas/Facturacion-sync/internal/domain"
	"github.com/jhoicas/Facturacion-sync/internal/domain/repository"
)

// SyncHandler expone el motor de sincronización por HTTP (protegido).
// No contiene lógica de negocio: adapta el request, llama al engine y
// traduce la taxonomía de errores a códigos HTTP.
type SyncHandler struct {
	engine *syncing.Engine
	store  repository.DocumentRepository
}

// NewSyncHandler construye el handler.
func NewSyncHandler(engine *syncing.Engine, store repository.DocumentRepository) *SyncHandler {
	return &SyncHandler{engine: engine, store: store}
}

// Sync dispara una corrida de sincronización contra el registro.
// POST /api/v1/sync
func (h *SyncHandler) Sync(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}

	var in dto.SyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
		}
	}
	mode := syncing.ModeIncremental
	switch in.Mode {
	case "", string(syncing.ModeIncremental):
	case string(syncing.ModeFull):
		mode = syncing.ModeFull
	default:
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "mode debe ser 'full' o 'incremental'"})
	}

	result, err := h.engine.Sync(c.Context(), syncing.SyncOptions{
		Mode:         mode,
		MaxPages:     in.MaxPages,
		ForceRefresh: in.ForceRefresh,
		OwnerID:      userID,
	})
	if err != nil {
		return h.mapError(c, err)
	}

	return c.JSON(dto.SyncResponse{
		Source:    result.Source,
		Count:     len(result.Documents),
		Stats:     result.Stats,
		Documents: result.Documents,
	})
}

// ListDocuments devuelve los documentos persistidos más recientes.
// GET /api/v1/documents?limit=N
func (h *SyncHandler) ListDocuments(c *fiber.Ctx) error {
	if GetUserID(c) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	limit := c.QueryInt("limit", 100)
	docs, err := h.store.FindRecent(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	return c.JSON(fiber.Map{"source": syncing.SourceDatabase, "count": len(docs), "documents": docs})
}

// GetDocument devuelve el detalle de un documento, con cache.
// GET /api/v1/documents/:uuid
func (h *SyncHandler) GetDocument(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	uuid := c.Params("uuid")
	if uuid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "uuid requerido"})
	}
	doc, err := h.engine.GetDocumentDetails(c.Context(), uuid, userID)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(doc)
}

// PollSubmission consulta el estado de un lote enviado hasta terminal o timeout.
// POST /api/v1/submissions/:uid/poll
func (h *SyncHandler) PollSubmission(c *fiber.Ctx) error {
	if GetUserID(c) == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	uid := c.Params("uid")
	if uid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "submissionUid requerido"})
	}
	maxAttempts := c.QueryInt("maxAttempts", 0) // 0 = tope interactivo

	result, err := h.engine.PollSubmission(c.Context(), uid, maxAttempts)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(dto.PollResponse{
		SubmissionUID: result.SubmissionUID,
		Status:        result.Status,
		DocumentCount: result.DocumentCount,
		Documents:     result.Documents,
	})
}

// InvalidateCache expulsa una entrada del cache tipado.
// DELETE /api/v1/cache/:kind/:id
func (h *SyncHandler) InvalidateCache(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	kind, id := c.Params("kind"), c.Params("id")
	if kind == "" || id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "kind e id requeridos"})
	}
	h.engine.Cache().Invalidate(kind, id, userID)
	return c.SendStatus(fiber.StatusNoContent)
}

// mapError traduce la taxonomía de errores del motor a códigos HTTP.
func (h *SyncHandler) mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "REGISTRY_AUTH", Message: "el registro rechazó la credencial del sistema"})
	case errors.Is(err, domain.ErrRateLimited):
		return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{Code: "RATE_LIMITED", Message: "límite de peticiones del registro alcanzado"})
	case errors.Is(err, domain.ErrUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "REGISTRY_DOWN", Message: "registro no disponible y sin datos locales"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Code:      "INTERNAL",
			Message:   err.Error(),
			RequestID: GetRequestID(c),
		})
	}
}
