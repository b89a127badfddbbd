package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/Facturacion-sync/internal/application/syncing"
	"github.com/jhoicas/Facturacion-sync/internal/domain/repository"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Engine    *syncing.Engine
	Store     repository.DocumentRepository
	JWTSecret string
}

// Router registra las rutas de la API. Todo lo que toca el motor va detrás
// del Bearer Token de sesión.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api/v1", AuthMiddleware(deps.JWTSecret))

	h := NewSyncHandler(deps.Engine, deps.Store)

	api.Post("/sync", h.Sync)
	api.Get("/documents", h.ListDocuments)
	api.Get("/documents/:uuid", h.GetDocument)
	api.Post("/submissions/:uid/poll", h.PollSubmission)
	api.Delete("/cache/:kind/:id", h.InvalidateCache)
}
