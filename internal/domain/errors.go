package domain

import "errors"

// Errores de dominio (sin dependencias externas). El motor de sincronización
// clasifica cada fallo en uno de estos para decidir la política de reintento:
// auth escala (un refresh y nada más), rate-limit espera sin gastar presupuesto
// de reintentos, transitorio reintenta con backoff acotado y permanente se
// propaga de inmediato.
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
	ErrRateLimited  = errors.New("límite de peticiones del registro alcanzado")
	ErrUnavailable  = errors.New("servicio del registro no disponible")
	ErrConflict     = errors.New("conflicto transitorio de persistencia")
)
