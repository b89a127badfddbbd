package repository

import (
	"context"
	"time"

	"github.com/jhoicas/Facturacion-sync/internal/domain/entity"
)

// DocumentRepository define el puerto de persistencia para documentos
// sincronizados. El store relacional es la única fuente de verdad; el
// Batch Persistence Writer es el único componente que escribe por aquí.
type DocumentRepository interface {
	// UpsertByUUID inserta o actualiza el documento usando uuid como clave
	// natural, dentro de una transacción acotada. Un conflicto transitorio
	// (deadlock, write-conflict) se reporta envolviendo domain.ErrConflict
	// para que el writer pueda reintentarlo.
	UpsertByUUID(ctx context.Context, doc *entity.SyncedDocument) error

	// FindByUUID devuelve el documento o nil si no existe.
	FindByUUID(ctx context.Context, uuid string) (*entity.SyncedDocument, error)

	// FindRecent devuelve los documentos más recientes por fecha de recepción,
	// acotados por limit. Es la base del fallback cuando el fetch en vivo falla.
	FindRecent(ctx context.Context, limit int) ([]entity.SyncedDocument, error)

	// FindMostRecentSyncTimestamp devuelve el instante del documento validado o
	// recibido más reciente (cursor del modo incremental), o nil si el store
	// está vacío.
	FindMostRecentSyncTimestamp(ctx context.Context) (*time.Time, error)

	// FindOpenSubmissions devuelve los submission_uid con documentos aún sin
	// estado terminal, para que el poller los siga.
	FindOpenSubmissions(ctx context.Context, limit int) ([]string, error)

	// CountAll devuelve el total de documentos persistidos.
	CountAll(ctx context.Context) (int64, error)
}
