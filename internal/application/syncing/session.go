package syncing

import (
	"time"

	"github.com/jhoicas/Facturacion-sync/internal/domain/entity"
	"github.com/jhoicas/Facturacion-sync/internal/infrastructure/registry"
)

// SyncMode modo de una corrida de sincronización.
type SyncMode string

const (
	ModeFull        SyncMode = "full"
	ModeIncremental SyncMode = "incremental"
)

// Fuente de los documentos devueltos al llamador.
const (
	SourceAPI      = "api"      // fetch en vivo contra el registro
	SourceDatabase = "database" // cache o lectura directa del store
	SourceFallback = "fallback" // último snapshot bueno tras fallo total del fetch
)

// SyncStats contadores agregados de una corrida, expuestos al llamador.
type SyncStats struct {
	Mode           SyncMode `json:"mode"`
	PagesFetched   int      `json:"pagesFetched"`
	NewCount       int      `json:"newCount"`
	DuplicateCount int      `json:"duplicateCount"`
	ErrorCount     int      `json:"errorCount"`
	EarlyStop      bool     `json:"earlyStop"`
	SavedCount     int      `json:"savedCount"`
	SaveErrors     int      `json:"saveErrors"`
}

// SyncResult es lo que recibe el llamador: documentos, de dónde salieron y
// las estadísticas de la corrida.
type SyncResult struct {
	Documents []entity.SyncedDocument `json:"documents"`
	Source    string                  `json:"source"`
	Stats     SyncStats               `json:"stats"`
}

// syncSession es el estado efímero de una corrida: se crea al entrar a
// Run, nunca se persiste ni se comparte entre corridas concurrentes.
type syncSession struct {
	mode   SyncMode
	cursor time.Time // lastSyncTimestamp; cero en modo full

	pagesFetched      int
	consecutiveErrors int

	newCount       int
	duplicateCount int
	errorCount     int

	// Racha de documentos consecutivos no-más-nuevos que el cursor (heurística
	// de parada temprana) y bandera de orden roto que la desactiva.
	staleRun       int
	orderingBroken bool
	earlyStop      bool

	rate *registry.RateLimitInfo // última telemetría vista

	collected []entity.SyncedDocument
}

func newSyncSession(mode SyncMode) *syncSession {
	return &syncSession{mode: mode}
}

func (s *syncSession) incremental() bool {
	return s.mode == ModeIncremental && !s.cursor.IsZero()
}

func (s *syncSession) stats() SyncStats {
	return SyncStats{
		Mode:           s.mode,
		PagesFetched:   s.pagesFetched,
		NewCount:       s.newCount,
		DuplicateCount: s.duplicateCount,
		ErrorCount:     s.errorCount,
		EarlyStop:      s.earlyStop,
	}
}
