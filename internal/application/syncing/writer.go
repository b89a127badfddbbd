package syncing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/Facturacion-sync/internal/domain"
	"github.com/jhoicas/Facturacion-sync/internal/domain/entity"
	"github.com/jhoicas/Facturacion-sync/internal/domain/repository"
	"github.com/jhoicas/Facturacion-sync/pkg/logger"
)

// WriterConfig parámetros del escritor por lotes.
type WriterConfig struct {
	BatchSize  int // documentos por lote
	ChunkSize  int // upserts concurrentes en vuelo dentro del lote
	MaxRetries int // reintentos por documento ante conflicto transitorio
}

// DefaultWriterConfig lotes de 100, chunks de 5, hasta 5 reintentos.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{BatchSize: 100, ChunkSize: 5, MaxRetries: 5}
}

// SaveReport conteos agregados de una escritura. El fallo de un documento
// nunca bloquea a sus hermanos: se registra y se sigue.
type SaveReport struct {
	SuccessCount int
	ErrorCount   int
}

// BatchWriter persiste documentos sincronizados en lotes: upsert por uuid
// dentro de transacciones acotadas, con concurrencia intra-chunk y chunks
// secuenciales para limitar la contención de locks. Es el único componente
// que muta estado durable de documentos.
type BatchWriter struct {
	store   repository.DocumentRepository
	backoff *BackoffPolicy
	cfg     WriterConfig
	log     *logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewBatchWriter construye el escritor; backoff debe ser la variante corta
// (NewWriteBackoffPolicy), no la de llamadas al registro.
func NewBatchWriter(store repository.DocumentRepository, backoff *BackoffPolicy, cfg WriterConfig, log *logger.Logger) *BatchWriter {
	return &BatchWriter{
		store:   store,
		backoff: backoff,
		cfg:     cfg,
		log:     log,
		sleep:   sleepCtx,
	}
}

// Save upserta todos los documentos y devuelve conteos agregados. Solo
// devuelve error ante imposibilidad total de procesar la entrada (documentos
// sin uuid, contexto ya cancelado); el fallo parcial se reporta en conteos.
func (w *BatchWriter) Save(ctx context.Context, docs []entity.SyncedDocument) (*SaveReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := &SaveReport{}
	if len(docs) == 0 {
		return report, nil
	}
	for i := range docs {
		if docs[i].UUID == "" {
			return nil, fmt.Errorf("%w: documento en posición %d sin uuid", domain.ErrInvalidInput, i)
		}
	}

	for start := 0; start < len(docs); start += w.cfg.BatchSize {
		end := min(start+w.cfg.BatchSize, len(docs))
		w.saveBatch(ctx, docs[start:end], report)
		if ctx.Err() != nil {
			// Lo ya comprometido queda durable; el resto se reporta como error.
			report.ErrorCount += len(docs) - end
			break
		}
	}

	w.log.Info().Int("success", report.SuccessCount).Int("errors", report.ErrorCount).
		Int("total", len(docs)).Msg("writer: lote persistido")
	return report, nil
}

// saveBatch procesa un lote en chunks: todos los documentos de un chunk se
// upsertan en paralelo, los chunks van en secuencia.
func (w *BatchWriter) saveBatch(ctx context.Context, batch []entity.SyncedDocument, report *SaveReport) {
	var mu sync.Mutex
	for start := 0; start < len(batch); start += w.cfg.ChunkSize {
		if ctx.Err() != nil {
			return
		}
		end := min(start+w.cfg.ChunkSize, len(batch))
		chunk := batch[start:end]

		var wg sync.WaitGroup
		for i := range chunk {
			wg.Add(1)
			go func(doc *entity.SyncedDocument) {
				defer wg.Done()
				err := w.upsertWithRetry(ctx, doc)
				mu.Lock()
				if err != nil {
					report.ErrorCount++
				} else {
					report.SuccessCount++
				}
				mu.Unlock()
			}(&chunk[i])
		}
		wg.Wait()
	}
}

// upsertWithRetry reintenta solo conflictos transitorios (deadlock o
// write-conflict); cualquier otro error se registra por documento y corta.
func (w *BatchWriter) upsertWithRetry(ctx context.Context, doc *entity.SyncedDocument) error {
	var err error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if serr := w.sleep(ctx, w.backoff.ComputeDelay(attempt-1, nil)); serr != nil {
				return serr
			}
		}
		err = w.store.UpsertByUUID(ctx, doc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
		w.log.Debug().Str("uuid", doc.UUID).Int("attempt", attempt+1).
			Msg("writer: conflicto transitorio, reintentando upsert")
	}
	w.log.Error().Err(err).Str("uuid", doc.UUID).Msg("writer: upsert fallido")
	return err
}
