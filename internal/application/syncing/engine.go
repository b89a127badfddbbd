package syncing

import (
	"context"
	"errors"

	"github.com/jhoicas/Facturacion-sync/internal/domain"
	"github.com/jhoicas/Facturacion-sync/internal/domain/entity"
	"github.com/jhoicas/Facturacion-sync/internal/domain/repository"
	"github.com/jhoicas/Facturacion-sync/pkg/logger"
)

// Tope de lotes abiertos de corridas anteriores que se rescatan por corrida.
const openSubmissionsLimit = 20

// DocumentGetter es el puerto hacia el endpoint de detalle del registro,
// usado por la consulta de detalles con cache.
type DocumentGetter interface {
	GetDocument(ctx context.Context, uuid string) (*entity.SyncedDocument, error)
}

// SyncOptions opciones de una llamada a Sync.
type SyncOptions struct {
	Mode         SyncMode
	MaxPages     int
	ForceRefresh bool   // salta el cache y fuerza fetch en vivo
	OwnerID      string // usuario dueño de la corrida; segmenta el cache
}

// Engine es la fachada pública del motor de sincronización: combina cache,
// controlador, escritor y poller. Se construye una vez al arrancar el proceso
// y se pasa por referencia a los llamadores; no hay estado global ambiente.
//
// Degradación: el llamador siempre recibe datos vivos, cacheados o el último
// snapshot válido con su tag de source; solo un fallo total (sin API, sin
// cache, sin snapshot) se propaga como error.
type Engine struct {
	cache      *TypedCache
	controller *Controller
	writer     *BatchWriter
	poller     *Poller
	documents  DocumentGetter
	store      repository.DocumentRepository
	log        *logger.Logger
}

// NewEngine arma la fachada con sus componentes ya construidos.
func NewEngine(cache *TypedCache, controller *Controller, writer *BatchWriter, poller *Poller, documents DocumentGetter, store repository.DocumentRepository, log *logger.Logger) *Engine {
	return &Engine{
		cache:      cache,
		controller: controller,
		writer:     writer,
		poller:     poller,
		documents:  documents,
		store:      store,
		log:        log,
	}
}

// Sync ejecuta una corrida de sincronización completa:
// cache → controlador → persistencia → seguimiento de lotes abiertos → cache.
func (e *Engine) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	if opts.Mode == "" {
		opts.Mode = ModeIncremental
	}
	cacheID := string(opts.Mode)

	if !opts.ForceRefresh {
		var cached SyncResult
		if e.cache.Get(KindRecentDocuments, cacheID, opts.OwnerID, &cached) {
			cached.Source = SourceDatabase
			e.log.Debug().Str("mode", cacheID).Msg("sync: resultado servido desde cache")
			return &cached, nil
		}
	}

	result, err := e.controller.Run(ctx, opts.Mode, opts.MaxPages)
	if err != nil {
		return nil, err
	}

	if result.Source == SourceAPI && len(result.Documents) > 0 {
		report, serr := e.writer.Save(ctx, result.Documents)
		if serr != nil {
			// Entrada malformada o cancelación: los documentos ya están en
			// memoria, el llamador los recibe igual con el error contado.
			e.log.Error().Err(serr).Msg("sync: persistencia del lote fallida")
			result.Stats.SaveErrors = len(result.Documents)
		} else {
			result.Stats.SavedCount = report.SuccessCount
			result.Stats.SaveErrors = report.ErrorCount
		}

		e.pollOpenSubmissions(ctx, result.Documents)
	}

	if cerr := e.cache.Set(KindRecentDocuments, cacheID, opts.OwnerID, result); cerr != nil {
		e.log.Warn().Err(cerr).Msg("sync: no se pudo cachear el resultado")
	}
	return result, nil
}

// PollSubmission sigue un lote puntual hasta terminal o timeout.
// maxAttempts <= 0 usa el tope interactivo de configuración.
func (e *Engine) PollSubmission(ctx context.Context, submissionUID string, maxAttempts int) (*entity.SubmissionPollResult, error) {
	return e.poller.Poll(ctx, submissionUID, maxAttempts)
}

// GetDocumentDetails consulta el detalle de un documento con cache: hit →
// copia cacheada; miss → registro (y se cachea); registro caído → copia
// persistida si existe.
func (e *Engine) GetDocumentDetails(ctx context.Context, uuid, ownerID string) (*entity.SyncedDocument, error) {
	var cached entity.SyncedDocument
	if e.cache.Get(KindDocumentDetails, uuid, ownerID, &cached) {
		return &cached, nil
	}

	doc, err := e.documents.GetDocument(ctx, uuid)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		// Registro no disponible: el store es siempre seguro de leer.
		stored, serr := e.store.FindByUUID(ctx, uuid)
		if serr == nil && stored != nil {
			e.log.Warn().Err(err).Str("uuid", uuid).Msg("details: registro caído, sirviendo copia persistida")
			return stored, nil
		}
		return nil, err
	}

	if cerr := e.cache.Set(KindDocumentDetails, uuid, ownerID, doc); cerr != nil {
		e.log.Warn().Err(cerr).Str("uuid", uuid).Msg("details: no se pudo cachear")
	}
	return doc, nil
}

// Cache expone el cache tipado para que los llamadores (p.ej. el endpoint de
// detalles del web layer) puedan invalidar o consultar directamente.
func (e *Engine) Cache() *TypedCache {
	return e.cache
}

// pollOpenSubmissions descubre lotes sin estado terminal entre los documentos
// recién traídos, más los que quedaron abiertos de corridas anteriores, y los
// sigue con el tope de fondo. Mejor esfuerzo: los fallos quedan en el log y la
// corrida no se ve afectada.
func (e *Engine) pollOpenSubmissions(ctx context.Context, docs []entity.SyncedDocument) {
	seen := make(map[string]struct{})
	var open []string
	for i := range docs {
		doc := &docs[i]
		if doc.SubmissionUID == "" || doc.IsTerminal() {
			continue
		}
		if _, dup := seen[doc.SubmissionUID]; dup {
			continue
		}
		seen[doc.SubmissionUID] = struct{}{}
		open = append(open, doc.SubmissionUID)
	}

	// Lotes que una corrida anterior dejó sin estado terminal.
	stored, err := e.store.FindOpenSubmissions(ctx, openSubmissionsLimit)
	if err != nil {
		e.log.Warn().Err(err).Msg("sync: no se pudieron listar lotes abiertos previos")
	}
	for _, uid := range stored {
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		open = append(open, uid)
	}

	if len(open) == 0 {
		return
	}
	e.log.Info().Int("submissions", len(open)).Msg("sync: siguiendo lotes aún en validación")
	e.poller.PollAll(ctx, open, e.poller.cfg.BackgroundBound)
}
