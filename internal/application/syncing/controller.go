package syncing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/jhoicas/Facturacion-sync/internal/domain"
	"github.com/jhoicas/Facturacion-sync/internal/domain/entity"
	"github.com/jhoicas/Facturacion-sync/internal/domain/repository"
	"github.com/jhoicas/Facturacion-sync/internal/infrastructure/registry"
	"github.com/jhoicas/Facturacion-sync/pkg/logger"
)

// PageFetcher es el puerto hacia el listado paginado del registro.
// registry.Client lo implementa; los tests inyectan un fake.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageNo, pageSize int) (*registry.Page, *registry.RateLimitInfo, error)
}

// TokenRefresher es lo único que el controlador necesita del token provider:
// forzar un refresh cuando el registro rechaza la credencial.
type TokenRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// ControllerConfig parámetros de la corrida. Los umbrales de parada temprana
// son heurísticos afinados en operación, por eso son configurables.
type ControllerConfig struct {
	PageSize             int           // tamaño de página pedido al registro
	MaxPages             int           // tope duro de páginas por corrida
	MaxRetries           int           // reintentos por página para fallos transitorios
	MaxConsecutiveErrors int           // páginas fallidas seguidas antes de abortar el loop
	StaleRunThreshold    int           // documentos no-más-nuevos consecutivos para parar
	StalePageMin         int           // mínimo de no-más-nuevos para la parada por página
	FallbackLimit        int           // documentos del snapshot de fallback
	BasePageDelay        time.Duration // ritmo entre páginas con cuota holgada
	SlowPageDelay        time.Duration // ritmo cuando la cuota restante es baja
	LowRemainingMark     int           // umbral de "cuota baja" en la telemetría
}

// DefaultControllerConfig valores de operación normales.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		PageSize:             100,
		MaxPages:             20,
		MaxRetries:           3,
		MaxConsecutiveErrors: 3,
		StaleRunThreshold:    10,
		StalePageMin:         5,
		FallbackLimit:        1000,
		BasePageDelay:        500 * time.Millisecond,
		SlowPageDelay:        2 * time.Second,
		LowRemainingMark:     10,
	}
}

// Controller orquesta la sincronización incremental contra el registro:
// pagina, decide cuándo parar, clasifica fallos y agrega el resultado.
// Nunca devuelve error al llamador mientras exista data persistida válida
// para el fallback; solo falla cuando fetch y fallback quedaron vacíos.
type Controller struct {
	fetcher PageFetcher
	tokens  TokenRefresher
	store   repository.DocumentRepository
	backoff *BackoffPolicy
	cfg     ControllerConfig
	log     *logger.Logger

	// Ritmo proactivo entre páginas; su tasa se degrada cuando la telemetría
	// de rate-limit reporta poca cuota restante.
	limiter *rate.Limiter

	// Inyectables para tests deterministas.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewController construye el controlador con la política de backoff dada.
func NewController(fetcher PageFetcher, tokens TokenRefresher, store repository.DocumentRepository, backoff *BackoffPolicy, cfg ControllerConfig, log *logger.Logger) *Controller {
	return &Controller{
		fetcher: fetcher,
		tokens:  tokens,
		store:   store,
		backoff: backoff,
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(cfg.BasePageDelay), 1),
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// Run ejecuta una corrida completa. maxPages <= 0 usa el tope de config;
// un maxPages mayor que el de config se recorta (es un tope duro).
func (c *Controller) Run(ctx context.Context, mode SyncMode, maxPages int) (*SyncResult, error) {
	if maxPages <= 0 || maxPages > c.cfg.MaxPages {
		maxPages = c.cfg.MaxPages
	}

	sess := newSyncSession(mode)
	if mode == ModeIncremental {
		ts, err := c.store.FindMostRecentSyncTimestamp(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("sync: no se pudo leer el cursor, corriendo como full")
		} else if ts == nil {
			// Store vacío: no hay cursor contra el cual comparar.
			c.log.Info().Msg("sync: store vacío, modo incremental se comporta como full")
		} else {
			sess.cursor = *ts
		}
	}

	c.paginate(ctx, sess, maxPages)
	if ctx.Err() != nil {
		// Cancelación del llamador: el progreso parcial ya persistido es
		// legítimo, pero no inventamos un resultado.
		return nil, ctx.Err()
	}

	if len(sess.collected) > 0 {
		c.log.Info().
			Str("mode", string(mode)).
			Int("pages", sess.pagesFetched).
			Int("new", sess.newCount).
			Int("duplicates", sess.duplicateCount).
			Bool("earlyStop", sess.earlyStop).
			Msg("sync: corrida completada desde el API")
		return &SyncResult{Documents: sess.collected, Source: SourceAPI, Stats: sess.stats()}, nil
	}

	// Cero documentos. Un incremental que paginó bien y solo vio documentos
	// ya sincronizados es un "no hay nada nuevo" deliberado, no un fallo.
	if sess.incremental() && sess.pagesFetched > 0 {
		return &SyncResult{Documents: []entity.SyncedDocument{}, Source: SourceAPI, Stats: sess.stats()}, nil
	}

	return c.fallback(ctx, sess)
}

// paginate es el loop de páginas: respeta la telemetría de rate-limit antes
// de cada request, clasifica fallos y aplica las heurísticas de parada.
func (c *Controller) paginate(ctx context.Context, sess *syncSession, maxPages int) {
	for pageNo := 1; pageNo <= maxPages; pageNo++ {
		if sess.consecutiveErrors >= c.cfg.MaxConsecutiveErrors {
			c.log.Warn().Int("page", pageNo).Msg("sync: demasiadas páginas fallidas seguidas, abortando loop")
			return
		}
		if ctx.Err() != nil {
			return
		}

		// Cuota agotada según telemetría: dormir hasta el reset, con margen.
		if sess.rate.Exhausted() {
			wait := c.backoff.ComputeDelay(0, &RetryHint{ResetAt: sess.rate.ResetAt})
			c.log.Info().Dur("wait", wait).Msg("sync: cuota agotada, esperando ventana de reset")
			if err := c.sleep(ctx, wait); err != nil {
				return
			}
			// La telemetría quedó vieja tras esperar la ventana; se limpia para
			// no volver a dormir con el mismo dato si el registro deja de enviarla.
			sess.rate = nil
		}

		page, err := c.fetchPageWithRetry(ctx, sess, pageNo)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Presupuesto agotado para esta página: se registra y se avanza a
			// la siguiente en vez de abortar toda la corrida.
			sess.consecutiveErrors++
			sess.errorCount++
			c.log.Error().Err(err).Int("page", pageNo).Int("consecutive", sess.consecutiveErrors).
				Msg("sync: página agotó reintentos")
			continue
		}
		sess.consecutiveErrors = 0
		sess.pagesFetched++

		stop := c.consumePage(sess, page)
		if stop {
			return
		}
		if len(page.Documents) == 0 || !page.HasMore() {
			return
		}

		if err := c.pacing(ctx, sess); err != nil {
			return
		}
	}
}

// consumePage particiona la página (modo incremental) y aplica las dos
// heurísticas de parada temprana. Devuelve true si la paginación debe parar.
func (c *Controller) consumePage(sess *syncSession, page *registry.Page) bool {
	if !sess.incremental() {
		sess.collected = append(sess.collected, page.Documents...)
		sess.newCount += len(page.Documents)
		return false
	}

	// Guardia del supuesto de orden: la parada temprana solo es correcta si
	// el registro entrega estrictamente "más nuevos primero". Ante una página
	// fuera de orden se desactiva para el resto de la corrida.
	if !sess.orderingBroken && !descendingByValidation(page.Documents) {
		sess.orderingBroken = true
		c.log.Warn().Int("page", page.PageNo).
			Msg("sync: página fuera de orden, parada temprana desactivada para esta corrida")
	}

	newInPage, staleInPage := 0, 0
	for i := range page.Documents {
		doc := page.Documents[i]
		if doc.NewerThan(sess.cursor) {
			sess.collected = append(sess.collected, doc)
			sess.newCount++
			newInPage++
			sess.staleRun = 0
			continue
		}
		sess.duplicateCount++
		staleInPage++
		sess.staleRun++
		if !sess.orderingBroken && sess.staleRun >= c.cfg.StaleRunThreshold {
			// Racha larga de ya-sincronizados: señal fuerte de que la cola de
			// esta página (y todo lo que sigue) ya se sincronizó antes.
			sess.earlyStop = true
			return true
		}
	}

	// Página mayoritariamente vieja: parar después de esta página.
	if !sess.orderingBroken && staleInPage >= c.cfg.StalePageMin && staleInPage > newInPage {
		sess.earlyStop = true
		return true
	}
	return false
}

// fetchPageWithRetry trae una página aplicando la taxonomía de fallos:
//   - auth: un solo refresh de token y reintento sin gastar presupuesto
//   - rate-limit: espera dirigida por el registro, sin gastar presupuesto
//   - transitorio: backoff exponencial hasta MaxRetries
func (c *Controller) fetchPageWithRetry(ctx context.Context, sess *syncSession, pageNo int) (*registry.Page, error) {
	refreshed := false
	retries := 0
	for {
		page, info, err := c.fetcher.FetchPage(ctx, pageNo, c.cfg.PageSize)
		if info.Known() {
			sess.rate = info
			c.adjustPace(info)
		}
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		switch {
		case errors.Is(err, domain.ErrUnauthorized):
			if refreshed {
				return nil, fmt.Errorf("auth rechazada tras refresh: %w", err)
			}
			refreshed = true
			c.log.Warn().Int("page", pageNo).Msg("sync: credencial rechazada, refrescando token")
			if _, rerr := c.tokens.Refresh(ctx); rerr != nil {
				return nil, rerr
			}

		case errors.Is(err, domain.ErrRateLimited):
			wait := c.backoff.ComputeDelay(0, hintFromError(err))
			c.log.Warn().Int("page", pageNo).Dur("wait", wait).Msg("sync: 429 del registro, esperando")
			if serr := c.sleep(ctx, wait); serr != nil {
				return nil, serr
			}

		default:
			if retries >= c.cfg.MaxRetries {
				return nil, err
			}
			wait := c.backoff.ComputeDelay(retries, nil)
			retries++
			c.log.Warn().Err(err).Int("page", pageNo).Int("attempt", retries).Dur("wait", wait).
				Msg("sync: fallo transitorio, reintentando página")
			if serr := c.sleep(ctx, wait); serr != nil {
				return nil, serr
			}
		}
	}
}

// pacing espera el ritmo adaptativo entre páginas exitosas más un jitter corto.
func (c *Controller) pacing(ctx context.Context, sess *syncSession) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	// Jitter corto para no alinear corridas concurrentes.
	return c.sleep(ctx, time.Duration(c.now().UnixNano()%int64(250*time.Millisecond)))
}

// adjustPace degrada el ritmo entre páginas cuando la cuota restante cae.
func (c *Controller) adjustPace(info *registry.RateLimitInfo) {
	if info.Remaining >= 0 && info.Remaining <= c.cfg.LowRemainingMark {
		c.limiter.SetLimit(rate.Every(c.cfg.SlowPageDelay))
		return
	}
	c.limiter.SetLimit(rate.Every(c.cfg.BasePageDelay))
}

// fallback entrega el último snapshot persistido cuando el fetch en vivo no
// produjo nada. Solo si el snapshot también está vacío se propaga un error.
func (c *Controller) fallback(ctx context.Context, sess *syncSession) (*SyncResult, error) {
	docs, err := c.store.FindRecent(ctx, c.cfg.FallbackLimit)
	if err != nil {
		return nil, fmt.Errorf("sync: fetch sin datos y fallback falló: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: sin datos del registro ni snapshot local", domain.ErrUnavailable)
	}
	c.log.Warn().Int("documents", len(docs)).Int("errors", sess.errorCount).
		Msg("sync: fetch en vivo sin datos, devolviendo snapshot persistido")
	return &SyncResult{Documents: docs, Source: SourceFallback, Stats: sess.stats()}, nil
}

// hintFromError extrae el RetryHint de un RateLimitError si lo hay.
func hintFromError(err error) *RetryHint {
	var rle *registry.RateLimitError
	if errors.As(err, &rle) {
		return &RetryHint{RetryAfter: rle.Info.RetryAfter, ResetAt: rle.Info.ResetAt}
	}
	return nil
}

// descendingByValidation verifica que los documentos de una página vengan en
// orden no creciente de dateTimeValidated (los sin timestamp no rompen orden).
func descendingByValidation(docs []entity.SyncedDocument) bool {
	var prev *time.Time
	for i := range docs {
		ts := docs[i].DateTimeValidated
		if ts == nil {
			continue
		}
		if prev != nil && ts.After(*prev) {
			return false
		}
		prev = ts
	}
	return true
}

// sleepCtx duerme observando cancelación; es el punto de suspensión que usan
// backoff, pacing y esperas de rate-limit.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
