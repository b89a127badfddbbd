package syncing

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/Facturacion-sync/pkg/logger"
)

// Kinds de datos cacheables. Cada kind tiene su propio TTL porque el costo de
// recomputar (y la tolerancia a datos viejos) varía por tipo.
const (
	KindDocumentRaw       = "document-raw"
	KindDocumentDetails   = "document-details"
	KindRenderedTemplate  = "rendered-template"
	KindValidationResults = "validation-results"
	KindRecentDocuments   = "recent-documents"
)

// cacheEntry guarda el payload ya serializado: el JSON round-trip es lo que
// garantiza que ni quien escribió ni quien lee pueden mutar lo cacheado por
// aliasing.
type cacheEntry struct {
	payload  []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.storedAt.Add(e.ttl))
}

// TypedCache es el cache en memoria del motor, con TTL por kind y cota de
// capacidad. No es fuente de verdad: solo atajos de recomputación. Es local
// al proceso; instancias detrás de un balanceador mantienen caches
// independientes y eso es aceptable porque el store relacional manda.
//
// La única señal de expulsión es la expiración (no hay LRU): al llegar a
// MaxEntries se barren los expirados antes de insertar, y un sweep periódico
// acota la memoria incluso para llaves frías.
type TypedCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry

	ttls       map[string]time.Duration
	defaultTTL time.Duration
	maxEntries int

	sweepEvery time.Duration
	stop       chan struct{}
	done       chan struct{}

	now func() time.Time
	log *logger.Logger
}

// NewTypedCache construye el cache con los TTLs por defecto del motor.
// maxEntries <= 0 usa 1000; sweepEvery <= 0 usa 5 minutos.
func NewTypedCache(maxEntries int, sweepEvery time.Duration, log *logger.Logger) *TypedCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if sweepEvery <= 0 {
		sweepEvery = 5 * time.Minute
	}
	return &TypedCache{
		entries: make(map[string]*cacheEntry),
		ttls: map[string]time.Duration{
			KindDocumentRaw:       30 * time.Minute,
			KindDocumentDetails:   30 * time.Minute,
			KindRenderedTemplate:  60 * time.Minute,
			KindValidationResults: 10 * time.Minute,
			KindRecentDocuments:   15 * time.Minute,
		},
		defaultTTL: 15 * time.Minute,
		maxEntries: maxEntries,
		sweepEvery: sweepEvery,
		now:        time.Now,
		log:        log,
	}
}

// Set serializa value y lo guarda bajo (kind, id, owner). Si el cache está
// lleno, primero barre los expirados; si aun así no hay espacio, la entrada
// nueva igual entra (preferimos pasarnos por una que perder datos calientes).
func (c *TypedCache) Set(kind, id, owner string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: serializar %s/%s: %w", kind, id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.sweepLocked(c.now())
	}
	c.entries[cacheKey(kind, id, owner)] = &cacheEntry{
		payload:  payload,
		storedAt: c.now(),
		ttl:      c.ttlFor(kind),
	}
	return nil
}

// Get busca (kind, id, owner) y, si existe y no expiró, deserializa el
// payload en dest. Una lectura pasada storedAt+ttl cuenta como ausente y
// expulsa la entrada.
func (c *TypedCache) Get(kind, id, owner string, dest any) bool {
	key := cacheKey(kind, id, owner)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && entry.expired(c.now()) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		if c.log != nil {
			c.log.Warn().Err(err).Str("kind", kind).Str("id", id).Msg("cache: payload ilegible, descartando")
		}
		c.Invalidate(kind, id, owner)
		return false
	}
	return true
}

// Invalidate elimina la entrada si existe.
func (c *TypedCache) Invalidate(kind, id, owner string) {
	c.mu.Lock()
	delete(c.entries, cacheKey(kind, id, owner))
	c.mu.Unlock()
}

// Cleanup barre todas las entradas expiradas y devuelve cuántas eliminó.
func (c *TypedCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

// Len devuelve el número de entradas vivas o no-barridas.
func (c *TypedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Start lanza el sweep periódico de fondo. Es cancelable vía Stop para que
// el ciclo de vida lo controle el proceso y no un timer suelto.
func (c *TypedCache) Start() {
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return // ya corriendo
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stop, c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := c.Cleanup(); removed > 0 && c.log != nil {
					c.log.Debug().Int("removed", removed).Msg("cache: sweep periódico")
				}
			case <-stop:
				return
			}
		}
	}()
}

// Stop detiene el sweep de fondo y espera a que el goroutine termine.
func (c *TypedCache) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (c *TypedCache) ttlFor(kind string) time.Duration {
	if ttl, ok := c.ttls[kind]; ok {
		return ttl
	}
	return c.defaultTTL
}

func (c *TypedCache) sweepLocked(now time.Time) int {
	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// cacheKey compone la llave; 0x1f (unit separator) evita colisiones entre
// ids que contengan el separador visible de turno.
func cacheKey(kind, id, owner string) string {
	return kind + "\x1f" + id + "\x1f" + owner
}
