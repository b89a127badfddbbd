package syncing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/Facturacion-sync/internal/domain"
	"github.com/jhoicas/Facturacion-sync/internal/domain/entity"
	"github.com/jhoicas/Facturacion-sync/internal/infrastructure/registry"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes compartidos por los tests del paquete: store en memoria, fetcher con
// guion de páginas, token refresher y cliente de submissions con guion.
// ──────────────────────────────────────────────────────────────────────────────

// fakeStore implementación en memoria de repository.DocumentRepository.
// conflictsLeft programa N conflictos transitorios antes de aceptar un uuid.
type fakeStore struct {
	mu sync.Mutex

	docs    map[string]entity.SyncedDocument
	upserts []string // uuids en orden de llegada
	attempt map[string]int

	cursor    *time.Time
	cursorErr error

	recent    []entity.SyncedDocument
	recentErr error

	conflictsLeft map[string]int
	failUUIDs     map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:          make(map[string]entity.SyncedDocument),
		attempt:       make(map[string]int),
		conflictsLeft: make(map[string]int),
		failUUIDs:     make(map[string]error),
	}
}

func (s *fakeStore) UpsertByUUID(_ context.Context, doc *entity.SyncedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt[doc.UUID]++
	if err, ok := s.failUUIDs[doc.UUID]; ok {
		return err
	}
	if s.conflictsLeft[doc.UUID] > 0 {
		s.conflictsLeft[doc.UUID]--
		return fmt.Errorf("upsert %s: %w", doc.UUID, domain.ErrConflict)
	}
	s.docs[doc.UUID] = *doc
	s.upserts = append(s.upserts, doc.UUID)
	return nil
}

func (s *fakeStore) FindByUUID(_ context.Context, uuid string) (*entity.SyncedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[uuid]; ok {
		return &doc, nil
	}
	return nil, nil
}

func (s *fakeStore) FindRecent(_ context.Context, limit int) ([]entity.SyncedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recentErr != nil {
		return nil, s.recentErr
	}
	if limit > 0 && len(s.recent) > limit {
		return s.recent[:limit], nil
	}
	return s.recent, nil
}

func (s *fakeStore) FindMostRecentSyncTimestamp(_ context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, s.cursorErr
}

func (s *fakeStore) FindOpenSubmissions(_ context.Context, _ int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var uids []string
	for _, doc := range s.docs {
		if doc.SubmissionUID != "" && !doc.IsTerminal() {
			uids = append(uids, doc.SubmissionUID)
		}
	}
	return uids, nil
}

func (s *fakeStore) CountAll(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.docs)), nil
}

func (s *fakeStore) attempts(uuid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt[uuid]
}

// pageStep una respuesta programada del fetcher.
type pageStep struct {
	page *registry.Page
	info *registry.RateLimitInfo
	err  error
}

// fakeFetcher entrega pasos del guion en orden; agotado el guion, devuelve
// páginas vacías para que la paginación termine sola.
type fakeFetcher struct {
	mu    sync.Mutex
	steps []pageStep
	calls []int // pageNo de cada llamada
}

func (f *fakeFetcher) FetchPage(_ context.Context, pageNo, _ int) (*registry.Page, *registry.RateLimitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pageNo)
	if len(f.steps) == 0 {
		return &registry.Page{PageNo: pageNo, TotalPages: pageNo}, nil, nil
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	return step.page, step.info, step.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeTokens cuenta los refresh forzados.
type fakeTokens struct {
	mu       sync.Mutex
	refreshs int
	err      error
}

func (t *fakeTokens) Refresh(_ context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refreshs++
	return "token-nuevo", t.err
}

// submissionStep una respuesta programada del cliente de submissions.
type submissionStep struct {
	state *entity.SubmissionPollState
	err   error
}

type fakeSubmissionClient struct {
	mu    sync.Mutex
	steps map[string][]submissionStep
	calls map[string]int
}

func newFakeSubmissionClient() *fakeSubmissionClient {
	return &fakeSubmissionClient{
		steps: make(map[string][]submissionStep),
		calls: make(map[string]int),
	}
}

func (c *fakeSubmissionClient) GetSubmission(_ context.Context, uid string) (*entity.SubmissionPollState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[uid]++
	queue := c.steps[uid]
	if len(queue) == 0 {
		return nil, fmt.Errorf("submission %s: %w", uid, domain.ErrNotFound)
	}
	step := queue[0]
	if len(queue) > 1 {
		c.steps[uid] = queue[1:]
	}
	return step.state, step.err
}

// sleepRecorder reemplaza sleepCtx en los tests: registra las esperas sin
// dormir de verdad.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.waits))
	copy(out, s.waits)
	return out
}

// docsOf azúcar para armar el slice de documentos de una página.
func docsOf(docs ...entity.SyncedDocument) []entity.SyncedDocument {
	return docs
}

// docValidated documento con dateTimeValidated fijo, para armar páginas.
func docValidated(uuid string, validated time.Time) entity.SyncedDocument {
	ts := validated
	return entity.SyncedDocument{
		UUID:              uuid,
		Status:            entity.DocStatusValid,
		DateTimeValidated: &ts,
		SyncStatus:        entity.SyncStatusSynced,
	}
}
