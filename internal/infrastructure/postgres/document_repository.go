package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/Facturacion-sync/internal/domain"
	"github.com/jhoicas/Facturacion-sync/internal/domain/entity"
	"github.com/jhoicas/Facturacion-sync/internal/domain/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo implementación PostgreSQL de DocumentRepository.
// El upsert corre en su propia transacción read-committed con topes de
// espera explícitos; el resto son lecturas directas sobre el pool.
type DocumentRepo struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository construye el adaptador sobre el pool.
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

const documentColumns = `
	uuid, submission_uid, long_id, internal_id,
	type_name, type_version_name,
	issuer_tin, issuer_name, receiver_id, receiver_name,
	date_time_issued, date_time_received, date_time_validated,
	total_sales, total_excluding_tax, total_discount, total_net_amount, total_payable_amount,
	status, document_status_reason, last_sync_date, sync_status`

// UpsertByUUID inserta o actualiza por uuid (clave natural) dentro de una
// transacción acotada: read committed, lock_timeout 3s, statement_timeout
// 10s. Deadlocks, write-conflicts y muertes por timeout se reportan
// envolviendo domain.ErrConflict para que el writer los reintente.
func (r *DocumentRepo) UpsertByUUID(ctx context.Context, doc *entity.SyncedDocument) error {
	if doc == nil || doc.UUID == "" {
		return fmt.Errorf("%w: documento sin uuid", domain.ErrInvalidInput)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SET LOCAL lock_timeout = '3s'`); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}
	if _, err := tx.Exec(ctx, `SET LOCAL statement_timeout = '10s'`); err != nil {
		return fmt.Errorf("set statement_timeout: %w", err)
	}

	query := `
		INSERT INTO synced_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (uuid) DO UPDATE SET
			submission_uid         = EXCLUDED.submission_uid,
			long_id                = EXCLUDED.long_id,
			internal_id            = EXCLUDED.internal_id,
			type_name              = EXCLUDED.type_name,
			type_version_name      = EXCLUDED.type_version_name,
			issuer_tin             = EXCLUDED.issuer_tin,
			issuer_name            = EXCLUDED.issuer_name,
			receiver_id            = EXCLUDED.receiver_id,
			receiver_name          = EXCLUDED.receiver_name,
			date_time_issued       = EXCLUDED.date_time_issued,
			date_time_received     = EXCLUDED.date_time_received,
			date_time_validated    = EXCLUDED.date_time_validated,
			total_sales            = EXCLUDED.total_sales,
			total_excluding_tax    = EXCLUDED.total_excluding_tax,
			total_discount         = EXCLUDED.total_discount,
			total_net_amount       = EXCLUDED.total_net_amount,
			total_payable_amount   = EXCLUDED.total_payable_amount,
			status                 = EXCLUDED.status,
			document_status_reason = EXCLUDED.document_status_reason,
			last_sync_date         = EXCLUDED.last_sync_date,
			sync_status            = EXCLUDED.sync_status`
	_, err = tx.Exec(ctx, query,
		doc.UUID, doc.SubmissionUID, doc.LongID, doc.InternalID,
		doc.TypeName, doc.TypeVersionName,
		doc.IssuerTin, doc.IssuerName, doc.ReceiverID, doc.ReceiverName,
		doc.DateTimeIssued, doc.DateTimeReceived, doc.DateTimeValidated,
		doc.TotalSales, doc.TotalExcludingTax, doc.TotalDiscount, doc.TotalNetAmount, doc.TotalPayableAmount,
		doc.Status, doc.DocumentStatusReason, doc.LastSyncDate, doc.SyncStatus,
	)
	if err != nil {
		if isTransientConflict(err) || isLockTimeout(err) {
			return fmt.Errorf("%w: upsert %s: %v", domain.ErrConflict, doc.UUID, err)
		}
		return fmt.Errorf("upsert documento %s: %w", doc.UUID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isTransientConflict(err) || isLockTimeout(err) {
			return fmt.Errorf("%w: commit %s: %v", domain.ErrConflict, doc.UUID, err)
		}
		return fmt.Errorf("commit upsert %s: %w", doc.UUID, err)
	}
	return nil
}

// FindByUUID devuelve el documento o nil si no existe.
func (r *DocumentRepo) FindByUUID(ctx context.Context, uuid string) (*entity.SyncedDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM synced_documents WHERE uuid = $1`
	doc, err := scanDocument(r.pool.QueryRow(ctx, query, uuid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get documento %s: %w", uuid, err)
	}
	return doc, nil
}

// FindRecent devuelve hasta limit documentos, los más recientes primero por
// fecha de recepción. Es el snapshot que respalda el fallback.
func (r *DocumentRepo) FindRecent(ctx context.Context, limit int) ([]entity.SyncedDocument, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT ` + documentColumns + `
		FROM synced_documents
		ORDER BY date_time_received DESC NULLS LAST
		LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list documentos recientes: %w", err)
	}
	defer rows.Close()

	var docs []entity.SyncedDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan documento: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// FindMostRecentSyncTimestamp devuelve el instante validado/recibido más
// reciente del store (el cursor del modo incremental), o nil si está vacío.
func (r *DocumentRepo) FindMostRecentSyncTimestamp(ctx context.Context) (*time.Time, error) {
	query := `
		SELECT MAX(COALESCE(date_time_validated, date_time_received))
		FROM synced_documents`
	var ts *time.Time
	if err := r.pool.QueryRow(ctx, query).Scan(&ts); err != nil {
		return nil, fmt.Errorf("cursor de sincronización: %w", err)
	}
	return ts, nil
}

// FindOpenSubmissions devuelve los submission_uid distintos con al menos un
// documento que aún no alcanzó estado terminal en el registro.
func (r *DocumentRepo) FindOpenSubmissions(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT DISTINCT submission_uid
		FROM synced_documents
		WHERE submission_uid <> ''
		  AND status NOT IN ($1, $2, $3)
		LIMIT $4`
	rows, err := r.pool.Query(ctx, query,
		entity.DocStatusValid, entity.DocStatusInvalid, entity.DocStatusCancelled, limit)
	if err != nil {
		return nil, fmt.Errorf("list submissions abiertas: %w", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("scan submission_uid: %w", err)
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

// CountAll devuelve el total de documentos persistidos.
func (r *DocumentRepo) CountAll(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM synced_documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documentos: %w", err)
	}
	return count, nil
}

// scanDocument mapea una fila (en el orden de documentColumns) a la entidad.
func scanDocument(row pgx.Row) (*entity.SyncedDocument, error) {
	var doc entity.SyncedDocument
	err := row.Scan(
		&doc.UUID, &doc.SubmissionUID, &doc.LongID, &doc.InternalID,
		&doc.TypeName, &doc.TypeVersionName,
		&doc.IssuerTin, &doc.IssuerName, &doc.ReceiverID, &doc.ReceiverName,
		&doc.DateTimeIssued, &doc.DateTimeReceived, &doc.DateTimeValidated,
		&doc.TotalSales, &doc.TotalExcludingTax, &doc.TotalDiscount, &doc.TotalNetAmount, &doc.TotalPayableAmount,
		&doc.Status, &doc.DocumentStatusReason, &doc.LastSyncDate, &doc.SyncStatus,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
