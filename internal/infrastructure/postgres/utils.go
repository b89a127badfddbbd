package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// isTransientConflict verifica si un error de PostgreSQL es un conflicto
// transitorio que vale la pena reintentar: deadlock (40P01) o fallo de
// serialización / write-conflict (40001).
func isTransientConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40P01" || pgErr.Code == "40001"
	}
	return false
}

// isLockTimeout verifica si la transacción murió esperando un lock (55P03)
// o por el statement_timeout (57014); también se tratan como transitorios
// porque el upsert es idempotente.
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "55P03" || pgErr.Code == "57014"
	}
	return false
}
