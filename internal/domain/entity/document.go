package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de ciclo de vida que reporta el registro para un documento.
// El conjunto es abierto: el registro puede introducir estados nuevos,
// por eso se manejan como strings y no como enum cerrado.
const (
	DocStatusValid     = "Valid"
	DocStatusInvalid   = "Invalid"
	DocStatusSubmitted = "Submitted"
	DocStatusCancelled = "Cancelled"
)

// Estados internos de sincronización (columna sync_status).
const (
	SyncStatusSynced  = "SYNCED"
	SyncStatusPending = "PENDING"
	SyncStatusError   = "ERROR"
)

// SyncedDocument es la representación canónica de un documento del registro
// de facturación electrónica, ya normalizada (los sinónimos supplier*/buyer*
// del API se resuelven antes de construir esta entidad).
//
// UUID es la clave natural de persistencia: el upsert siempre es por uuid.
// El resto de identificadores (submission_uid, long_id, internal_id) son
// informativos.
type SyncedDocument struct {
	UUID          string
	SubmissionUID string // agrupa documentos enviados en el mismo lote
	LongID        string // token opaco para el enlace público de consulta
	InternalID    string // consecutivo asignado por el emisor

	TypeName        string
	TypeVersionName string

	IssuerTin    string
	IssuerName   string
	ReceiverID   string
	ReceiverName string

	// Timestamps del registro; pueden venir ausentes según el estado del documento.
	DateTimeIssued    *time.Time
	DateTimeReceived  *time.Time
	DateTimeValidated *time.Time

	TotalSales         decimal.Decimal
	TotalExcludingTax  decimal.Decimal
	TotalDiscount      decimal.Decimal
	TotalNetAmount     decimal.Decimal
	TotalPayableAmount decimal.Decimal

	Status               string
	DocumentStatusReason string

	LastSyncDate time.Time
	SyncStatus   string
}

// IsTerminal indica si el documento alcanzó un estado final en el registro.
// Submitted (y vacío) significan que el lote sigue en validación.
func (d *SyncedDocument) IsTerminal() bool {
	switch d.Status {
	case DocStatusValid, DocStatusInvalid, DocStatusCancelled:
		return true
	}
	return false
}

// NewerThan compara el documento contra un cursor de sincronización.
// Se usa dateTimeValidated y, a falta de éste, dateTimeReceived; un
// documento sin ninguno de los dos nunca se considera más nuevo.
func (d *SyncedDocument) NewerThan(cursor time.Time) bool {
	ts := d.DateTimeValidated
	if ts == nil {
		ts = d.DateTimeReceived
	}
	if ts == nil {
		return false
	}
	return ts.After(cursor)
}
