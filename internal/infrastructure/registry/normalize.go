package registry

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/Facturacion-sync/internal/domain/entity"
)

// Normalize convierte la forma cruda del API a la entidad canónica.
//
// Cada campo con sinónimos se resuelve con una cadena de prioridad explícita
// (primer valor presente gana, nunca se mezclan valores de dos sinónimos).
// Las cadenas viven todas aquí, no repartidas por los call sites:
//
//	issuerTin    ← issuerTin, supplierTin
//	issuerName   ← issuerName, supplierName
//	receiverId   ← receiverId, buyerTin
//	receiverName ← receiverName, buyerName
//	status       ← status, documentStatus
//	statusReason ← documentStatusReason, statusReason
//	totalSales         ← totalSales, totalAmount
//	totalExcludingTax  ← totalExcludingTax, totalExclusiveAmount
//	totalDiscount      ← totalDiscount, discountAmount
//	totalNetAmount     ← totalNetAmount, netAmount
//	totalPayableAmount ← totalPayableAmount, payableAmount, totalAmount
//
// Los montos ausentes quedan en cero.
func Normalize(raw rawDocument, syncedAt time.Time) entity.SyncedDocument {
	return entity.SyncedDocument{
		UUID:          raw.UUID,
		SubmissionUID: raw.SubmissionUID,
		LongID:        raw.LongID,
		InternalID:    raw.InternalID,

		TypeName:        raw.TypeName,
		TypeVersionName: raw.TypeVersionName,

		IssuerTin:    firstNonEmpty(raw.IssuerTin, raw.SupplierTin),
		IssuerName:   firstNonEmpty(raw.IssuerName, raw.SupplierName),
		ReceiverID:   firstNonEmpty(raw.ReceiverID, raw.BuyerTin),
		ReceiverName: firstNonEmpty(raw.ReceiverName, raw.BuyerName),

		DateTimeIssued:    raw.DateTimeIssued,
		DateTimeReceived:  raw.DateTimeReceived,
		DateTimeValidated: raw.DateTimeValidated,

		TotalSales:         firstDecimal(raw.TotalSales, raw.TotalAmount),
		TotalExcludingTax:  firstDecimal(raw.TotalExcludingTax, raw.TotalExclusiveAmount),
		TotalDiscount:      firstDecimal(raw.TotalDiscount, raw.DiscountAmount),
		TotalNetAmount:     firstDecimal(raw.TotalNetAmount, raw.NetAmount),
		TotalPayableAmount: firstDecimal(raw.TotalPayableAmount, raw.PayableAmount, raw.TotalAmount),

		Status:               firstNonEmpty(raw.Status, raw.DocumentStatus),
		DocumentStatusReason: firstNonEmpty(raw.DocumentStatusReason, raw.StatusReason),

		LastSyncDate: syncedAt,
		SyncStatus:   entity.SyncStatusSynced,
	}
}

// NormalizeAll normaliza una página completa preservando el orden del registro.
func NormalizeAll(raws []rawDocument, syncedAt time.Time) []entity.SyncedDocument {
	docs := make([]entity.SyncedDocument, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, Normalize(raw, syncedAt))
	}
	return docs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstDecimal(values ...*decimal.Decimal) decimal.Decimal {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return decimal.Zero
}
