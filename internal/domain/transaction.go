package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the financial operation category stored in
// fact_transactions.
type TransactionType string

const (
	TxAccrual   TransactionType = "accrual"
	TxCommission TransactionType = "commission"
	TxLogistics  TransactionType = "logistics"
	TxPenalty    TransactionType = "penalty"
	TxStorage    TransactionType = "storage"
	TxPayout     TransactionType = "payout"
	TxAcquiring  TransactionType = "acquiring"
	TxOther      TransactionType = "other"
)

// Transaction is one canonical row of fact_transactions. The natural key is
// (SourceID, TransactionID).
type Transaction struct {
	TransactionID   string
	ClientID        int64
	SourceID        int64
	TransactionType TransactionType
	Amount          decimal.Decimal
	RelatedOrderID  *string
	TransactionDate time.Time
	CreatedAt       time.Time
}

// TransactionKey is the natural key of fact_transactions.
type TransactionKey struct {
	SourceID      int64
	TransactionID string
}

// Key returns the natural uniqueness key used for upserts.
func (t Transaction) Key() TransactionKey {
	return TransactionKey{SourceID: t.SourceID, TransactionID: t.TransactionID}
}
