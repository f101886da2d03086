package models

import "time"

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "pending"
	StatusSubmitted PaymentStatus = "submitted"
	StatusCompleted PaymentStatus = "completed"
	// StatusRejected is accepted when reading rows; reject moves a payment
	// back to pending and never writes it.
	StatusRejected PaymentStatus = "rejected"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodMTNMobileMoney    PaymentMethod = "mtn-mobile-money"
	MethodAirtelMobileMoney PaymentMethod = "airtel-money"
	MethodBankTransfer      PaymentMethod = "bank-transfer"
	MethodCash              PaymentMethod = "cash"
)

var PaymentMethods = []PaymentMethod{
	MethodMTNMobileMoney, MethodAirtelMobileMoney, MethodBankTransfer, MethodCash,
}

func (m PaymentMethod) Valid() bool {
	for _, v := range PaymentMethods {
		if m == v {
			return true
		}
	}
	return false
}

type PaymentType string

const (
	TypeRent        PaymentType = "rent"
	TypeDeposit     PaymentType = "deposit"
	TypeMaintenance PaymentType = "maintenance"
	TypeOther       PaymentType = "other"
)

func (t PaymentType) Valid() bool {
	switch t {
	case TypeRent, TypeDeposit, TypeMaintenance, TypeOther:
		return true
	}
	return false
}

// Payment is one ledger entry. Amount is in minor currency units.
// TransactionID is immutable once assigned; Version guards concurrent writers.
type Payment struct {
	ID             string
	AccountID      string
	Amount         int64
	Type           PaymentType
	Status         PaymentStatus
	Method         PaymentMethod
	TransactionID  string
	ProofReference string
	Reference      string
	Notes          string
	DueDate        *time.Time
	CreatedAt      time.Time
	SubmittedAt    *time.Time
	CompletedAt    *time.Time
	Version        int64
}

// Overdue is true for pending payments whose due date is before today.
func (p *Payment) Overdue(now time.Time) bool {
	if p.DueDate == nil || (p.Status != StatusPending && p.Status != StatusRejected) {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return p.DueDate.Before(today)
}

// PaymentFilter narrows a payment listing. Empty fields match everything.
type PaymentFilter struct {
	AccountID string
	Status    PaymentStatus
}
