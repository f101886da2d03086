// Package ledger implements the payment state machine as a transition table.
package ledger

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
)

type Event string

const (
	EventSubmit Event = "submit"
	EventVerify Event = "verify"
	EventReject Event = "reject"
)

const rejectionPrefix = "Rejected: "

// Machine applies events to payments. It never touches storage; callers
// persist the mutated payment with a versioned update.
type Machine struct {
	transitions map[models.PaymentStatus]map[Event]models.PaymentStatus
	now         func() time.Time
}

type Option func(*Machine)

// WithClock overrides the time source used for submitted_at and completed_at.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		transitions: map[models.PaymentStatus]map[Event]models.PaymentStatus{
			models.StatusPending: {
				EventSubmit: models.StatusSubmitted,
			},
			// legacy rows; behaves like pending
			models.StatusRejected: {
				EventSubmit: models.StatusSubmitted,
			},
			models.StatusSubmitted: {
				EventVerify: models.StatusCompleted,
				EventReject: models.StatusPending,
			},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Next returns the status reached from `from` by ev.
func (m *Machine) Next(from models.PaymentStatus, ev Event) (models.PaymentStatus, error) {
	if to, ok := m.transitions[from][ev]; ok {
		return to, nil
	}
	if from == models.StatusSubmitted && ev == EventSubmit {
		return "", common.ErrAlreadySubmitted
	}
	return "", common.ErrInvalidTransition
}

// Can reports whether ev is currently allowed for p, with the same error Next would give.
func (m *Machine) Can(p *models.Payment, ev Event) error {
	_, err := m.Next(p.Status, ev)
	return err
}

// Submit attaches method and proof and moves p to submitted.
func (m *Machine) Submit(p *models.Payment, method models.PaymentMethod, proofRef, reference string) error {
	to, err := m.Next(p.Status, EventSubmit)
	if err != nil {
		return err
	}
	if method == "" {
		return common.NewValidationError("payment_method", "is required")
	}
	if !method.Valid() {
		return common.NewValidationError("payment_method", "unknown payment method")
	}
	if proofRef == "" {
		return common.NewValidationError("proof", "is required")
	}

	now := m.now()
	p.Status = to
	p.Method = method
	p.ProofReference = proofRef
	p.Reference = strings.TrimSpace(reference)
	p.SubmittedAt = &now
	return nil
}

// Verify completes p. An already assigned transaction id is never replaced.
func (m *Machine) Verify(p *models.Payment, transactionID string) error {
	to, err := m.Next(p.Status, EventVerify)
	if err != nil {
		return err
	}
	if p.TransactionID == "" {
		transactionID = strings.TrimSpace(transactionID)
		if transactionID == "" {
			return common.NewValidationError("transaction_id", "is required")
		}
		p.TransactionID = transactionID
	}

	now := m.now()
	p.Status = to
	p.CompletedAt = &now
	return nil
}

// Reject sends p back to pending, clears the proof and records reason in notes.
func (m *Machine) Reject(p *models.Payment, reason string) error {
	to, err := m.Next(p.Status, EventReject)
	if err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return common.NewValidationError("reason", "is required")
	}

	p.Status = to
	p.ProofReference = ""
	p.SubmittedAt = nil
	p.Notes = appendNote(p.Notes, rejectionPrefix+reason)
	return nil
}

func appendNote(notes, line string) string {
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}
