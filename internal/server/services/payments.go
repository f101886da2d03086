package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/logging"
	"github.com/dmitrijs2005/hostelpay/internal/server/access"
	"github.com/dmitrijs2005/hostelpay/internal/server/artifacts"
	"github.com/dmitrijs2005/hostelpay/internal/server/config"
	"github.com/dmitrijs2005/hostelpay/internal/server/ledger"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/hostelpay/internal/server/storage"
	validation "github.com/go-ozzo/ozzo-validation"
)

const transactionIDPrefix = "TXN-"

type CreatePaymentRequest struct {
	AccountID string
	Amount    int64
	Type      models.PaymentType
	DueDate   *time.Time
	Notes     string
}

type SubmitRequest struct {
	Method      models.PaymentMethod
	Reference   string
	Proof       io.Reader
	ContentType string
	Size        int64
}

// PaymentService drives payments through the ledger state machine. Every
// transition is authorized first and persisted with a versioned update, so
// a concurrent writer makes the loser fail with ErrVersionConflict.
type PaymentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	machine     *ledger.Machine
	proofs      *artifacts.Handler
	store       storage.ObjectStore
	presignTTL  time.Duration
	now         func() time.Time
	log         logging.Logger
}

func NewPaymentService(db *sql.DB, m repomanager.RepositoryManager, proofs *artifacts.Handler, store storage.ObjectStore,
	cfg *config.Config, log logging.Logger, opts ...Option) *PaymentService {
	o := applyOptions(opts)
	return &PaymentService{
		db:          db,
		repomanager: m,
		machine:     ledger.NewMachine(ledger.WithClock(o.now)),
		proofs:      proofs,
		store:       store,
		presignTTL:  cfg.PresignTTL,
		now:         o.now,
		log:         log.With("module", "payments"),
	}
}

// Create opens a pending payment for a student. Administrators only.
func (s *PaymentService) Create(ctx context.Context, actor access.Actor, req CreatePaymentRequest) (*models.Payment, error) {
	req.AccountID = strings.TrimSpace(req.AccountID)
	if err := access.Authorize(actor, access.Payment(req.AccountID), access.ActionCreate); err != nil {
		return nil, err
	}

	if err := check("account_id", req.AccountID, validation.Required); err != nil {
		return nil, err
	}
	if err := check("amount", req.Amount, validation.Min(int64(1))); err != nil {
		return nil, err
	}
	if req.Type == "" {
		req.Type = models.TypeRent
	}
	if !req.Type.Valid() {
		return nil, common.NewValidationError("payment_type", "unknown payment type")
	}

	if _, err := s.repomanager.Accounts(s.db).GetByID(ctx, req.AccountID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NewValidationError("account_id", "no such account")
		}
		return nil, err
	}

	payment, err := s.repomanager.Payments(s.db).Create(ctx, &models.Payment{
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Type:      req.Type,
		Status:    models.StatusPending,
		Notes:     strings.TrimSpace(req.Notes),
		DueDate:   req.DueDate,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "payment created", "payment_id", payment.ID, "account_id", payment.AccountID, "by", actor.ID)
	return payment, nil
}

// List returns the actor's own payments, or every payment (optionally for
// one account) for administrators. status may be empty.
func (s *PaymentService) List(ctx context.Context, actor access.Actor, accountID string, status models.PaymentStatus) ([]*models.Payment, error) {
	if status != "" && !status.Valid() {
		return nil, common.NewValidationError("status", "unknown payment status")
	}
	if !actor.IsAdministrator() {
		accountID = actor.ID
	}
	if err := access.Authorize(actor, access.Payment(accountID), access.ActionRead); err != nil {
		return nil, err
	}
	return s.repomanager.Payments(s.db).List(ctx, models.PaymentFilter{AccountID: accountID, Status: status})
}

// load fetches a payment and authorizes action on it. Non-administrators
// get ErrForbidden for missing payments too, so ids of other students'
// payments cannot be discovered.
func (s *PaymentService) load(ctx context.Context, actor access.Actor, id string, action access.Action) (*models.Payment, error) {
	p, err := s.repomanager.Payments(s.db).Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) && !actor.IsAdministrator() {
			return nil, common.ErrForbidden
		}
		return nil, err
	}
	if err := access.Authorize(actor, access.Payment(p.AccountID), action); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PaymentService) Get(ctx context.Context, actor access.Actor, id string) (*models.Payment, error) {
	return s.load(ctx, actor, id, access.ActionRead)
}

// Submit attaches a payment method and proof file. Method and transition
// are checked before the proof is stored; a stored proof is removed again
// if the update does not go through.
func (s *PaymentService) Submit(ctx context.Context, actor access.Actor, id string, req SubmitRequest) (*models.Payment, error) {
	p, err := s.load(ctx, actor, id, access.ActionSubmit)
	if err != nil {
		return nil, err
	}
	if err := s.machine.Can(p, ledger.EventSubmit); err != nil {
		return nil, err
	}
	if err := check("payment_method", string(req.Method), validation.Required); err != nil {
		return nil, err
	}
	if !req.Method.Valid() {
		return nil, common.NewValidationError("payment_method", "unknown payment method")
	}
	if req.Proof == nil {
		return nil, common.NewValidationError("proof", "is required")
	}

	key, err := s.proofs.Accept(ctx, p.AccountID, req.Proof, req.ContentType, req.Size)
	if err != nil {
		return nil, err
	}

	if err := s.machine.Submit(p, req.Method, key, req.Reference); err != nil {
		s.discard(ctx, key)
		return nil, err
	}
	if err := s.repomanager.Payments(s.db).Update(ctx, p); err != nil {
		s.discard(ctx, key)
		return nil, err
	}

	s.log.Info(ctx, "payment submitted", "payment_id", p.ID, "method", p.Method, "by", actor.ID)
	return p, nil
}

func (s *PaymentService) discard(ctx context.Context, key string) {
	if err := s.proofs.Discard(ctx, key); err != nil {
		s.log.Warn(ctx, "orphaned proof not removed", "key", key, "error", err)
	}
}

// Verify completes a submitted payment. An empty transactionID gets a
// generated one unless the payment already carries an id.
func (s *PaymentService) Verify(ctx context.Context, actor access.Actor, id, transactionID string) (*models.Payment, error) {
	p, err := s.load(ctx, actor, id, access.ActionVerify)
	if err != nil {
		return nil, err
	}

	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" && p.TransactionID == "" {
		transactionID, err = newTransactionID()
		if err != nil {
			return nil, fmt.Errorf("generate transaction id: %w", err)
		}
	}

	if err := s.machine.Verify(p, transactionID); err != nil {
		return nil, err
	}
	if err := s.repomanager.Payments(s.db).Update(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "payment completed", "payment_id", p.ID, "transaction_id", p.TransactionID, "by", actor.ID)
	return p, nil
}

// Reject returns a submitted payment to pending. The stored proof object
// is kept for audit; only the reference on the payment is cleared.
func (s *PaymentService) Reject(ctx context.Context, actor access.Actor, id, reason string) (*models.Payment, error) {
	p, err := s.load(ctx, actor, id, access.ActionReject)
	if err != nil {
		return nil, err
	}
	proof := p.ProofReference

	if err := s.machine.Reject(p, reason); err != nil {
		return nil, err
	}
	if err := s.repomanager.Payments(s.db).Update(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "payment rejected", "payment_id", p.ID, "proof", proof, "by", actor.ID)
	return p, nil
}

// ProofURL returns a short-lived download link for the payment's proof.
func (s *PaymentService) ProofURL(ctx context.Context, actor access.Actor, id string) (string, error) {
	p, err := s.load(ctx, actor, id, access.ActionRead)
	if err != nil {
		return "", err
	}
	if p.ProofReference == "" {
		return "", common.ErrorNotFound
	}
	return s.store.PresignGet(ctx, p.ProofReference, s.presignTTL)
}

func newTransactionID() (string, error) {
	suffix, err := common.MakeRandHexString(6)
	if err != nil {
		return "", err
	}
	return transactionIDPrefix + strings.ToUpper(suffix), nil
}
