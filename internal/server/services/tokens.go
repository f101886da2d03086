package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/dbx"
	"github.com/dmitrijs2005/hostelpay/internal/logging"
	"github.com/dmitrijs2005/hostelpay/internal/server/config"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/repomanager"
)

const tokenBytes = 32

// TokenService issues, supersedes and validates single-use email
// verification tokens.
//
// Issuing locks the account row first, so concurrent issues for one account
// serialize and at most one live token exists after each commit.
type TokenService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ttl         time.Duration
	now         func() time.Time
	newTokenID  func() (string, error)
	log         logging.Logger
}

func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger, opts ...Option) *TokenService {
	o := applyOptions(opts)
	return &TokenService{
		db:          db,
		repomanager: m,
		ttl:         cfg.VerificationTokenTTL,
		now:         o.now,
		newTokenID:  func() (string, error) { return common.MakeRandHexString(tokenBytes) },
		log:         log.With("module", "tokens"),
	}
}

func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue supersedes every live token of the account and creates a new one.
func (s *TokenService) Issue(ctx context.Context, accountID string) (*models.VerificationToken, error) {
	var token *models.VerificationToken
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		token, err = s.IssueTx(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// IssueTx is Issue inside the caller's transaction.
func (s *TokenService) IssueTx(ctx context.Context, tx dbx.DBTX, accountID string) (*models.VerificationToken, error) {
	if _, err := s.repomanager.Accounts(tx).GetByIDForUpdate(ctx, accountID); err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}
	return s.issueLocked(ctx, tx, accountID)
}

func (s *TokenService) issueLocked(ctx context.Context, tx dbx.DBTX, accountID string) (*models.VerificationToken, error) {
	repo := s.repomanager.Tokens(tx)

	n, err := repo.InvalidateLive(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("invalidate tokens: %w", err)
	}

	id, err := s.newTokenID()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now()
	token := &models.VerificationToken{
		ID:        id,
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := repo.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	s.log.Info(ctx, "verification token issued", "account_id", accountID, "superseded", n)
	return token, nil
}

// Resend is Issue for accounts that are still unverified.
func (s *TokenService) Resend(ctx context.Context, accountID string) (*models.VerificationToken, error) {
	var token *models.VerificationToken
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		account, err := s.repomanager.Accounts(tx).GetByIDForUpdate(ctx, accountID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		if account.EmailVerified {
			return common.ErrAlreadyVerified
		}
		token, err = s.issueLocked(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// ValidateTx consumes the token and returns the owning account id.
//
// Failures are checked in order: not found, already used, expired,
// invalidated. Expiry is evaluated here only; nothing sweeps old tokens.
func (s *TokenService) ValidateTx(ctx context.Context, tx dbx.DBTX, tokenID string) (string, error) {
	if tokenID == "" {
		return "", common.ErrTokenNotFound
	}

	repo := s.repomanager.Tokens(tx)

	token, err := repo.GetForUpdate(ctx, tokenID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrTokenNotFound
		}
		return "", fmt.Errorf("load token: %w", err)
	}

	switch {
	case token.Verified:
		return "", common.ErrTokenAlreadyUsed
	case token.Expired(s.now()):
		return "", common.ErrTokenExpired
	case token.Invalidated:
		return "", common.ErrTokenInvalidated
	}

	if err := repo.MarkVerified(ctx, token.ID); err != nil {
		return "", fmt.Errorf("mark token verified: %w", err)
	}

	s.log.Info(ctx, "verification token consumed", "account_id", token.AccountID)
	return token.AccountID, nil
}

// Validate is ValidateTx in its own transaction.
func (s *TokenService) Validate(ctx context.Context, tokenID string) (string, error) {
	var accountID string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		accountID, err = s.ValidateTx(ctx, tx, tokenID)
		return err
	})
	if err != nil {
		return "", err
	}
	return accountID, nil
}
