// Package services contains server-side business logic: account
// registration and activation, verification tokens, login and the payment
// workflow.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/dbx"
	"github.com/dmitrijs2005/hostelpay/internal/logging"
	"github.com/dmitrijs2005/hostelpay/internal/server/access"
	"github.com/dmitrijs2005/hostelpay/internal/server/auth"
	"github.com/dmitrijs2005/hostelpay/internal/server/config"
	"github.com/dmitrijs2005/hostelpay/internal/server/mail"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/dmitrijs2005/hostelpay/internal/server/ratelimit"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/repomanager"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type RegisterRequest struct {
	FirstName       string
	LastName        string
	UserName        string
	Email           string
	Phone           string
	Password        string
	ConfirmPassword string
}

func (r *RegisterRequest) normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.UserName = strings.TrimSpace(r.UserName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
}

// AccountService covers the credential store and activation gate:
// registration, email verification, resend, login, token refresh and
// administrative (de)activation.
type AccountService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	tokens                       *TokenService
	mailer                       mail.Gateway
	cooldown                     ratelimit.Cooldown
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	publicBaseURL                string
	mailFrom                     string
	phoneRegion                  string
	now                          func() time.Time
	log                          logging.Logger
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, tokens *TokenService, mailer mail.Gateway,
	cooldown ratelimit.Cooldown, cfg *config.Config, log logging.Logger, opts ...Option) *AccountService {
	o := applyOptions(opts)
	if cooldown == nil {
		cooldown = ratelimit.Unlimited{}
	}
	return &AccountService{
		db:                           db,
		repomanager:                  m,
		tokens:                       tokens,
		mailer:                       mailer,
		cooldown:                     cooldown,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		publicBaseURL:                cfg.PublicBaseURL,
		mailFrom:                     cfg.MailFrom,
		phoneRegion:                  cfg.PhoneDefaultRegion,
		now:                          o.now,
		log:                          log.With("module", "accounts"),
	}
}

// validateRegistration checks, in order: required fields, username length,
// charset and uniqueness, email format and uniqueness, password length and
// confirmation, then the optional phone number.
func (s *AccountService) validateRegistration(ctx context.Context, r *RegisterRequest) error {
	required := []struct {
		field string
		value string
	}{
		{"first_name", r.FirstName},
		{"last_name", r.LastName},
		{"username", r.UserName},
		{"email", r.Email},
		{"password", r.Password},
		{"confirm_password", r.ConfirmPassword},
	}
	for _, f := range required {
		if err := check(f.field, f.value, validation.Required); err != nil {
			return err
		}
	}

	repo := s.repomanager.Accounts(s.db)

	// logins containing @ are looked up by email only
	if err := check("username", r.UserName, validation.Length(3, 150), validation.By(notContaining("@", "must not contain @"))); err != nil {
		return err
	}
	taken, err := repo.UserNameExists(ctx, r.UserName)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if taken {
		return common.NewValidationError("username", "already taken")
	}

	if err := check("email", r.Email, is.Email); err != nil {
		return err
	}
	taken, err = repo.EmailExists(ctx, r.Email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return common.NewValidationError("email", "already registered")
	}

	if err := check("password", r.Password, validation.Length(6, 0)); err != nil {
		return err
	}
	if err := check("confirm_password", r.ConfirmPassword, validation.By(stringEquals(r.Password, "passwords do not match"))); err != nil {
		return err
	}

	if r.Phone != "" {
		normalized, err := normalizePhone(r.Phone, s.phoneRegion)
		if err != nil {
			return err
		}
		r.Phone = normalized
	}
	return nil
}

func normalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", common.NewValidationError("phone", "must be a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// Register creates an inactive student account, issues its first
// verification token and mails the link. A mail failure does not undo the
// registration; the student can ask for a resend.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*models.Account, error) {
	req.normalize()
	if err := s.validateRegistration(ctx, &req); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &models.Account{
		UserName:     req.UserName,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		PasswordHash: hash,
		Role:         models.RoleStudent,
	}

	var token *models.VerificationToken
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Accounts(tx).Create(ctx, account)
		if err != nil {
			return err
		}
		account = created
		token, err = s.tokens.issueLocked(ctx, tx, account.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "account registered", "account_id", account.ID, "username", account.UserName)
	s.sendVerification(ctx, account, token)
	return account, nil
}

// CreateStaff creates an already active and verified account with the
// given role. Used by the admin CLI.
func (s *AccountService) CreateStaff(ctx context.Context, req RegisterRequest, role models.Role) (*models.Account, error) {
	if !role.Valid() {
		return nil, common.NewValidationError("role", "unknown role")
	}
	req.normalize()
	if err := s.validateRegistration(ctx, &req); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.repomanager.Accounts(s.db).Create(ctx, &models.Account{
		UserName:      req.UserName,
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		PasswordHash:  hash,
		Active:        true,
		EmailVerified: true,
		Role:          role,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "staff account created", "account_id", account.ID, "role", role)
	return account, nil
}

func (s *AccountService) sendVerification(ctx context.Context, account *models.Account, token *models.VerificationToken) {
	link := mail.VerificationLink(s.publicBaseURL, token.ID)
	msg := mail.NewVerificationMessage(s.mailFrom, account.Email, account.FirstName, link, s.tokens.TTL(), s.now())
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Warn(ctx, "verification mail not sent", "account_id", account.ID, "error", err)
	}
}

// activateTx flips email_verified and active. Already active accounts are
// left alone.
func (s *AccountService) activateTx(ctx context.Context, tx dbx.DBTX, accountID string) (*models.Account, error) {
	repo := s.repomanager.Accounts(tx)

	account, err := repo.GetByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Active && account.EmailVerified {
		return account, nil
	}
	if err := repo.Activate(ctx, accountID); err != nil {
		return nil, err
	}
	account.Active = true
	account.EmailVerified = true
	return account, nil
}

// VerifyEmail consumes the token and activates its account in one transaction.
func (s *AccountService) VerifyEmail(ctx context.Context, tokenID string) (*models.Account, error) {
	var account *models.Account
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accountID, err := s.tokens.ValidateTx(ctx, tx, tokenID)
		if err != nil {
			return err
		}
		account, err = s.activateTx(ctx, tx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "account activated", "account_id", account.ID)
	return account, nil
}

// ResendVerification issues a fresh token for the account named by login
// (username or email). actor is nil for anonymous requests, which act as
// the account itself.
func (s *AccountService) ResendVerification(ctx context.Context, actor *access.Actor, login string) error {
	login = strings.TrimSpace(login)
	if err := check("login", login, validation.Required); err != nil {
		return err
	}

	account, err := s.repomanager.Accounts(s.db).GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NewValidationError("login", "no account found")
		}
		return err
	}

	self := access.Actor{ID: account.ID, Role: account.Role}
	if actor == nil {
		actor = &self
	}
	if err := access.Authorize(*actor, access.Token(account.ID), access.ActionResend); err != nil {
		return err
	}

	if account.EmailVerified {
		return common.ErrAlreadyVerified
	}

	ok, retryAfter, err := s.cooldown.Acquire(ctx, account.ID)
	if err != nil {
		s.log.Warn(ctx, "resend cooldown unavailable", "account_id", account.ID, "error", err)
	} else if !ok {
		return fmt.Errorf("%w: retry in %s", common.ErrTooManyRequests, retryAfter.Round(time.Second))
	}

	token, err := s.tokens.Resend(ctx, account.ID)
	if err != nil {
		return err
	}

	s.sendVerification(ctx, account, token)
	return nil
}

// Get returns an account the actor may read.
func (s *AccountService) Get(ctx context.Context, actor access.Actor, id string) (*models.Account, error) {
	if err := access.Authorize(actor, access.Account(id), access.ActionRead); err != nil {
		return nil, err
	}
	return s.repomanager.Accounts(s.db).GetByID(ctx, id)
}

// CurrentActor reloads the account behind an access token's claims. Access
// tokens outlive deactivation and role changes, so callers re-check here:
// a vanished account is ErrInvalidToken, a deactivated one
// ErrAccountInactive, and the returned actor carries the stored role.
func (s *AccountService) CurrentActor(ctx context.Context, claimed access.Actor) (access.Actor, error) {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, claimed.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return access.Actor{}, common.ErrInvalidToken
		}
		return access.Actor{}, err
	}
	if !account.Active {
		return access.Actor{}, common.ErrAccountInactive
	}
	return access.Actor{ID: account.ID, Role: account.Role}, nil
}

// TokenHistory lists every verification token issued to an account, oldest
// first, for administrators auditing activation problems.
func (s *AccountService) TokenHistory(ctx context.Context, actor access.Actor, accountID string) ([]*models.VerificationToken, error) {
	if err := access.Authorize(actor, access.Token(accountID), access.ActionRead); err != nil {
		return nil, err
	}
	if _, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repomanager.Tokens(s.db).ListByAccount(ctx, accountID)
}

// SetActive lets an administrator reactivate or deactivate an account.
// Reactivation does not require a verified email.
func (s *AccountService) SetActive(ctx context.Context, actor access.Actor, id string, active bool) (*models.Account, error) {
	action := access.ActionDeactivate
	if active {
		action = access.ActionReactivate
	}
	if err := access.Authorize(actor, access.Account(id), action); err != nil {
		return nil, err
	}

	repo := s.repomanager.Accounts(s.db)
	if err := repo.SetActive(ctx, id, active); err != nil {
		return nil, err
	}

	s.log.Info(ctx, "account activity changed", "account_id", id, "active", active, "by", actor.ID)
	return repo.GetByID(ctx, id)
}

// Login checks the password and returns a token pair. Inactive accounts
// are refused only after the password matched, so the response does not
// reveal account state to strangers.
func (s *AccountService) Login(ctx context.Context, login, password string) (*TokenPair, error) {
	repo := s.repomanager.Accounts(s.db)
	account, err := repo.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	if err := auth.CheckPassword(account.PasswordHash, password); err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	if !account.Active {
		return nil, common.ErrAccountInactive
	}

	return s.generateTokenPair(ctx, account, s.db)
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *AccountService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := s.repomanager.RefreshTokens(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expired(s.now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		account, err := s.repomanager.Accounts(tx).GetByID(ctx, token.AccountID)
		if err != nil {
			return err
		}
		if !account.Active {
			return common.ErrAccountInactive
		}
		pair, err = s.generateTokenPair(ctx, account, tx)
		return err
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *AccountService) generateTokenPair(ctx context.Context, account *models.Account, tx dbx.DBTX) (*TokenPair, error) {
	accessToken, err := auth.GenerateToken(account.ID, account.Role, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	expires := s.now().Add(s.refreshTokenValidityDuration)
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, account.ID, refresh, expires); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refresh}, nil
}
