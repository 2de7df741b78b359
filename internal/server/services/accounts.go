package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/dlogr/internal/common"
	"github.com/dmitrijs2005/dlogr/internal/dbx"
	"github.com/dmitrijs2005/dlogr/internal/logging"
	"github.com/dmitrijs2005/dlogr/internal/server/config"
	"github.com/dmitrijs2005/dlogr/internal/server/mailer"
	"github.com/dmitrijs2005/dlogr/internal/server/models"
	"github.com/dmitrijs2005/dlogr/internal/server/passwords"
	"github.com/dmitrijs2005/dlogr/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/dlogr/internal/server/tokens"
	"github.com/dmitrijs2005/dlogr/internal/server/validation"
	"github.com/google/uuid"
)

// authKeyBytes gives 40 hex characters.
const authKeyBytes = 20

// AuthenticatedAccount is an account together with its bearer key.
type AuthenticatedAccount struct {
	Account   *models.Account
	AuthToken string
}

type SignupInput struct {
	Email    string
	Password string
	Name     string
	Timezone string
}

// AccountPatch carries the fields a caller may change. Nil means unchanged.
type AccountPatch struct {
	Email    *string
	Password *string
	Name     *string
	Timezone *string
}

// ChangePasswordInput selects the credential path: ResetToken when set,
// otherwise Email and Password.
type ChangePasswordInput struct {
	ResetToken  string
	Email       string
	Password    string
	NewPassword string
}

// AccountService runs the account lifecycle: signup, verification, login,
// password recovery and self-service updates.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *tokens.Manager
	mailer      mailer.Sender
	hasher      *passwords.Hasher
	validator   *validation.Validator
	logger      logging.Logger

	verifyURL string
	resetURL  string
	tokenTTL  time.Duration

	now func() time.Time
}

func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, tm *tokens.Manager, sender mailer.Sender,
	hasher *passwords.Hasher, cfg *config.Config, logger logging.Logger) *AccountService {
	return &AccountService{
		db:          db,
		repomanager: m,
		tokens:      tm,
		mailer:      sender,
		hasher:      hasher,
		validator:   validation.New(),
		logger:      logger.With("module", "accounts"),
		verifyURL:   cfg.VerifyAccountURL,
		resetURL:    cfg.ResetPasswordURL,
		tokenTTL:    cfg.TokenValidityDuration,
		now:         time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// check runs the full-entity gate and the case-insensitive uniqueness check,
// adding failures to verr.
func (s *AccountService) check(ctx context.Context, a *models.Account, verr *validation.Error) error {
	if err := s.validator.Struct(a); err != nil {
		ve, ok := validation.AsError(err)
		if !ok {
			return err
		}
		for field, msgs := range ve.Fields {
			for _, m := range msgs {
				verr.Add(field, m)
			}
		}
	}

	if _, bad := verr.Fields["email"]; bad {
		return nil
	}
	taken, err := s.repomanager.Accounts(s.db).EmailTaken(ctx, a.Email, a.ID)
	if err != nil {
		return err
	}
	if taken {
		verr.Add("email", validation.MsgEmailTaken)
	}
	return nil
}

// save is the single write path for accounts. prev is the persisted state,
// nil for a new account. A new or changed email clears email_verified and,
// once committed, sends a fresh verification link. Errors in verr (collected
// by the caller beforehand) abort the save together with the gate's own.
// inTx runs inside the same transaction after the account row is written.
func (s *AccountService) save(ctx context.Context, a *models.Account, prev *models.Account, verr *validation.Error,
	inTx func(ctx context.Context, tx dbx.DBTX) error) error {

	if verr == nil {
		verr = &validation.Error{}
	}

	a.Email = normalizeEmail(a.Email)
	joined := prev == nil
	emailChanged := joined || prev.Email != a.Email
	if emailChanged {
		a.EmailVerified = false
	}

	now := s.now().UTC()
	if joined {
		a.ID = uuid.NewString()
		a.Created = now
	}
	a.Modified = now

	if err := s.check(ctx, a, verr); err != nil {
		return err
	}
	if len(verr.Fields) > 0 {
		return verr
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)
		var err error
		if joined {
			err = repo.Create(ctx, a)
		} else {
			err = repo.Update(ctx, a)
		}
		if err != nil {
			return err
		}
		if inTx != nil {
			return inTx(ctx, tx)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return validation.FieldError("email", validation.MsgEmailTaken)
		}
		return err
	}

	if emailChanged {
		s.sendVerification(ctx, a, joined)
	}
	return nil
}

func (s *AccountService) validFor() string {
	switch {
	case s.tokenTTL >= time.Hour && s.tokenTTL%time.Hour == 0:
		return plural(int(s.tokenTTL/time.Hour), "hour")
	case s.tokenTTL < time.Minute:
		return plural(max(int(s.tokenTTL/time.Second), 1), "second")
	default:
		return plural(int(s.tokenTTL/time.Minute), "minute")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

func link(pattern, token string, joined bool) string {
	return strings.NewReplacer(
		"{token}", url.QueryEscape(token),
		"{joined}", strconv.FormatBool(joined),
	).Replace(pattern)
}

// sendVerification issues a verify-account token and mails it. The account
// is already committed, so failures are only logged.
func (s *AccountService) sendVerification(ctx context.Context, a *models.Account, joined bool) {
	token, err := s.tokens.Issue(ctx, a, common.PurposeVerifyAccount)
	if err != nil {
		s.logger.Error(ctx, "verification token not issued", "account_id", a.ID, "error", err)
		return
	}

	template := mailer.TemplateVerifyEmail
	if joined {
		template = mailer.TemplateAccountActivation
	}
	data := mailer.Context{
		Name:       a.Name,
		Email:      a.Email,
		Token:      token,
		URL:        link(s.verifyURL, token, joined),
		ValidFor:   s.validFor(),
		JustJoined: joined,
	}
	if err := s.mailer.Send(ctx, template, data, a.Email); err != nil {
		s.logger.Error(ctx, "verification email not sent", "account_id", a.ID, "error", err)
	}
}

func (s *AccountService) create(ctx context.Context, in SignupInput, staff bool) (*AuthenticatedAccount, error) {
	verr := &validation.Error{}
	if err := validation.Password("password", in.Password); err != nil {
		ve, _ := validation.AsError(err)
		verr = ve
	}

	a := &models.Account{
		Email:       in.Email,
		Name:        in.Name,
		Timezone:    in.Timezone,
		IsStaff:     staff,
		IsSuperuser: staff,
	}

	if len(verr.Fields) == 0 {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		a.PasswordHash = hash
	}

	key, err := common.MakeRandHexString(authKeyBytes)
	if err != nil {
		return nil, err
	}

	err = s.save(ctx, a, nil, verr, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.AuthTokens(tx).Create(ctx, a.ID, key)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "account created", "account_id", a.ID, "superuser", staff)
	return &AuthenticatedAccount{Account: a, AuthToken: key}, nil
}

// Signup creates an account and its bearer key in one transaction and sends
// the activation email.
func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*AuthenticatedAccount, error) {
	return s.create(ctx, in, false)
}

// CreateSuperuser is Signup with the staff and superuser flags set.
func (s *AccountService) CreateSuperuser(ctx context.Context, in SignupInput) (*AuthenticatedAccount, error) {
	return s.create(ctx, in, true)
}

// withKey attaches the bearer key of a.
func (s *AccountService) withKey(ctx context.Context, a *models.Account) (*AuthenticatedAccount, error) {
	t, err := s.repomanager.AuthTokens(s.db).GetByAccount(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("auth token of %s: %w", a.ID, err)
	}
	return &AuthenticatedAccount{Account: a, AuthToken: t.Key}, nil
}

func (s *AccountService) checkCredentials(ctx context.Context, email, password string) (*models.Account, error) {
	a, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, a.PasswordHash) {
		return nil, common.ErrInvalidCredentials
	}
	return a, nil
}

// Login checks email and password and returns the account with its key.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthenticatedAccount, error) {
	a, err := s.checkCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.withKey(ctx, a)
}

// Authenticate resolves a bearer key to its account.
func (s *AccountService) Authenticate(ctx context.Context, key string) (*models.Account, error) {
	if key == "" {
		return nil, common.ErrorUnauthorized
	}
	t, err := s.repomanager.AuthTokens(s.db).Find(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, t.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	return a, nil
}

// AuthenticateBasic is the HTTP Basic scheme: email and password.
func (s *AccountService) AuthenticateBasic(ctx context.Context, email, password string) (*models.Account, error) {
	a, err := s.checkCredentials(ctx, email, password)
	if errors.Is(err, common.ErrInvalidCredentials) {
		return nil, common.ErrorUnauthorized
	}
	return a, err
}

// accountForToken resolves token under purpose. A token whose account is
// gone counts as invalid.
func (s *AccountService) accountForToken(ctx context.Context, token, purpose string) (*models.Account, error) {
	id, err := s.tokens.Resolve(ctx, token, purpose)
	if err != nil {
		return nil, err
	}
	a, err := s.repomanager.Accounts(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrTokenInvalidOrExpired
		}
		return nil, err
	}
	return a, nil
}

// VerifyAccount marks the account behind a verify-account token as verified.
// The token is not consumed.
func (s *AccountService) VerifyAccount(ctx context.Context, token string) (*AuthenticatedAccount, error) {
	a, err := s.accountForToken(ctx, token, common.PurposeVerifyAccount)
	if err != nil {
		return nil, err
	}

	prev := *a
	a.EmailVerified = true
	if err := s.save(ctx, a, &prev, nil, nil); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "account verified", "account_id", a.ID)
	return s.withKey(ctx, a)
}

// RequestPasswordReset mails a reset link when email belongs to an account.
// Unknown addresses are not an error, so callers cannot tell them apart.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	a, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}

	token, err := s.tokens.Issue(ctx, a, common.PurposeResetPassword)
	if err != nil {
		return err
	}

	data := mailer.Context{
		Name:     a.Name,
		Email:    a.Email,
		Token:    token,
		URL:      link(s.resetURL, token, false),
		ValidFor: s.validFor(),
	}
	if err := s.mailer.Send(ctx, mailer.TemplateResetPassword, data, a.Email); err != nil {
		s.logger.Error(ctx, "reset email not sent", "account_id", a.ID, "error", err)
	}
	return nil
}

// ChangePassword sets a new password after proving control of the account
// with either a reset token or the current credentials.
func (s *AccountService) ChangePassword(ctx context.Context, in ChangePasswordInput) (*AuthenticatedAccount, error) {
	if err := validation.Password("new_password", in.NewPassword); err != nil {
		return nil, err
	}

	var (
		a   *models.Account
		err error
	)
	switch {
	case in.ResetToken != "":
		a, err = s.accountForToken(ctx, in.ResetToken, common.PurposeResetPassword)
		if errors.Is(err, common.ErrTokenInvalidOrExpired) {
			return nil, common.ErrResetTokenInvalid
		}
	case in.Email != "" && in.Password != "":
		a, err = s.checkCredentials(ctx, in.Email, in.Password)
	default:
		return nil, common.ErrCredentialsRequired
	}
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	prev := *a
	a.PasswordHash = hash
	if err := s.save(ctx, a, &prev, nil, nil); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "password changed", "account_id", a.ID)
	return s.withKey(ctx, a)
}

// Get returns the caller's own account. Any other id is not found.
func (s *AccountService) Get(ctx context.Context, caller *models.Account, id string) (*models.Account, error) {
	if caller == nil || caller.ID != id {
		return nil, common.ErrorNotFound
	}
	return s.repomanager.Accounts(s.db).GetByID(ctx, id)
}

// Update applies p to the caller's own account.
func (s *AccountService) Update(ctx context.Context, caller *models.Account, id string, p AccountPatch) (*models.Account, error) {
	a, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	prev := *a

	verr := &validation.Error{}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Timezone != nil {
		a.Timezone = *p.Timezone
	}
	if p.Password != nil {
		if err := validation.Password("password", *p.Password); err != nil {
			ve, _ := validation.AsError(err)
			verr = ve
		} else {
			hash, err := s.hasher.Hash(*p.Password)
			if err != nil {
				return nil, fmt.Errorf("hash password: %w", err)
			}
			a.PasswordHash = hash
		}
	}

	if err := s.save(ctx, a, &prev, verr, nil); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes the caller's own account with its key and events.
func (s *AccountService) Delete(ctx context.Context, caller *models.Account, id string) error {
	if caller == nil || caller.ID != id {
		return common.ErrorNotFound
	}
	if err := s.repomanager.Accounts(s.db).Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "account deleted", "account_id", id)
	return nil
}
