package services

import (
	"context"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/dlogr/internal/common"
	"github.com/dmitrijs2005/dlogr/internal/server/mailer"
	"github.com/dmitrijs2005/dlogr/internal/server/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signup(t *testing.T, env *accountEnv, in SignupInput) *AuthenticatedAccount {
	t.Helper()
	env.expectTx(1)
	out, err := env.svc.Signup(context.Background(), in)
	require.NoError(t, err)
	return out
}

func fieldErrors(t *testing.T, err error) map[string][]string {
	t.Helper()
	ve, ok := validation.AsError(err)
	require.True(t, ok, "expected validation error, got %v", err)
	return ve.Fields
}

func TestSignup_CreatesUnverifiedAccountAndSendsActivation(t *testing.T) {
	env := newAccountEnv(t)

	out := signup(t, env, SignupInput{Email: "A@X.com", Password: "12345678", Name: "A", Timezone: "UTC"})

	assert.False(t, out.Account.EmailVerified)
	assert.Equal(t, "a@x.com", out.Account.Email)
	assert.NotEmpty(t, out.Account.ID)
	assert.False(t, out.Account.Created.IsZero())
	assert.NotEqual(t, "12345678", out.Account.PasswordHash)

	assert.Len(t, out.AuthToken, 40)
	_, err := hex.DecodeString(out.AuthToken)
	assert.NoError(t, err)

	require.Len(t, env.sender.sent, 1)
	sent := env.sender.last()
	assert.Equal(t, mailer.TemplateAccountActivation, sent.template)
	assert.Equal(t, "a@x.com", sent.to)
	assert.True(t, sent.data.JustJoined)
	assert.Equal(t, "24 hours", sent.data.ValidFor)
	assert.Contains(t, sent.data.URL, "token="+url.QueryEscape(sent.data.Token))
	assert.Contains(t, sent.data.URL, "joined=true")

	assert.Contains(t, env.store.Keys(), common.PurposeVerifyAccount+":"+sent.data.Token)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestSignup_VerifyThenLogin(t *testing.T) {
	env := newAccountEnv(t)
	ctx := context.Background()

	created := signup(t, env, signupInput())
	token := env.sender.last().data.Token

	env.expectTx(1)
	verified, err := env.svc.VerifyAccount(ctx, token)
	require.NoError(t, err)
	assert.True(t, verified.Account.EmailVerified)
	assert.Equal(t, created.AuthToken, verified.AuthToken)

	// verifying does not send anything
	assert.Len(t, env.sender.sent, 1)

	logged, err := env.svc.Login(ctx, "a@x.com", "12345678")
	require.NoError(t, err)
	assert.Equal(t, created.AuthToken, logged.AuthToken)
	assert.True(t, logged.Account.EmailVerified)

	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestVerifyAccount_TokenReplayableUntilExpiry(t *testing.T) {
	env := newAccountEnv(t)
	signup(t, env, signupInput())
	token := env.sender.last().data.Token

	env.expectTx(2)
	_, err := env.svc.VerifyAccount(context.Background(), token)
	require.NoError(t, err)
	_, err = env.svc.VerifyAccount(context.Background(), token)
	require.NoError(t, err)
}

func TestVerifyAccount_InvalidTokens(t *testing.T) {
	env := newAccountEnv(t)
	signup(t, env, signupInput())
	issued := env.sender.last().data.Token

	for name, token := range map[string]string{
		"empty":   "",
		"unknown": "not-a-token",
		"mangled": issued + "x",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.VerifyAccount(context.Background(), token)
			assert.ErrorIs(t, err, common.ErrTokenInvalidOrExpired)
		})
	}
}

func TestVerifyAccount_WrongPurpose(t *testing.T) {
	env := newAccountEnv(t)
	signup(t, env, signupInput())

	require.NoError(t, env.svc.RequestPasswordReset(context.Background(), "a@x.com"))
	resetToken := env.sender.last().data.Token

	_, err := env.svc.VerifyAccount(context.Background(), resetToken)
	assert.ErrorIs(t, err, common.ErrTokenInvalidOrExpired)
}

func TestVerifyAccount_ExpiredToken(t *testing.T) {
	env := newAccountEnvTTL(t, time.Millisecond)
	signup(t, env, signupInput())
	token := env.sender.last().data.Token

	time.Sleep(5 * time.Millisecond)

	_, err := env.svc.VerifyAccount(context.Background(), token)
	assert.ErrorIs(t, err, common.ErrTokenInvalidOrExpired)
}

func TestVerifyAccount_DeletedAccount(t *testing.T) {
	env := newAccountEnv(t)
	out := signup(t, env, signupInput())
	token := env.sender.last().data.Token

	require.NoError(t, env.svc.Delete(context.Background(), out.Account, out.Account.ID))

	_, err := env.svc.VerifyAccount(context.Background(), token)
	assert.ErrorIs(t, err, common.ErrTokenInvalidOrExpired)
}

func TestUpdate_EmailChangeResetsVerification(t *testing.T) {
	env := newAccountEnv(t)
	ctx := context.Background()

	out := signup(t, env, signupInput())
	env.expectTx(1)
	v, err := env.svc.VerifyAccount(ctx, env.sender.last().data.Token)
	require.NoError(t, err)
	require.True(t, v.Account.EmailVerified)

	env.expectTx(1)
	updated, err := env.svc.Update(ctx, v.Account, out.Account.ID, AccountPatch{Email: strPtr("New@X.com")})
	require.NoError(t, err)

	assert.Equal(t, "new@x.com", updated.Email)
	assert.False(t, updated.EmailVerified)

	assert.Equal(t, 1, env.sender.count(mailer.TemplateAccountActivation))
	assert.Equal(t, 1, env.sender.count(mailer.TemplateVerifyEmail))
	last := env.sender.last()
	assert.Equal(t, "new@x.com", last.to)
	assert.False(t, last.data.JustJoined)
	assert.Contains(t, last.data.URL, "joined=false")
}

func TestUpdate_SameEmailDifferentCaseKeepsVerification(t *testing.T) {
	env := newAccountEnv(t)
	ctx := context.Background()

	out := signup(t, env, signupInput())
	env.expectTx(1)
	v, err := env.svc.VerifyAccount(ctx, env.sender.last().data.Token)
	require.NoError(t, err)

	env.expectTx(1)
	updated, err := env.svc.Update(ctx, v.Account, out.Account.ID, AccountPatch{Email: strPtr("A@X.COM"), Name: strPtr("B")})
	require.NoError(t, err)
	assert.True(t, updated.EmailVerified)
	assert.Equal(t, "B", updated.Name)
	assert.Len(t, env.sender.sent, 1)
}

func TestUpdate_PasswordRehashed(t *testing.T) {
	env := newAccountEnv(t)
	ctx := context.Background()
	out := signup(t, env, signupInput())

	env.expectTx(1)
	_, err := env.svc.Update(ctx, out.Account, out.Account.ID, AccountPatch{Password: strPtr("another-secret")})
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, "a@x.com", "12345678")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, err = env.svc.Login(ctx, "a@x.com", "another-secret")
	assert.NoError(t, err)
}

func TestUpdate_ValidationErrors(t *testing.T) {
	env := newAccountEnv(t)
	out := signup(t, env, signupInput())

	_, err := env.svc.Update(context.Background(), out.Account, out.Account.ID, AccountPatch{
		Name:     strPtr("   "),
		Timezone: strPtr("Mars/Olympus"),
		Password: strPtr("short"),
	})
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{validation.MsgBlank}, fields["name"])
	assert.Equal(t, []string{`"Mars/Olympus" is not a valid choice.`}, fields["timezone"])
	assert.Equal(t, []string{"Ensure this field has at least 8 characters."}, fields["password"])

	stored, err := env.rm.accounts.GetByID(context.Background(), out.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", stored.Name)
}

func TestSignup_ValidationErrors(t *testing.T) {
	env := newAccountEnv(t)

	_, err := env.svc.Signup(context.Background(), SignupInput{Email: "nope", Password: "", Name: "", Timezone: "Nowhere"})
	fields := fieldErrors(t, err)

	assert.Equal(t, []string{validation.MsgEmail}, fields["email"])
	assert.Equal(t, []string{validation.MsgRequired}, fields["password"])
	assert.Equal(t, []string{validation.MsgBlank}, fields["name"])
	assert.Contains(t, fields, "timezone")
	assert.Empty(t, env.sender.sent)
	assert.Empty(t, env.rm.accounts.byID)
}

func TestSignup_DuplicateEmailIgnoresCase(t *testing.T) {
	env := newAccountEnv(t)
	signup(t, env, signupInput())

	in := signupInput()
	in.Email = "  A@x.COM "
	_, err := env.svc.Signup(context.Background(), in)

	fields := fieldErrors(t, err)
	assert.Equal(t, []string{validation.MsgEmailTaken}, fields["email"])
	assert.Len(t, env.sender.sent, 1)
}

func TestSignup_UniqueViolationFromStore(t *testing.T) {
	env := newAccountEnv(t)
	signup(t, env, signupInput())

	// the duplicate slips past the pre-check and is caught by the insert
	env.rm.accounts.hideTaken = true
	env.mock.ExpectBegin()
	env.mock.ExpectRollback()

	_, err := env.svc.Signup(context.Background(), signupInput())
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{validation.MsgEmailTaken}, fields["email"])
	assert.Len(t, env.sender.sent, 1)
	require.NoError(t, env.mock.ExpectationsWereMet())
}

func TestSignup_TransactionFailureSendsNothing(t *testing.T) {
	env := newAccountEnv(t)
	env.mock.ExpectBegin().WillReturnError(errors.New("db down"))

	_, err := env.svc.Signup(context.Background(), signupInput())
	assert.ErrorContains(t, err, "db down")
	assert.Empty(t, env.sender.sent)
	assert.Empty(t, env.store.Keys())
}

func TestSignup_MailFailureKeepsAccount(t *testing.T) {
	env := newAccountEnv(t)
	env.sender.err = errors.New("smtp down")

	out := signup(t, env, signupInput())

	_, err := env.rm.accounts.GetByID(context.Background(), out.Account.ID)
	assert.NoError(t, err)
	assert.Len(t, env.store.Keys(), 1)
}

func TestCreateSuperuser(t *testing.T) {
	env := newAccountEnv(t)
	env.expectTx(1)

	out, err := env.svc.CreateSuperuser(context.Background(), signupInput())
	require.NoError(t, err)
	assert.True(t, out.Account.IsStaff)
	assert.True(t, out.Account.IsSuperuser)
	assert.NotEmpty(t, out.AuthToken)
}

func TestLogin_Failures(t *testing.T) {
	env := newAccountEnv(t)
	signup(t, env, signupInput())

	_, err := env.svc.Login(context.Background(), "a@x.com", "wrong-password")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = env.svc.Login(context.Background(), "nobody@x.com", "12345678")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	out, err := env.svc.Login(context.Background(), "A@X.COM", "12345678")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", out.Account.Email)
}

func TestLogin_StoreErrorPropagates(t *testing.T) {
	env := newAccountEnv(t)
	env.rm.accounts.getErr = errors.New("db error: boom")

	_, err := env.svc.Login(context.Background(), "a@x.com", "12345678")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, common.ErrInvalidCredentials))
}

func TestAuthenticate(t *testing.T) {
	env := newAccountEnv(t)
	out := signup(t, env, signupInput())
	ctx := context.Background()

	a, err := env.svc.Authenticate(ctx, out.AuthToken)
	require.NoError(t, err)
	assert.Equal(t, out.Account.ID, a.ID)

	_, err = env.svc.Authenticate(ctx, "unknown")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = env.svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	a, err = env.svc.AuthenticateBasic(ctx, "a@x.com", "12345678")
	require.NoError(t, err)
	assert.Equal(t, out.Account.ID, a.ID)
	_, err = env.svc.AuthenticateBasic(ctx, "a@x.com", "nope")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRequestPasswordReset(t *testing.T) {
	env := newAccountEnv(t)
	signup(t, env, signupInput())
	ctx := context.Background()

	require.NoError(t, env.svc.RequestPasswordReset(ctx, "unknown@x.com"))
	assert.Equal(t, 0, env.sender.count(mailer.TemplateResetPassword))

	require.NoError(t, env.svc.RequestPasswordReset(ctx, "A@x.com"))
	assert.Equal(t, 1, env.sender.count(mailer.TemplateResetPassword))

	sent := env.sender.last()
	assert.Equal(t, "a@x.com", sent.to)
	assert.True(t, strings.HasSuffix(sent.data.URL, "reset_token="+url.QueryEscape(sent.data.Token)))
	assert.Contains(t, env.store.Keys(), common.PurposeResetPassword+":"+sent.data.Token)
}

func TestChangePassword_ResetTokenPath(t *testing.T) {
	env := newAccountEnv(t)
	created := signup(t, env, signupInput())
	ctx := context.Background()

	require.NoError(t, env.svc.RequestPasswordReset(ctx, "a@x.com"))
	token := env.sender.last().data.Token

	env.expectTx(1)
	out, err := env.svc.ChangePassword(ctx, ChangePasswordInput{ResetToken: token, NewPassword: "brand-new-pass"})
	require.NoError(t, err)
	assert.Equal(t, created.AuthToken, out.AuthToken)

	_, err = env.svc.Login(ctx, "a@x.com", "brand-new-pass")
	assert.NoError(t, err)
	_, err = env.svc.Login(ctx, "a@x.com", "12345678")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestChangePassword_ResetTokenWinsOverCredentials(t *testing.T) {
	env := newAccountEnv(t)
	signup(t, env, signupInput())

	_, err := env.svc.ChangePassword(context.Background(), ChangePasswordInput{
		ResetToken:  "bogus",
		Email:       "a@x.com",
		Password:    "12345678",
		NewPassword: "brand-new-pass",
	})
	assert.ErrorIs(t, err, common.ErrResetTokenInvalid)
}

func TestChangePassword_VerifyTokenIsNotAResetToken(t *testing.T) {
	env := newAccountEnv(t)
	signup(t, env, signupInput())

	_, err := env.svc.ChangePassword(context.Background(), ChangePasswordInput{
		ResetToken:  env.sender.last().data.Token,
		NewPassword: "brand-new-pass",
	})
	assert.ErrorIs(t, err, common.ErrResetTokenInvalid)
}

func TestChangePassword_LiveCredentialPath(t *testing.T) {
	env := newAccountEnv(t)
	signup(t, env, signupInput())
	ctx := context.Background()

	_, err := env.svc.ChangePassword(ctx, ChangePasswordInput{Email: "a@x.com", Password: "wrong-one", NewPassword: "brand-new-pass"})
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	env.expectTx(1)
	_, err = env.svc.ChangePassword(ctx, ChangePasswordInput{Email: "a@x.com", Password: "12345678", NewPassword: "brand-new-pass"})
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, "a@x.com", "brand-new-pass")
	assert.NoError(t, err)
}

func TestChangePassword_MissingCredentials(t *testing.T) {
	env := newAccountEnv(t)

	for name, in := range map[string]ChangePasswordInput{
		"nothing":       {NewPassword: "brand-new-pass"},
		"email only":    {Email: "a@x.com", NewPassword: "brand-new-pass"},
		"password only": {Password: "12345678", NewPassword: "brand-new-pass"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.ChangePassword(context.Background(), in)
			assert.ErrorIs(t, err, common.ErrCredentialsRequired)
		})
	}
}

func TestChangePassword_NewPasswordValidated(t *testing.T) {
	env := newAccountEnv(t)

	_, err := env.svc.ChangePassword(context.Background(), ChangePasswordInput{Email: "a@x.com", Password: "12345678"})
	fields := fieldErrors(t, err)
	assert.Equal(t, []string{validation.MsgRequired}, fields["new_password"])
}

func TestSelfScope(t *testing.T) {
	env := newAccountEnv(t)
	ctx := context.Background()

	a := signup(t, env, signupInput())
	in := signupInput()
	in.Email = "b@x.com"
	b := signup(t, env, in)

	_, err := env.svc.Get(ctx, a.Account, b.Account.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = env.svc.Update(ctx, a.Account, b.Account.ID, AccountPatch{Name: strPtr("hijack")})
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.ErrorIs(t, env.svc.Delete(ctx, a.Account, b.Account.ID), common.ErrorNotFound)

	got, err := env.svc.Get(ctx, a.Account, a.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	require.NoError(t, env.svc.Delete(ctx, b.Account, b.Account.ID))
	_, err = env.rm.accounts.GetByID(ctx, b.Account.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestValidFor(t *testing.T) {
	s := &AccountService{}
	for ttl, want := range map[time.Duration]string{
		time.Hour:        "1 hour",
		24 * time.Hour:   "24 hours",
		30 * time.Minute: "30 minutes",
		time.Minute:      "1 minute",
		90 * time.Minute: "90 minutes",
		30 * time.Second: "30 seconds",
		time.Second:      "1 second",
		time.Millisecond: "1 second",
	} {
		s.tokenTTL = ttl
		assert.Equal(t, want, s.validFor(), ttl.String())
	}
}
