package common

// Token purposes. They prefix every key written to the token cache.
const (
	PurposeVerifyAccount = "verify-account"
	PurposeResetPassword = "reset-password"
)

// AuthTokenKeyword is the Authorization scheme carrying the persistent bearer key.
const AuthTokenKeyword = "Token"
