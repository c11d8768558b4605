package constant

const (
	DefaultTokenType = "Bearer"

	AccessTokenCookieName = "access_token"

	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"

	LoginAttemptsDefaultLimit = 50
	LoginAttemptsMaxLimit     = 500
)

// Failure reasons recorded in the login attempt ledger.
const (
	FailureUserNotFound    = "user_not_found"
	FailureAccountLocked   = "account_locked"
	FailureAccountDisabled = "account_disabled"
	FailureBadCredentials  = "bad_credentials"
)
