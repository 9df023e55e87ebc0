package auth

const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeContentRead   = "content:read"
	ScopeContentCreate = "content:create"
)

// LoginScopes are requested by the server side authorization code flow.
var LoginScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
}

// AllScopes defines the full set of scopes offered by the Swagger UI
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopeContentRead,
	ScopeContentCreate,
}
