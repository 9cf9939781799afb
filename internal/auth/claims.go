package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// providerRole is the generic role the managed auth provider puts on every
// signed-in user. The platform role then comes from app_metadata.
const providerRole = "authenticated"

// Claims accepts both tokens minted by Manager and access tokens from the
// managed auth provider, which share the HS256 secret.
//
// The user id is the subject. Staff capabilities are decided by internal/rbac
// from the resolved role, never by extra claims.
type Claims struct {
	jwt.RegisteredClaims

	Role        string      `json:"role,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata,omitempty"`
	// TokenType is empty on provider tokens, which are always access tokens.
	TokenType TokenType `json:"token_type,omitempty"`
}

type AppMetadata struct {
	Role string `json:"role,omitempty"`
}

// UserID is the subject claim.
func (c Claims) UserID() string { return c.Subject }

// PlatformRole resolves the caller's platform role. app_metadata wins; a bare
// provider session is a dropshipper.
func (c Claims) PlatformRole() string {
	if c.AppMetadata.Role != "" {
		return c.AppMetadata.Role
	}
	if c.Role == providerRole {
		return defaultRole
	}
	return c.Role
}

func (c Claims) tokenType() TokenType {
	if c.TokenType == "" {
		return TokenTypeAccess
	}
	return c.TokenType
}
