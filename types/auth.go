package types

// AuthToken is a signed bearer token handed to a client.
type AuthToken struct {
	// AccessToken is the signed JWT.
	AccessToken string `json:"accessToken"`

	// TokenType is always "Bearer".
	TokenType string `json:"tokenType"`

	// ExpiresIn is the token lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn"`
}

// AuthResult is returned by sign-in and sign-up.
type AuthResult struct {
	AuthToken
	User User `json:"user"`
}
