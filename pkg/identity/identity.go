// Package identity carries the authenticated user identity and the client
// for the external identity service that owns it. This service never stores
// user credentials or profiles itself; principals only pass through codes,
// tokens and session cookies opaquely.
package identity

// Principal is the authenticated user identity as reported by the identity
// service.
type Principal struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Profile is the public user profile returned by the identity service.
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UsernameStatus reports whether a uid is known and how its owner logs in.
type UsernameStatus struct {
	Exists           bool `json:"exists"`
	UsePasswordLogin bool `json:"usePasswordLogin"`
}

// CreateUserParams are the fields required to create an account.
type CreateUserParams struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Feedback bool   `json:"feedback"`
}
