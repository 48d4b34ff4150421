package account

import (
	"unicode"

	apierr "github.com/tendant/simple-oauth/pkg/errors"
)

// PasswordPolicy holds the complexity requirements enforced before an
// account is created or migrated. Password resets are exempt: the identity
// service owns reset policy.
type PasswordPolicy struct {
	MinLength        int
	RequireDigit     bool
	RequireLowercase bool
	RequireUppercase bool
}

// DefaultPasswordPolicy returns the policy used when none is configured
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        8,
		RequireDigit:     true,
		RequireLowercase: true,
		RequireUppercase: true,
	}
}

// Check returns a PASSWORD_COMPLEXITY error when password does not satisfy
// the policy. The message is fixed; it never describes which rule failed.
func (p PasswordPolicy) Check(password string) error {
	var hasDigit, hasLower, hasUpper bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		}
	}

	ok := len(password) >= p.MinLength &&
		(!p.RequireDigit || hasDigit) &&
		(!p.RequireLowercase || hasLower) &&
		(!p.RequireUppercase || hasUpper)
	if !ok {
		return apierr.New(apierr.ErrCodePasswordComplexity, "Password not strong enough.")
	}
	return nil
}
