package services

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/tinyauth/internal/common"
	"github.com/dmitrijs2005/tinyauth/internal/cryptox"
	"github.com/dmitrijs2005/tinyauth/internal/server/config"
)

// CheckPassword validates plain against policy. Every unmet requirement is
// listed in a single BadRequest message.
func CheckPassword(policy config.PasswordPolicy, plain string) error {
	var upper, lower, digit, symbol bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	var missing []string
	if len([]rune(plain)) < policy.MinLength {
		missing = append(missing, fmt.Sprintf("at least %d characters", policy.MinLength))
	}
	if len(plain) > cryptox.MaxPasswordBytes {
		missing = append(missing, fmt.Sprintf("no more than %d bytes", cryptox.MaxPasswordBytes))
	}
	if policy.RequireUppercase && !upper {
		missing = append(missing, "an uppercase letter")
	}
	if policy.RequireLowercase && !lower {
		missing = append(missing, "a lowercase letter")
	}
	if policy.RequireDigit && !digit {
		missing = append(missing, "a digit")
	}
	if policy.RequireSymbol && !symbol {
		missing = append(missing, "a symbol")
	}

	if len(missing) > 0 {
		return common.BadRequest("Password must contain " + strings.Join(missing, ", "))
	}
	return nil
}
