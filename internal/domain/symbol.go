package domain

import (
	"fmt"
	"strings"
)

// SplitSymbol breaks a canonical "BASE/QUOTE" symbol into its parts. Both
// parts are upper-cased. An input without exactly one separator, or with an
// empty side, is rejected.
func SplitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(symbol, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid canonical symbol %q, want BASE/QUOTE", symbol)
	}
	return strings.ToUpper(parts[0]), strings.ToUpper(parts[1]), nil
}

// JoinSymbol builds the canonical "BASE/QUOTE" form.
func JoinSymbol(base, quote string) string {
	return strings.ToUpper(base) + "/" + strings.ToUpper(quote)
}
