package entity

import "strings"

// Account - ledger account identifier (opaque string, usually a 0x address)
type Account string

// ZeroAccount - the null account; it can never own or receive a subscription
const ZeroAccount Account = ""

// IsZero reports whether a is empty or a 0x address made of zeros only
func (a Account) IsZero() bool {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return true
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return true
	}
	return strings.Trim(s, "0") == ""
}

// Normalize trims whitespace and lowercases hex addresses so both spellings map to one key
func (a Account) Normalize() Account {
	s := strings.TrimSpace(string(a))
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = "0x" + strings.ToLower(s[2:])
	}
	return Account(s)
}

func (a Account) String() string {
	return string(a)
}
