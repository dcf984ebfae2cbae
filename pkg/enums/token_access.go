package enums

import "fmt"

// TokenAccess is the capability class a token grants.
type TokenAccess string

const (
	TokenAccessRead  TokenAccess = "READ"
	TokenAccessWrite TokenAccess = "WRITE"
)

var validTokenAccesses = []TokenAccess{
	TokenAccessRead,
	TokenAccessWrite,
}

func (a TokenAccess) String() string {
	return string(a)
}

func (a TokenAccess) IsValid() bool {
	for _, candidate := range validTokenAccesses {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseTokenAccess converts raw input into a TokenAccess.
func ParseTokenAccess(value string) (TokenAccess, error) {
	for _, candidate := range validTokenAccesses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid token access %q", value)
}
