package enums

import "fmt"

// ExpirationPolicy controls the expires_at set during confirmation.
type ExpirationPolicy string

const (
	ExpirationPolicyNone   ExpirationPolicy = "NO_EXPIRATION"
	ExpirationPolicyExport ExpirationPolicy = "EXPORT_EXPIRATION_POLICY"
)

var validExpirationPolicies = []ExpirationPolicy{
	ExpirationPolicyNone,
	ExpirationPolicyExport,
}

func (p ExpirationPolicy) String() string {
	return string(p)
}

func (p ExpirationPolicy) IsValid() bool {
	for _, candidate := range validExpirationPolicies {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseExpirationPolicy converts raw input into an ExpirationPolicy.
func ParseExpirationPolicy(value string) (ExpirationPolicy, error) {
	for _, candidate := range validExpirationPolicies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid expiration policy %q", value)
}
