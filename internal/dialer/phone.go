package dialer

import (
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// NormalizeE164 validates an international number and returns it in E.164 form.
// Numbers must carry their country code ("+" prefix); no default region is assumed.
func NormalizeE164(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "+") {
		return "", fmt.Errorf("%w: %q must start with +", ErrInvalidDestination, raw)
	}
	num, err := libphonenumber.Parse(s, "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDestination, err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDestination, raw)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}
