// Package address normalizes targets into the messaging network's addressing
// scheme.
//
// Users are addressed as "<digits>@c.us" and groups as "<id>@g.us". Raw input
// such as "+1 (555) 010-9999" is reduced to its digits before the user suffix
// is appended; anything that cannot plausibly be a phone number is rejected.
package address

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// UserSuffix is appended to user addresses.
	UserSuffix = "@c.us"
	// GroupSuffix identifies group addresses.
	GroupSuffix = "@g.us"

	// MinDigits is the shortest phone number accepted (national numbers
	// without trunk prefix in small numbering plans).
	MinDigits = 7
	// MaxDigits is the E.164 maximum.
	MaxDigits = 15
)

var (
	// ErrEmpty indicates an empty target.
	ErrEmpty = errors.New("empty address")
	// ErrImplausible indicates normalization produced something that cannot
	// be a reachable address.
	ErrImplausible = errors.New("implausible address")
	// ErrUnsupportedDomain indicates an explicit suffix other than the user
	// or group suffix.
	ErrUnsupportedDomain = errors.New("unsupported address domain")
)

// Normalize converts raw into a canonical address.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmpty
	}

	if at := strings.LastIndex(raw, "@"); at >= 0 {
		local, domain := raw[:at], "@"+strings.ToLower(raw[at+1:])
		switch domain {
		case UserSuffix, "@s.whatsapp.net":
			return normalizeUser(local)
		case GroupSuffix:
			return normalizeGroup(local)
		default:
			return "", fmt.Errorf("%w: %q", ErrUnsupportedDomain, domain)
		}
	}

	return normalizeUser(raw)
}

// IsGroup reports whether addr is a group address.
func IsGroup(addr string) bool {
	return strings.HasSuffix(addr, GroupSuffix)
}

// Local returns the part of addr before the domain suffix.
func Local(addr string) string {
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		return addr[:at]
	}
	return addr
}

func normalizeUser(local string) (string, error) {
	digits := keep(local, func(r rune) bool { return r >= '0' && r <= '9' })
	if len(digits) < MinDigits || len(digits) > MaxDigits {
		return "", fmt.Errorf("%w: %q has %d digits, want %d-%d", ErrImplausible, local, len(digits), MinDigits, MaxDigits)
	}
	if strings.Trim(digits, "0") == "" {
		return "", fmt.Errorf("%w: %q is all zeros", ErrImplausible, local)
	}
	return digits + UserSuffix, nil
}

func normalizeGroup(local string) (string, error) {
	id := keep(local, func(r rune) bool { return (r >= '0' && r <= '9') || r == '-' })
	id = strings.Trim(id, "-")
	if len(id) < MinDigits {
		return "", fmt.Errorf("%w: group id %q", ErrImplausible, local)
	}
	return id + GroupSuffix, nil
}

func keep(s string, ok func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if ok(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
