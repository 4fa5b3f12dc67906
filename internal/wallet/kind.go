package wallet

import (
	"strings"

	"github.com/agnivade/levenshtein"

	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Kind identifies a wallet technology.
type Kind string

// Supported provider kinds.
const (
	// KindInjected is a wallet the host already exposes, such as a browser
	// extension bridge or a local signer daemon.
	KindInjected Kind = "injected"
	// KindRelay is a wallet reached through a pairing relay.
	KindRelay Kind = "relay"
	// KindSession is a smart-contract wallet managed by a session service.
	KindSession Kind = "session"
)

// AllKinds lists every kind in catalog order.
func AllKinds() []Kind {
	return []Kind{KindInjected, KindRelay, KindSession}
}

// String returns the kind identifier.
func (k Kind) String() string {
	return string(k)
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindInjected, KindRelay, KindSession:
		return true
	default:
		return false
	}
}

// HasSessionTeardown reports whether handles of this kind carry a
// wallet-side session that must be closed on disconnect.
func (k Kind) HasSessionTeardown() bool {
	return k == KindRelay || k == KindSession
}

// ParseKind parses a kind name. Unknown names get a "did you mean"
// suggestion when one is close enough.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if k.IsValid() {
		return k, nil
	}

	err := tethererr.WithDetails(tethererr.ErrUnknownProvider, map[string]string{"provider": s})
	if best := closestKind(string(k)); best != "" {
		err = tethererr.WithSuggestion(err, "Did you mean '"+best+"'?")
	}
	return "", err
}

func closestKind(s string) string {
	const maxDistance = 3
	best, bestDist := "", maxDistance+1
	for _, k := range AllKinds() {
		if d := levenshtein.ComputeDistance(s, string(k)); d < bestDist {
			best, bestDist = string(k), d
		}
	}
	return best
}
