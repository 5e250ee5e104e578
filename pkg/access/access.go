// Package access decides whether a room code may be used to join a room.
// The relay core never calls it; the HTTP layer consults it before a
// connection is handed to a session.
package access

// Validator reports whether candidate is an acceptable room code.
type Validator interface {
	Valid(candidate string) bool
}

// Func adapts a plain predicate to a Validator.
type Func func(candidate string) bool

func (f Func) Valid(candidate string) bool { return f(candidate) }

type allowList map[string]struct{}

// AllowList accepts exactly the given codes. Matching is case and whitespace
// sensitive.
func AllowList(codes ...string) Validator {
	l := make(allowList, len(codes))
	for _, c := range codes {
		if c != "" {
			l[c] = struct{}{}
		}
	}
	return l
}

func (l allowList) Valid(candidate string) bool {
	_, ok := l[candidate]
	return ok
}

// AnyNonEmpty accepts every non-empty code.
func AnyNonEmpty() Validator {
	return Func(func(candidate string) bool { return candidate != "" })
}

// FromCodes returns an AllowList for codes, or AnyNonEmpty when none are
// configured.
func FromCodes(codes []string) Validator {
	if len(codes) == 0 {
		return AnyNonEmpty()
	}
	return AllowList(codes...)
}
