package radapter

import (
	"fmt"
	"strings"
)

// Schema stubs: sentinel substrings naming the role of a sub-key that could not collide
// with an application-chosen sub-key.
const (
	StubLog     = "[*-LOG-*]"
	StubStatus  = "[*-STATUS-*]"
	StubStream  = "[*-STREAM-*]"
	StubStop    = "[*-STOP-*]"
	StubChannel = "<$-CHANNEL-$>"
)

var schemaStubs = []string{StubLog, StubStatus, StubStream, StubStop, StubChannel}

// globMetachars are the characters that make a Redis cluster hash tag ambiguous for
// pattern subscriptions when they appear in a base key.
const globMetachars = "*?[]"

// ValidateBase rejects a base key containing any cluster-hash-tag-ambiguous character.
func ValidateBase(base string) error {
	if strings.ContainsAny(base, globMetachars) {
		return errInvalidBase{base: base}
	}
	return nil
}

type errInvalidBase struct{ base string }

func (e errInvalidBase) Error() string {
	return fmt.Sprintf("radapter: base key %q contains a glob metacharacter", e.base)
}

// BuildKey composes the canonical key "{base}[:stub][:sub]". The curly braces force a
// Redis cluster hash tag so every sub-key of a given base lands in one slot.
func BuildKey(base, stub, sub string) string {
	var b strings.Builder
	b.Grow(len(base) + len(stub) + len(sub) + 4)
	b.WriteByte('{')
	b.WriteString(base)
	b.WriteByte('}')
	if stub != "" {
		b.WriteByte(':')
		b.WriteString(stub)
	}
	if sub != "" {
		b.WriteByte(':')
		b.WriteString(sub)
	}
	return b.String()
}

// Split decomposes a fully-built key back into (base, sub), given the adapter's home
// base. It requires an exact "{homeBase}" bracket match at the start of key — not a
// substring search — so a home base that happens to appear inside an application sub-key
// cannot be mistaken for the bracket form. Any recognised schema stub immediately
// following the bracket is also stripped, so sub is the plain application-level name
// passed to reader and listener callbacks. Returns ("", "") if key does not start with
// the home base's exact bracket form.
func Split(key, homeBase string) (base, sub string) {
	prefix := "{" + homeBase + "}"
	if !strings.HasPrefix(key, prefix) {
		return "", ""
	}
	rest := strings.TrimPrefix(key[len(prefix):], ":")
	for _, stub := range schemaStubs {
		if rest == stub {
			return homeBase, ""
		}
		if strings.HasPrefix(rest, stub+":") {
			return homeBase, rest[len(stub)+1:]
		}
	}
	return homeBase, rest
}
