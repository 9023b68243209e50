// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package auth

// preference orders mechanism names by spec.md §4.5's fixed preference:
// SCRAM-SHA-1 before DIGEST-MD5 before PLAIN before others.
var preference = map[string]int{
	"SCRAM-SHA-1": 0,
	"DIGEST-MD5":  1,
	"PLAIN":       2,
}

func rank(name string) int {
	if r, ok := preference[name]; ok {
		return r
	}
	return len(preference)
}

// entry is a registered mechanism factory plus its static properties.
type entry struct {
	name    string
	plain   bool
	factory Factory
}

// Registry holds the set of mechanisms this client is willing to use, and
// implements the selection policy of spec.md §4.5.
type Registry struct {
	entries []entry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a mechanism factory under name. plain marks mechanisms that
// send the secret in the clear (PLAIN, legacy password auth).
func (r *Registry) Register(name string, plain bool, factory Factory) {
	r.entries = append(r.entries, entry{name: name, plain: plain, factory: factory})
}

// Select implements spec.md §4.5's registry policy:
//  1. intersect server-advertised mechanisms with registered handlers;
//  2. drop plain handlers unless the channel is encrypted or the caller
//     explicitly allows plaintext-over-cleartext;
//  3. order by SCRAM-SHA-1 > DIGEST-MD5 > PLAIN > other;
//  4. fail NoSupportedMechanisms if nothing is left.
func (r *Registry) Select(serverMechs []string, encrypted, allowPlaintext bool, user, password string) (Mechanism, error) {
	serverSet := make(map[string]struct{}, len(serverMechs))
	for _, m := range serverMechs {
		serverSet[m] = struct{}{}
	}

	var candidates []entry
	for _, e := range r.entries {
		if _, ok := serverSet[e.name]; !ok {
			continue
		}
		if e.plain && !encrypted && !allowPlaintext {
			continue
		}
		candidates = append(candidates, e)
	}

	if len(candidates) == 0 {
		return nil, &Error{Kind: KindNoSupportedMechanisms, Msg: "auth: no supported SASL mechanisms"}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if rank(c.name) < rank(best.name) {
			best = c
		}
	}
	return best.factory(user, password), nil
}

// DefaultRegistry returns a registry pre-populated with SCRAM-SHA-1,
// DIGEST-MD5, and PLAIN, matching the mechanism set spec.md §1 names.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("SCRAM-SHA-1", false, func(user, password string) Mechanism {
		return NewScramSHA1(user, password)
	})
	r.Register("DIGEST-MD5", false, func(user, password string) Mechanism {
		return NewDigestMD5(user, password)
	})
	r.Register("PLAIN", true, func(user, password string) Mechanism {
		return NewPlain(user, password)
	})
	return r
}
