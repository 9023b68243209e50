// Copyright 2024 The corexmpp Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package auth

import (
	"mellium.im/sasl"
)

// saslAdapter implements Mechanism on top of mellium.im/sasl's Client state
// machine, grounded directly on the teacher's sasl.go Negotiate closure
// (sasl.NewClient, client.Step). It is used for PLAIN and DIGEST-MD5, whose
// byte-level mechanics we delegate entirely to the library rather than
// reimplementing RFC 2831's HA1/HA2 construction by hand.
type saslAdapter struct {
	mech   sasl.Mechanism
	client *sasl.Client
	plain  bool
}

func newSASLAdapter(mech sasl.Mechanism, user, password string, plain bool) *saslAdapter {
	client := sasl.NewClient(mech, sasl.Credentials(user, password))
	return &saslAdapter{mech: mech, client: client, plain: plain}
}

func (a *saslAdapter) Name() string  { return a.mech.Name }
func (a *saslAdapter) IsPlain() bool { return a.plain }

func (a *saslAdapter) InitialResponse() ([]byte, error) {
	_, resp, err := a.client.Step(nil)
	return resp, err
}

func (a *saslAdapter) HandleChallenge(data []byte) ([]byte, error) {
	_, resp, err := a.client.Step(data)
	return resp, err
}

func (a *saslAdapter) HandleSuccess(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	_, _, err := a.client.Step(data)
	return err
}

// NewPlain returns the PLAIN mechanism (RFC 4616), delegated to
// mellium.im/sasl.
func NewPlain(user, password string) Mechanism {
	return newSASLAdapter(sasl.Plain, user, password, true)
}

// NewDigestMD5 returns the legacy DIGEST-MD5 mechanism (RFC 2831),
// delegated to mellium.im/sasl.
func NewDigestMD5(user, password string) Mechanism {
	return newSASLAdapter(sasl.DigestMD5, user, password, false)
}
