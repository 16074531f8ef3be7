// Copyright 2022 Praetorian Security, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package kex implements the client side of the fixed-group
// diffie-hellman-groupN-shaM key exchanges of RFC 4253 and RFC 8268.
package kex

import (
	"crypto"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
	"golang.org/x/crypto/ssh"
)

// PacketConn is the packet layer the exchange runs over.
type PacketConn interface {
	WritePacket(payload []byte) error
	ReadPacket() ([]byte, error)
}

// Magics are the handshake values that enter the exchange hash besides the
// Diffie-Hellman values.
type Magics struct {
	ClientVersion, ServerVersion []byte
	ClientKexInit, ServerKexInit []byte
}

// Result is the outcome of a key exchange, before the host key signature
// has been checked.
type Result struct {
	// H is the exchange hash.
	H []byte
	// K is the shared secret.
	K *big.Int
	// HostKey is the server's public key blob K_S.
	HostKey []byte
	// Signature is the server's signature over H.
	Signature []byte
	Hash      crypto.Hash
}

// Wipe zeroes the shared secret.
func (r *Result) Wipe() {
	wipeInt(r.K)
}

func wipeInt(n *big.Int) {
	if n == nil {
		return
	}
	words := n.Bits()
	for i := range words {
		words[i] = 0
	}
	n.SetInt64(0)
}

// Client runs the exchange described by spec: it sends e, waits for the
// server's reply and computes the shared secret and exchange hash.
func Client(conn PacketConn, random io.Reader, magics *Magics, spec *algorithms.KexSpec) (*Result, error) {
	grp := modpGroup(spec.Group)
	if grp == nil {
		return nil, &sshutils.ConfigurationError{Info: fmt.Sprintf("%s: unknown MODP group %d", spec.Name, spec.Group)}
	}
	if random == nil {
		random = rand.Reader
	}

	x, err := grp.privateValue(random)
	if err != nil {
		return nil, err
	}
	defer wipeInt(x)
	e := new(big.Int).Exp(grp.g, x, grp.p)

	if err := conn.WritePacket(ssh.Marshal(&kexDHInitMsg{X: e})); err != nil {
		return nil, err
	}

	packet, err := conn.ReadPacket()
	if err != nil {
		return nil, err
	}
	if len(packet) == 0 {
		return nil, &sshutils.ProtocolError{Info: "empty packet, expected KEXDH_REPLY"}
	}
	if packet[0] != msgKexDHReply {
		return nil, &sshutils.ProtocolError{
			Info: fmt.Sprintf("unexpected message type %d, expected KEXDH_REPLY", packet[0]),
		}
	}
	var reply kexDHReplyMsg
	if err := ssh.Unmarshal(packet, &reply); err != nil {
		return nil, &sshutils.ProtocolError{Info: "malformed KEXDH_REPLY", WrappedError: err}
	}

	k, err := grp.diffieHellman(reply.Y, x)
	if err != nil {
		return nil, err
	}

	return &Result{
		H:         ExchangeHash(spec.Hash, magics, reply.HostKey, e, reply.Y, k),
		K:         k,
		HostKey:   reply.HostKey,
		Signature: reply.Signature,
		Hash:      spec.Hash,
	}, nil
}

// privateValue draws x uniformly from [2, q).
func (grp *group) privateValue(random io.Reader) (*big.Int, error) {
	bound := new(big.Int).Sub(grp.q, bigTwo)
	x, err := rand.Int(random, bound)
	if err != nil {
		return nil, &sshutils.CryptoError{Info: "failed to generate DH private value", WrappedError: err}
	}
	return x.Add(x, bigTwo), nil
}

// diffieHellman returns theirPublic^myPrivate mod p after checking that
// theirPublic lies in [2, p-2].
func (grp *group) diffieHellman(theirPublic, myPrivate *big.Int) (*big.Int, error) {
	if theirPublic == nil || theirPublic.Cmp(bigOne) <= 0 || theirPublic.Cmp(grp.pMinus1) >= 0 {
		return nil, &sshutils.ProtocolError{Info: "server DH value out of bounds"}
	}
	return new(big.Int).Exp(theirPublic, myPrivate, grp.p), nil
}

// ExchangeHash computes H over the RFC 4253 section 8 concatenation.
func ExchangeHash(hash crypto.Hash, magics *Magics, hostKey []byte, e, f, k *big.Int) []byte {
	h := hash.New()
	h.Write(ssh.Marshal(struct {
		ClientVersion []byte
		ServerVersion []byte
		ClientKexInit []byte
		ServerKexInit []byte
		HostKey       []byte
		E, F, K       *big.Int
	}{
		magics.ClientVersion, magics.ServerVersion,
		magics.ClientKexInit, magics.ServerKexInit,
		hostKey,
		e, f, k,
	}))
	return h.Sum(nil)
}
