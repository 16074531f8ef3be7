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

package kex

import (
	"fmt"
	"math/big"

	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/praetorian-inc/sshpubkey/pkg/negotiate"
	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
	"github.com/praetorian-inc/sshpubkey/pkg/wire"
	"golang.org/x/crypto/ssh"
)

// Key derivation letters from RFC 4253 section 7.2, seen from the client.
var (
	clientKeys = directionKeys{iv: 'A', key: 'C', mac: 'E'}
	serverKeys = directionKeys{iv: 'B', key: 'D', mac: 'F'}
)

type directionKeys struct {
	iv, key, mac byte
}

// DeriveKeys computes the cipher parameters for both directions. write
// protects client to server traffic, read server to client traffic. On the
// first key exchange sessionID equals the exchange hash.
func DeriveKeys(result *Result, sessionID []byte, algs *negotiate.Algorithms) (write, read wire.CipherParams, err error) {
	write, err = deriveDirection(result, sessionID, algs.Write, clientKeys)
	if err != nil {
		return wire.CipherParams{}, wire.CipherParams{}, err
	}
	read, err = deriveDirection(result, sessionID, algs.Read, serverKeys)
	if err != nil {
		write.Wipe()
		return wire.CipherParams{}, wire.CipherParams{}, err
	}
	return write, read, nil
}

func deriveDirection(result *Result, sessionID []byte, algs negotiate.DirectionAlgorithms, letters directionKeys) (wire.CipherParams, error) {
	cipherSpec, ok := algorithms.Cipher(algs.Cipher)
	if !ok {
		return wire.CipherParams{}, &sshutils.ConfigurationError{Info: fmt.Sprintf("unknown cipher %q", algs.Cipher)}
	}
	macSpec, ok := algorithms.MAC(algs.MAC)
	if !ok {
		return wire.CipherParams{}, &sshutils.ConfigurationError{Info: fmt.Sprintf("unknown MAC %q", algs.MAC)}
	}

	params := wire.CipherParams{
		Cipher: algs.Cipher,
		MAC:    algs.MAC,
		IV:     make([]byte, cipherSpec.IVSize),
		Key:    make([]byte, cipherSpec.KeySize),
		MACKey: make([]byte, macSpec.KeySize),
	}
	generateKeyMaterial(params.IV, letters.iv, result, sessionID)
	generateKeyMaterial(params.Key, letters.key, result, sessionID)
	generateKeyMaterial(params.MACKey, letters.mac, result, sessionID)
	return params, nil
}

// generateKeyMaterial fills out with HASH(K || H || tag || session_id),
// extended by HASH(K || H || K1 || K2 ...) until long enough.
func generateKeyMaterial(out []byte, tag byte, result *Result, sessionID []byte) {
	k := ssh.Marshal(struct{ K *big.Int }{result.K})
	defer wipe(k)

	var digestsSoFar []byte
	defer func() { wipe(digestsSoFar) }()

	h := result.Hash.New()
	for len(out) > 0 {
		h.Reset()
		h.Write(k)
		h.Write(result.H)
		if len(digestsSoFar) == 0 {
			h.Write([]byte{tag})
			h.Write(sessionID)
		} else {
			h.Write(digestsSoFar)
		}
		digest := h.Sum(nil)
		n := copy(out, digest)
		out = out[n:]
		if len(out) > 0 {
			digestsSoFar = append(digestsSoFar, digest...)
		}
		wipe(digest)
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
