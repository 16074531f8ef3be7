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

	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
	"golang.org/x/crypto/ssh"
)

// VerifyHostKey parses the server's host key blob under the negotiated host
// key algorithm and checks its signature over the exchange hash. No key is
// returned unless the signature verifies.
func VerifyHostKey(spec *algorithms.HostKeySpec, blob, signature, exchangeHash []byte) (ssh.PublicKey, error) {
	key, err := ssh.ParsePublicKey(blob)
	if err != nil {
		return nil, &sshutils.CryptoError{Info: "failed to parse server host key", WrappedError: err}
	}
	if key.Type() != spec.KeyFormat {
		return nil, &sshutils.CryptoError{
			Info: fmt.Sprintf("server sent a %s key, negotiated %s", key.Type(), spec.Name),
		}
	}

	sig := new(ssh.Signature)
	if err := ssh.Unmarshal(signature, sig); err != nil {
		return nil, &sshutils.CryptoError{Info: "failed to parse host key signature", WrappedError: err}
	}
	if sig.Format != spec.SignatureFormat {
		return nil, &sshutils.CryptoError{
			Info: fmt.Sprintf("signature format %q does not match negotiated %s", sig.Format, spec.Name),
		}
	}
	if err := key.Verify(exchangeHash, sig); err != nil {
		return nil, &sshutils.CryptoError{Info: "host key signature verification failed", WrappedError: err}
	}
	return key, nil
}
