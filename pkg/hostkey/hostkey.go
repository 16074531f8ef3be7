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

// Package hostkey holds a server host key captured during the handshake and
// renders it for output.
package hostkey

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

type FingerprintFormat string

const (
	// FingerprintSHA256 renders "SHA256:" followed by unpadded base64, as
	// OpenSSH does.
	FingerprintSHA256 FingerprintFormat = "sha256"
	// FingerprintMD5 renders the legacy colon separated hex digest.
	FingerprintMD5 FingerprintFormat = "md5"
)

// HostKey is a verified server host key.
type HostKey struct {
	// Algorithm is the negotiated host key algorithm, e.g. rsa-sha2-256.
	Algorithm string
	// Type is the key format named inside the blob, e.g. ssh-rsa.
	Type string
	// Blob is K_S exactly as the server sent it.
	Blob        []byte
	Fingerprint string

	key ssh.PublicKey
}

// New captures blob, the K_S bytes the server signed, together with key
// parsed from it. The blob is copied and fingerprinted as sent, never
// re-encoded from key.
func New(algorithm string, blob []byte, key ssh.PublicKey, format FingerprintFormat) (*HostKey, error) {
	var fingerprint string
	switch format {
	case FingerprintSHA256, "":
		fingerprint = fingerprintSHA256(blob)
	case FingerprintMD5:
		fingerprint = fingerprintMD5(blob)
	default:
		return nil, fmt.Errorf("unknown fingerprint format %q", format)
	}
	return &HostKey{
		Algorithm:   algorithm,
		Type:        key.Type(),
		Blob:        append([]byte(nil), blob...),
		Fingerprint: fingerprint,
		key:         key,
	}, nil
}

func fingerprintSHA256(blob []byte) string {
	sum := sha256.Sum256(blob)
	return "SHA256:" + base64.RawStdEncoding.EncodeToString(sum[:])
}

func fingerprintMD5(blob []byte) string {
	sum := md5.Sum(blob)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = hex.EncodeToString([]byte{b})
	}
	return strings.Join(parts, ":")
}

// Base64 encodes Blob with the standard padded alphabet.
func (k *HostKey) Base64() string {
	return base64.StdEncoding.EncodeToString(k.Blob)
}

// PublicKey returns the parsed key.
func (k *HostKey) PublicKey() ssh.PublicKey {
	return k.key
}

// Line renders "<base64 blob> <algorithm> <fingerprint>\n".
func (k *HostKey) Line() string {
	return fmt.Sprintf("%s %s %s\n", k.Base64(), k.Algorithm, k.Fingerprint)
}

// KnownHostsLine renders an OpenSSH known_hosts entry for address, which may
// be a host or host:port.
func (k *HostKey) KnownHostsLine(address string) string {
	return fmt.Sprintf("%s %s %s\n", knownhosts.Normalize(address), k.Type, k.Base64())
}

type hostKeyJSON struct {
	Base64Encoded string `json:"base64Encoded"`
	Type          string `json:"type"`
	Algorithm     string `json:"algorithm"`
	Fingerprint   string `json:"fingerprint"`
}

func (k *HostKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(hostKeyJSON{
		Base64Encoded: k.Base64(),
		Type:          k.Type,
		Algorithm:     k.Algorithm,
		Fingerprint:   k.Fingerprint,
	})
}
