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

package hostkey

import (
	"crypto/ed25519"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func ed25519Key(t *testing.T) ssh.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return key
}

func TestLine(t *testing.T) {
	key := ed25519Key(t)
	hk, err := New(ssh.KeyAlgoED25519, key.Marshal(), key, FingerprintSHA256)
	require.NoError(t, err)

	line := hk.Line()
	require.True(t, strings.HasSuffix(line, "\n"))
	fields := strings.Fields(line)
	require.Len(t, fields, 3)

	blob, err := base64.StdEncoding.DecodeString(fields[0])
	require.NoError(t, err)
	assert.Equal(t, key.Marshal(), blob)
	parsed, err := ssh.ParsePublicKey(blob)
	require.NoError(t, err)
	assert.Equal(t, ssh.KeyAlgoED25519, parsed.Type())

	assert.Equal(t, ssh.KeyAlgoED25519, fields[1])
	assert.True(t, strings.HasPrefix(fields[2], "SHA256:"))
	assert.NotContains(t, fields[2], "=")
	assert.Equal(t, ssh.FingerprintSHA256(key), fields[2])
}

func TestLineUsesNegotiatedAlgorithm(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	key, err := ssh.NewPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	hk, err := New(ssh.KeyAlgoRSASHA512, key.Marshal(), key, "")
	require.NoError(t, err)
	assert.Equal(t, ssh.KeyAlgoRSA, hk.Type)
	assert.Equal(t, ssh.KeyAlgoRSASHA512, strings.Fields(hk.Line())[1])
}

func TestMD5Fingerprint(t *testing.T) {
	key := ed25519Key(t)
	hk, err := New(ssh.KeyAlgoED25519, key.Marshal(), key, FingerprintMD5)
	require.NoError(t, err)
	assert.Equal(t, ssh.FingerprintLegacyMD5(key), hk.Fingerprint)
	assert.Len(t, strings.Split(hk.Fingerprint, ":"), 16)

	_, err = New(ssh.KeyAlgoED25519, key.Marshal(), key, "sha1")
	assert.Error(t, err)
}

func TestKnownHostsLine(t *testing.T) {
	key := ed25519Key(t)
	hk, err := New(ssh.KeyAlgoED25519, key.Marshal(), key, FingerprintSHA256)
	require.NoError(t, err)

	tests := map[string]string{
		"example.com:22":   "example.com ",
		"example.com:2222": "[example.com]:2222 ",
		"10.0.0.1":         "10.0.0.1 ",
	}
	for address, prefix := range tests {
		t.Run(address, func(t *testing.T) {
			line := hk.KnownHostsLine(address)
			assert.True(t, strings.HasPrefix(line, prefix), line)
			assert.True(t, strings.HasSuffix(line, "\n"))

			_, hosts, parsed, _, _, err := ssh.ParseKnownHosts([]byte(line))
			require.NoError(t, err)
			assert.Len(t, hosts, 1)
			assert.Equal(t, key.Marshal(), parsed.Marshal())
		})
	}
}

func TestMarshalJSON(t *testing.T) {
	key := ed25519Key(t)
	hk, err := New(ssh.KeyAlgoED25519, key.Marshal(), key, FingerprintSHA256)
	require.NoError(t, err)

	data, err := json.Marshal(hk)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, map[string]string{
		"base64Encoded": base64.StdEncoding.EncodeToString(key.Marshal()),
		"type":          ssh.KeyAlgoED25519,
		"algorithm":     ssh.KeyAlgoED25519,
		"fingerprint":   ssh.FingerprintSHA256(key),
	}, decoded)
}

// paddedRSABlob encodes an RSA public key with a redundant leading zero in
// the exponent, which parses fine but differs from key.Marshal().
func paddedRSABlob(t *testing.T) ([]byte, ssh.PublicKey) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	blob := ssh.Marshal(struct {
		Name string
		E    []byte
		N    []byte
	}{ssh.KeyAlgoRSA, []byte{0x00, 0x01, 0x00, 0x01}, append([]byte{0x00}, priv.N.Bytes()...)})
	key, err := ssh.ParsePublicKey(blob)
	require.NoError(t, err)
	require.NotEqual(t, key.Marshal(), blob)
	return blob, key
}

func TestBlobIsKeptAsSent(t *testing.T) {
	blob, key := paddedRSABlob(t)
	sum := sha256.Sum256(blob)
	md5sum := md5.Sum(blob)

	hk, err := New(ssh.KeyAlgoRSASHA256, blob, key, FingerprintSHA256)
	require.NoError(t, err)
	assert.Equal(t, blob, hk.Blob)
	assert.Equal(t, base64.StdEncoding.EncodeToString(blob), hk.Base64())
	assert.Equal(t, "SHA256:"+base64.RawStdEncoding.EncodeToString(sum[:]), hk.Fingerprint)
	assert.Contains(t, hk.KnownHostsLine("example.com:22"), base64.StdEncoding.EncodeToString(blob))

	hk, err = New(ssh.KeyAlgoRSASHA256, blob, key, FingerprintMD5)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(md5sum[:]), strings.ReplaceAll(hk.Fingerprint, ":", ""))

	// the caller's buffer may be reused
	blob[len(blob)-1] ^= 0xff
	assert.NotEqual(t, blob, hk.Blob)
}
