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

package negotiate

import (
	"bytes"
	"errors"
	"testing"

	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func defaultPrefs(family algorithms.Family) Preferences {
	return Preferences{
		KeyExchanges:      algorithms.DefaultKexAlgos,
		HostKeyAlgorithms: algorithms.HostKeyAlgorithmsFor(string(family)),
		Ciphers:           algorithms.DefaultCiphers,
		MACs:              algorithms.DefaultMACs,
		Compressions:      algorithms.DefaultCompressions,
	}
}

func serverInit(hostKeys ...string) *KexInit {
	return &KexInit{
		KexAlgos:                []string{"curve25519-sha256", algorithms.KexDH16SHA512, algorithms.KexDH14SHA256},
		ServerHostKeyAlgos:      hostKeys,
		CiphersClientServer:     []string{"aes256-ctr", algorithms.CipherAES256CBC, algorithms.CipherAES128CBC},
		CiphersServerClient:     []string{algorithms.CipherAES192CBC},
		MACsClientServer:        []string{algorithms.MACHMACSHA1},
		MACsServerClient:        []string{"hmac-sha2-256", algorithms.MACHMACSHA1ETM},
		CompressionClientServer: []string{"none", "zlib@openssh.com"},
		CompressionServerClient: []string{"none"},
	}
}

func TestNewClientKexInit(t *testing.T) {
	random := bytes.NewReader(bytes.Repeat([]byte{0x42}, 16))
	msg, payload, err := NewClientKexInit(defaultPrefs(algorithms.FamilyED25519), random)
	require.NoError(t, err)

	assert.Equal(t, byte(MsgKexInit), payload[0])
	assert.Equal(t, bytes.Repeat([]byte{0x42}, 16), msg.Cookie[:])
	assert.Equal(t, bytes.Repeat([]byte{0x42}, 16), payload[1:17])
	assert.False(t, msg.FirstKexFollows)
	assert.Zero(t, msg.Reserved)
	assert.Empty(t, msg.LanguagesClientServer)
	assert.Equal(t, msg.CiphersClientServer, msg.CiphersServerClient)
	assert.Equal(t, msg.MACsClientServer, msg.MACsServerClient)

	// trailing first_kex_packet_follows and reserved fields
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, payload[len(payload)-5:])

	parsed, err := ParseKexInit(payload)
	require.NoError(t, err)
	assert.Equal(t, payload, ssh.Marshal(parsed))
	assert.Equal(t, msg.Cookie, parsed.Cookie)
	assert.Equal(t, msg.KexAlgos, parsed.KexAlgos)
	assert.Equal(t, msg.ServerHostKeyAlgos, parsed.ServerHostKeyAlgos)
	assert.Equal(t, msg.CiphersServerClient, parsed.CiphersServerClient)
	assert.Equal(t, msg.MACsServerClient, parsed.MACsServerClient)
	assert.Equal(t, msg.CompressionClientServer, parsed.CompressionClientServer)
	assert.Empty(t, parsed.LanguagesServerClient)
}

func TestNewClientKexInitEntropyFailure(t *testing.T) {
	_, _, err := NewClientKexInit(defaultPrefs(algorithms.FamilyRSA), bytes.NewReader(nil))
	require.Error(t, err)
	assert.Equal(t, sshutils.KindTransport, sshutils.Kind(err))
}

func TestNewClientKexInitEmptyHostKeys(t *testing.T) {
	msg, payload, err := NewClientKexInit(defaultPrefs("dsa"), nil)
	require.NoError(t, err)
	assert.Empty(t, msg.ServerHostKeyAlgos)

	parsed, err := ParseKexInit(payload)
	require.NoError(t, err)
	assert.Empty(t, parsed.ServerHostKeyAlgos)
}

func TestParseKexInitMalformed(t *testing.T) {
	_, payload, err := NewClientKexInit(defaultPrefs(algorithms.FamilyECDSA), nil)
	require.NoError(t, err)

	for name, data := range map[string][]byte{
		"truncated":   payload[:40],
		"wrong type":  append([]byte{21}, payload[1:]...),
		"cookie only": payload[:17],
		"empty":       {},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseKexInit(data)
			require.Error(t, err)
			assert.Equal(t, sshutils.KindProtocol, sshutils.Kind(err))
		})
	}
}

func TestFindAgreedAlgorithms(t *testing.T) {
	client, _, err := NewClientKexInit(defaultPrefs(algorithms.FamilyRSASHA2), nil)
	require.NoError(t, err)

	server := serverInit(algorithms.HostKeyED25519, algorithms.HostKeyRSASHA512, algorithms.HostKeyRSASHA256)
	algs, err := FindAgreedAlgorithms(client, server)
	require.NoError(t, err)

	assert.Equal(t, &Algorithms{
		Kex:     algorithms.KexDH14SHA256,
		HostKey: algorithms.HostKeyRSASHA256,
		Write: DirectionAlgorithms{
			Cipher:      algorithms.CipherAES128CBC,
			MAC:         algorithms.MACHMACSHA1,
			Compression: algorithms.CompressionNone,
		},
		Read: DirectionAlgorithms{
			Cipher:      algorithms.CipherAES192CBC,
			MAC:         algorithms.MACHMACSHA1ETM,
			Compression: algorithms.CompressionNone,
		},
	}, algs)
}

func TestFindAgreedHostKey(t *testing.T) {
	tests := []struct {
		name    string
		family  algorithms.Family
		server  []string
		want    string
		wantErr bool
	}{
		{"ed25519", algorithms.FamilyED25519, []string{algorithms.HostKeyRSASHA512, algorithms.HostKeyED25519}, algorithms.HostKeyED25519, false},
		{"ecdsa nistp384 only", algorithms.FamilyECDSA, []string{algorithms.HostKeyECDSA384}, algorithms.HostKeyECDSA384, false},
		{"rsa_sha2 prefers sha256", algorithms.FamilyRSASHA2, []string{algorithms.HostKeyRSASHA512, algorithms.HostKeyRSASHA256}, algorithms.HostKeyRSASHA256, false},
		{"rsa legacy", algorithms.FamilyRSA, []string{algorithms.HostKeyRSA}, algorithms.HostKeyRSA, false},
		{"rsa_sha2 against ssh-rsa only", algorithms.FamilyRSASHA2, []string{algorithms.HostKeyRSA}, "", true},
		{"ed25519 missing", algorithms.FamilyED25519, []string{algorithms.HostKeyECDSA256, algorithms.HostKeyRSASHA256}, "", true},
		{"unknown family", "dsa", []string{algorithms.HostKeyED25519, "ssh-dss"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, err := NewClientKexInit(defaultPrefs(tt.family), nil)
			require.NoError(t, err)

			algs, err := FindAgreedAlgorithms(client, serverInit(tt.server...))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, sshutils.KindNegotiation, sshutils.Kind(err))
				var negErr *sshutils.NegotiationError
				require.True(t, errors.As(err, &negErr))
				assert.Equal(t, algorithms.CategoryHostKey, negErr.Category)
				assert.Equal(t, tt.server, negErr.Server)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, algs.HostKey)
		})
	}
}

func TestFindAgreedAlgorithmsCategories(t *testing.T) {
	tests := []struct {
		category string
		mutate   func(*KexInit)
	}{
		{algorithms.CategoryKex, func(s *KexInit) { s.KexAlgos = []string{"curve25519-sha256"} }},
		{algorithms.CategoryCipher, func(s *KexInit) { s.CiphersServerClient = []string{"aes128-ctr"} }},
		{algorithms.CategoryMAC, func(s *KexInit) { s.MACsClientServer = []string{"hmac-sha2-256"} }},
		{algorithms.CategoryCompression, func(s *KexInit) { s.CompressionServerClient = []string{"zlib"} }},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			client, _, err := NewClientKexInit(defaultPrefs(algorithms.FamilyED25519), nil)
			require.NoError(t, err)
			server := serverInit(algorithms.HostKeyED25519)
			tt.mutate(server)

			_, err = FindAgreedAlgorithms(client, server)
			var negErr *sshutils.NegotiationError
			require.True(t, errors.As(err, &negErr))
			assert.Equal(t, tt.category, negErr.Category)
			assert.Contains(t, err.Error(), tt.category)
		})
	}
}

func TestGuessedWrong(t *testing.T) {
	agreed := &Algorithms{Kex: algorithms.KexDH14SHA256, HostKey: algorithms.HostKeyED25519}

	server := &KexInit{
		KexAlgos:           []string{algorithms.KexDH14SHA256},
		ServerHostKeyAlgos: []string{algorithms.HostKeyED25519},
	}
	assert.False(t, GuessedWrong(server, agreed), "no guess announced")

	server.FirstKexFollows = true
	assert.False(t, GuessedWrong(server, agreed))

	server.KexAlgos = []string{"curve25519-sha256", algorithms.KexDH14SHA256}
	assert.True(t, GuessedWrong(server, agreed))

	server.KexAlgos = []string{algorithms.KexDH14SHA256}
	server.ServerHostKeyAlgos = []string{algorithms.HostKeyRSASHA512, algorithms.HostKeyED25519}
	assert.True(t, GuessedWrong(server, agreed))
}
