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

// Package negotiate builds and parses SSH_MSG_KEXINIT and picks the
// algorithms both sides agree on (RFC 4253 section 7.1).
package negotiate

import (
	"crypto/rand"
	"io"

	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
	"golang.org/x/crypto/ssh"
)

const MsgKexInit = 20

// KexInit is SSH_MSG_KEXINIT.
type KexInit struct {
	Cookie                  [16]byte `sshtype:"20"`
	KexAlgos                []string
	ServerHostKeyAlgos      []string
	CiphersClientServer     []string
	CiphersServerClient     []string
	MACsClientServer        []string
	MACsServerClient        []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexFollows         bool
	Reserved                uint32
}

// Preferences are the client's algorithm lists, most preferred first. The
// cipher, MAC and compression lists are offered for both directions.
type Preferences struct {
	KeyExchanges      []string
	HostKeyAlgorithms []string
	Ciphers           []string
	MACs              []string
	Compressions      []string
}

// NewClientKexInit builds the client's KEXINIT with a fresh random cookie and
// returns it along with the exact payload that goes on the wire. The payload
// is an input to the exchange hash and must not be re-encoded later.
func NewClientKexInit(prefs Preferences, random io.Reader) (*KexInit, []byte, error) {
	if random == nil {
		random = rand.Reader
	}
	msg := &KexInit{
		KexAlgos:                prefs.KeyExchanges,
		ServerHostKeyAlgos:      prefs.HostKeyAlgorithms,
		CiphersClientServer:     prefs.Ciphers,
		CiphersServerClient:     prefs.Ciphers,
		MACsClientServer:        prefs.MACs,
		MACsServerClient:        prefs.MACs,
		CompressionClientServer: prefs.Compressions,
		CompressionServerClient: prefs.Compressions,
	}
	if _, err := io.ReadFull(random, msg.Cookie[:]); err != nil {
		return nil, nil, &sshutils.TransportError{Info: "failed to generate KEXINIT cookie", WrappedError: err}
	}
	return msg, ssh.Marshal(msg), nil
}

// ParseKexInit decodes a KEXINIT payload received from the peer.
func ParseKexInit(payload []byte) (*KexInit, error) {
	msg := &KexInit{}
	if err := ssh.Unmarshal(payload, msg); err != nil {
		return nil, &sshutils.ProtocolError{Info: "malformed KEXINIT", WrappedError: err}
	}
	return msg, nil
}
