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

package transport

import (
	"io"

	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/praetorian-inc/sshpubkey/pkg/hostkey"
	"github.com/praetorian-inc/sshpubkey/pkg/negotiate"
	"github.com/praetorian-inc/sshpubkey/pkg/wire"
	"github.com/sirupsen/logrus"
)

// DefaultClientVersion is the identification string sent when
// Config.ClientVersion is empty.
const DefaultClientVersion = "SSH-2.0-sshpubkey_1.0"

// Config is the client side of the negotiation. Every list is ordered by
// preference and every name must be known to the algorithms registry.
type Config struct {
	ClientVersion string

	KeyExchanges []string
	// HostKeyAlgorithms may be empty, in which case negotiation fails.
	HostKeyAlgorithms []string
	Ciphers           []string
	MACs              []string
	Compressions      []string

	FingerprintFormat hostkey.FingerprintFormat

	// Rand provides the cookie, padding and DH private value. Defaults to
	// crypto/rand.
	Rand io.Reader

	Logger logrus.FieldLogger
}

// NewConfig returns the default client configuration asking the server for
// a host key of the given family (ed25519, rsa_sha2, ecdsa or rsa). An
// unknown family leaves the host key list empty.
func NewConfig(family string) *Config {
	return &Config{
		ClientVersion:     DefaultClientVersion,
		KeyExchanges:      append([]string(nil), algorithms.DefaultKexAlgos...),
		HostKeyAlgorithms: algorithms.HostKeyAlgorithmsFor(family),
		Ciphers:           append([]string(nil), algorithms.DefaultCiphers...),
		MACs:              append([]string(nil), algorithms.DefaultMACs...),
		Compressions:      append([]string(nil), algorithms.DefaultCompressions...),
		FingerprintFormat: hostkey.FingerprintSHA256,
	}
}

// Validate checks the banner and that every algorithm is implemented.
func (c *Config) Validate() error {
	if err := wire.ValidateBanner(c.clientVersion()); err != nil {
		return err
	}
	lists := []struct {
		category string
		names    []string
	}{
		{algorithms.CategoryKex, c.KeyExchanges},
		{algorithms.CategoryHostKey, c.HostKeyAlgorithms},
		{algorithms.CategoryCipher, c.Ciphers},
		{algorithms.CategoryMAC, c.MACs},
		{algorithms.CategoryCompression, c.Compressions},
	}
	for _, list := range lists {
		if err := algorithms.Validate(list.category, list.names); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) clientVersion() string {
	if c.ClientVersion == "" {
		return DefaultClientVersion
	}
	return c.ClientVersion
}

func (c *Config) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

func (c *Config) preferences() negotiate.Preferences {
	return negotiate.Preferences{
		KeyExchanges:      c.KeyExchanges,
		HostKeyAlgorithms: c.HostKeyAlgorithms,
		Ciphers:           c.Ciphers,
		MACs:              c.MACs,
		Compressions:      c.Compressions,
	}
}
