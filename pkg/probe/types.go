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

package probe

import (
	"time"

	"github.com/praetorian-inc/sshpubkey/pkg/hostkey"
	"github.com/praetorian-inc/sshpubkey/pkg/transport"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Host key family to ask for: ed25519, rsa_sha2, ecdsa or rsa. Any other
	// value makes the handshake fail during negotiation.
	KeyType string

	// The timeout value should be positive. It bounds the whole probe,
	// connecting included.
	DefaultTimeout time.Duration

	// Identification string sent to the server. Empty means
	// transport.DefaultClientVersion.
	ClientVersion string

	FingerprintFormat hostkey.FingerprintFormat

	// Logger receives debug output. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

// Result is a host key obtained from Address.
type Result struct {
	Address string `json:"address"`
	*transport.Result
}
