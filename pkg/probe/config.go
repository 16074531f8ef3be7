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
	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/praetorian-inc/sshpubkey/pkg/transport"
	"github.com/sirupsen/logrus"
)

// TransportConfig builds the handshake configuration for c.
func (c Config) TransportConfig() *transport.Config {
	config := transport.NewConfig(c.KeyType)
	if c.ClientVersion != "" {
		config.ClientVersion = c.ClientVersion
	}
	if c.FingerprintFormat != "" {
		config.FingerprintFormat = c.FingerprintFormat
	}
	config.Logger = c.logger()
	return config
}

func (c Config) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

// checkKeyType warns about a family the registry does not know. The probe
// still runs and fails in negotiation, as the server is never asked for an
// unknown family.
func (c Config) checkKeyType() {
	if !algorithms.IsKnownFamily(c.KeyType) {
		c.logger().WithFields(logrus.Fields{
			"key_type": c.KeyType,
			"known":    algorithms.Families(),
		}).Warn("unknown key type, no host key algorithm will be offered")
	}
}
