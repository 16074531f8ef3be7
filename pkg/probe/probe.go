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

// Package probe connects to an SSH server and retrieves its host key.
package probe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
	"github.com/praetorian-inc/sshpubkey/pkg/transport"
	"github.com/sirupsen/logrus"
)

var dialer = &net.Dialer{}

// ProbeTarget fetches the host key of the SSH server at address (host:port).
// Either the result or the error is nil.
func ProbeTarget(address string, config Config) (*Result, error) {
	ctx := context.Background()
	if config.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.DefaultTimeout)
		defer cancel()
	}
	return config.Probe(ctx, address)
}

// Probe is ProbeTarget under the caller's context.
func (c Config) Probe(ctx context.Context, address string) (*Result, error) {
	log := c.logger().WithField("address", address)
	c.checkKeyType()

	start := time.Now()
	log.Debug("connecting")
	conn, err := DialTCP(ctx, address)
	if err != nil {
		return nil, err
	}

	result, err := transport.Handshake(ctx, conn, c.TransportConfig())
	log = log.WithField("elapsed", time.Since(start).String())
	if err != nil {
		log.WithFields(logrus.Fields{
			"kind":  sshutils.Kind(err).String(),
			"error": err,
		}).Debug("probe failed")
		return nil, err
	}
	log.WithField("fingerprint", result.HostKey.Fingerprint).Debug("probe completed")
	return &Result{Address: address, Result: result}, nil
}

// DialTCP connects to address, honouring the deadline of ctx.
func DialTCP(ctx context.Context, address string) (net.Conn, error) {
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return nil, &sshutils.TransportError{Info: "unable to connect to " + address, WrappedError: err}
	}
	return conn, nil
}
