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

package wire

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
)

const (
	// maxVersionLength bounds the identification string including CR LF.
	maxVersionLength = 255
	// Lines the server sends before its identification string.
	maxPreambleLines  = 1024
	maxPreambleLength = 1024
)

var acceptedVersions = [][]byte{[]byte("SSH-2.0-"), []byte("SSH-1.99-")}

// ValidateBanner checks a local identification string. It must announce
// protocol 2.0, fit in 255 bytes once CR LF is appended and contain no line
// breaks.
func ValidateBanner(banner string) error {
	if !strings.HasPrefix(banner, "SSH-2.0-") || len(banner) == len("SSH-2.0-") {
		return &sshutils.ConfigurationError{Info: fmt.Sprintf("client banner %q must start with SSH-2.0-<softwareid>", banner)}
	}
	if strings.ContainsAny(banner, "\r\n") {
		return &sshutils.ConfigurationError{Info: "client banner must not contain line breaks"}
	}
	if len(banner)+2 > maxVersionLength {
		return &sshutils.ConfigurationError{Info: fmt.Sprintf("client banner is %d bytes long", len(banner))}
	}
	return nil
}

// SendVersion writes banner followed by CR LF and records it for the
// exchange hash.
func (c *Conn) SendVersion(banner string) error {
	if err := ValidateBanner(banner); err != nil {
		return err
	}
	if err := sshutils.Send(c.rwc, []byte(banner+"\r\n")); err != nil {
		return err
	}
	c.localVersion = []byte(banner)
	return nil
}

// RecvVersion reads lines until the server identification string. Lines
// before it are discarded (RFC 4253 section 4.2).
func (c *Conn) RecvVersion() ([]byte, error) {
	for i := 0; i < maxPreambleLines; i++ {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		if !bytes.HasPrefix(line, []byte("SSH-")) {
			continue
		}
		if len(line)+2 > maxVersionLength {
			return nil, &sshutils.TransportError{Info: "server identification string too long"}
		}
		for _, prefix := range acceptedVersions {
			if bytes.HasPrefix(line, prefix) {
				c.remoteVersion = line
				return line, nil
			}
		}
		return nil, &sshutils.TransportError{Info: fmt.Sprintf("unsupported protocol version %q", line)}
	}
	return nil, &sshutils.TransportError{Info: "no identification string from server"}
}

// readLine returns the next line without its LF or CR LF terminator.
func (c *Conn) readLine() ([]byte, error) {
	var line []byte
	for len(line) <= maxPreambleLength {
		b, err := c.r.ReadByte()
		if err != nil {
			return nil, sshutils.RecvError(err)
		}
		if b == '\n' {
			return bytes.TrimSuffix(line, []byte{'\r'}), nil
		}
		line = append(line, b)
	}
	return nil, &sshutils.TransportError{Info: "line before identification string too long"}
}
