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

// Package wire implements the SSH identification exchange and the binary
// packet protocol of RFC 4253 sections 4.2 and 6.
package wire

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
)

// Conn frames SSH packets on top of a byte stream. It owns the stream: no
// other component may read from or write to it while the Conn is in use.
type Conn struct {
	rwc  io.ReadWriteCloser
	r    *bufio.Reader
	rand io.Reader

	reader direction
	writer direction

	localVersion  []byte
	remoteVersion []byte
}

type direction struct {
	seq    uint32
	cipher packetCipher
}

// NewConn wraps rwc. Packets are sent in the clear until a cipher is
// activated for a direction. A nil rand uses crypto/rand.
func NewConn(rwc io.ReadWriteCloser, random io.Reader) *Conn {
	if random == nil {
		random = rand.Reader
	}
	return &Conn{
		rwc:    rwc,
		r:      bufio.NewReader(rwc),
		rand:   random,
		reader: direction{cipher: noneCipher{}},
		writer: direction{cipher: noneCipher{}},
	}
}

// WritePacket frames and sends one payload.
func (c *Conn) WritePacket(payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &sshutils.ProtocolError{
			Info: fmt.Sprintf("refusing to send oversized packet (%d bytes)", len(payload)),
		}
	}
	err := c.writer.cipher.writeCipherPacket(c.writer.seq, c.rwc, c.rand, payload)
	c.writer.seq++
	return err
}

// ReadPacket receives one packet and returns its payload.
func (c *Conn) ReadPacket() ([]byte, error) {
	payload, err := c.reader.cipher.readCipherPacket(c.reader.seq, c.r)
	if err != nil {
		return nil, err
	}
	c.reader.seq++
	if len(payload) == 0 {
		return nil, &sshutils.TransportError{Info: "malformed packet: empty payload"}
	}
	return payload, nil
}

// SetWriteCipher protects every packet sent from now on.
func (c *Conn) SetWriteCipher(params CipherParams) error {
	pc, err := newCBCCipher(params, true)
	if err != nil {
		return err
	}
	c.writer.cipher = pc
	return nil
}

// SetReadCipher expects every packet received from now on to be protected.
func (c *Conn) SetReadCipher(params CipherParams) error {
	pc, err := newCBCCipher(params, false)
	if err != nil {
		return err
	}
	c.reader.cipher = pc
	return nil
}

// LocalVersion returns the banner sent by SendVersion, without CR LF.
func (c *Conn) LocalVersion() []byte {
	return c.localVersion
}

// RemoteVersion returns the banner read by RecvVersion, without CR LF.
func (c *Conn) RemoteVersion() []byte {
	return c.remoteVersion
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.rwc.Close()
}
