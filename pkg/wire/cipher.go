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
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
)

const (
	// MaxPayloadSize is the largest payload either side may send.
	MaxPayloadSize = 35000

	minPadding = 4
	// packet_length covers the padding length byte, the payload and at most
	// 255 bytes of padding.
	maxPacketLength = 1 + MaxPayloadSize + 255

	clearBlockSize = 8
)

// CipherParams holds the negotiated algorithms and derived keys for one
// direction of the connection.
type CipherParams struct {
	Cipher string
	MAC    string
	IV     []byte
	Key    []byte
	MACKey []byte
}

// Wipe zeroes the key material.
func (p *CipherParams) Wipe() {
	for _, b := range [][]byte{p.IV, p.Key, p.MACKey} {
		for i := range b {
			b[i] = 0
		}
	}
}

type packetCipher interface {
	writeCipherPacket(seq uint32, w io.Writer, rand io.Reader, payload []byte) error
	readCipherPacket(seq uint32, r io.Reader) ([]byte, error)
}

// paddingLength returns the padding that makes n+padding a multiple of
// blockSize while keeping at least four bytes of padding.
func paddingLength(n, blockSize int) int {
	padding := blockSize - n%blockSize
	if padding < minPadding {
		padding += blockSize
	}
	return padding
}

// frame lays out packet_length, padding_length, payload and random padding.
func frame(payload []byte, padding int, rand io.Reader) ([]byte, error) {
	packet := make([]byte, 5+len(payload)+padding)
	binary.BigEndian.PutUint32(packet, uint32(1+len(payload)+padding))
	packet[4] = byte(padding)
	copy(packet[5:], payload)
	if _, err := io.ReadFull(rand, packet[5+len(payload):]); err != nil {
		return nil, &sshutils.TransportError{Info: "failed to generate padding", WrappedError: err}
	}
	return packet, nil
}

// unframe extracts the payload from the bytes following packet_length.
func unframe(body []byte) ([]byte, error) {
	if len(body) < 1+minPadding {
		return nil, &sshutils.TransportError{Info: "malformed packet: too short"}
	}
	padding := int(body[0])
	if padding < minPadding || 1+padding > len(body) {
		return nil, &sshutils.TransportError{Info: fmt.Sprintf("malformed packet: invalid padding length %d", padding)}
	}
	payload := body[1 : len(body)-padding]
	if len(payload) > MaxPayloadSize {
		return nil, &sshutils.ProtocolError{Info: fmt.Sprintf("oversized packet (%d byte payload)", len(payload))}
	}
	return payload, nil
}

func checkLength(length uint32) error {
	if length > maxPacketLength {
		return &sshutils.ProtocolError{Info: fmt.Sprintf("oversized packet (packet length %d)", length)}
	}
	if length < 1+minPadding {
		return &sshutils.TransportError{Info: fmt.Sprintf("malformed packet: packet length %d", length)}
	}
	return nil
}

// noneCipher is the initial cleartext transform without a MAC.
type noneCipher struct{}

func (noneCipher) writeCipherPacket(_ uint32, w io.Writer, rand io.Reader, payload []byte) error {
	packet, err := frame(payload, paddingLength(5+len(payload), clearBlockSize), rand)
	if err != nil {
		return err
	}
	return sshutils.Send(w, packet)
}

func (noneCipher) readCipherPacket(_ uint32, r io.Reader) ([]byte, error) {
	var lengthBytes [4]byte
	if err := sshutils.RecvFull(r, lengthBytes[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBytes[:])
	if err := checkLength(length); err != nil {
		return nil, err
	}
	body := make([]byte, length)
	if err := sshutils.RecvFull(r, body); err != nil {
		return nil, err
	}
	return unframe(body)
}

// cbcCipher is a block cipher in CBC mode with an HMAC, either MAC-then-
// encrypt (RFC 4253) or encrypt-then-MAC (OpenSSH -etm variants).
type cbcCipher struct {
	mode      cipher.BlockMode
	blockSize int
	mac       hash.Hash
	macSize   int
	etm       bool
}

func newCBCCipher(params CipherParams, encrypt bool) (*cbcCipher, error) {
	cipherSpec, ok := algorithms.Cipher(params.Cipher)
	if !ok {
		return nil, &sshutils.ConfigurationError{Info: fmt.Sprintf("unknown cipher %q", params.Cipher)}
	}
	macSpec, ok := algorithms.MAC(params.MAC)
	if !ok {
		return nil, &sshutils.ConfigurationError{Info: fmt.Sprintf("unknown MAC %q", params.MAC)}
	}
	if len(params.MACKey) != macSpec.KeySize {
		return nil, &sshutils.CryptoError{Info: fmt.Sprintf("%s needs a %d byte key", macSpec.Name, macSpec.KeySize)}
	}

	var mode cipher.BlockMode
	var err error
	if encrypt {
		mode, err = cipherSpec.NewEncrypter(params.Key, params.IV)
	} else {
		mode, err = cipherSpec.NewDecrypter(params.Key, params.IV)
	}
	if err != nil {
		return nil, &sshutils.CryptoError{Info: "failed to initialise cipher", WrappedError: err}
	}

	return &cbcCipher{
		mode:      mode,
		blockSize: cipherSpec.BlockSize,
		mac:       macSpec.New(params.MACKey),
		macSize:   macSpec.Size,
		etm:       macSpec.ETM,
	}, nil
}

func (c *cbcCipher) sum(seq uint32, data ...[]byte) []byte {
	var seqBytes [4]byte
	binary.BigEndian.PutUint32(seqBytes[:], seq)
	c.mac.Reset()
	c.mac.Write(seqBytes[:])
	for _, d := range data {
		c.mac.Write(d)
	}
	return c.mac.Sum(nil)
}

func (c *cbcCipher) writeCipherPacket(seq uint32, w io.Writer, rand io.Reader, payload []byte) error {
	var packet []byte
	var err error
	if c.etm {
		packet, err = frame(payload, paddingLength(1+len(payload), c.blockSize), rand)
		if err != nil {
			return err
		}
		c.mode.CryptBlocks(packet[4:], packet[4:])
		packet = append(packet, c.sum(seq, packet)...)
	} else {
		packet, err = frame(payload, paddingLength(5+len(payload), c.blockSize), rand)
		if err != nil {
			return err
		}
		mac := c.sum(seq, packet)
		c.mode.CryptBlocks(packet, packet)
		packet = append(packet, mac...)
	}
	return sshutils.Send(w, packet)
}

func (c *cbcCipher) readCipherPacket(seq uint32, r io.Reader) ([]byte, error) {
	if c.etm {
		return c.readETM(seq, r)
	}

	first := make([]byte, c.blockSize)
	if err := sshutils.RecvFull(r, first); err != nil {
		return nil, err
	}
	c.mode.CryptBlocks(first, first)
	length := binary.BigEndian.Uint32(first)
	if err := checkLength(length); err != nil {
		return nil, err
	}
	if (4+int(length))%c.blockSize != 0 || 4+int(length) < c.blockSize {
		return nil, &sshutils.TransportError{Info: fmt.Sprintf("malformed packet: length %d is not block aligned", length)}
	}

	packet := make([]byte, 4+int(length)+c.macSize)
	copy(packet, first)
	if err := sshutils.RecvFull(r, packet[c.blockSize:]); err != nil {
		return nil, err
	}
	rest := packet[c.blockSize : 4+length]
	c.mode.CryptBlocks(rest, rest)

	plain, mac := packet[:4+length], packet[4+length:]
	if !hmac.Equal(c.sum(seq, plain), mac) {
		return nil, &sshutils.TransportError{Info: "malformed packet: MAC mismatch"}
	}
	return unframe(plain[4:])
}

func (c *cbcCipher) readETM(seq uint32, r io.Reader) ([]byte, error) {
	var lengthBytes [4]byte
	if err := sshutils.RecvFull(r, lengthBytes[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBytes[:])
	if err := checkLength(length); err != nil {
		return nil, err
	}
	if int(length)%c.blockSize != 0 {
		return nil, &sshutils.TransportError{Info: fmt.Sprintf("malformed packet: length %d is not block aligned", length)}
	}

	body := make([]byte, int(length)+c.macSize)
	if err := sshutils.RecvFull(r, body); err != nil {
		return nil, err
	}
	encrypted, mac := body[:length], body[length:]
	if !hmac.Equal(c.sum(seq, lengthBytes[:], encrypted), mac) {
		return nil, &sshutils.TransportError{Info: "malformed packet: MAC mismatch"}
	}
	c.mode.CryptBlocks(encrypted, encrypted)
	return unframe(encrypted)
}
