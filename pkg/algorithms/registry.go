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

// Package algorithms is the static table of every SSH algorithm identifier
// the probe can negotiate, together with the hooks the key exchange and the
// packet codec need to implement them.
package algorithms

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	_ "crypto/sha256" // registers crypto.SHA256
	_ "crypto/sha512" // registers crypto.SHA512
	"fmt"
	"hash"

	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
	"golang.org/x/crypto/ssh"
)

const (
	KexDH14SHA256 = "diffie-hellman-group14-sha256"
	KexDH16SHA512 = "diffie-hellman-group16-sha512"
	KexDH18SHA512 = "diffie-hellman-group18-sha512"
	KexDH14SHA1   = "diffie-hellman-group14-sha1"

	HostKeyED25519   = ssh.KeyAlgoED25519
	HostKeyRSASHA256 = ssh.KeyAlgoRSASHA256
	HostKeyRSASHA512 = ssh.KeyAlgoRSASHA512
	HostKeyECDSA256  = ssh.KeyAlgoECDSA256
	HostKeyECDSA384  = ssh.KeyAlgoECDSA384
	HostKeyRSA       = ssh.KeyAlgoRSA

	CipherAES128CBC = "aes128-cbc"
	CipherAES192CBC = "aes192-cbc"
	CipherAES256CBC = "aes256-cbc"

	MACHMACSHA1    = "hmac-sha1"
	MACHMACSHA1ETM = "hmac-sha1-etm@openssh.com"

	CompressionNone = "none"
)

// Category names, as used in error messages.
const (
	CategoryKex         = "key exchange"
	CategoryHostKey     = "host key"
	CategoryCipher      = "cipher"
	CategoryMAC         = "MAC"
	CategoryCompression = "compression"
)

// KexSpec describes a fixed-group Diffie-Hellman key exchange method.
type KexSpec struct {
	Name string
	// Group is the RFC 3526 MODP group number.
	Group int
	Hash  crypto.Hash
	// RequiresSignature is set when the server must prove possession of its
	// host key by signing the exchange hash.
	RequiresSignature bool
}

// HostKeySpec describes a server host key algorithm.
type HostKeySpec struct {
	Name string
	// KeyFormat is the algorithm name embedded in the public key blob. It
	// differs from Name for the RSA SHA-2 signature variants.
	KeyFormat string
	// SignatureFormat is the name the server must put in the signature blob.
	SignatureFormat string
	CanSign         bool
}

// CipherSpec describes a block cipher used in CBC mode.
type CipherSpec struct {
	Name      string
	KeySize   int
	IVSize    int
	BlockSize int
	newBlock  func(key []byte) (cipher.Block, error)
}

// MACSpec describes an HMAC construction.
type MACSpec struct {
	Name    string
	KeySize int
	Size    int
	// ETM selects encrypt-then-MAC: the MAC covers the ciphertext and the
	// packet length is sent in the clear.
	ETM     bool
	newHash func() hash.Hash
}

var kexAlgos = map[string]*KexSpec{
	KexDH14SHA256: {Name: KexDH14SHA256, Group: 14, Hash: crypto.SHA256, RequiresSignature: true},
	KexDH16SHA512: {Name: KexDH16SHA512, Group: 16, Hash: crypto.SHA512, RequiresSignature: true},
	KexDH18SHA512: {Name: KexDH18SHA512, Group: 18, Hash: crypto.SHA512, RequiresSignature: true},
	KexDH14SHA1:   {Name: KexDH14SHA1, Group: 14, Hash: crypto.SHA1, RequiresSignature: true},
}

var hostKeyAlgos = map[string]*HostKeySpec{
	HostKeyED25519: {
		Name: HostKeyED25519, KeyFormat: ssh.KeyAlgoED25519, SignatureFormat: ssh.KeyAlgoED25519, CanSign: true,
	},
	HostKeyRSASHA256: {
		Name: HostKeyRSASHA256, KeyFormat: ssh.KeyAlgoRSA, SignatureFormat: ssh.KeyAlgoRSASHA256, CanSign: true,
	},
	HostKeyRSASHA512: {
		Name: HostKeyRSASHA512, KeyFormat: ssh.KeyAlgoRSA, SignatureFormat: ssh.KeyAlgoRSASHA512, CanSign: true,
	},
	HostKeyECDSA256: {
		Name: HostKeyECDSA256, KeyFormat: ssh.KeyAlgoECDSA256, SignatureFormat: ssh.KeyAlgoECDSA256, CanSign: true,
	},
	HostKeyECDSA384: {
		Name: HostKeyECDSA384, KeyFormat: ssh.KeyAlgoECDSA384, SignatureFormat: ssh.KeyAlgoECDSA384, CanSign: true,
	},
	HostKeyRSA: {
		Name: HostKeyRSA, KeyFormat: ssh.KeyAlgoRSA, SignatureFormat: ssh.KeyAlgoRSA, CanSign: true,
	},
}

var ciphers = map[string]*CipherSpec{
	CipherAES128CBC: {Name: CipherAES128CBC, KeySize: 16, IVSize: aes.BlockSize, BlockSize: aes.BlockSize, newBlock: aes.NewCipher},
	CipherAES192CBC: {Name: CipherAES192CBC, KeySize: 24, IVSize: aes.BlockSize, BlockSize: aes.BlockSize, newBlock: aes.NewCipher},
	CipherAES256CBC: {Name: CipherAES256CBC, KeySize: 32, IVSize: aes.BlockSize, BlockSize: aes.BlockSize, newBlock: aes.NewCipher},
}

var macs = map[string]*MACSpec{
	MACHMACSHA1:    {Name: MACHMACSHA1, KeySize: sha1.Size, Size: sha1.Size, newHash: sha1.New},
	MACHMACSHA1ETM: {Name: MACHMACSHA1ETM, KeySize: sha1.Size, Size: sha1.Size, ETM: true, newHash: sha1.New},
}

var compressions = map[string]bool{
	CompressionNone: true,
}

// Default preference lists, most preferred first.
var (
	DefaultKexAlgos     = []string{KexDH14SHA256, KexDH16SHA512, KexDH18SHA512, KexDH14SHA1}
	DefaultCiphers      = []string{CipherAES128CBC, CipherAES192CBC, CipherAES256CBC}
	DefaultMACs         = []string{MACHMACSHA1ETM, MACHMACSHA1}
	DefaultCompressions = []string{CompressionNone}
)

// SupportedHostKeyAlgos lists every host key algorithm in the registry.
var SupportedHostKeyAlgos = []string{
	HostKeyED25519,
	HostKeyECDSA256, HostKeyECDSA384,
	HostKeyRSASHA256, HostKeyRSASHA512,
	HostKeyRSA,
}

// Kex looks up a key exchange method.
func Kex(name string) (*KexSpec, bool) {
	spec, ok := kexAlgos[name]
	return spec, ok
}

// HostKey looks up a host key algorithm.
func HostKey(name string) (*HostKeySpec, bool) {
	spec, ok := hostKeyAlgos[name]
	return spec, ok
}

// Cipher looks up a cipher.
func Cipher(name string) (*CipherSpec, bool) {
	spec, ok := ciphers[name]
	return spec, ok
}

// MAC looks up a MAC algorithm.
func MAC(name string) (*MACSpec, bool) {
	spec, ok := macs[name]
	return spec, ok
}

// Compression reports whether a compression method is supported.
func Compression(name string) bool {
	return compressions[name]
}

// Compatible reports whether a host key algorithm can be used with a key
// exchange method.
func Compatible(kex *KexSpec, hostKey *HostKeySpec) bool {
	return !kex.RequiresSignature || hostKey.CanSign
}

// Validate checks that every name in a preference list is known to the
// registry for the given category. An empty list is valid.
func Validate(category string, names []string) error {
	for _, name := range names {
		var ok bool
		switch category {
		case CategoryKex:
			_, ok = Kex(name)
		case CategoryHostKey:
			_, ok = HostKey(name)
		case CategoryCipher:
			_, ok = Cipher(name)
		case CategoryMAC:
			_, ok = MAC(name)
		case CategoryCompression:
			ok = Compression(name)
		default:
			return &sshutils.ConfigurationError{Info: fmt.Sprintf("unknown algorithm category %q", category)}
		}
		if !ok {
			return &sshutils.ConfigurationError{
				Info: fmt.Sprintf(`%s algorithm not supported: "%s"`, category, name),
			}
		}
	}
	return nil
}

func (s *CipherSpec) NewEncrypter(key, iv []byte) (cipher.BlockMode, error) {
	block, err := s.block(key, iv)
	if err != nil {
		return nil, err
	}
	return cipher.NewCBCEncrypter(block, iv), nil
}

func (s *CipherSpec) NewDecrypter(key, iv []byte) (cipher.BlockMode, error) {
	block, err := s.block(key, iv)
	if err != nil {
		return nil, err
	}
	return cipher.NewCBCDecrypter(block, iv), nil
}

func (s *CipherSpec) block(key, iv []byte) (cipher.Block, error) {
	if len(key) != s.KeySize {
		return nil, fmt.Errorf("%s: key must be %d bytes, got %d", s.Name, s.KeySize, len(key))
	}
	if len(iv) != s.IVSize {
		return nil, fmt.Errorf("%s: iv must be %d bytes, got %d", s.Name, s.IVSize, len(iv))
	}
	return s.newBlock(key)
}

// New returns a keyed MAC.
func (s *MACSpec) New(key []byte) hash.Hash {
	return hmac.New(s.newHash, key)
}
