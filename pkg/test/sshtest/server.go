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

// Package sshtest provides a scripted SSH server for tests. It speaks just
// enough of the transport protocol to hand out a host key and can be told
// to misbehave at each step.
package sshtest

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/praetorian-inc/sshpubkey/pkg/kex"
	"github.com/praetorian-inc/sshpubkey/pkg/negotiate"
	"github.com/praetorian-inc/sshpubkey/pkg/wire"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

const DefaultVersion = "SSH-2.0-sshtest_1.0"

// Options script the server. The zero value, plus a Signer, completes a
// normal handshake.
type Options struct {
	// Signer is the host key.
	Signer ssh.Signer

	// Version is the identification string, DefaultVersion when empty.
	Version string
	// Preamble lines are sent before the identification string.
	Preamble []string

	// Server algorithm lists. Empty lists fall back to everything the
	// client could ask for.
	KexAlgos     []string
	HostKeyAlgos []string
	Ciphers      []string
	MACs         []string

	// GuessedPacket, when set, is announced with first_kex_packet_follows
	// and sent right after the server KEXINIT.
	GuessedPacket []byte

	// BeforeReply packets are sent ahead of KEXDH_REPLY.
	BeforeReply [][]byte
	// Reply replaces KEXDH_REPLY. The server stops after sending it.
	Reply []byte

	// SignatureAlgorithm overrides the algorithm used to sign H.
	SignatureAlgorithm string
	CorruptSignature   bool
	// ServerValue replaces the server's public DH value f.
	ServerValue func(p *big.Int) *big.Int
	// NewKeys replaces the server's NEWKEYS packet.
	NewKeys []byte
}

// Report is what the server observed from the client.
type Report struct {
	ClientVersion    string
	ClientKexInit    *negotiate.KexInit
	Algorithms       *negotiate.Algorithms
	DisconnectReason uint32
	Err              error
}

type Server struct {
	opts     Options
	listener net.Listener

	mu    sync.Mutex
	conns []net.Conn

	reports chan *Report
}

// NewServer listens on a loopback port and serves every connection with
// opts. It is shut down when the test ends.
func NewServer(t testing.TB, opts Options) *Server {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &Server{
		opts:     opts,
		listener: listener,
		reports:  make(chan *Report, 16),
	}
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Wait returns the report of the next finished connection.
func (s *Server) Wait() *Report {
	return <-s.reports
}

func (s *Server) Close() {
	s.listener.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go func() {
			defer conn.Close()
			report := &Report{}
			report.Err = s.handle(conn, report)
			s.reports <- report
		}()
	}
}

func orDefault(list, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}

func (s *Server) handle(netConn net.Conn, report *Report) error {
	version := s.opts.Version
	if version == "" {
		version = DefaultVersion
	}
	var preamble strings.Builder
	for _, line := range s.opts.Preamble {
		preamble.WriteString(line + "\r\n")
	}
	preamble.WriteString(version + "\r\n")
	if _, err := netConn.Write([]byte(preamble.String())); err != nil {
		return err
	}

	conn := wire.NewConn(netConn, nil)
	clientVersion, err := conn.RecvVersion()
	if err != nil {
		return err
	}
	report.ClientVersion = string(clientVersion)

	ciphers := orDefault(s.opts.Ciphers, algorithms.DefaultCiphers)
	macs := orDefault(s.opts.MACs, algorithms.DefaultMACs)
	serverInit := &negotiate.KexInit{
		KexAlgos:                orDefault(s.opts.KexAlgos, algorithms.DefaultKexAlgos),
		ServerHostKeyAlgos:      orDefault(s.opts.HostKeyAlgos, s.defaultHostKeyAlgos()),
		CiphersClientServer:     ciphers,
		CiphersServerClient:     ciphers,
		MACsClientServer:        macs,
		MACsServerClient:        macs,
		CompressionClientServer: algorithms.DefaultCompressions,
		CompressionServerClient: algorithms.DefaultCompressions,
		FirstKexFollows:         s.opts.GuessedPacket != nil,
	}
	if _, err := rand.Read(serverInit.Cookie[:]); err != nil {
		return err
	}
	serverPayload := ssh.Marshal(serverInit)
	if err := conn.WritePacket(serverPayload); err != nil {
		return err
	}
	if s.opts.GuessedPacket != nil {
		if err := conn.WritePacket(s.opts.GuessedPacket); err != nil {
			return err
		}
	}

	clientPayload, err := conn.ReadPacket()
	if err != nil {
		return err
	}
	report.ClientKexInit, err = negotiate.ParseKexInit(clientPayload)
	if err != nil {
		return err
	}
	algs, err := negotiate.FindAgreedAlgorithms(report.ClientKexInit, serverInit)
	if err != nil {
		return err
	}
	report.Algorithms = algs

	var dhInit struct {
		X *big.Int `sshtype:"30"`
	}
	packet, err := conn.ReadPacket()
	if err != nil {
		return err
	}
	if err := ssh.Unmarshal(packet, &dhInit); err != nil {
		return err
	}

	for _, p := range s.opts.BeforeReply {
		if err := conn.WritePacket(p); err != nil {
			return err
		}
	}
	if s.opts.Reply != nil {
		return conn.WritePacket(s.opts.Reply)
	}

	result, err := s.reply(conn, algs, dhInit.X, &kex.Magics{
		ClientVersion: clientVersion,
		ServerVersion: []byte(version),
		ClientKexInit: clientPayload,
		ServerKexInit: serverPayload,
	})
	if err != nil {
		return err
	}

	newKeys := []byte{21}
	if s.opts.NewKeys != nil {
		newKeys = s.opts.NewKeys
	}
	if err := conn.WritePacket(newKeys); err != nil {
		return err
	}
	packet, err = conn.ReadPacket()
	if err != nil {
		return err
	}
	if packet[0] != 21 {
		return fmt.Errorf("expected NEWKEYS, got message %d", packet[0])
	}

	clientToServer, serverToClient, err := kex.DeriveKeys(result, result.H, algs)
	if err != nil {
		return err
	}
	if err := conn.SetWriteCipher(serverToClient); err != nil {
		return err
	}
	if err := conn.SetReadCipher(clientToServer); err != nil {
		return err
	}

	packet, err = conn.ReadPacket()
	if err != nil {
		return err
	}
	var disconnect struct {
		Reason   uint32 `sshtype:"1"`
		Message  string
		Language string
	}
	if err := ssh.Unmarshal(packet, &disconnect); err != nil {
		return fmt.Errorf("expected DISCONNECT: %w", err)
	}
	report.DisconnectReason = disconnect.Reason
	return nil
}

func (s *Server) reply(conn *wire.Conn, algs *negotiate.Algorithms, e *big.Int, magics *kex.Magics) (*kex.Result, error) {
	kexSpec, ok := algorithms.Kex(algs.Kex)
	if !ok {
		return nil, fmt.Errorf("unsupported kex %s", algs.Kex)
	}
	g, p, ok := kex.Group(kexSpec.Group)
	if !ok {
		return nil, fmt.Errorf("unsupported group %d", kexSpec.Group)
	}

	y, err := rand.Int(rand.Reader, new(big.Int).Rsh(p, 1))
	if err != nil {
		return nil, err
	}
	y.Add(y, big.NewInt(2))
	f := new(big.Int).Exp(g, y, p)
	k := new(big.Int).Exp(e, y, p)
	if s.opts.ServerValue != nil {
		f = s.opts.ServerValue(p)
	}

	hostKey := s.opts.Signer.PublicKey().Marshal()
	h := kex.ExchangeHash(kexSpec.Hash, magics, hostKey, e, f, k)

	signer, ok := s.opts.Signer.(ssh.AlgorithmSigner)
	if !ok {
		return nil, errors.New("host key signer cannot choose its algorithm")
	}
	sigAlgo := s.opts.SignatureAlgorithm
	if sigAlgo == "" {
		hostKeySpec, _ := algorithms.HostKey(algs.HostKey)
		sigAlgo = hostKeySpec.SignatureFormat
	}
	sig, err := signer.SignWithAlgorithm(rand.Reader, h, sigAlgo)
	if err != nil {
		return nil, err
	}
	if s.opts.CorruptSignature {
		sig.Blob[0] ^= 0xff
	}

	reply := ssh.Marshal(&struct {
		HostKey   []byte `sshtype:"31"`
		F         *big.Int
		Signature []byte
	}{hostKey, f, ssh.Marshal(sig)})
	if err := conn.WritePacket(reply); err != nil {
		return nil, err
	}
	return &kex.Result{H: h, K: k, HostKey: hostKey, Hash: kexSpec.Hash}, nil
}

// defaultHostKeyAlgos offers every algorithm the signer's key supports.
func (s *Server) defaultHostKeyAlgos() []string {
	if s.opts.Signer == nil {
		return []string{algorithms.HostKeyED25519}
	}
	keyType := s.opts.Signer.PublicKey().Type()
	if keyType == ssh.KeyAlgoRSA {
		return []string{algorithms.HostKeyRSASHA512, algorithms.HostKeyRSASHA256, algorithms.HostKeyRSA}
	}
	return []string{keyType}
}

// Packet helpers for scripting misbehaviour.

func Ignore(data string) []byte {
	return ssh.Marshal(&struct {
		Data string `sshtype:"2"`
	}{data})
}

func Debug(message string) []byte {
	return ssh.Marshal(&struct {
		AlwaysDisplay bool `sshtype:"4"`
		Message       string
		Language      string
	}{false, message, ""})
}

func Unimplemented(seq uint32) []byte {
	return ssh.Marshal(&struct {
		Seq uint32 `sshtype:"3"`
	}{seq})
}

func Disconnect(reason uint32, message string) []byte {
	return ssh.Marshal(&struct {
		Reason   uint32 `sshtype:"1"`
		Message  string
		Language string
	}{reason, message, ""})
}
