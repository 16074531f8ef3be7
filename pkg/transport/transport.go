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

// Package transport drives the client side of the SSH transport handshake
// until the server has proven possession of its host key, then disconnects.
package transport

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/praetorian-inc/sshpubkey/pkg/hostkey"
	"github.com/praetorian-inc/sshpubkey/pkg/kex"
	"github.com/praetorian-inc/sshpubkey/pkg/negotiate"
	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
	"github.com/praetorian-inc/sshpubkey/pkg/wire"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// Result describes a completed handshake.
type Result struct {
	HostKey       *hostkey.HostKey      `json:"hostKey"`
	ServerVersion string                `json:"serverVersion"`
	Algorithms    *negotiate.Algorithms `json:"algorithms"`
}

// session is the state of one handshake. It is never reused.
type session struct {
	config *Config
	conn   *wire.Conn
	log    logrus.FieldLogger
	state  State

	clientKexInit *negotiate.KexInit
	clientPayload []byte
	serverKexInit *negotiate.KexInit
	serverPayload []byte
	algorithms    *negotiate.Algorithms

	kexResult *kex.Result
	serverKey ssh.PublicKey

	writeParams wire.CipherParams
	readParams  wire.CipherParams

	result *Result
}

// Handshake runs the transport handshake over rwc and returns the verified
// host key. rwc is closed before Handshake returns. Cancelling ctx closes
// the stream; a deadline on ctx is also applied to the stream when it
// supports SetDeadline.
func Handshake(ctx context.Context, rwc io.ReadWriteCloser, config *Config) (*Result, error) {
	defer rwc.Close()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		if d, ok := rwc.(interface{ SetDeadline(time.Time) error }); ok {
			if err := d.SetDeadline(deadline); err != nil {
				return nil, &sshutils.TransportError{Info: "failed to set deadline", WrappedError: err}
			}
		}
	}
	stop := context.AfterFunc(ctx, func() { rwc.Close() })
	defer stop()

	s := &session{
		config: config,
		conn:   wire.NewConn(rwc, config.Rand),
		log:    config.logger(),
		state:  StateInit,
	}
	defer s.wipe()

	result, err := s.run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &sshutils.TransportError{Info: "handshake aborted", WrappedError: ctxErr}
		}
		return nil, err
	}
	return result, nil
}

func (s *session) run() (*Result, error) {
	for s.state != StateTerminal {
		var err error
		switch s.state {
		case StateInit:
			s.transition(StateVersionExchange)
		case StateVersionExchange:
			err = s.exchangeVersions()
		case StateKexInitSent:
			err = s.negotiate()
		case StateKexInProgress:
			err = s.keyExchange()
		case StateNewKeys:
			err = s.newKeys()
		case StateEstablished:
			err = s.captureHostKey()
		case StateDisconnecting:
			s.disconnect()
		}
		if err != nil {
			s.log.WithError(err).WithField("state", s.state.String()).Debug("handshake failed")
			s.transition(StateTerminal)
			return nil, err
		}
	}
	return s.result, nil
}

func (s *session) transition(next State) {
	s.log.WithFields(logrus.Fields{"from": s.state.String(), "to": next.String()}).Debug("state transition")
	s.state = next
}

// exchangeVersions swaps identification strings and sends our KEXINIT.
func (s *session) exchangeVersions() error {
	if err := s.conn.SendVersion(s.config.clientVersion()); err != nil {
		return err
	}
	serverVersion, err := s.conn.RecvVersion()
	if err != nil {
		return err
	}
	s.log.WithField("server_version", string(serverVersion)).Debug("received server identification")

	s.clientKexInit, s.clientPayload, err = negotiate.NewClientKexInit(s.config.preferences(), s.config.Rand)
	if err != nil {
		return err
	}
	if err := s.conn.WritePacket(s.clientPayload); err != nil {
		return err
	}
	s.transition(StateKexInitSent)
	return nil
}

func (s *session) negotiate() error {
	payload, err := s.ReadPacket()
	if err != nil {
		return err
	}
	if payload[0] != msgKexInit {
		return unexpectedMessage(payload[0], "KEXINIT")
	}
	s.serverKexInit, err = negotiate.ParseKexInit(payload)
	if err != nil {
		return err
	}
	s.serverPayload = payload

	s.log.WithFields(logrus.Fields{
		"kex":      s.serverKexInit.KexAlgos,
		"host_key": s.serverKexInit.ServerHostKeyAlgos,
	}).Debug("received server KEXINIT")

	s.algorithms, err = negotiate.FindAgreedAlgorithms(s.clientKexInit, s.serverKexInit)
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"kex":      s.algorithms.Kex,
		"host_key": s.algorithms.HostKey,
		"cipher":   s.algorithms.Write.Cipher,
		"mac":      s.algorithms.Write.MAC,
	}).Debug("negotiated algorithms")

	if negotiate.GuessedWrong(s.serverKexInit, s.algorithms) {
		s.log.Debug("discarding server's guessed key exchange packet")
		if _, err := s.ReadPacket(); err != nil {
			return err
		}
	}
	s.transition(StateKexInProgress)
	return nil
}

func (s *session) keyExchange() error {
	kexSpec, _ := algorithms.Kex(s.algorithms.Kex)
	hostKeySpec, _ := algorithms.HostKey(s.algorithms.HostKey)

	magics := &kex.Magics{
		ClientVersion: s.conn.LocalVersion(),
		ServerVersion: s.conn.RemoteVersion(),
		ClientKexInit: s.clientPayload,
		ServerKexInit: s.serverPayload,
	}
	var err error
	s.kexResult, err = kex.Client(s, s.config.Rand, magics, kexSpec)
	if err != nil {
		return err
	}

	s.serverKey, err = kex.VerifyHostKey(hostKeySpec, s.kexResult.HostKey, s.kexResult.Signature, s.kexResult.H)
	if err != nil {
		return err
	}
	s.log.WithField("type", s.serverKey.Type()).Debug("host key signature verified")
	s.transition(StateNewKeys)
	return nil
}

// newKeys exchanges SSH_MSG_NEWKEYS and switches both directions to the
// derived keys. On the first exchange the session identifier is H.
func (s *session) newKeys() error {
	var err error
	s.writeParams, s.readParams, err = kex.DeriveKeys(s.kexResult, s.kexResult.H, s.algorithms)
	if err != nil {
		return err
	}

	if err := s.conn.WritePacket([]byte{msgNewKeys}); err != nil {
		return err
	}
	if err := s.conn.SetWriteCipher(s.writeParams); err != nil {
		return err
	}

	payload, err := s.ReadPacket()
	if err != nil {
		return err
	}
	if payload[0] != msgNewKeys {
		return unexpectedMessage(payload[0], "NEWKEYS")
	}
	if len(payload) != 1 {
		return &sshutils.ProtocolError{Info: fmt.Sprintf("malformed NEWKEYS (%d bytes)", len(payload))}
	}
	if err := s.conn.SetReadCipher(s.readParams); err != nil {
		return err
	}
	s.transition(StateEstablished)
	return nil
}

func (s *session) captureHostKey() error {
	key, err := hostkey.New(s.algorithms.HostKey, s.kexResult.HostKey, s.serverKey, s.config.FingerprintFormat)
	if err != nil {
		return &sshutils.ConfigurationError{Info: err.Error()}
	}
	s.result = &Result{
		HostKey:       key,
		ServerVersion: string(s.conn.RemoteVersion()),
		Algorithms:    s.algorithms,
	}
	s.transition(StateDisconnecting)
	return nil
}

// disconnect says goodbye under the new keys. The host key is already
// verified, so a peer that has gone away does not fail the handshake.
func (s *session) disconnect() {
	msg := ssh.Marshal(&disconnectMsg{
		Reason:  DisconnectByApplication,
		Message: "host key received",
	})
	if err := s.conn.WritePacket(msg); err != nil {
		s.log.WithError(err).Debug("failed to send disconnect")
	}
	if err := s.conn.Close(); err != nil {
		s.log.WithError(err).Debug("failed to close connection")
	}
	s.transition(StateTerminal)
}

// ReadPacket returns the next packet that is not IGNORE, DEBUG or
// UNIMPLEMENTED. A DISCONNECT from the server is returned as an error.
func (s *session) ReadPacket() ([]byte, error) {
	for {
		payload, err := s.conn.ReadPacket()
		if err != nil {
			return nil, err
		}
		switch payload[0] {
		case msgIgnore, msgUnimplemented:
			s.log.WithField("type", payload[0]).Debug("skipping message")
			continue
		case msgDebug:
			var msg debugMsg
			if err := ssh.Unmarshal(payload, &msg); err == nil {
				s.log.WithField("message", msg.Message).Debug("server debug message")
			}
			continue
		case msgDisconnect:
			var msg disconnectMsg
			if err := ssh.Unmarshal(payload, &msg); err != nil {
				return nil, &sshutils.ProtocolError{Info: "malformed DISCONNECT", WrappedError: err}
			}
			return nil, &sshutils.ProtocolError{
				Info:         "server disconnected",
				WrappedError: &sshutils.DisconnectError{Reason: msg.Reason, Message: msg.Message},
			}
		}
		return payload, nil
	}
}

func (s *session) WritePacket(payload []byte) error {
	return s.conn.WritePacket(payload)
}

func (s *session) wipe() {
	if s.kexResult != nil {
		s.kexResult.Wipe()
	}
	s.writeParams.Wipe()
	s.readParams.Wipe()
}

func unexpectedMessage(got byte, want string) error {
	return &sshutils.ProtocolError{Info: fmt.Sprintf("unexpected message type %d, expected %s", got, want)}
}
