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

package sshutils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind is the failure category surfaced to the caller. Every kind is
// fatal to the handshake.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindTransport
	KindNegotiation
	KindProtocol
	KindCrypto
	KindConfiguration
)

type TransportError struct {
	Info         string
	WrappedError error
}

type NegotiationError struct {
	Category string
	Client   []string
	Server   []string
}

type ProtocolError struct {
	Info         string
	WrappedError error
}

type CryptoError struct {
	Info         string
	WrappedError error
}

type ConfigurationError struct {
	Info string
}

// DisconnectError is returned when the peer sends SSH_MSG_DISCONNECT.
type DisconnectError struct {
	Reason  uint32
	Message string
}

func (e *TransportError) Error() string {
	errString := fmt.Sprintf("transport failure: %s", e.Info)
	if e.WrappedError != nil {
		errString = fmt.Sprintf("%s (Error: %s)", errString, e.WrappedError.Error())
	}
	return errString
}

func (e *TransportError) Unwrap() error {
	return e.WrappedError
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf(
		"no common algorithm for %s; client offered: [%s], server offered: [%s]",
		e.Category,
		strings.Join(e.Client, " "),
		strings.Join(e.Server, " "),
	)
}

func (e *ProtocolError) Error() string {
	errString := fmt.Sprintf("protocol failure: %s", e.Info)
	if e.WrappedError != nil {
		errString = fmt.Sprintf("%s (Error: %s)", errString, e.WrappedError.Error())
	}
	return errString
}

func (e *ProtocolError) Unwrap() error {
	return e.WrappedError
}

func (e *CryptoError) Error() string {
	errString := fmt.Sprintf("crypto failure: %s", e.Info)
	if e.WrappedError != nil {
		errString = fmt.Sprintf("%s (Error: %s)", errString, e.WrappedError.Error())
	}
	return errString
}

func (e *CryptoError) Unwrap() error {
	return e.WrappedError
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Info)
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("peer disconnected, reason %d: %q", e.Reason, e.Message)
}

// Kind reports the category of err by looking through its wrap chain.
// A DisconnectError counts as a protocol failure.
func Kind(err error) ErrorKind {
	var (
		transportErr   *TransportError
		negotiationErr *NegotiationError
		protocolErr    *ProtocolError
		cryptoErr      *CryptoError
		configErr      *ConfigurationError
		disconnectErr  *DisconnectError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &negotiationErr):
		return KindNegotiation
	case errors.As(err, &cryptoErr):
		return KindCrypto
	case errors.As(err, &protocolErr), errors.As(err, &disconnectErr):
		return KindProtocol
	case errors.As(err, &configErr):
		return KindConfiguration
	case errors.As(err, &transportErr):
		return KindTransport
	default:
		return KindUnknown
	}
}

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindNegotiation:
		return "negotiation"
	case KindProtocol:
		return "protocol"
	case KindCrypto:
		return "crypto"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}
