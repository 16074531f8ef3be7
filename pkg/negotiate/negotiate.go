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

package negotiate

import (
	"github.com/praetorian-inc/sshpubkey/pkg/algorithms"
	"github.com/praetorian-inc/sshpubkey/pkg/sshutils"
)

// DirectionAlgorithms are the algorithms protecting one direction of the
// connection.
type DirectionAlgorithms struct {
	Cipher      string `json:"cipher"`
	MAC         string `json:"mac"`
	Compression string `json:"compression"`
}

// Algorithms is the outcome of negotiation. Write applies to client to
// server traffic, Read to server to client.
type Algorithms struct {
	Kex     string              `json:"kex"`
	HostKey string              `json:"hostKey"`
	Write   DirectionAlgorithms `json:"clientToServer"`
	Read    DirectionAlgorithms `json:"serverToClient"`
}

func findCommon(category string, client, server []string) (string, error) {
	for _, c := range client {
		for _, s := range server {
			if c == s {
				return c, nil
			}
		}
	}
	return "", &sshutils.NegotiationError{Category: category, Client: client, Server: server}
}

// FindAgreedAlgorithms applies the RFC 4253 rule: for every category the
// first client algorithm the server also lists wins. The host key algorithm
// must additionally suit the chosen key exchange.
func FindAgreedAlgorithms(client, server *KexInit) (*Algorithms, error) {
	result := &Algorithms{}
	var err error

	result.Kex, err = findCommon(algorithms.CategoryKex, client.KexAlgos, server.KexAlgos)
	if err != nil {
		return nil, err
	}
	kexSpec, ok := algorithms.Kex(result.Kex)
	if !ok {
		return nil, &sshutils.ConfigurationError{Info: "unsupported key exchange " + result.Kex}
	}

	var usable []string
	for _, name := range client.ServerHostKeyAlgos {
		if spec, ok := algorithms.HostKey(name); ok && algorithms.Compatible(kexSpec, spec) {
			usable = append(usable, name)
		}
	}
	result.HostKey, err = findCommon(algorithms.CategoryHostKey, usable, server.ServerHostKeyAlgos)
	if err != nil {
		return nil, &sshutils.NegotiationError{
			Category: algorithms.CategoryHostKey,
			Client:   client.ServerHostKeyAlgos,
			Server:   server.ServerHostKeyAlgos,
		}
	}

	pairs := []struct {
		out            *string
		category       string
		client, server []string
	}{
		{&result.Write.Cipher, algorithms.CategoryCipher, client.CiphersClientServer, server.CiphersClientServer},
		{&result.Read.Cipher, algorithms.CategoryCipher, client.CiphersServerClient, server.CiphersServerClient},
		{&result.Write.MAC, algorithms.CategoryMAC, client.MACsClientServer, server.MACsClientServer},
		{&result.Read.MAC, algorithms.CategoryMAC, client.MACsServerClient, server.MACsServerClient},
		{&result.Write.Compression, algorithms.CategoryCompression, client.CompressionClientServer, server.CompressionClientServer},
		{&result.Read.Compression, algorithms.CategoryCompression, client.CompressionServerClient, server.CompressionServerClient},
	}
	for _, p := range pairs {
		if *p.out, err = findCommon(p.category, p.client, p.server); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// GuessedWrong reports whether the packet following the server's KEXINIT
// must be ignored: the server announced a guessed key exchange packet and
// its first key exchange or host key choice differs from the agreed one.
func GuessedWrong(server *KexInit, agreed *Algorithms) bool {
	if !server.FirstKexFollows {
		return false
	}
	if len(server.KexAlgos) == 0 || len(server.ServerHostKeyAlgos) == 0 {
		return true
	}
	return server.KexAlgos[0] != agreed.Kex || server.ServerHostKeyAlgos[0] != agreed.HostKey
}
