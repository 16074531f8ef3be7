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

package transport

// State is a step of the client handshake.
type State int

const (
	StateInit State = iota
	StateVersionExchange
	StateKexInitSent
	StateKexInProgress
	StateNewKeys
	StateEstablished
	StateDisconnecting
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateVersionExchange:
		return "VERSION_EXCHANGE"
	case StateKexInitSent:
		return "KEXINIT_SENT"
	case StateKexInProgress:
		return "KEX_IN_PROGRESS"
	case StateNewKeys:
		return "NEWKEYS"
	case StateEstablished:
		return "ESTABLISHED"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateTerminal:
		return "TERMINAL"
	default:
		return "UNKNOWN"
	}
}
