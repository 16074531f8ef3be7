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

package algorithms

// Family is the host key family tag a caller selects on the command line.
type Family string

const (
	FamilyED25519 Family = "ed25519"
	FamilyRSASHA2 Family = "rsa_sha2"
	FamilyECDSA   Family = "ecdsa"
	FamilyRSA     Family = "rsa"
)

var families = map[Family][]string{
	FamilyED25519: {HostKeyED25519},
	FamilyRSASHA2: {HostKeyRSASHA256, HostKeyRSASHA512},
	FamilyECDSA:   {HostKeyECDSA256, HostKeyECDSA384},
	FamilyRSA:     {HostKeyRSA},
}

// Families lists the recognised tags in display order.
func Families() []Family {
	return []Family{FamilyED25519, FamilyRSASHA2, FamilyECDSA, FamilyRSA}
}

// HostKeyAlgorithmsFor maps a family tag to its host key preference list.
// Unknown tags yield an empty list, which makes negotiation fail instead of
// falling back to another family.
func HostKeyAlgorithmsFor(tag string) []string {
	algos, ok := families[Family(tag)]
	if !ok {
		return []string{}
	}
	return append([]string(nil), algos...)
}

// IsKnownFamily reports whether tag names a host key family.
func IsKnownFamily(tag string) bool {
	_, ok := families[Family(tag)]
	return ok
}
