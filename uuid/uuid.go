// Copyright (c) 2021 - The Event Horizon authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package uuid holds the identifier type of integration events, kept behind an
// alias so that all packages agree on one UUID library.
package uuid

import "github.com/google/uuid"

// UUID is an alias type for github.com/google/uuid.UUID.
type UUID = uuid.UUID

// Nil is an empty UUID.
var Nil = uuid.Nil

// New creates a new random UUID.
func New() UUID {
	return uuid.New()
}

// Parse parses a UUID from a string, or returns an error.
func Parse(s string) (UUID, error) {
	return uuid.Parse(s)
}

// MustParse parses a UUID from a string, or panics.
func MustParse(s string) UUID {
	return uuid.MustParse(s)
}

// FromBytes creates a UUID from its 16 byte binary form.
func FromBytes(b []byte) (UUID, error) {
	return uuid.FromBytes(b)
}
