// Copyright (c) 2014 - The Event Horizon authors.
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

package bson

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/looplab/mediator/uuid"
)

// Registry is the BSON registry with UUIDs encoded as strings, used by the
// codec and the MongoDB stores.
var Registry = newRegistry()

func newRegistry() *bson.Registry {
	reg := bson.NewRegistry()
	uuidType := reflect.TypeOf(uuid.Nil)

	reg.RegisterTypeEncoder(uuidType, bson.ValueEncoderFunc(
		func(ec bson.EncodeContext, vw bson.ValueWriter, val reflect.Value) error {
			if !val.IsValid() || val.Type() != uuidType {
				return bson.ValueEncoderError{
					Name:     "uuid.UUID",
					Types:    []reflect.Type{uuidType},
					Received: val,
				}
			}

			id, ok := val.Interface().(uuid.UUID)
			if !ok {
				return fmt.Errorf("invalid UUID value: %v", val)
			}

			return vw.WriteString(id.String())
		},
	))

	reg.RegisterTypeDecoder(uuidType, bson.ValueDecoderFunc(
		func(dc bson.DecodeContext, vr bson.ValueReader, val reflect.Value) error {
			if !val.IsValid() || !val.CanSet() || val.Type() != uuidType {
				return bson.ValueDecoderError{
					Name:     "uuid.UUID",
					Types:    []reflect.Type{uuidType},
					Received: val,
				}
			}

			if vr.Type() != bson.TypeString {
				return fmt.Errorf("received invalid BSON type to decode into UUID: %s", vr.Type())
			}

			s, err := vr.ReadString()
			if err != nil {
				return err
			}

			id, err := uuid.Parse(s)
			if err != nil {
				return fmt.Errorf("could not parse UUID string: %s", s)
			}

			val.Set(reflect.ValueOf(id))

			return nil
		},
	))

	return reg
}
