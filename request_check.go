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

package mediator

import (
	"reflect"
	"time"

	"github.com/looplab/mediator/uuid"
)

// IsZeroer is used to check if a type is zero-valued, and in that case
// is reported as a missing field. See CheckRequest.
type IsZeroer interface {
	IsZero() bool
}

// RequestFieldError is returned by CheckRequest for a missing field.
type RequestFieldError struct {
	Field string
}

// Error implements the Error method of the error interface.
func (c RequestFieldError) Error() string {
	return "missing field: " + c.Field
}

// CheckRequest checks that all public fields of a request struct are set.
// Fields tagged with `mediator:"optional"` are skipped. All missing fields
// are returned, in declaration order.
func CheckRequest(req Request) []RequestFieldError {
	rv := reflect.Indirect(reflect.ValueOf(req))
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()

	var errs []RequestFieldError

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" {
			continue // Skip private field.
		}

		if field.Tag.Get("mediator") == "optional" {
			continue
		}

		var zero bool
		switch v := rv.Field(i).Interface().(type) {
		case IsZeroer:
			zero = v.IsZero()
		default:
			zero = isZero(rv.Field(i))
		}

		if zero {
			errs = append(errs, RequestFieldError{field.Name})
		}
	}

	return errs
}

func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return true
	case reflect.Ptr, reflect.Map, reflect.Slice:
		return v.IsNil()
	case reflect.Array:
		// UUIDs are arrays and have their own zero value.
		if id, ok := v.Interface().(uuid.UUID); ok {
			return id == uuid.Nil
		}

		for i := 0; i < v.Len(); i++ {
			if !isZero(v.Index(i)) {
				return false
			}
		}

		return true
	case reflect.Interface:
		return v.IsNil()
	case reflect.String:
		return v.Len() == 0
	case reflect.Struct:
		if t, ok := v.Interface().(time.Time); ok {
			return t.IsZero()
		}

		z := true
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).PkgPath != "" {
				continue // Skip private fields.
			}

			z = z && isZero(v.Field(i))
		}

		return z
	default:
		// Value types like bools and numbers are never missing.
		return false
	}
}
