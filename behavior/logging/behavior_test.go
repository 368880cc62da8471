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

package logging

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/mocks"
)

func TestBehavior(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	b := NewBehavior(zap.New(core))

	if b.BehaviorKind() != med.BehaviorLogging {
		t.Error("the kind should be correct:", b.BehaviorKind())
	}

	resp, err := b.Handle(context.Background(), mocks.Request{}, func(ctx context.Context) (interface{}, error) {
		return "response", nil
	})
	if err != nil {
		t.Error("there should be no error:", err)
	}

	if resp != "response" {
		t.Error("the response should be unmodified:", resp)
	}

	entries := logs.TakeAll()
	if len(entries) != 2 {
		t.Fatal("there should be two log entries:", len(entries))
	}

	if entries[0].ContextMap()["request_type"] != string(mocks.RequestType) {
		t.Error("the request type should be logged:", entries[0].ContextMap())
	}

	handlerErr := errors.New("handler error")
	if _, err := b.Handle(context.Background(), mocks.Request{}, func(ctx context.Context) (interface{}, error) {
		return nil, handlerErr
	}); err != handlerErr {
		t.Error("the error should be unmodified:", err)
	}

	errorLogs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(errorLogs) != 1 {
		t.Error("the failure should be logged as error:", len(errorLogs))
	}
}
