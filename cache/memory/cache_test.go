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

package memory

import (
	"context"
	"testing"
	"time"
)

func TestCache(t *testing.T) {
	ctx := context.Background()
	c := NewCache()

	now := time.Now()
	c.now = func() time.Time { return now }

	if _, hit, err := c.Get(ctx, "key"); hit || err != nil {
		t.Error("there should be a miss:", hit, err)
	}

	if err := c.Set(ctx, "key", "value", time.Minute); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := c.Set(ctx, "forever", "value", 0); err != nil {
		t.Error("there should be no error:", err)
	}

	v, hit, err := c.Get(ctx, "key")
	if err != nil || !hit || v != "value" {
		t.Error("there should be a hit:", v, hit, err)
	}

	now = now.Add(time.Minute)

	if _, hit, _ := c.Get(ctx, "key"); hit {
		t.Error("the entry should be expired")
	}

	if c.Len() != 1 {
		t.Error("the expired entry should be removed:", c.Len())
	}

	if _, hit, _ := c.Get(ctx, "forever"); !hit {
		t.Error("entries without TTL should not expire")
	}

	c.Set(ctx, "short", "value", time.Second)
	now = now.Add(time.Hour)
	c.Purge()

	if c.Len() != 1 {
		t.Error("purge should remove expired entries:", c.Len())
	}

	c.Delete(ctx, "forever")

	if c.Len() != 0 {
		t.Error("the entry should be deleted:", c.Len())
	}
}
