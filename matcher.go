// Copyright (c) 2017 - The Event Horizon authors.
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

// RequestMatcher is a func that can match a request to a criteria. It is used
// to select the behaviors and processors that apply to a request.
type RequestMatcher func(Request) bool

// MatchAny matches any request.
func MatchAny() RequestMatcher {
	return func(r Request) bool {
		return true
	}
}

// MatchRequest matches a specific request type, nil requests never match.
func MatchRequest(t RequestType) RequestMatcher {
	return func(r Request) bool {
		return r != nil && r.RequestType() == t
	}
}

// MatchAnyOf matches if any of several matchers matches.
func MatchAnyOf(matchers ...RequestMatcher) RequestMatcher {
	return func(r Request) bool {
		for _, m := range matchers {
			if m(r) {
				return true
			}
		}

		return false
	}
}

// MatchAnyRequestOf matches if the request is of any of the types.
func MatchAnyRequestOf(types ...RequestType) RequestMatcher {
	return func(r Request) bool {
		for _, t := range types {
			if MatchRequest(t)(r) {
				return true
			}
		}

		return false
	}
}

// MatchCacheable matches requests that are cacheable queries.
func MatchCacheable() RequestMatcher {
	return func(r Request) bool {
		_, ok := r.(Cacheable)
		return ok
	}
}
