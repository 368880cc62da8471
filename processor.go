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

package mediator

import "context"

// PreProcessor runs before the handler of a request and can abort dispatch.
type PreProcessor interface {
	PreProcess(context.Context, Request) error
}

// PreProcessorFunc is a function that can be used as a pre-processor.
type PreProcessorFunc func(context.Context, Request) error

// PreProcess implements the PreProcess method of the PreProcessor interface.
func (f PreProcessorFunc) PreProcess(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// PostProcessor runs after the handler of a request with its response.
type PostProcessor interface {
	PostProcess(context.Context, Request, interface{}) error
}

// PostProcessorFunc is a function that can be used as a post-processor.
type PostProcessorFunc func(context.Context, Request, interface{}) error

// PostProcess implements the PostProcess method of the PostProcessor interface.
func (f PostProcessorFunc) PostProcess(ctx context.Context, req Request, resp interface{}) error {
	return f(ctx, req, resp)
}
