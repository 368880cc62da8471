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

// Command mediator-demo runs a small guest list service through a mediator
// pipeline with an outbox. The configuration file is read from the path in
// MEDIATOR_CONFIG, if set, and can be overridden by MEDIATOR_* variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/looplab/mediator/config"
)

func main() {
	// Used until the configured logger exists.
	bootstrap, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not create logger:", err)
		os.Exit(1)
	}

	cfg, logger, err := setup(os.Getenv("MEDIATOR_CONFIG"))
	if err != nil {
		bootstrap.Fatal("could not set up", zap.Error(err))
	}

	defer logger.Sync()

	zap.ReplaceGlobals(logger)

	if cfg.TracingEnabled {
		closer, err := newTracer(cfg)
		if err != nil {
			logger.Fatal("could not create tracer", zap.Error(err))
		}

		defer closer.Close()
	}

	a, err := newApp(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("could not create app", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.run(ctx, os.Stdout); err != nil {
		logger.Error("could not run app", zap.Error(err))
	}
}

// setup loads the config at path and creates the logger it configures.
func setup(path string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("could not load config: %w", err)
	}

	logger, err := cfg.Logger()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("could not create logger: %w", err)
	}

	return cfg, logger, nil
}
