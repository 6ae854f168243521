// Copyright 2026 Chris Edwards
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

// RaceCrew schedule import server.
//
// Exposes the schedule import pipeline over HTTP: extraction runs
// stream progress as server-sent events, approved candidates are
// committed to the regatta calendar.
//
// Usage:
//
//	racecrew-server [flags]
//
// Flags:
//
//	-addr string    Address to bind to (overrides config)
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	schedule "github.com/chris-edwards-pub/thistle-regatta-schedule"
	"github.com/chris-edwards-pub/thistle-regatta-schedule/internal/config"
	"github.com/chris-edwards-pub/thistle-regatta-schedule/internal/llm"
	"github.com/chris-edwards-pub/thistle-regatta-schedule/internal/server"
	"github.com/chris-edwards-pub/thistle-regatta-schedule/internal/store"
)

func main() {
	addrFlag := flag.String("addr", "", "Address to bind to (overrides config)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if cfg.LLM.APIKey == "" {
		logger.Warn("ANTHROPIC_API_KEY is not set, extraction runs will fail")
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	guard := schedule.NewURLGuard()
	fetcher := schedule.NewFetcher(guard)
	fetcher.UserAgent = cfg.Fetcher.UserAgent
	if cfg.Fetcher.MaxBodySize > 0 {
		fetcher.MaxBodySize = cfg.Fetcher.MaxBodySize
	}
	if cfg.Fetcher.TimeoutSecs > 0 {
		fetcher.Timeout = time.Duration(cfg.Fetcher.TimeoutSecs) * time.Second
	}
	if cfg.Fetcher.PerDomainDelay > 0 {
		if err := fetcher.Limit(&schedule.LimitRule{
			DomainGlob:  "*",
			Delay:       time.Duration(cfg.Fetcher.PerDomainDelay) * time.Millisecond,
			Parallelism: 1,
		}); err != nil {
			logger.WithError(err).Fatal("Invalid fetch limit rule")
		}
	}

	discovery := schedule.NewDiscoveryEngine(fetcher)
	discovery.Logger = logger
	discovery.RespectRobots = cfg.Fetcher.RespectRobots
	if cfg.Fetcher.DiscoveryJobs > 0 {
		discovery.Workers = cfg.Fetcher.DiscoveryJobs
	}

	client := llm.NewAnthropicClient(cfg.LLM.APIKey, cfg.LLM.Model, llm.WithLogger(logger))

	pipeline := &schedule.Pipeline{
		Fetcher:   fetcher,
		Extractor: schedule.NewAIExtractor(client),
		Discovery: discovery,
		Detector:  &schedule.DuplicateDetector{Reader: st},
		Logger:    logger,
	}
	committer := &schedule.Committer{Store: st, Logger: logger}

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     server.NewServer(pipeline, committer, logger),
		ReadTimeout: 30 * time.Second,
		// No write timeout: extraction runs hold an SSE stream open.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithField("addr", addr).Info("RaceCrew schedule server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}
	logger.Info("Server exited gracefully")
}
