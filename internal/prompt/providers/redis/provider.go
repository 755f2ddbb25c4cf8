/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package redis caches LLM judge results and analytics reports. The cache is
// strictly an accelerator: when Redis is unreachable the engine runs uncached
// and every lookup misses.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/canarylabs/promptcanary/internal/prompt/llm"
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Provider implements the judge and report caches on Redis.
type Provider struct {
	client      goredis.UniversalClient
	keyPrefix   string
	judgmentTTL time.Duration
	reportTTL   time.Duration
	ownsClient  bool
}

// New creates a Provider that owns the underlying Redis client. The client is
// created from cfg and verified with a PING. Close will shut down the client.
func New(cfg Config) (*Provider, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("redis: at least one address is required")
	}

	opts := &goredis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		TLSConfig:    cfg.TLS,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := goredis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	p := &Provider{
		client:      client,
		keyPrefix:   cfg.KeyPrefix,
		judgmentTTL: cfg.JudgmentTTL,
		reportTTL:   cfg.ReportTTL,
		ownsClient:  true,
	}
	p.applyDefaults()
	return p, nil
}

// NewFromClient wraps an existing UniversalClient. Close is a no-op because
// the caller retains ownership of the client.
func NewFromClient(client goredis.UniversalClient, opts Options) *Provider {
	p := &Provider{
		client:      client,
		keyPrefix:   opts.KeyPrefix,
		judgmentTTL: opts.JudgmentTTL,
		reportTTL:   opts.ReportTTL,
		ownsClient:  false,
	}
	p.applyDefaults()
	return p
}

func (p *Provider) applyDefaults() {
	if p.keyPrefix == "" {
		p.keyPrefix = defaultKeyPrefix
	}
	if p.judgmentTTL <= 0 {
		p.judgmentTTL = DefaultJudgmentTTL
	}
	if p.reportTTL <= 0 {
		p.reportTTL = DefaultReportTTL
	}
}

// Close shuts down the client if this provider owns it.
func (p *Provider) Close() error {
	if p.ownsClient {
		return p.client.Close()
	}
	return nil
}

// --- key helpers -------------------------------------------------------------

// judgmentKey hashes the full prompt+response pair so arbitrarily long texts
// map to fixed-size keys.
func (p *Provider) judgmentKey(promptText, response string) string {
	sum := sha256.Sum256([]byte(promptText + "\x00" + response))
	return p.keyPrefix + "judge:" + hex.EncodeToString(sum[:])
}

func (p *Provider) reportKey(windowDays int) string {
	return p.keyPrefix + "report:" + strconv.Itoa(windowDays)
}

// --- judge cache -------------------------------------------------------------

// GetJudgment returns a cached judgment for the prompt/response pair, or
// ErrCacheMiss.
func (p *Provider) GetJudgment(ctx context.Context, promptText, response string) (*llm.Judgment, error) {
	data, err := p.client.Get(ctx, p.judgmentKey(promptText, response)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis: get judgment: %w", err)
	}

	var j llm.Judgment
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("redis: unmarshal judgment: %w", err)
	}
	return &j, nil
}

// SetJudgment caches a judgment for the prompt/response pair. Fallback
// judgments are not cached: they describe the upstream's health at one
// moment, not the prompt.
func (p *Provider) SetJudgment(ctx context.Context, promptText, response string, j *llm.Judgment) error {
	if j == nil || j.Fallback {
		return nil
	}

	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("redis: marshal judgment: %w", err)
	}
	if err := p.client.Set(ctx, p.judgmentKey(promptText, response), data, p.judgmentTTL).Err(); err != nil {
		return fmt.Errorf("redis: set judgment: %w", err)
	}
	return nil
}

// --- report cache ------------------------------------------------------------

// GetReport unmarshals a cached report for the window into out, or returns
// ErrCacheMiss.
func (p *Provider) GetReport(ctx context.Context, windowDays int, out any) error {
	data, err := p.client.Get(ctx, p.reportKey(windowDays)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("redis: get report: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("redis: unmarshal report: %w", err)
	}
	return nil
}

// SetReport caches a report for the window.
func (p *Provider) SetReport(ctx context.Context, windowDays int, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis: marshal report: %w", err)
	}
	if err := p.client.Set(ctx, p.reportKey(windowDays), data, p.reportTTL).Err(); err != nil {
		return fmt.Errorf("redis: set report: %w", err)
	}
	return nil
}
