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

package redis

import (
	"crypto/tls"
	"time"
)

// Default cache behavior.
const (
	defaultKeyPrefix = "promptcanary:"

	// DefaultJudgmentTTL is how long judge results stay cached. Judgments
	// are deterministic enough at low temperature that re-judging the same
	// prompt within half an hour is wasted spend.
	DefaultJudgmentTTL = 30 * time.Minute

	// DefaultReportTTL is how long analytics reports stay cached.
	DefaultReportTTL = 15 * time.Minute
)

// Config holds connection settings for the Redis cache provider.
type Config struct {
	// Addrs is the list of Redis addresses. A single address selects a
	// standalone client; multiple select cluster mode.
	Addrs []string
	// Password authenticates against Redis, if set.
	Password string
	// DB is the logical database (standalone only).
	DB int
	// KeyPrefix namespaces all cache keys. Default "promptcanary:".
	KeyPrefix string
	// MaxRetries is the per-command retry count.
	MaxRetries int
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
	// ReadTimeout bounds socket reads.
	ReadTimeout time.Duration
	// WriteTimeout bounds socket writes.
	WriteTimeout time.Duration
	// PoolSize overrides the connection pool size when positive.
	PoolSize int
	// JudgmentTTL overrides DefaultJudgmentTTL when positive.
	JudgmentTTL time.Duration
	// ReportTTL overrides DefaultReportTTL when positive.
	ReportTTL time.Duration
	// TLS enables TLS when non-nil.
	TLS *tls.Config
}

// DefaultConfig returns a Config with sensible defaults. Callers must still
// set Addrs.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:    defaultKeyPrefix,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		JudgmentTTL:  DefaultJudgmentTTL,
		ReportTTL:    DefaultReportTTL,
	}
}

// Options configures a Provider built from an existing client.
type Options struct {
	// KeyPrefix namespaces all cache keys. Default "promptcanary:".
	KeyPrefix string
	// JudgmentTTL overrides DefaultJudgmentTTL when positive.
	JudgmentTTL time.Duration
	// ReportTTL overrides DefaultReportTTL when positive.
	ReportTTL time.Duration
}
