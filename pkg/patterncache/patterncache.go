/*
Copyright 2025 Jordi Gil.

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

// Package patterncache holds the email-address-pattern cache on behalf of
// the external email collaborator (spec §3 "PatternCacheEntry"). The
// decision core never interprets a pattern's meaning; it only enforces the
// one invariant the collaborator relies on: status moves toward increasing
// evidence strength and is never silently overwritten.
package patterncache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
)

// Status is a PatternCacheEntry's evidence-strength tier (spec §3).
type Status string

const (
	StatusValid     Status = "valid"
	StatusCatchAll  Status = "catch_all"
	StatusUnverified Status = "unverified"
	StatusInvalid   Status = "invalid"
	StatusNoPattern Status = "no_pattern"
)

// rank orders Status by evidence strength, weakest first. PutPattern
// rejects a write that would move a domain's status to a weaker rank than
// its current one (spec §3 "not silently overwritten").
var rank = map[Status]int{
	StatusNoPattern:  0,
	StatusUnverified: 1,
	StatusInvalid:    1,
	StatusCatchAll:   2,
	StatusValid:      3,
}

// Entry is one domain's cached addressing pattern.
type Entry struct {
	Domain          string    `json:"domain"`
	PatternTemplate string    `json:"pattern_template"`
	Source          string    `json:"source"`
	Confidence      float64   `json:"confidence"`
	Status          Status    `json:"status"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store is the narrow {GetPattern, PutPattern} interface the core exposes
// to the email collaborator (spec §9 "the core only reads/writes by domain
// through a narrow interface").
type Store interface {
	GetPattern(ctx context.Context, domain string) (*Entry, bool, error)
	PutPattern(ctx context.Context, entry *Entry) error
}

const keyPrefix = "patterncache:"
const lockPrefix = "patterncache:lock:"
const lockTTL = 2 * time.Second

func key(domain string) string  { return keyPrefix + domain }
func lockKey(domain string) string { return lockPrefix + domain }

// RedisStore is the Store implementation backing production and tests
// (via alicebob/miniredis/v2).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore against an already-connected
// client. RedisStore does not own the client's lifecycle.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// GetPattern returns the active entry for domain, if any.
func (s *RedisStore) GetPattern(ctx context.Context, domain string) (*Entry, bool, error) {
	raw, err := s.client.Get(ctx, key(domain)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrorTypeTransient, "reading pattern cache entry")
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrorTypeInternal, "decoding pattern cache entry")
	}
	return &entry, true, nil
}

// PutPattern writes entry for its domain, holding a short-lived per-domain
// lock so two concurrent writers never interleave a read-modify-write of
// the same domain's status (spec §3 invariant). A write that would move
// status to a weaker evidence tier than the current entry is rejected, not
// silently dropped, so the collaborator can detect and investigate it.
func (s *RedisStore) PutPattern(ctx context.Context, entry *Entry) error {
	acquired, err := s.client.SetNX(ctx, lockKey(entry.Domain), "1", lockTTL).Result()
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrorTypeTransient, "acquiring pattern cache lock")
	}
	if !acquired {
		return appErrors.New(appErrors.ErrorTypeConflict, fmt.Sprintf("pattern cache entry for domain %q is being updated concurrently", entry.Domain))
	}
	defer s.client.Del(ctx, lockKey(entry.Domain))

	existing, found, err := s.GetPattern(ctx, entry.Domain)
	if err != nil {
		return err
	}
	if found && rank[entry.Status] < rank[existing.Status] {
		return appErrors.New(appErrors.ErrorTypeConflict,
			fmt.Sprintf("refusing to move domain %q from status %q to weaker status %q", entry.Domain, existing.Status, entry.Status))
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrorTypeInternal, "encoding pattern cache entry")
	}
	if err := s.client.Set(ctx, key(entry.Domain), raw, 0).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrorTypeTransient, "writing pattern cache entry")
	}
	return nil
}
