// Package cache implements the Cache (C7): a pluggable key/value Backend
// behind an in-process map or Redis, and the TwoTier cache that applies the
// direction-selection and POI-pool TTL policies on top of it. Backend
// failures never propagate — a failed read is a miss, a failed write is a
// no-op, per §4.7 and §7.
package cache

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/xudanli/tripnaraht-sub005/internal/planner"
)

var log = logrus.WithField("component", "cache")

// Backend is the §6 "Cache backend" external collaborator: get/set with a
// TTL, errors surfaced to the caller (TwoTier is responsible for turning
// those into non-fatal misses/no-ops).
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// MapBackend is the default, zero-dependency in-process Backend.
type MapBackend struct {
	mu      sync.Mutex
	entries map[string]mapEntry
}

type mapEntry struct {
	value   []byte
	expires time.Time
}

// NewMapBackend returns an empty in-process Backend.
func NewMapBackend() *MapBackend {
	return &MapBackend{entries: map[string]mapEntry{}}
}

func (m *MapBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MapBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = mapEntry{value: value, expires: time.Now().Add(ttl)}
	return nil
}

// RedisBackend is a Backend implementation over a go-redis/v9 client.
type RedisBackend struct {
	Client *redis.Client
}

// NewRedisBackend wraps an existing go-redis client as a Backend.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{Client: client}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.Client.Set(ctx, key, value, ttl).Err()
}

// safeGet/safeSet apply §4.7's "errors in cache access must never
// propagate" rule around any Backend, logging the failure and treating it
// as a miss/no-op.
func safeGet(ctx context.Context, b Backend, key string) ([]byte, bool) {
	val, ok, err := b.Get(ctx, key)
	if err != nil {
		log.WithError(err).WithField("key", key).Debug("cache: get failed, treating as miss")
		return nil, false
	}
	return val, ok
}

func safeSet(ctx context.Context, b Backend, key string, value []byte, ttl time.Duration) {
	if err := b.Set(ctx, key, value, ttl); err != nil {
		log.WithError(err).WithField("key", key).Debug("cache: set failed, dropping write")
	}
}

const (
	directionSelectionTTLWithMonth = 6 * time.Hour
	directionSelectionTTLNoMonth   = 1 * time.Hour
	poiPoolTTLSignature            = 24 * time.Hour
	poiPoolTTLTrivial              = 6 * time.Hour
)

// TwoTier applies the §4.7 direction-selection and POI-pool cache policies
// on top of a single Backend.
type TwoTier struct {
	Backend Backend
}

// NewTwoTier wires a TwoTier cache to its Backend.
func NewTwoTier(b Backend) *TwoTier {
	return &TwoTier{Backend: b}
}

// DirectionSelectionKey canonicalises and hashes
// hash(country, month, sorted(preferences), pace, risk, duration), per §4.7.
func DirectionSelectionKey(country string, month int, preferences []string, pace, risk string, durationDays int) string {
	sorted := append([]string(nil), preferences...)
	sort.Strings(sorted)
	return CanonicalKey("direction", country, strconv.Itoa(month), strings.Join(sorted, ","), pace, risk, strconv.Itoa(durationDays))
}

// GetDirectionSelection reads a cached SelectionResult, returning (value,
// true) on a hit. A backend failure is treated as a miss.
func (t *TwoTier) GetDirectionSelection(ctx context.Context, key string) (planner.SelectionResult, bool) {
	raw, ok := safeGet(ctx, t.Backend, key)
	if !ok {
		return planner.SelectionResult{}, false
	}
	var result planner.SelectionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		log.WithError(err).Debug("cache: direction selection unmarshal failed, treating as miss")
		return planner.SelectionResult{}, false
	}
	return result, true
}

// SetDirectionSelection writes a SelectionResult with the §4.7 TTL: 6h when
// month is known, 1h otherwise.
func (t *TwoTier) SetDirectionSelection(ctx context.Context, key string, result planner.SelectionResult, monthKnown bool) {
	raw, err := json.Marshal(result)
	if err != nil {
		log.WithError(err).Debug("cache: direction selection marshal failed, skipping write")
		return
	}
	ttl := directionSelectionTTLNoMonth
	if monthKnown {
		ttl = directionSelectionTTLWithMonth
	}
	safeSet(ctx, t.Backend, key, raw, ttl)
}

// POIPoolKey canonicalises and hashes (directionId, bufferMeters,
// canonicalise(signaturePois)), per §4.7.
func POIPoolKey(directionID string, bufferMeters float64, sp planner.SignaturePOIs) string {
	types := append([]string(nil), sp.Types...)
	sort.Strings(types)
	examples := append([]string(nil), sp.Examples...)
	sort.Strings(examples)

	weightKeys := make([]string, 0, len(sp.Weights))
	for k := range sp.Weights {
		weightKeys = append(weightKeys, k)
	}
	sort.Strings(weightKeys)
	var weightParts []string
	for _, k := range weightKeys {
		weightParts = append(weightParts, k+"="+strconv.FormatFloat(sp.Weights[k], 'f', 4, 64))
	}

	return CanonicalKey("poiPool", directionID, strconv.FormatFloat(bufferMeters, 'f', 2, 64),
		strings.Join(types, ","), strings.Join(examples, ","), strings.Join(weightParts, ","))
}

// GetPOIPool reads a cached candidate list, returning (value, true) on a
// hit. A backend failure is treated as a miss.
func (t *TwoTier) GetPOIPool(ctx context.Context, key string) ([]planner.ActivityCandidate, bool) {
	raw, ok := safeGet(ctx, t.Backend, key)
	if !ok {
		return nil, false
	}
	var candidates []planner.ActivityCandidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		log.WithError(err).Debug("cache: poi pool unmarshal failed, treating as miss")
		return nil, false
	}
	return candidates, true
}

// SetPOIPool writes a candidate list with the §4.7 TTL: 24h when the
// direction's signaturePois carry real content, 6h otherwise.
func (t *TwoTier) SetPOIPool(ctx context.Context, key string, candidates []planner.ActivityCandidate, sp planner.SignaturePOIs) {
	raw, err := json.Marshal(candidates)
	if err != nil {
		log.WithError(err).Debug("cache: poi pool marshal failed, skipping write")
		return
	}
	ttl := poiPoolTTLTrivial
	if len(sp.Types) > 0 || len(sp.Examples) > 0 {
		ttl = poiPoolTTLSignature
	}
	safeSet(ctx, t.Backend, key, raw, ttl)
}

// CanonicalKey joins already-canonicalised (sorted, stably formatted) parts
// and hashes them with xxhash, per §9 "canonicalise keys via deterministic
// hashing... before hashing". A hashing failure never occurs in practice
// (xxhash.Sum64String cannot error); callers that would need to handle a
// failed key computation per §7's "cache key hashing failure" row fall
// through to a direct compute, which CanonicalKey's panic-free contract
// makes unnecessary here.
func CanonicalKey(namespace string, parts ...string) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, p := range parts {
		b.WriteByte('|')
		b.WriteString(p)
	}
	sum := xxhash.Sum64String(b.String())
	return namespace + ":" + strconv.FormatUint(sum, 16)
}
