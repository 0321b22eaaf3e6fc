package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	sessionTTL      = 30 * 24 * time.Hour
	sessionIndexKey = "chat:sessions"
)

// statusIndexKey holds the ids of sessions currently in status, scored like
// the main index. A session sits in exactly one status index.
func statusIndexKey(status Status) string {
	return sessionIndexKey + ":" + string(status)
}

var sessionStatuses = []Status{StatusOpen, StatusClosed}

// Store persists chat sessions.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context, filter ListFilter) ([]Summary, int, error)
	CountOpen(ctx context.Context) (int, error)
}

// RedisStore keeps each session as a JSON blob with a sliding TTL and
// indexes ids in sorted sets scored by last update: one for all sessions and
// one per status. Listing and counting read the indexes, never every blob.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("chat: redis client cannot be nil")
	}
	return &RedisStore{redis: client, tracer: otel.Tracer("autoflow.chat.store"), now: time.Now}
}

func sessionKey(id string) string {
	return fmt.Sprintf("chat:session:%s", id)
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	ctx, span := r.tracer.Start(ctx, "chat.save_session")
	defer span.End()

	data, err := json.Marshal(s)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("chat: failed to marshal session: %w", err)
	}
	member := redis.Z{Score: float64(s.UpdatedAt.Unix()), Member: s.ID}
	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), data, sessionTTL)
	pipe.ZAdd(ctx, sessionIndexKey, member)
	for _, status := range sessionStatuses {
		if status == s.Status {
			pipe.ZAdd(ctx, statusIndexKey(status), member)
		} else {
			pipe.ZRem(ctx, statusIndexKey(status), s.ID)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("chat: failed to persist session: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, span := r.tracer.Start(ctx, "chat.load_session")
	defer span.End()

	data, err := r.redis.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("chat: failed to load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("chat: failed to decode session: %w", err)
	}
	return &s, nil
}

// List reads one page of the relevant index newest first and loads only
// those blobs. Members whose blob has expired are dropped from the page and
// from the indexes, so a page can come back short.
func (r *RedisStore) List(ctx context.Context, filter ListFilter) ([]Summary, int, error) {
	ctx, span := r.tracer.Start(ctx, "chat.list_sessions")
	defer span.End()

	if err := r.pruneStale(ctx); err != nil {
		span.RecordError(err)
		return nil, 0, err
	}
	index := sessionIndexKey
	if filter.Status != "" {
		index = statusIndexKey(filter.Status)
	}
	total, err := r.redis.ZCard(ctx, index).Result()
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("chat: failed to count session index: %w", err)
	}
	start := int64(filter.Offset)
	if start < 0 {
		start = 0
	}
	stop := int64(-1)
	if filter.Limit > 0 {
		stop = start + int64(filter.Limit) - 1
	}
	ids, err := r.redis.ZRevRange(ctx, index, start, stop).Result()
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("chat: failed to read session index: %w", err)
	}
	sessions, missing, err := r.load(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return nil, 0, err
	}
	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summary())
	}
	return out, int(total) - missing, nil
}

// CountOpen is the cardinality of the open index after stale members are pruned.
func (r *RedisStore) CountOpen(ctx context.Context) (int, error) {
	if err := r.pruneStale(ctx); err != nil {
		return 0, err
	}
	n, err := r.redis.ZCard(ctx, statusIndexKey(StatusOpen)).Result()
	if err != nil {
		return 0, fmt.Errorf("chat: failed to count open sessions: %w", err)
	}
	return int(n), nil
}

// pruneStale drops index members untouched for longer than the blob TTL.
// Their blobs have expired since every Save refreshes the TTL.
func (r *RedisStore) pruneStale(ctx context.Context) error {
	cutoff := strconv.FormatInt(r.now().Add(-sessionTTL).Unix(), 10)
	pipe := r.redis.TxPipeline()
	for _, key := range r.indexKeys() {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+cutoff)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("chat: failed to prune session index: %w", err)
	}
	return nil
}

func (r *RedisStore) indexKeys() []string {
	keys := []string{sessionIndexKey}
	for _, status := range sessionStatuses {
		keys = append(keys, statusIndexKey(status))
	}
	return keys
}

// load fetches blobs for ids in order and reports how many were gone.
func (r *RedisStore) load(ctx context.Context, ids []string) ([]*Session, int, error) {
	if len(ids) == 0 {
		return nil, 0, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	values, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("chat: failed to load sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(values))
	var expired []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var s Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, 0, fmt.Errorf("chat: failed to decode session %s: %w", ids[i], err)
		}
		sessions = append(sessions, &s)
	}
	if len(expired) > 0 {
		pipe := r.redis.Pipeline()
		for _, key := range r.indexKeys() {
			pipe.ZRem(ctx, key, expired...)
		}
		_, _ = pipe.Exec(ctx)
	}
	return sessions, len(expired), nil
}

// MemoryStore is used when Redis is not configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = cloneSession(s)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (m *MemoryStore) List(_ context.Context, filter ListFilter) ([]Summary, int, error) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return page(sessions, filter), countMatching(sessions, filter.Status), nil
}

func (m *MemoryStore) CountOpen(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.Status == StatusOpen {
			n++
		}
	}
	return n, nil
}

func cloneSession(s *Session) *Session {
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	return &cp
}

func countMatching(sessions []*Session, status Status) int {
	if status == "" {
		return len(sessions)
	}
	n := 0
	for _, s := range sessions {
		if s.Status == status {
			n++
		}
	}
	return n
}

// page filters ordered sessions by status and applies offset and limit.
func page(sessions []*Session, filter ListFilter) []Summary {
	out := make([]Summary, 0)
	skipped := 0
	for _, s := range sessions {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
		out = append(out, s.Summary())
	}
	return out
}
