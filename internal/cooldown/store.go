package cooldown

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix は永続化キーの接頭辞。
const keyPrefix = "cooldown_"

// Store はクールダウン終了時刻（epochミリ秒）を永続化するキーバリューストア。
// 読み書きはベストエフォートで扱われ、エラーは呼び出し側でログ出力のみ行う。
type Store interface {
	// Get はkeyに保存された終了時刻を返す。存在しない場合はok=false。
	Get(ctx context.Context, key string) (endMillis int64, ok bool, err error)
	// Set はkeyに終了時刻を保存する。ttlはストア側で自動失効させたい期間のヒント。
	Set(ctx context.Context, key string, endMillis int64, ttl time.Duration) error
	// Delete はkeyを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}

// MemoryStore はプロセス内メモリのStore実装。
// Redisが設定されていない環境とテストで使用する。再起動でクールダウンはリセットされる。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]int64
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]int64)}
}

// Get はkeyの終了時刻を返す。
func (s *MemoryStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[keyPrefix+key]
	return v, ok, nil
}

// Set はkeyに終了時刻を保存する。ttlは使用しない。
func (s *MemoryStore) Set(_ context.Context, key string, endMillis int64, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[keyPrefix+key] = endMillis
	return nil
}

// Delete はkeyを削除する。
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, keyPrefix+key)
	return nil
}

// Len は保持しているエントリ数を返す。テスト用。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RedisStore はRedisを使用したStore実装。
// 値は終了時刻のepochミリ秒の10進文字列。TTLに残り時間を設定するため、
// 期限切れのキーはRedis側でも自動的に削除される。
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore はRedisStoreを生成する。
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Get はkeyの終了時刻を返す。値が数値でない場合は削除してok=falseを返す。
func (s *RedisStore) Get(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.Get(ctx, keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cooldown %s: %w", key, err)
	}

	end, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		// 解釈できない値はエントリがないものとして扱い、次の書き込みを妨げないよう削除する
		if delErr := s.client.Del(ctx, keyPrefix+key).Err(); delErr != nil {
			return 0, false, fmt.Errorf("failed to delete invalid cooldown %s: %w", key, delErr)
		}
		return 0, false, nil
	}
	return end, true, nil
}

// Set はkeyに終了時刻を保存する。ttlが0以下の場合は失効させない。
func (s *RedisStore) Set(ctx context.Context, key string, endMillis int64, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, keyPrefix+key, strconv.FormatInt(endMillis, 10), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cooldown %s: %w", key, err)
	}
	return nil
}

// Delete はkeyを削除する。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cooldown %s: %w", key, err)
	}
	return nil
}

// compile-time interface check
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
