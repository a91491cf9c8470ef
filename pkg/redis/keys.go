package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// KeyScanner is the subset of a go-redis client DeletePrefix needs.
type KeyScanner interface {
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// DeletePrefix removes every key starting with prefix, walking the
// keyspace with SCAN so the server is never blocked. Returns the number
// of keys deleted.
func DeletePrefix(ctx context.Context, client KeyScanner, prefix string, batch int64) (int, error) {
	if prefix == "" {
		return 0, ErrEmptyPrefix
	}
	if batch <= 0 {
		batch = 1000
	}

	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := client.Scan(ctx, cursor, escapeGlob(prefix)+"*", batch).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis: scan %q: %w", prefix, err)
		}
		if len(keys) > 0 {
			n, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis: delete keys under %q: %w", prefix, err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// escapeGlob quotes the glob metacharacters of a MATCH pattern.
func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
