package cache

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// DefaultTTL 查询缓存默认有效期
const DefaultTTL = 60 * time.Second

// Store 查询缓存。值是已经编码好的字节，编码方式由调用方决定
type Store interface {
	// Get 未命中或已过期时 ok 为 false
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set ttl <= 0 时使用默认有效期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// InvalidateByUser 删除所有 key 中包含 userID 的条目
	InvalidateByUser(ctx context.Context, userID string) error
	InvalidateByKey(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Key 由方法名和参数生成确定的缓存 key，例如 Key("alerts", "u1", 1, 20) => "alerts_u1_1_20"
func Key(method string, args ...any) string {
	var b strings.Builder
	b.WriteString(method)
	for _, arg := range args {
		b.WriteByte('_')
		b.WriteString(cast.ToString(arg))
	}
	return b.String()
}
