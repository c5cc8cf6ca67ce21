package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New 生成带前缀的运行 ID：prefix + 毫秒时间戳 + UUID 前 12 位。
// 时间戳放在前面，按字典序排序即按时间排序。
func New(prefix string) string {
	u := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), u[:12])
}
