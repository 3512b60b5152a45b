package roomsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ContestClock 從唯一權威的 startedAt 時間戳推導比賽經過時間
// 推導只依賴本地時鐘，不依賴任何網絡消息；所有客戶端
// 基於同一個 startedAt 計算，顯示的時間自然一致
type ContestClock struct {
	clock     clockwork.Clock
	startedAt time.Time

	mu     sync.Mutex
	frozen bool
	final  time.Duration
}

// NewContestClock 創建一個以 startedAt 為起點的比賽時鐘
func NewContestClock(startedAt time.Time, clk clockwork.Clock) *ContestClock {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &ContestClock{clock: clk, startedAt: startedAt}
}

// Elapsed 返回當前經過時間，永不為負、永不回退
func (c *ContestClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return c.final
	}
	elapsed := c.clock.Now().Sub(c.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

// Freeze 在觀察到房間結束時停止時鐘
// 服務端提供結束時間時凍結在 endedAt - startedAt，
// 否則凍結在當前計算值
func (c *ContestClock) Freeze(endedAt *time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return
	}
	var final time.Duration
	if endedAt != nil {
		final = endedAt.Sub(c.startedAt)
	} else {
		final = c.clock.Now().Sub(c.startedAt)
	}
	if final < 0 {
		final = 0
	}
	c.frozen = true
	c.final = final
}

// Display 返回 HH:MM:SS 格式的當前經過時間
func (c *ContestClock) Display() string {
	return FormatElapsed(c.Elapsed())
}

// Run 以每秒一次的本地節拍調用 onTick，直到 ctx 取消
// 凍結後繼續回報凍結值，保證視圖不再前進
func (c *ContestClock) Run(ctx context.Context, onTick func(string)) {
	ticker := c.clock.NewTicker(time.Second)
	defer ticker.Stop()

	onTick(c.Display())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			onTick(c.Display())
		}
	}
}

// FormatElapsed 把時長格式化為 HH:MM:SS
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
