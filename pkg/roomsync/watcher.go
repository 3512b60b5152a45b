// Package roomsync 實現房間狀態同步協議的客戶端半邊。
//
// 同步依賴兩條獨立的通道：推送頻道與固定間隔的輪詢。
// 推送事件可能丟失、重複或亂序，因此協議從不信任事件內容，
// 事件只是「該重新拉取了」的提示；每次重新拉取都以完整狀態
// 整體替換本地快照，使協議在任意交錯下冪等且收斂。
package roomsync

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"code_arena/internal/models"
)

// DefaultPollInterval 輪詢重新拉取的默認間隔
const DefaultPollInterval = 3 * time.Second

// FetchFunc 拉取房間與在房成員的完整狀態
type FetchFunc func(ctx context.Context, roomID string) (*models.Room, error)

// Options 配置 Watcher 的行為
type Options struct {
	PollInterval time.Duration   // 默認 3 秒
	Clock        clockwork.Clock // 測試時注入假時鐘
	// OnUpdate 在每次成功拉取後以新快照調用
	OnUpdate func(*models.Room)
	// OnActive 在觀察到狀態轉為 active 時恰好調用一次，
	// 由狀態轉換觸發而不是每次輪詢觸發，避免重複跳轉
	OnActive func(*models.Room)
}

// Watcher 監視單個房間的狀態
// 推送提示與輪詢計時器都只觸發同一個動作：完整重新拉取。
// 拉取失敗按 NetworkUnavailable 策略靜默忽略，下個週期自然重試
type Watcher struct {
	roomID string
	fetch  FetchFunc
	opts   Options
	hints  chan struct{}

	mu        sync.Mutex
	snapshot  *models.Room
	activated bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher 創建並啟動一個房間監視器
// 啟動後立即做一次拉取，之後由輪詢與提示驅動
func NewWatcher(ctx context.Context, roomID string, fetch FetchFunc, opts Options) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		roomID: roomID,
		fetch:  fetch,
		opts:   opts,
		hints:  make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.loop(ctx)
	return w
}

// Hint 通知監視器有推送事件到達，應盡快重新拉取
// 非阻塞；提示只是觸發器，合併多個提示不影響收斂性
func (w *Watcher) Hint() {
	select {
	case w.hints <- struct{}{}:
	default:
		// 已有待處理的提示，合併
	}
}

// Snapshot 返回最近一次拉取到的完整狀態，尚未拉取成功時為 nil
func (w *Watcher) Snapshot() *models.Room {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot
}

// Close 停止輪詢與提示處理
// 房間視圖關閉或切換房間時必須調用，避免過期更新洩漏
func (w *Watcher) Close() {
	w.cancel()
	<-w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	ticker := w.opts.Clock.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			w.refresh(ctx)
		case <-w.hints:
			w.refresh(ctx)
		}
	}
}

// refresh 做一次完整重新拉取並整體替換本地快照
func (w *Watcher) refresh(ctx context.Context) {
	room, err := w.fetch(ctx, w.roomID)
	if err != nil {
		// 拉取失敗不中斷會話，下個輪詢週期重試
		return
	}

	w.mu.Lock()
	w.snapshot = room
	fireActive := false
	if room.Status == models.RoomStatusActive && !w.activated {
		w.activated = true
		fireActive = true
	}
	w.mu.Unlock()

	if w.opts.OnUpdate != nil {
		w.opts.OnUpdate(room)
	}
	if fireActive && w.opts.OnActive != nil {
		w.opts.OnActive(room)
	}
}
