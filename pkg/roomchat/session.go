// Package roomchat 實現房間聊天頻道的客戶端。
//
// 發送是樂觀的：消息先進入本地列表再發佈；頻道會把消息回送給
// 包括發送者在內的所有人，客戶端按（發送者、內容、1 秒時間窗）
// 的指紋規則把 echo 識別為已顯示的消息。去重在同一把鎖內對
// 兩個方向生效，無論 echo 先到還是後到都只顯示一次。
package roomchat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"code_arena/internal/models"
)

// State 表示聊天連接的狀態
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// ErrNotConnected 在連接斷開時調用 Send 返回
// 斷線時的發送在客戶端直接拒絕，不發往服務端
var ErrNotConnected = errors.New("聊天頻道未連接")

// DefaultRetryInterval 斷線重連的固定間隔
const DefaultRetryInterval = 5 * time.Second

// Transport 抽象房間頻道的底層連接，便於測試替換
type Transport interface {
	ReadEvent() (*models.RoomEvent, error)
	WriteMessage(*models.ChatMessage) error
	Close() error
}

// DialFunc 建立一條到房間頻道的連接
type DialFunc func(ctx context.Context) (Transport, error)

// Options 配置 Session 的行為
type Options struct {
	RetryInterval time.Duration   // 默認 5 秒
	Clock         clockwork.Clock // 測試時注入假時鐘
	// OnMessage 在新消息（去重後）進入列表時調用
	OnMessage func(models.ChatMessage)
	// OnHint 在收到非聊天事件（狀態變更提示）時調用，
	// 通常接到 roomsync.Watcher.Hint
	OnHint func(models.RoomEvent)
	// OnStateChange 在連接狀態變化時調用
	OnStateChange func(State)
}

// Session 維護一條房間聊天會話
// 房間視圖開著的期間自動斷線重連；Close 後徹底停止
type Session struct {
	roomID     string
	senderID   uint
	senderName string
	dial       DialFunc
	opts       Options

	mu        sync.Mutex
	state     State
	transport Transport
	messages  []models.ChatMessage

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession 創建並啟動一條聊天會話
func NewSession(ctx context.Context, roomID string, senderID uint, senderName string,
	dial DialFunc, opts Options) *Session {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		roomID:     roomID,
		senderID:   senderID,
		senderName: senderName,
		dial:       dial,
		opts:       opts,
		state:      StateConnecting,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// State 返回當前連接狀態
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages 返回當前可見消息列表的副本
func (s *Session) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Send 樂觀發送一條消息：先進入本地列表，再發佈到頻道
// 連接斷開時直接返回 ErrNotConnected，列表不變
func (s *Session) Send(content string) error {
	msg := models.ChatMessage{
		RoomID:     s.roomID,
		SenderID:   s.senderID,
		SenderName: s.senderName,
		Content:    content,
		Timestamp:  s.opts.Clock.Now(),
	}

	s.mu.Lock()
	if s.state != StateConnected || s.transport == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	t := s.transport
	appended := s.appendLocked(msg)
	s.mu.Unlock()

	if appended && s.opts.OnMessage != nil {
		s.opts.OnMessage(msg)
	}
	// 發佈失敗不回滾本地顯示，斷線由讀取循環統一處理
	return t.WriteMessage(&msg)
}

// Close 停止會話並斷開連接
// 房間視圖關閉或切換房間時必須調用
func (s *Session) Close() {
	s.cancel()
	s.mu.Lock()
	if s.transport != nil {
		s.transport.Close()
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(StateDisconnected)

	for {
		if ctx.Err() != nil {
			return
		}
		s.setState(StateConnecting)

		t, err := s.dial(ctx)
		if err != nil {
			s.setState(StateDisconnected)
			select {
			case <-ctx.Done():
				return
			case <-s.opts.Clock.After(s.opts.RetryInterval):
			}
			continue
		}

		if ctx.Err() != nil {
			t.Close()
			return
		}

		s.mu.Lock()
		s.transport = t
		s.mu.Unlock()
		s.setState(StateConnected)

		// ctx 取消時關閉連接，讓阻塞中的讀取立即返回
		stop := context.AfterFunc(ctx, func() { t.Close() })
		s.readLoop(t)
		stop()

		s.mu.Lock()
		s.transport = nil
		s.mu.Unlock()
		t.Close()
		s.setState(StateDisconnected)

		select {
		case <-ctx.Done():
			return
		case <-s.opts.Clock.After(s.opts.RetryInterval):
		}
	}
}

// readLoop 持續讀取頻道事件直到連接出錯
func (s *Session) readLoop(t Transport) {
	for {
		event, err := t.ReadEvent()
		if err != nil {
			return
		}
		switch event.Type {
		case models.EventTypeChat:
			if event.Message != nil {
				s.deliver(*event.Message)
			}
		default:
			// 狀態變更提示交給同步層，聊天會話本身不處理
			if s.opts.OnHint != nil {
				s.opts.OnHint(*event)
			}
		}
	}
}

// deliver 把收到的消息加入列表，重複消息（自己的 echo）丟棄
func (s *Session) deliver(msg models.ChatMessage) {
	s.mu.Lock()
	appended := s.appendLocked(msg)
	s.mu.Unlock()

	if appended && s.opts.OnMessage != nil {
		s.opts.OnMessage(msg)
	}
}

// appendLocked 只在列表中沒有等價消息時追加，返回是否追加
// 調用方必須持有 s.mu
func (s *Session) appendLocked(msg models.ChatMessage) bool {
	for i := range s.messages {
		if s.messages[i].SameAs(&msg) {
			return false
		}
	}
	s.messages = append(s.messages, msg)
	return true
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.mu.Unlock()

	if changed && s.opts.OnStateChange != nil {
		s.opts.OnStateChange(state)
	}
}
