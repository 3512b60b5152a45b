package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"code_arena/internal/models"
)

// memoryRoomRepo 是內存版的 RoomRepository
// 與 gorm 實現遵守同一個原子性契約：容量檢查、CAS 轉換都在鎖內完成，
// 因此可以直接用來驗證並發屬性
type memoryRoomRepo struct {
	mu     sync.Mutex
	rooms  map[string]*models.Room
	parts  map[string][]*models.RoomParticipant
	nextID uint
}

func newMemoryRoomRepo() *memoryRoomRepo {
	return &memoryRoomRepo{
		rooms: make(map[string]*models.Room),
		parts: make(map[string][]*models.RoomParticipant),
	}
}

func (r *memoryRoomRepo) Create(room *models.Room, creator *models.RoomParticipant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *room
	cp.CreatedAt = time.Now()
	r.rooms[room.ID] = &cp

	r.nextID++
	creator.ID = r.nextID
	creator.RoomID = room.ID
	pc := *creator
	r.parts[room.ID] = []*models.RoomParticipant{&pc}
	return nil
}

func (r *memoryRoomRepo) FindByID(id string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(id)
}

// snapshotLocked 返回房間及成員的深拷貝，調用方必須持有 r.mu
func (r *memoryRoomRepo) snapshotLocked(id string) (*models.Room, error) {
	room, ok := r.rooms[id]
	if !ok {
		return nil, models.ErrRoomNotFound
	}
	cp := *room
	cp.Participants = nil
	for _, p := range r.parts[id] {
		cp.Participants = append(cp.Participants, *p)
	}
	return &cp, nil
}

func (r *memoryRoomRepo) ListPublicWaiting() ([]models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Room
	for id, room := range r.rooms {
		if room.Status == models.RoomStatusWaiting && !room.IsPrivate {
			snap, _ := r.snapshotLocked(id)
			out = append(out, *snap)
		}
	}
	return out, nil
}

func (r *memoryRoomRepo) ListActiveForUser(userID uint) ([]models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Room
	for id, parts := range r.parts {
		for _, p := range parts {
			if p.UserID == userID && !p.HasLeft() {
				snap, _ := r.snapshotLocked(id)
				out = append(out, *snap)
				break
			}
		}
	}
	return out, nil
}

func (r *memoryRoomRepo) FindJoinable() (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, room := range r.rooms {
		if room.Status != models.RoomStatusWaiting || room.IsPrivate {
			continue
		}
		active := 0
		for _, p := range r.parts[id] {
			if !p.HasLeft() {
				active++
			}
		}
		if active < room.MaxParticipants {
			return r.snapshotLocked(id)
		}
	}
	return nil, models.ErrRoomNotFound
}

func (r *memoryRoomRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, id)
	delete(r.parts, id)
	return nil
}

func (r *memoryRoomRepo) AddParticipant(roomID string, userID uint, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return models.ErrRoomNotFound
	}
	if room.Status != models.RoomStatusWaiting {
		return models.ErrRoomNotJoinable
	}

	active := 0
	var left *models.RoomParticipant
	for _, p := range r.parts[roomID] {
		if p.UserID == userID && !p.HasLeft() {
			return nil // 冪等
		}
		if p.UserID == userID && p.HasLeft() {
			left = p
		}
		if !p.HasLeft() {
			active++
		}
	}
	if active >= room.MaxParticipants {
		return models.ErrRoomFull
	}

	if left != nil {
		left.LeftAt = nil
		left.IsReady = false
		left.Username = username
		left.JoinedAt = time.Now()
		return nil
	}
	r.nextID++
	r.parts[roomID] = append(r.parts[roomID], &models.RoomParticipant{
		ID:       r.nextID,
		RoomID:   roomID,
		UserID:   userID,
		Username: username,
		JoinedAt: time.Now(),
	})
	return nil
}

func (r *memoryRoomRepo) MarkLeft(roomID string, userID uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.parts[roomID] {
		if p.UserID == userID && !p.HasLeft() {
			t := at
			p.LeftAt = &t
		}
	}
	return nil
}

func (r *memoryRoomRepo) SetReady(roomID string, userID uint, isReady bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.parts[roomID] {
		if p.UserID == userID && !p.HasLeft() {
			p.IsReady = isReady
			return nil
		}
	}
	return models.ErrNotAParticipant
}

func (r *memoryRoomRepo) TryStart(roomID string, problemID uint, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok || room.Status != models.RoomStatusWaiting {
		return false, nil
	}
	t := at
	pid := problemID
	room.Status = models.RoomStatusActive
	room.StartedAt = &t
	room.ProblemID = &pid
	return true, nil
}

func (r *memoryRoomRepo) TryComplete(roomID string, winnerID uint, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok || room.Status != models.RoomStatusActive {
		return false, nil
	}
	t := at
	wid := winnerID
	room.Status = models.RoomStatusCompleted
	room.EndedAt = &t
	room.WinnerID = &wid
	return true, nil
}

type memoryProblemRepo struct {
	ids []uint
}

func (r *memoryProblemRepo) FindByID(id uint) (*models.Problem, error) {
	for _, candidate := range r.ids {
		if candidate == id {
			p := &models.Problem{Title: "two sum", Difficulty: "EASY"}
			p.ID = id
			return p, nil
		}
	}
	return nil, errors.New("record not found")
}

func (r *memoryProblemRepo) ListIDs() ([]uint, error) {
	return r.ids, nil
}

func newTestService(problemIDs ...uint) (*RoomService, *memoryRoomRepo) {
	repo := newMemoryRoomRepo()
	problems := &memoryProblemRepo{ids: problemIDs}
	hub := NewRoomHub(zap.NewNop())
	svc := NewRoomService(repo, problems, hub, zap.NewNop(), UniformPicker)
	return svc, repo
}

func singleRoomInput(problemID uint, maxParticipants int) CreateRoomInput {
	return CreateRoomInput{
		MaxParticipants:      maxParticipants,
		ProblemSelectionMode: string(models.SelectionModeSingle),
		ProblemID:            &problemID,
	}
}

func TestCreateRoom(t *testing.T) {
	svc, _ := newTestService(42)

	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)

	assert.Len(t, room.ID, models.RoomCodeLength)
	assert.Equal(t, models.RoomStatusWaiting, room.Status)
	assert.Equal(t, uint(1), room.CreatedBy)
	assert.Nil(t, room.StartedAt)

	// 創建者自動成為第一位成員，初始未準備
	active := room.ActiveParticipants()
	require.Len(t, active, 1)
	assert.Equal(t, uint(1), active[0].UserID)
	assert.False(t, active[0].IsReady)
}

func TestCreateRoomInvalidConfig(t *testing.T) {
	svc, _ := newTestService(42)

	_, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 0))
	assert.ErrorIs(t, err, models.ErrInvalidConfig)

	_, err = svc.CreateRoom(1, "alice", singleRoomInput(42, 5))
	assert.ErrorIs(t, err, models.ErrInvalidConfig)

	// single 模式必須指定題目
	_, err = svc.CreateRoom(1, "alice", CreateRoomInput{
		MaxParticipants:      2,
		ProblemSelectionMode: string(models.SelectionModeSingle),
	})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)

	_, err = svc.CreateRoom(1, "alice", CreateRoomInput{
		MaxParticipants:      2,
		ProblemSelectionMode: "invalid",
	})
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}

// 場景 A：兩人房滿員後第三人加入返回 RoomFull
func TestJoinRoomCapacity(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)

	_, err = svc.JoinRoom(room.ID, 2, "bob")
	require.NoError(t, err)

	_, err = svc.JoinRoom(room.ID, 3, "carol")
	assert.ErrorIs(t, err, models.ErrRoomFull)
}

func TestJoinRoomIdempotent(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)

	// 同一用戶重複加入不產生第二條在房記錄
	joined, err := svc.JoinRoom(room.ID, 1, "alice")
	require.NoError(t, err)
	assert.Len(t, joined.ActiveParticipants(), 1)
}

func TestJoinRoomNormalizesCode(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)

	// 小寫輸入規範化後能找到房間
	var lower string
	for _, c := range room.ID {
		if c >= 'A' && c <= 'Z' {
			lower += string(c + 32)
		} else {
			lower += string(c)
		}
	}
	joined, err := svc.JoinRoom(lower, 2, "bob")
	require.NoError(t, err)
	assert.Equal(t, room.ID, joined.ID)
}

func TestLeaveAndRejoin(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)

	_, err = svc.JoinRoom(room.ID, 2, "bob")
	require.NoError(t, err)
	require.NoError(t, svc.SetReady(room.ID, 2, true))

	// 離開立即釋放空位
	require.NoError(t, svc.LeaveRoom(room.ID, 2))
	current, err := svc.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Len(t, current.ActiveParticipants(), 1)

	// 重新加入重新啟用原記錄，準備狀態歸零，且只有一條在房記錄
	rejoined, err := svc.JoinRoom(room.ID, 2, "bob")
	require.NoError(t, err)
	active := rejoined.ActiveParticipants()
	require.Len(t, active, 2)
	p := rejoined.FindActiveParticipant(2)
	require.NotNil(t, p)
	assert.False(t, p.IsReady)

	// 不在房的用戶離開是無操作
	require.NoError(t, svc.LeaveRoom(room.ID, 99))
}

func TestSetReadyNotAParticipant(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)

	err = svc.SetReady(room.ID, 99, true)
	assert.ErrorIs(t, err, models.ErrNotAParticipant)
}

// 場景 B：全員準備後房主開始，返回指定題目；重複開始返回 AlreadyStarted
func TestStartRoomSingleMode(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)

	_, err = svc.JoinRoom(room.ID, 2, "bob")
	require.NoError(t, err)
	require.NoError(t, svc.SetReady(room.ID, 1, true))
	require.NoError(t, svc.SetReady(room.ID, 2, true))

	problemID, err := svc.StartRoom(room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(42), problemID)

	started, err := svc.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, started.Status)
	require.NotNil(t, started.StartedAt)
	require.NotNil(t, started.ProblemID)

	_, err = svc.StartRoom(room.ID, 1)
	assert.ErrorIs(t, err, models.ErrAlreadyStarted)
}

// 場景 C：random 模式開始時抽題，之後讀到的題目保持不變
func TestStartRoomRandomMode(t *testing.T) {
	svc, _ := newTestService(7, 8, 9)
	room, err := svc.CreateRoom(1, "alice", CreateRoomInput{
		MaxParticipants:      2,
		ProblemSelectionMode: string(models.SelectionModeRandom),
	})
	require.NoError(t, err)
	require.Nil(t, room.ProblemID)

	require.NoError(t, svc.SetReady(room.ID, 1, true))

	problemID, err := svc.StartRoom(room.ID, 1)
	require.NoError(t, err)
	assert.Contains(t, []uint{7, 8, 9}, problemID)

	for i := 0; i < 3; i++ {
		current, err := svc.GetRoom(room.ID)
		require.NoError(t, err)
		require.NotNil(t, current.ProblemID)
		assert.Equal(t, problemID, *current.ProblemID)
	}
}

func TestStartRoomRejections(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)
	_, err = svc.JoinRoom(room.ID, 2, "bob")
	require.NoError(t, err)

	// 非房主不能開始
	_, err = svc.StartRoom(room.ID, 2)
	assert.ErrorIs(t, err, models.ErrForbidden)

	// 有人未準備不能開始
	require.NoError(t, svc.SetReady(room.ID, 1, true))
	_, err = svc.StartRoom(room.ID, 1)
	assert.ErrorIs(t, err, models.ErrNotReady)

	// 成員離開後以剩餘在房成員判定準備狀態
	require.NoError(t, svc.LeaveRoom(room.ID, 2))
	_, err = svc.StartRoom(room.ID, 1)
	assert.NoError(t, err)
}

func TestStartRoomNoProblems(t *testing.T) {
	svc, _ := newTestService() // 空題庫
	room, err := svc.CreateRoom(1, "alice", CreateRoomInput{
		MaxParticipants:      2,
		ProblemSelectionMode: string(models.SelectionModeRandom),
	})
	require.NoError(t, err)
	require.NoError(t, svc.SetReady(room.ID, 1, true))

	_, err = svc.StartRoom(room.ID, 1)
	assert.ErrorIs(t, err, models.ErrNoProblems)
}

func TestCompleteRoom(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)
	_, err = svc.JoinRoom(room.ID, 2, "bob")
	require.NoError(t, err)

	// 尚未開始不能結束
	err = svc.CompleteRoom(room.ID, 2)
	assert.ErrorIs(t, err, models.ErrRoomNotActive)

	require.NoError(t, svc.SetReady(room.ID, 1, true))
	require.NoError(t, svc.SetReady(room.ID, 2, true))
	_, err = svc.StartRoom(room.ID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.CompleteRoom(room.ID, 2))

	done, err := svc.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusCompleted, done.Status)
	require.NotNil(t, done.WinnerID)
	assert.Equal(t, uint(2), *done.WinnerID)
	require.NotNil(t, done.EndedAt)

	// 結束後的再次結束與獲勝者都不再變化
	err = svc.CompleteRoom(room.ID, 1)
	assert.ErrorIs(t, err, models.ErrRoomNotActive)
	after, err := svc.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), *after.WinnerID)
}

func TestDeleteRoom(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)

	// 非房主不能刪除
	err = svc.DeleteRoom(room.ID, 2)
	assert.ErrorIs(t, err, models.ErrForbidden)

	require.NoError(t, svc.DeleteRoom(room.ID, 1))
	_, err = svc.GetRoom(room.ID)
	assert.ErrorIs(t, err, models.ErrRoomNotFound)
}

func TestDeleteRoomAfterStart(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)
	require.NoError(t, svc.SetReady(room.ID, 1, true))
	_, err = svc.StartRoom(room.ID, 1)
	require.NoError(t, err)

	err = svc.DeleteRoom(room.ID, 1)
	assert.ErrorIs(t, err, models.ErrRoomNotDeletable)
}

func TestRandomJoin(t *testing.T) {
	svc, _ := newTestService(42)

	// 沒有可加入的房間時降級為創建新房間
	room, err := svc.RandomJoin(1, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusWaiting, room.Status)
	assert.Equal(t, models.SelectionModeRandom, room.ProblemSelectionMode)
	require.NotNil(t, room.FindActiveParticipant(1))

	// 有空位的公開房間直接加入
	joined, err := svc.RandomJoin(2, "bob")
	require.NoError(t, err)
	assert.Equal(t, room.ID, joined.ID)
	require.NotNil(t, joined.FindActiveParticipant(2))
}

func TestRandomJoinSkipsPrivateRooms(t *testing.T) {
	svc, _ := newTestService(42)

	private, err := svc.CreateRoom(1, "alice", CreateRoomInput{
		MaxParticipants:      4,
		ProblemSelectionMode: string(models.SelectionModeSingle),
		ProblemID:            uintPtr(42),
		IsPrivate:            true,
	})
	require.NoError(t, err)

	room, err := svc.RandomJoin(2, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, private.ID, room.ID)
}

func TestListPublicRoomsExcludesPrivate(t *testing.T) {
	svc, _ := newTestService(42)

	public, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)
	_, err = svc.CreateRoom(2, "bob", CreateRoomInput{
		MaxParticipants:      2,
		ProblemSelectionMode: string(models.SelectionModeSingle),
		ProblemID:            uintPtr(42),
		IsPrivate:            true,
	})
	require.NoError(t, err)

	rooms, err := svc.ListPublicRooms()
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, public.ID, rooms[0].ID)
}

// 並發加入永遠不會超過容量上限
func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 4))
	require.NoError(t, err)

	const joiners = 16
	var wg sync.WaitGroup
	errs := make([]error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.JoinRoom(room.ID, uint(100+i), "user")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, models.ErrRoomFull)
		}
	}
	// 創建者占一個位置，剩餘 3 個空位
	assert.Equal(t, 3, succeeded)

	current, err := svc.GetRoom(room.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(current.ActiveParticipants()), current.MaxParticipants)
}

// 並發開始恰好一個成功，startedAt 與題目只設置一次
func TestConcurrentStartExactlyOnce(t *testing.T) {
	svc, _ := newTestService(42)
	room, err := svc.CreateRoom(1, "alice", singleRoomInput(42, 2))
	require.NoError(t, err)
	_, err = svc.JoinRoom(room.ID, 2, "bob")
	require.NoError(t, err)
	require.NoError(t, svc.SetReady(room.ID, 1, true))
	require.NoError(t, svc.SetReady(room.ID, 2, true))

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.StartRoom(room.ID, 1)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, models.ErrAlreadyStarted)
		}
	}
	assert.Equal(t, 1, succeeded)

	started, err := svc.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, started.Status)
	require.NotNil(t, started.StartedAt)
	require.NotNil(t, started.ProblemID)
	assert.Equal(t, uint(42), *started.ProblemID)
}

func uintPtr(v uint) *uint { return &v }
