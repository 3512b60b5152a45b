package roomsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"code_arena/internal/models"
)

// NewHTTPFetcher 返回一個通過 REST API 拉取房間完整狀態的 FetchFunc
// 指向 GET /api/rooms/:id，即服務端保證線性一致讀的端點
func NewHTTPFetcher(baseURL, token string, client *http.Client) FetchFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, roomID string) (*models.Room, error) {
		url := fmt.Sprintf("%s/api/rooms/%s", baseURL, roomID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, models.ErrRoomNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch room: unexpected status %d", resp.StatusCode)
		}

		var room models.Room
		if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
			return nil, err
		}
		return &room, nil
	}
}
