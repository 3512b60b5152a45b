package roomchat

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"code_arena/internal/models"
)

// DialRoom 返回通過 WebSocket 連接房間頻道的 DialFunc
// baseURL 形如 ws://host:port，token 為登入後取得的 JWT
func DialRoom(baseURL, roomID, token string) DialFunc {
	return func(ctx context.Context) (Transport, error) {
		url := fmt.Sprintf("%s/api/rooms/%s/ws?token=%s", baseURL, roomID, token)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, err
		}
		return &wsTransport{conn: conn}, nil
	}
}

type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) ReadEvent() (*models.RoomEvent, error) {
	var event models.RoomEvent
	if err := t.conn.ReadJSON(&event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (t *wsTransport) WriteMessage(msg *models.ChatMessage) error {
	return t.conn.WriteJSON(msg)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
