package chatroom

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"fluxy/types"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const persistTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MessageSink persists chat lines. servers.Engine satisfies it.
type MessageSink interface {
	CreateMessage(ctx context.Context, serverID, channelID, author int64, content string) (*types.Message, error)
}

// ChannelGate decides who may subscribe to a channel. servers.Engine
// satisfies it.
type ChannelGate interface {
	CanJoinChannel(ctx context.Context, user, serverID, channelID int64) (bool, error)
}

type Handler struct {
	Registry *Registry
	Sink     MessageSink
	Gate     ChannelGate

	ChatRateMax    int
	ChatRateWindow time.Duration
}

func NewHandler(reg *Registry, sink MessageSink, gate ChannelGate) *Handler {
	return &Handler{
		Registry:       reg,
		Sink:           sink,
		Gate:           gate,
		ChatRateMax:    defaultChatRateMax,
		ChatRateWindow: defaultChatRateWindow,
	}
}

func joinedLine(name string) string { return fmt.Sprintf("%s joined the chat", name) }
func leftLine(name string) string   { return fmt.Sprintf("%s left the chat", name) }
func chatLine(name, content string) string {
	return fmt.Sprintf("%s: %s", name, content)
}

// HandleSocket serves GET /ws?server_id=&channel_id= for an authenticated
// user. The auth middleware puts userID, userUsername and userEmail on the
// context.
func (h *Handler) HandleSocket(c *gin.Context) {
	userID := c.GetInt64("userID")
	if userID == 0 {
		c.JSON(401, gin.H{"error": "Unauthorized"})
		return
	}
	serverID, err := strconv.ParseInt(c.Query("server_id"), 10, 64)
	if err != nil || serverID <= 0 {
		c.JSON(400, gin.H{"error": "invalid server_id"})
		return
	}
	channelID, err := strconv.ParseInt(c.Query("channel_id"), 10, 64)
	if err != nil || channelID <= 0 {
		c.JSON(400, gin.H{"error": "invalid channel_id"})
		return
	}
	if h.Gate != nil {
		allowed, err := h.Gate.CanJoinChannel(c.Request.Context(), userID, serverID, channelID)
		if err != nil {
			log.Printf("HandleSocket: access check for user %d failed: %v", userID, err)
			c.JSON(500, gin.H{"error": "Internal server error"})
			return
		}
		if !allowed {
			c.JSON(403, gin.H{"error": "Forbidden"})
			return
		}
	}
	name := c.GetString("userUsername")
	if name == "" {
		name = c.GetString("userEmail")
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("WebSocket upgrade failed:", err)
		return
	}

	client := NewClient(conn, userID, name, serverID, channelID)
	go client.WritePump()
	h.serve(client)
}

func (h *Handler) serve(client *Client) {
	conn := client.Conn
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	h.Registry.Join(client, client.UserID, client.ServerID, client.ChannelID)
	h.Registry.Broadcast(client.ServerID, client.ChannelID, joinedLine(client.Name))

	limiter := newChatLimiter(h.ChatRateMax, h.ChatRateWindow)
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("HandleSocket: read error for user %d: %v", client.UserID, err)
			}
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !limiter.allow(time.Now()) {
			log.Printf("HandleSocket: rate limit exceeded for user %d, frame dropped", client.UserID)
			continue
		}

		content := string(data)
		h.Registry.Broadcast(client.ServerID, client.ChannelID, chatLine(client.Name, content))
		go h.persist(client, content)
	}

	h.Registry.Broadcast(client.ServerID, client.ChannelID, leftLine(client.Name))
	h.Registry.Leave(client.UserID, client)
	client.Close()
}

func (h *Handler) persist(client *Client, content string) {
	if h.Sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if _, err := h.Sink.CreateMessage(ctx, client.ServerID, client.ChannelID, client.UserID, content); err != nil {
		log.Printf("HandleSocket: failed to persist message from user %d: %v", client.UserID, err)
	}
}
