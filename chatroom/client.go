package chatroom

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize  = 64 * 1024
	sendQueueSize = 256
)

// Client is one websocket connection subscribed to a single channel.
type Client struct {
	ID        string
	Conn      *websocket.Conn
	UserID    int64
	Name      string
	ServerID  int64
	ChannelID int64
	SendQueue chan string
	Done      chan struct{}

	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, userID int64, name string, serverID, channelID int64) *Client {
	return &Client{
		ID:        uuid.NewString(),
		Conn:      conn,
		UserID:    userID,
		Name:      name,
		ServerID:  serverID,
		ChannelID: channelID,
		SendQueue: make(chan string, sendQueueSize),
		Done:      make(chan struct{}),
	}
}

// Deliver queues content without blocking. A full queue or a closed
// client drops it.
func (c *Client) Deliver(content string) bool {
	select {
	case <-c.Done:
		return false
	default:
	}
	select {
	case c.SendQueue <- content:
		return true
	default:
		log.Printf("safeSend: send queue full for client %s", c.ID)
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Done) })
}

// WritePump owns all data writes to the connection and keeps it alive
// with pings. It closes the connection on exit, which unblocks the reader.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg := <-c.SendQueue:
			if err := c.write(websocket.TextMessage, []byte(msg)); err != nil {
				log.Println("WritePump error:", err)
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Println("WritePump ping error:", err)
				return
			}
		case <-c.Done:
			c.drain()
			_ = c.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// drain flushes whatever is already queued, such as the "left" line.
func (c *Client) drain() {
	for {
		select {
		case msg := <-c.SendQueue:
			if err := c.write(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(mt int, payload []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(mt, payload)
}
