package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mherren/voxbot/internal/service"
	"github.com/mherren/voxbot/lib/logger/sl"
)

// FeedHub fans room lifecycle events out to connected websocket clients. It
// implements service.EventSink; Publish never blocks the lifecycle, slow
// clients just miss events.
type FeedHub struct {
	log *slog.Logger

	register   chan *feedClient
	unregister chan *feedClient
	events     chan service.RoomEvent
	done       chan struct{}
	once       sync.Once

	clients map[*feedClient]struct{}
}

type feedClient struct {
	send chan []byte
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewFeedHub(log *slog.Logger) *FeedHub {
	if log == nil {
		log = slog.Default()
	}
	return &FeedHub{
		log:        log,
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		events:     make(chan service.RoomEvent, 64),
		done:       make(chan struct{}),
		clients:    make(map[*feedClient]struct{}),
	}
}

func (h *FeedHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
		case event := <-h.events:
			data, err := json.Marshal(event)
			if err != nil {
				h.log.Warn("failed to encode room event", sl.Err(err))
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow consumer; drop the event rather than stall.
				}
			}
		case <-h.done:
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*feedClient]struct{})
			return
		}
	}
}

func (h *FeedHub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Publish implements service.EventSink.
func (h *FeedHub) Publish(event service.RoomEvent) {
	select {
	case h.events <- event:
	case <-h.done:
	default:
	}
}

func (h *FeedHub) ServeWS(ctx *gin.Context) {
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", sl.Err(err))
		return
	}

	client := &feedClient{send: make(chan []byte, 16)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writeLoop(conn, client)
	go h.readLoop(conn, client)
}

func (h *FeedHub) writeLoop(conn *websocket.Conn, client *feedClient) {
	defer conn.Close()

	for data := range client.send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readLoop exists to notice disconnects; the feed is one-directional.
func (h *FeedHub) readLoop(conn *websocket.Conn, client *feedClient) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
