package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/puntos-app/puntos/internal/domain"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = (feedPongWait * 9) / 10
	feedBuffer     = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same policy as corsMiddleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feedMessage is one frame on the snapshot feed.
type feedMessage struct {
	Type    string          `json:"type"` // "snapshot"
	Profile profileResponse `json:"profile"`
}

// feedClient is one websocket connection following a user's profile.
type feedClient struct {
	conn    *websocket.Conn
	userID  string
	writeMu sync.Mutex
}

func (c *feedClient) safeWriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *feedClient) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteWait))
}

// handleFeed streams every stored snapshot of the user's profile, starting
// with the current one.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	// The store calls listeners synchronously; never block it. A slow
	// client skips intermediate snapshots and gets the latest one.
	updates := make(chan domain.Profile, feedBuffer)
	unsubscribe := s.feed.Subscribe(userID, func(p domain.Profile) {
		select {
		case updates <- p:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- p:
			default:
			}
		}
	})
	defer unsubscribe()

	// Subscribed first so nothing stored after this read is missed.
	current, err := s.engine.Profile(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err, current)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] websocket upgrade for %s: %v", userID, err)
		return
	}
	client := &feedClient{conn: conn, userID: userID}
	defer conn.Close()

	if err := client.safeWriteJSON(feedMessage{Type: "snapshot", Profile: withLevel(current)}); err != nil {
		return
	}
	sent := current.Version

	// Reader: only control frames are expected; any error ends the feed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(feedPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(feedPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[api] websocket %s: %v", userID, err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case p := <-updates:
			if p.Version <= sent {
				continue
			}
			sent = p.Version
			if err := client.safeWriteJSON(feedMessage{Type: "snapshot", Profile: withLevel(p)}); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.ping(); err != nil {
				return
			}
		}
	}
}
