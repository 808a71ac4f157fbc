package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"classroom/internal/applog"
	"classroom/internal/attendance"
	"classroom/internal/classroom"
	"classroom/internal/recordstore"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Watchers only send control frames.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Callers authenticate with a bearer token, not cookies.
	CheckOrigin: func(*http.Request) bool { return true },
}

// watchMessage is one frame sent to a watcher.
type watchMessage struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// startFunc opens a subscription that reports through send and sendErr.
type startFunc func(ctx context.Context, send func(any), sendErr func(error)) (*recordstore.Subscription, error)

func (h *Handler) WatchCourses(c *gin.Context) {
	serveWatch(c, func(ctx context.Context, send func(any), sendErr func(error)) (*recordstore.Subscription, error) {
		return h.classes.WatchCourses(ctx, func(cs []classroom.Course) { send(cs) }, sendErr)
	})
}

func (h *Handler) WatchPeople(c *gin.Context) {
	courseID := c.Param("courseId")
	serveWatch(c, func(ctx context.Context, send func(any), sendErr func(error)) (*recordstore.Subscription, error) {
		return h.classes.WatchPeople(ctx, courseID, func(ps []classroom.Person) { send(ps) }, sendErr)
	})
}

func (h *Handler) WatchQuestions(c *gin.Context) {
	courseID := c.Param("courseId")
	serveWatch(c, func(ctx context.Context, send func(any), sendErr func(error)) (*recordstore.Subscription, error) {
		return h.classes.WatchQuestions(ctx, courseID, func(qs []classroom.Question) { send(qs) }, sendErr)
	})
}

func (h *Handler) WatchAttendance(c *gin.Context) {
	courseID := c.Param("courseId")
	serveWatch(c, func(ctx context.Context, send func(any), sendErr func(error)) (*recordstore.Subscription, error) {
		return h.att.WatchReport(ctx, courseID, func(r attendance.Report) { send(r) }, sendErr)
	})
}

// serveWatch subscribes before upgrading so that subscription errors are
// reported as plain HTTP responses. Only the latest pending frame is kept;
// every frame carries the full current state.
func serveWatch(c *gin.Context, start startFunc) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	out := make(chan watchMessage, 1)
	push := func(m watchMessage) {
		for {
			select {
			case out <- m:
				return
			default:
			}
			select {
			case <-out:
			default:
			}
		}
	}
	sub, err := start(ctx,
		func(v any) { push(watchMessage{Type: "snapshot", Data: v}) },
		func(err error) { push(watchMessage{Type: "error", Error: err.Error()}) },
	)
	if err != nil {
		fail(c, err)
		return
	}
	defer sub.Unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		applog.Printf("watch %s: upgrade: %v", sub.Path(), err)
		return
	}
	defer conn.Close()

	go readPump(conn, cancel)
	writePump(ctx, conn, sub, out)
}

// readPump discards client frames and keeps the read deadline moving on pongs.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				applog.Printf("watch read: %v", err)
			}
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, sub *recordstore.Subscription, out <-chan watchMessage) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case m := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(m); err != nil {
				return
			}
		case <-sub.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
