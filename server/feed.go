package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/nathoo/lorecore/realtime"
)

// KindSnapshot is the first message on every feed: the session as stored
// when the connection opened.
const KindSnapshot = "snapshot"

const (
	feedBuffer = 64
	writeWait  = 10 * time.Second
)

// clientMessage is what a feed client may send.
type clientMessage struct {
	Type string `json:"type"`
}

// feed upgrades to a WebSocket that streams the session's updates. The
// player query parameter, when set, is tracked for presence and refreshed
// by {"type":"heartbeat"} messages.
func (s *Server) feed(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("session")
	player := c.Query("player")

	rec, err := s.Engine.Store.Session(ctx, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	// Subscribe before upgrading so no update is lost between the snapshot
	// and the first forwarded message.
	sub, cancelSub, err := s.Engine.Sync.Subscribe(ctx, sessionID)
	if err != nil {
		writeError(c, fmt.Errorf("subscribe: %w", err))
		return
	}
	defer cancelSub()

	conn, err := s.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "websocket upgrade failed", "session", sessionID, "error", err)
		return
	}
	defer conn.Close()

	feedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if player != "" {
		s.Engine.Sync.Track(feedCtx, sessionID, player)
		defer s.Engine.Sync.Untrack(feedCtx, sessionID, player)
	}

	writeCh := make(chan any, feedBuffer)
	writeCh <- realtime.Update{
		SessionID:           rec.ID,
		Kind:                KindSnapshot,
		Version:             rec.Version,
		CurrentNodeID:       rec.CurrentNodeID,
		CurrentTurnPlayerID: rec.CurrentTurnPlayerID,
		TurnOrder:           rec.TurnOrder,
		StoryFlags:          rec.StoryFlags,
		Status:              rec.Status,
		Online:              s.Engine.Sync.Presence.Online(sessionID),
		At:                  rec.UpdatedAt,
	}

	slog.InfoContext(feedCtx, "feed opened", "session", sessionID, "player", player)
	eg, gctx := errgroup.WithContext(feedCtx)
	eg.Go(func() error { return s.readPump(gctx, conn, sessionID, player) })
	eg.Go(func() error { return s.writePump(gctx, conn, writeCh) })
	eg.Go(func() error { return forward(gctx, sub, writeCh, sessionID) })
	eg.Go(func() error {
		// Unblocks the read pump once any pump has stopped.
		<-gctx.Done()
		return conn.Close()
	})
	err = eg.Wait()
	if err != nil && !isClosure(err) {
		slog.WarnContext(feedCtx, "feed closed", "session", sessionID, "player", player, "error", err)
		return
	}
	slog.InfoContext(feedCtx, "feed closed", "session", sessionID, "player", player)
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, sessionID, player string) error {
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		switch msg.Type {
		case "heartbeat":
			if player != "" {
				s.Engine.Sync.Heartbeat(ctx, sessionID, player)
			}
		default:
			slog.DebugContext(ctx, "ignored feed message", "session", sessionID, "type", msg.Type)
		}
	}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, writeCh <-chan any) error {
	ping := time.NewTicker(s.pingInterval())
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return nil
		case v := <-writeCh:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(v); err != nil {
				return err
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}

// forward copies broker updates to the write channel. A full channel drops
// the update rather than stalling the broker.
func forward(ctx context.Context, sub <-chan realtime.Update, writeCh chan<- any, sessionID string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-sub:
			if !ok {
				return errors.New("session feed closed")
			}
			select {
			case writeCh <- u:
			default:
				slog.WarnContext(ctx, "feed backlog full, update dropped", "session", sessionID, "kind", u.Kind, "version", u.Version)
			}
		}
	}
}

func (s *Server) pingInterval() time.Duration {
	if s.PingInterval <= 0 {
		return 25 * time.Second
	}
	return s.PingInterval
}

func isClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, http.ErrServerClosed)
}
