package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 64 << 10
)

// clientMessage is one action sent by the wizard client.
type clientMessage struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || s.cfg.Server.Debug {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		},
	}
}

// handleWizardSocket is the live channel of one mount. Every accepted
// action is answered with a render to all sockets of the mount.
func (s *Server) handleWizardSocket(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	m, ok := s.mountFor(u, r.URL.Query().Get("mount"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "wizard not found")
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &wsConn{conn: conn}
	if !m.attach(c) {
		_ = conn.Close()
		return
	}
	log := s.logger.Named("ws").With(zap.String("mount", m.id))
	log.Debug("connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		m.detach(c)
		_ = conn.Close()
		log.Debug("disconnected")
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.keepAlive(ctx, c)

	if msg, err := s.renderWizard(m); err == nil {
		_ = c.send(msg)
	}

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("read failed", zap.Error(err))
			}
			return
		}
		if !s.handleSocketMessage(ctx, m, u, c, msg) {
			return
		}
	}
}

// handleSocketMessage applies msg and reports whether the socket should
// stay open.
func (s *Server) handleSocketMessage(ctx context.Context, m *mount, u user, c *wsConn, msg clientMessage) bool {
	if !s.mounts.touch(m.id) {
		return false
	}
	m.setNotice("")
	switch msg.Action {
	case "submit":
		if confirmed, _ := msg.Data["confirm"].(bool); !confirmed {
			m.setNotice(noticeConfirm)
			break
		}
		// Phase changes push their own renders. The submission outlives
		// the socket so a closed tab does not cancel it halfway.
		sctx := context.WithoutCancel(ctx)
		go func() {
			s.submit(sctx, m, u)
			s.pushRender(m)
		}()
		return true
	case "pagehide":
		persisted, _ := msg.Data["persisted"].(bool)
		m.lifecycle.PageHide(persisted)
		if !persisted {
			s.mounts.remove(m.id)
			return false
		}
		return true
	default:
		if err := m.wizard.HandleAction(ctx, msg.Action, msg.Data); err != nil {
			_ = c.send(errorMessage{Type: "error", Message: err.Error()})
			return true
		}
		// Keystrokes only update state; re-rendering would move the caret.
		if live, _ := msg.Data["live"].(bool); live && msg.Action == "change" {
			return true
		}
	}
	s.pushRender(m)
	return true
}

func (s *Server) keepAlive(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
