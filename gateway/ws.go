package gateway

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/playout/notify"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the gateway sits behind the platform's own ingress
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams live updates to one websocket client: a full state view
// on connect, then every published update until either side goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	updates, cancel := s.notifier.Subscribe()
	defer cancel()
	defer conn.Close()

	s.logger.Info("websocket client connected", "remote", conn.RemoteAddr().String())

	// reader exists only to process pongs and detect the client closing
	go func() {
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	initial := notify.NewUpdate(notify.TypeState)
	view := notify.SnapshotView(s.engine.Snapshot())
	initial.State = &view
	if err := s.writeUpdate(conn, initial); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := s.writeUpdate(conn, u); err != nil {
				return
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeUpdate(conn *websocket.Conn, u notify.Update) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(u)
}
