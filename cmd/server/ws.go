package main

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"metalsync/internal/orchestrator"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// listener is the subset of *broadcast.Listener the stream uses.
type listener interface {
	Channel() <-chan interface{}
	Discard()
}

type orchestratorSyncer struct{ o *orchestrator.Orchestrator }

func (s orchestratorSyncer) Status() orchestrator.Status { return s.o.Status() }

func (s orchestratorSyncer) RequestPassiveLoad(ctx context.Context) orchestrator.Status {
	return s.o.RequestPassiveLoad(ctx)
}

func (s orchestratorSyncer) RequestManualRefresh(ctx context.Context) orchestrator.RefreshResult {
	return s.o.RequestManualRefresh(ctx)
}

func (s orchestratorSyncer) Subscribe() listener { return s.o.Subscribe() }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// statusStream sends the current status on connect and then every change.
func statusStream(s syncer, log logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Debug("websocket upgrade failed")
			return
		}
		defer conn.Close()

		l := s.Subscribe()
		defer func() {
			// A send waiting on a full buffer holds the broadcaster lock
			// that Discard needs, so keep the buffer moving.
			go func() {
				for range l.Channel() {
				}
			}()
			l.Discard()
		}()

		if err := writeStatus(conn, s.Status()); err != nil {
			return
		}

		closed := make(chan struct{})
		go readPump(conn, closed)

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-closed:
				return
			case v, ok := <-l.Channel():
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
					return
				}
				st, ok := v.(orchestrator.Status)
				if !ok {
					continue
				}
				if err := writeStatus(conn, st); err != nil {
					log.WithError(err).Debug("websocket write failed")
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	})
}

// readPump discards client frames and reports when the peer goes away.
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeStatus(conn *websocket.Conn, st orchestrator.Status) error {
	b, err := sonic.Marshal(st)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}
