package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the mobile client connects from app webviews and dev hosts
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Events upgrades to a websocket and streams snapshots until the client
// goes away. Each connection gets its own subscription.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[http] ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	ch, cancel := h.ctl.Subscribe()
	defer cancel()

	// reader goroutine only to detect close
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// initial state so the client does not wait for the next change
	if err := conn.WriteJSON(h.ctl.Snapshot()); err != nil {
		return
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
