// Copyright 2016-present Oliver Eilhard. All rights reserved.
// Use of this source code is governed by a MIT-license.
// See http://olivere.mit-license.org/license.txt for details.

package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/docpipe/docpipe"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleJobFeed is the websocket twin of the SSE stream: one JSON status
// record per message, connection closed after the terminal record.
func (s *Server) handleJobFeed(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	updates, cancel := s.tracker.Subscribe(jobID)
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		return
	}

	// Read pump: drain control frames and surface client disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		cancel()
		ws.Close()
	}()

	// Initial snapshot, if the job exists yet. last guards against the
	// snapshot record arriving again through the subscription.
	var last docpipe.StatusRecord
	if rec, err := s.tracker.Get(r.Context(), jobID); err == nil {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteJSON(rec); err != nil {
			return
		}
		if rec.Terminal {
			s.closeFeed(ws)
			return
		}
		last = rec
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case rec, more := <-updates:
			if !more {
				s.closeFeed(ws)
				return
			}
			if rec == last {
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(rec); err != nil {
				return
			}
			last = rec
			if rec.Terminal {
				s.closeFeed(ws)
				return
			}
		}
	}
}

func (s *Server) closeFeed(ws *websocket.Conn) {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")); err != nil &&
		err != websocket.ErrCloseSent {
		s.log.Debug("feed close failed", zap.Error(err))
	}
}
