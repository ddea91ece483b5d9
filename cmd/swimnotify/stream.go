package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"swimnotify/internal/service"
	"swimnotify/internal/tracing"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

const socketWriteTimeout = 5 * time.Second

var errStreamClosed = stderrors.New("status stream closed")

// streamSubscriber adapts one HTTP connection to gateway.Subscriber. Writes
// from the broadcaster and the keepalive loop are serialized, and nothing is
// written once the handler has returned.
type streamSubscriber struct {
	mu     sync.Mutex
	closed bool
	send   func(text string) error
}

func (s *streamSubscriber) Write(text string) error {
	return s.locked(func() error { return s.send(text) })
}

func (s *streamSubscriber) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	return fn()
}

// subscribe registers sub and writes the current snapshot before any
// broadcast can reach it
func (s *Server) subscribe(sub *streamSubscriber) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	s.deps.Provider.AddClient(sub)
	payload, err := json.Marshal(s.deps.Provider.GetStatus())
	if err != nil {
		return err
	}
	return sub.send(string(payload))
}

func (s *Server) unsubscribe(sub *streamSubscriber) {
	s.deps.Provider.RemoveClient(sub)
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()
}

func (s *Server) streamLogger(r *http.Request, transport string) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		service.LogFieldRequestID: tracing.RequestID(r.Context()),
		service.LogFieldComponent: transport,
	})
}

// handleStatusStream pushes status snapshots as server-sent events
func (s *Server) handleStatusStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		sub := &streamSubscriber{send: func(text string) error {
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", text); err != nil {
				return err
			}
			return rc.Flush()
		}}

		logger := s.streamLogger(r, "sse")
		if err := s.subscribe(sub); err != nil {
			logger.WithError(err).Warn("Failed to start status stream")
			s.deps.Provider.RemoveClient(sub)
			return
		}
		defer func() {
			s.unsubscribe(sub)
			logger.Debug("Status stream closed")
		}()
		logger.Debug("Status stream opened")

		ticker := time.NewTicker(s.keepalive)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				err := sub.locked(func() error {
					if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
						return err
					}
					return rc.Flush()
				})
				if err != nil {
					logger.WithError(err).Debug("Status stream keepalive failed")
					return
				}
			}
		}
	}
}

// handleStatusSocket pushes status snapshots as websocket text frames
func (s *Server) handleStatusSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc := http.NewResponseController(w)
		_ = rc.SetWriteDeadline(time.Time{})
		_ = rc.SetReadDeadline(time.Time{})

		logger := s.streamLogger(r, "websocket")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.WithError(err).Warn("Failed to accept status websocket")
			return
		}
		defer conn.CloseNow()

		// Clients only listen; CloseRead handles their control frames
		ctx := conn.CloseRead(r.Context())

		sub := &streamSubscriber{send: func(text string) error {
			writeCtx, cancel := context.WithTimeout(ctx, socketWriteTimeout)
			defer cancel()
			return conn.Write(writeCtx, websocket.MessageText, []byte(text))
		}}

		if err := s.subscribe(sub); err != nil {
			logger.WithError(err).Warn("Failed to start status websocket")
			s.deps.Provider.RemoveClient(sub)
			return
		}
		defer func() {
			s.unsubscribe(sub)
			logger.Debug("Status websocket closed")
		}()
		logger.Debug("Status websocket opened")

		ticker := time.NewTicker(s.keepalive)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, socketWriteTimeout)
				err := conn.Ping(pingCtx)
				cancel()
				if err != nil {
					logger.WithError(err).Debug("Status websocket ping failed")
					return
				}
			}
		}
	}
}
