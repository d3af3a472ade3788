package server

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/internal/service"
)

const (
	MessageQuery    = "query"
	MessageSources  = "sources"
	MessageStream   = "stream"
	MessageResponse = "response"
	MessageDone     = "done"
	MessageError    = "error"
)

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

// handleWebSocket answers queries over a socket, one at a time per
// connection, so writes never interleave.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.WithError(err).Warn("Error reading message")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			if !s.send(conn, Message{Type: MessageError, Content: "Invalid message"}) {
				return
			}
			continue
		}

		if msg.Type != MessageQuery {
			if !s.send(conn, Message{Type: MessageError, Content: "Unsupported message type: " + msg.Type}) {
				return
			}
			continue
		}

		if !s.answer(c.Request.Context(), conn, msg.Content) {
			return
		}
	}
}

// answer runs one query and reports whether the connection is still usable.
func (s *Server) answer(ctx context.Context, conn *websocket.Conn, query string) bool {
	alive := true

	write := func(msg Message) error {
		if err := conn.WriteJSON(msg); err != nil {
			alive = false
			return err
		}
		return nil
	}
	onSources := func(matches []models.SearchMatch) error {
		return write(Message{Type: MessageSources, Data: matches})
	}

	var err error
	if s.config.Streaming {
		_, err = s.svc.SearchStream(ctx, query, onSources, func(token string) error {
			return write(Message{Type: MessageStream, Content: token})
		})
	} else {
		var res *service.SearchResult
		res, err = s.svc.Search(ctx, query)
		if err == nil {
			if err = onSources(res.Sources); err == nil {
				err = write(Message{Type: MessageResponse, Content: res.Answer})
			}
		}
	}

	if !alive {
		s.log.WithError(err).Warn("Client went away mid-answer")
		return false
	}
	if err != nil {
		if statusFor(err) >= 500 {
			s.log.WithError(err).Error("WebSocket query failed")
		}
		return s.send(conn, Message{Type: MessageError, Content: err.Error()})
	}
	return s.send(conn, Message{Type: MessageDone})
}

func (s *Server) send(conn *websocket.Conn, msg Message) bool {
	if err := conn.WriteJSON(msg); err != nil {
		s.log.WithError(err).Warn("Error sending message")
		return false
	}
	return true
}
