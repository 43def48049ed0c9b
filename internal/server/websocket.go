package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pixelcanvas/internal/auth"
	"pixelcanvas/internal/canvas"
	"pixelcanvas/internal/credit"
	"pixelcanvas/internal/domain"
	"pixelcanvas/internal/protocol"
	"pixelcanvas/internal/session"
)

// Replies sent to the sender as opcode 5.
const (
	msgAuthRequired = "Authentication required."
	msgRateLimited  = "Cannot consume a token at this time."
)

// handleSession runs one connection: handshake, then the frame loop until the
// transport closes.
func (s *Server) handleSession(c *gin.Context) {
	user, err := s.identify(c.Request)
	if err != nil {
		s.metrics.handshakeFailures.WithLabelValues("auth").Inc()
		status := http.StatusUnauthorized
		if !isUnauthenticated(err) {
			s.logger.Error("authenticate session", "err", err)
			status = http.StatusInternalServerError
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.metrics.handshakeFailures.WithLabelValues("upgrade").Inc()
		s.logger.Warn("websocket upgrade", "err", err)
		return
	}

	client := session.NewClient(conn, user, s.opts.Session)
	log := s.logger.With("session", client.ID.String(), "user", client.Name())

	// Register before reading the snapshot. Paints committed after the read
	// queue up in the send buffer and follow the init frame once the write
	// pump starts.
	s.hub.Add(client)

	snap, err := s.store.ReadAll()
	if err != nil {
		s.hub.Remove(client.ID)
		s.metrics.handshakeFailures.WithLabelValues("snapshot").Inc()
		log.Error("read canvas snapshot", "err", err)
		client.Reject("canvas unavailable")
		return
	}
	hello := protocol.InitConnection{Author: client.Name(), Snapshot: snap}
	if err := client.WriteDirect(protocol.EncodeBytes(hello)); err != nil {
		s.hub.Remove(client.ID)
		s.metrics.handshakeFailures.WithLabelValues("init").Inc()
		log.Warn("send initial canvas", "err", err)
		client.Reject("initial canvas not delivered")
		return
	}

	s.metrics.sessions.Inc()
	log.Info("session opened", "anonymous", client.Anonymous())

	go client.WritePump()

	ctx := c.Request.Context()
	err = client.ReadPump(func(frame []byte) {
		s.handleFrame(ctx, client, frame)
	})
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		log.Warn("websocket error", "err", err)
	}

	s.hub.Remove(client.ID)
	s.metrics.sessions.Dec()
	log.Info("session closed")
}

// identify returns the caller's user, or nil for an anonymous viewer when
// those are allowed.
func (s *Server) identify(r *http.Request) (*domain.User, error) {
	user, err := s.auth.Authenticate(r)
	if err == nil {
		return user, nil
	}
	if isUnauthenticated(err) && s.opts.AllowAnonymous {
		return nil, nil
	}
	return nil, err
}

func isUnauthenticated(err error) bool {
	return errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, auth.ErrSessionExpired)
}

func (s *Server) handleFrame(ctx context.Context, c *session.Client, frame []byte) {
	msg := protocol.Decode(string(frame))
	s.metrics.messages.WithLabelValues(msg.Op().String()).Inc()

	switch m := msg.(type) {
	case protocol.WriteCell:
		s.writeCell(ctx, c, m)
	case protocol.MoveCursor:
		s.moveCursor(ctx, c, m)
	case protocol.Error:
		s.reply(c, m.Message)
	}
}

func (s *Server) writeCell(ctx context.Context, c *session.Client, m protocol.WriteCell) {
	ctx, span := s.tracer.Start(ctx, "canvas.write_cell", trace.WithAttributes(
		attribute.String("canvas.session", c.ID.String()),
		attribute.Int("canvas.x", m.Position.X),
		attribute.Int("canvas.y", m.Position.Y),
	))
	defer span.End()

	if c.Anonymous() {
		s.rejectPaint(span, c, paintAnonymous, msgAuthRequired)
		return
	}
	if !s.store.Contains(m.Position) {
		s.rejectPaint(span, c, paintOutOfBounds, canvas.ErrOutOfBounds.Error())
		return
	}

	now := s.limiter.Now()
	if !s.limiter.CanConsume(c.User, now) {
		s.rejectPaint(span, c, paintRateLimited, msgRateLimited)
		return
	}
	if err := s.limiter.Consume(ctx, c.User, now); err != nil {
		result := paintRateLimited
		if !errors.Is(err, credit.ErrUnconsumable) {
			result = paintCreditError
			span.RecordError(err)
			s.logger.Error("consume credit", "user", c.User.ID, "err", err)
		}
		s.rejectPaint(span, c, result, msgRateLimited)
		return
	}

	if err := s.store.WriteCell(m.Position, m.Color, canvas.AuthorID(uint32(c.User.ID))); err != nil {
		span.RecordError(err)
		s.logger.Error("write cell", "pos", m.Position.String(), "err", err)
		s.rejectPaint(span, c, paintStoreFailure, err.Error())
		return
	}

	s.metrics.paints.WithLabelValues(paintOK).Inc()
	span.SetStatus(codes.Ok, "")
	s.broadcast(protocol.ToSender(m, c.Name()))
}

func (s *Server) rejectPaint(span trace.Span, c *session.Client, result, reason string) {
	s.metrics.paints.WithLabelValues(result).Inc()
	span.SetStatus(codes.Error, result)
	s.reply(c, reason)
}

func (s *Server) moveCursor(ctx context.Context, c *session.Client, m protocol.MoveCursor) {
	_, span := s.tracer.Start(ctx, "canvas.move_cursor", trace.WithAttributes(
		attribute.String("canvas.session", c.ID.String()),
	))
	defer span.End()

	if c.Anonymous() {
		span.SetStatus(codes.Error, paintAnonymous)
		s.reply(c, msgAuthRequired)
		return
	}
	s.broadcast(protocol.ToSender(m, c.Name()))
}

// reply sends an opcode 5 message to c only.
func (s *Server) reply(c *session.Client, text string) {
	s.hub.SendTo(c, protocol.EncodeBytes(protocol.Error{Message: text}))
}

func (s *Server) broadcast(m protocol.Message) {
	if evicted := s.hub.Broadcast(protocol.EncodeBytes(m)); evicted > 0 {
		s.metrics.evictions.Add(float64(evicted))
		s.logger.Warn("evicted slow sessions", "count", evicted)
	}
}
