// Package handler exposes kiosk sessions over HTTP for the browser client.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"visitorkiosk/internal/auth"
	"visitorkiosk/internal/form"
	"visitorkiosk/internal/kiosk"
	"visitorkiosk/internal/outbox"
	"visitorkiosk/internal/signature"
)

const sessionKey = "session"

// maxStrokeBody bounds a stroke request body.
const maxStrokeBody = 256 << 10

// Options configures a Handler.
type Options struct {
	SigningKey string
	Issuer     string
	TokenTTL   time.Duration
	Logger     *slog.Logger
	Now        func() time.Time
}

// Handler serves the /v1/sessions routes.
type Handler struct {
	sessions *kiosk.Registry
	box      outbox.Outbox
	opts     Options
	log      *slog.Logger
}

// New creates a handler over the session registry and the event outbox.
func New(sessions *kiosk.Registry, box outbox.Outbox, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 30 * time.Minute
	}
	return &Handler{sessions: sessions, box: box, opts: opts, log: opts.Logger}
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/v1/sessions", h.open)

	g := r.Group("/v1/sessions/:id", auth.SessionAuth(h.opts.SigningKey, h.opts.Issuer), h.loadSession)
	g.GET("", h.view)
	g.DELETE("", h.close)
	g.PUT("/fields/:field", h.setField)
	g.PUT("/choices/:field", h.selectChoice)
	g.POST("/signature/strokes", h.stroke)
	g.DELETE("/signature", h.clearSignature)
	g.POST("/check-number-card", h.checkNumberCard)
	g.POST("/submit", h.submit)
	g.GET("/events", h.events)
}

// Sink returns the effect sink for a session id; effects are queued in the
// outbox until the browser drains them.
func (h *Handler) Sink(id string) kiosk.Sink {
	return &outboxSink{box: h.box, id: id, log: h.log, now: h.opts.Now}
}

func (h *Handler) open(c *gin.Context) {
	s, err := h.sessions.Open(h.Sink)
	if err != nil {
		h.log.Warn("open session", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	token, exp, err := auth.Issue(s.ID(), h.opts.Issuer, h.opts.SigningKey, h.opts.TokenTTL)
	if err != nil {
		h.sessions.Close(s.ID())
		h.log.Error("issue session token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_id": s.ID(),
		"token":      token,
		"expires_at": exp.Unix(),
		"view":       s.View(),
	})
}

func (h *Handler) loadSession(c *gin.Context) {
	s, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusGone, gin.H{"error": kiosk.ErrClosed.Error()})
		return
	}
	c.Set(sessionKey, s)
	c.Next()
}

func session(c *gin.Context) *kiosk.Session {
	return c.MustGet(sessionKey).(*kiosk.Session)
}

func (h *Handler) view(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"view": session(c).View()})
}

func (h *Handler) close(c *gin.Context) {
	h.sessions.Close(c.Param("id"))
	c.Status(http.StatusNoContent)
}

type valueRequest struct {
	Value string `json:"value"`
}

func (h *Handler) setField(c *gin.Context) {
	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s := session(c)
	err := s.SetField(form.Field(c.Param("field")), req.Value)
	h.reply(c, s, statusFor(err, http.StatusOK), errBody(err))
}

func (h *Handler) selectChoice(c *gin.Context) {
	var req valueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s := session(c)
	err := s.Select(form.Field(c.Param("field")), req.Value)
	h.reply(c, s, statusFor(err, http.StatusOK), errBody(err))
}

func (h *Handler) stroke(c *gin.Context) {
	var req struct {
		Points []signature.Point `json:"points"`
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxStrokeBody)
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s := session(c)
	_, err := s.Stroke(req.Points)
	h.reply(c, s, statusFor(err, http.StatusOK), errBody(err))
}

func (h *Handler) clearSignature(c *gin.Context) {
	s := session(c)
	err := s.ClearSignature()
	h.reply(c, s, statusFor(err, http.StatusOK), errBody(err))
}

func (h *Handler) checkNumberCard(c *gin.Context) {
	s := session(c)
	// The check outlives the request; only closing the session discards it.
	res, err := s.CheckNumberCard(context.WithoutCancel(c.Request.Context()))
	body := errBody(err)
	if res != nil {
		body = gin.H{"message": res.Message, "in_use": res.InUse()}
	}
	h.reply(c, s, statusFor(err, http.StatusOK), body)
}

func (h *Handler) submit(c *gin.Context) {
	s := session(c)
	receipt, err := s.Submit(context.WithoutCancel(c.Request.Context()))
	body := errBody(err)
	if receipt != nil {
		body = gin.H{"receipt": receipt}
	}
	h.reply(c, s, statusFor(err, http.StatusCreated), body)
}

func (h *Handler) events(c *gin.Context) {
	evts, err := h.box.Drain(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.log.Error("drain events", "session", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "events unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": nonNil(evts)})
}

// reply writes the view and the drained effects along with extra fields.
func (h *Handler) reply(c *gin.Context, s *kiosk.Session, status int, extra gin.H) {
	evts, err := h.box.Drain(c.Request.Context(), s.ID())
	if err != nil {
		h.log.Warn("drain events", "session", s.ID(), "error", err)
	}
	body := gin.H{"view": s.View(), "events": nonNil(evts)}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func statusFor(err error, ok int) int {
	switch {
	case err == nil:
		return ok
	case errors.Is(err, kiosk.ErrClosed):
		return http.StatusGone
	case errors.Is(err, kiosk.ErrSubmitInFlight):
		return http.StatusConflict
	case errors.Is(err, kiosk.ErrIncomplete),
		errors.Is(err, kiosk.ErrNumberCardMissing),
		errors.Is(err, form.ErrNotEditable),
		errors.Is(err, form.ErrNotChoiceField),
		errors.Is(err, form.ErrUnknownChoice),
		errors.Is(err, signature.ErrEmptyStroke),
		errors.Is(err, signature.ErrStrokeTooLong):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func errBody(err error) gin.H {
	if err == nil {
		return nil
	}
	return gin.H{"error": err.Error()}
}

func nonNil(evts []outbox.Event) []outbox.Event {
	if evts == nil {
		return []outbox.Event{}
	}
	return evts
}

type outboxSink struct {
	box outbox.Outbox
	id  string
	log *slog.Logger
	now func() time.Time
}

func (s *outboxSink) push(evt outbox.Event) {
	evt.At = s.now()
	if err := s.box.Push(context.Background(), s.id, evt); err != nil {
		s.log.Warn("queue session event", "session", s.id, "kind", evt.Kind, "error", err)
	}
}

func (s *outboxSink) Toast(level kiosk.Level, message string) {
	s.push(outbox.Event{Kind: outbox.KindToast, Level: string(level), Message: message})
}

func (s *outboxSink) Open(url string) {
	s.push(outbox.Event{Kind: outbox.KindOpen, URL: url})
}

func (s *outboxSink) Changed(field form.Field) {
	s.push(outbox.Event{Kind: outbox.KindChanged, Field: string(field)})
}
