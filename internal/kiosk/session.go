// Package kiosk runs the visitor attendance workflow for one form at a time:
// draft editing, signature capture, the advisory number card check and the
// single-flight submission, with user-visible effects sent to a Sink.
package kiosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"visitorkiosk/internal/attendance"
	"visitorkiosk/internal/attendclient"
	"visitorkiosk/internal/form"
	"visitorkiosk/internal/metrics"
	"visitorkiosk/internal/signature"
)

var (
	ErrIncomplete        = errors.New("required fields missing")
	ErrNumberCardMissing = errors.New("number card missing")
	ErrSubmitInFlight    = errors.New("submission already in flight")
	ErrClosed            = errors.New("session closed")
)

// Submit button labels.
const (
	LabelSubmit     = "Submit"
	LabelSubmitting = "Submitting..."
)

// RegionSubmit is reported to Sink.Changed when the submit control toggles.
const RegionSubmit form.Field = "submit"

// Level of a toast notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Sink receives the effects a shell has to render.
type Sink interface {
	Toast(level Level, message string)
	Open(url string)
	Changed(field form.Field)
}

// Client is the attendance service as seen by a session.
type Client interface {
	CheckNumberCard(ctx context.Context, numberCard int) (*attendclient.CheckResult, error)
	CreateAttendance(ctx context.Context, rec attendance.Record) (json.RawMessage, error)
}

// Config carries what every session shares.
type Config struct {
	Client          Client
	DocumentBaseURL string
	PadWidth        int
	PadHeight       int
	PenWidth        float64
	// MaxSessions caps Registry.Open; 0 means no limit.
	MaxSessions int
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

func (c Config) withDefaults() Config {
	if c.PadWidth <= 0 {
		c.PadWidth = 600
	}
	if c.PadHeight <= 0 {
		c.PadHeight = 300
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// View is a snapshot of what the shell renders.
type View struct {
	ID          string                `json:"id"`
	Record      attendance.Record     `json:"record"`
	Errors      map[form.Field]string `json:"errors"`
	Submitting  bool                  `json:"submitting"`
	SubmitLabel string                `json:"submit_label"`
}

// Receipt describes an accepted submission.
type Receipt struct {
	DocumentURL string          `json:"document_url"`
	Response    json.RawMessage `json:"response,omitempty"`
}

// Session is one form instance.
type Session struct {
	id   string
	cfg  Config
	log  *slog.Logger
	sink Sink
	form *form.Form
	pad  *signature.Pad

	checks      singleflight.Group
	unsubscribe func()
	closed      atomic.Bool
	lastSeen    atomic.Int64

	// mu serializes the settle step of a submission with Close.
	mu         sync.Mutex
	submitting bool
}

// NewSession creates a session with a fresh draft whose effects go to sink.
func NewSession(id string, cfg Config, sink Sink) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:   id,
		cfg:  cfg,
		log:  cfg.Logger.With("session", id),
		sink: sink,
		form: form.New(cfg.Now()),
	}
	s.pad = signature.NewPad(cfg.PadWidth, cfg.PadHeight,
		signature.WithPenWidth(cfg.PenWidth),
		signature.OnChange(s.form.SetSignature),
	)
	s.unsubscribe = s.form.Subscribe(func(c form.Change) {
		if !s.closed.Load() {
			s.sink.Changed(c.Field)
		}
	})
	s.touch()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) touch() { s.lastSeen.Store(s.cfg.Now().UnixNano()) }

// LastSeen is the time of the last user action on the session.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Closed reports whether Close was called.
func (s *Session) Closed() bool { return s.closed.Load() }

// View returns the current render state.
func (s *Session) View() View {
	s.mu.Lock()
	submitting := s.submitting
	s.mu.Unlock()

	label := LabelSubmit
	if submitting {
		label = LabelSubmitting
	}
	return View{
		ID:          s.id,
		Record:      s.form.Record(),
		Errors:      s.form.Errors(),
		Submitting:  submitting,
		SubmitLabel: label,
	}
}

// SetField applies raw text input to a text or number field.
func (s *Session) SetField(field form.Field, raw string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.touch()
	return s.form.Set(field, raw)
}

// Select applies a discrete choice to an enum field.
func (s *Session) Select(field form.Field, value string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.touch()
	return s.form.Select(field, value)
}

// Stroke adds one completed gesture to the signature pad.
func (s *Session) Stroke(points []signature.Point) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	s.touch()
	return s.pad.Stroke(points)
}

// ClearSignature wipes the pad and the stored signature.
func (s *Session) ClearSignature() error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.touch()
	s.pad.Clear()
	return nil
}

// Sign replaces the signature with a prepared image, for shells without a pad.
func (s *Session) Sign(img image.Image) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.touch()
	uri, err := signature.FromImage(img)
	if err != nil {
		return err
	}
	s.form.SetSignature(uri)
	return nil
}

// CheckNumberCard runs the advisory duplicate check for the drafted card
// number. Concurrent checks of the same number share one request and one toast.
func (s *Session) CheckNumberCard(ctx context.Context) (*attendclient.CheckResult, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.touch()

	n := s.form.Record().NumberCard
	if n == 0 {
		s.cfg.Metrics.Check(metrics.OutcomeMissing)
		s.sink.Toast(LevelError, attendance.MsgFillNumberCard)
		return nil, ErrNumberCardMissing
	}

	v, err, _ := s.checks.Do(strconv.Itoa(n), func() (any, error) {
		start := time.Now()
		res, err := s.cfg.Client.CheckNumberCard(ctx, n)
		s.cfg.Metrics.Upstream("check_number_card", time.Since(start))

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed.Load() {
			s.cfg.Metrics.Check(metrics.OutcomeDiscarded)
			return nil, ErrClosed
		}
		if err != nil {
			s.log.Warn("number card check failed", "number_card", n, "error", err)
			s.cfg.Metrics.Check(metrics.OutcomeFailed)
			s.sink.Toast(LevelError, attendance.MsgCheckFailed)
			return nil, fmt.Errorf("check number card: %w", err)
		}
		if res.InUse() {
			s.cfg.Metrics.Check(metrics.OutcomeInUse)
			s.sink.Toast(LevelError, res.Message)
		} else {
			s.cfg.Metrics.Check(metrics.OutcomeAvailable)
			s.sink.Toast(LevelSuccess, res.Message)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*attendclient.CheckResult), nil
}

// Submit validates the draft and sends it. Only one submission per session
// may be in flight. On success the document is opened and the draft reset.
func (s *Session) Submit(ctx context.Context) (*Receipt, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	s.touch()

	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		s.cfg.Metrics.Submission(metrics.OutcomeInFlight)
		return nil, ErrSubmitInFlight
	}
	rec := s.form.Record()
	if !attendance.Complete(rec) {
		s.mu.Unlock()
		s.cfg.Metrics.Submission(metrics.OutcomeIncomplete)
		s.sink.Toast(LevelError, attendance.MsgFillRequired)
		return nil, ErrIncomplete
	}
	s.submitting = true
	s.mu.Unlock()
	s.sink.Changed(RegionSubmit)

	start := time.Now()
	resp, err := s.cfg.Client.CreateAttendance(ctx, rec)
	s.cfg.Metrics.Upstream("create_attendance", time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if s.closed.Load() {
		s.log.Debug("discarding late submission result", "error", err)
		s.cfg.Metrics.Submission(metrics.OutcomeDiscarded)
		return nil, ErrClosed
	}
	s.sink.Changed(RegionSubmit)

	if err != nil {
		s.log.Warn("attendance submission failed", "number_card", rec.NumberCard, "error", err)
		s.cfg.Metrics.Submission(metrics.OutcomeFailed)
		s.sink.Toast(LevelError, attendance.MsgSubmitFailed)
		return nil, fmt.Errorf("create attendance: %w", err)
	}

	s.cfg.Metrics.Submission(metrics.OutcomeSuccess)
	url := attendance.DocumentURL(s.cfg.DocumentBaseURL, rec.FullName)
	s.sink.Toast(LevelSuccess, attendance.MsgSubmitted)
	s.sink.Open(url)
	s.log.Info("attendance submitted", "number_card", rec.NumberCard)

	s.pad.Clear()
	s.form.Reset(s.cfg.Now())
	return &Receipt{DocumentURL: url, Response: resp}, nil
}

// Close ends the session. Results arriving afterwards produce no effects.
// It reports whether this call closed the session.
func (s *Session) Close() bool {
	s.mu.Lock()
	first := s.closed.CompareAndSwap(false, true)
	s.mu.Unlock()
	if first {
		s.unsubscribe()
	}
	return first
}
