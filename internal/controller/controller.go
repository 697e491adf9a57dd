// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/agentdeck/internal/agentd"
	"github.com/jeranaias/agentdeck/internal/model"
	"github.com/jeranaias/agentdeck/internal/store"
)

// ErrTurnInFlight is returned by Send while a previous turn is still
// running. One turn at a time.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// errorReplyPrefix marks transcript entries that record a failed turn.
const errorReplyPrefix = "Error: "

// eventBuffer sizes the turn event channel. A turn emits at most a
// handful of progress updates plus one terminal message.
const eventBuffer = 32

// =============================================================================
// PHASE
// =============================================================================

// Phase is the turn lifecycle state.
type Phase int

const (
	// PhaseIdle means no turn is in flight; input is accepted.
	PhaseIdle Phase = iota

	// PhaseSending means a turn was submitted but its stream has not
	// opened yet.
	PhaseSending

	// PhaseStreaming means the reply stream is open.
	PhaseStreaming
)

// String returns a short name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// =============================================================================
// CACHE HOOK
// =============================================================================

// Cache receives store snapshots for offline mirroring. Implementations
// must tolerate being called from the Apply goroutine; errors are logged,
// never surfaced.
type Cache interface {
	PutSessions(metas []model.Meta) error
	PutTranscript(sessionID string, msgs []*model.Message) error
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the conversation lifecycle for one client/store pair.
type Controller struct {
	client *agentd.Client
	store  *store.Store
	cache  Cache
	logger *slog.Logger

	events chan tea.Msg

	mu            sync.Mutex
	phase         Phase
	progress      model.Progress
	turnSessionID string
	cancelTurn    context.CancelFunc
}

// New creates a controller.
func New(client *agentd.Client, st *store.Store) *Controller {
	return &Controller{
		client: client,
		store:  st,
		logger: slog.Default(),
		events: make(chan tea.Msg, eventBuffer),
	}
}

// WithCache sets the offline cache hook.
func (c *Controller) WithCache(cache Cache) *Controller {
	c.cache = cache
	return c
}

// WithLogger sets the structured logger.
func (c *Controller) WithLogger(logger *slog.Logger) *Controller {
	if logger != nil {
		c.logger = logger.With(slog.String("module", "controller"))
	}
	return c
}

// Store returns the session store the controller mutates.
func (c *Controller) Store() *store.Store {
	return c.store
}

// Phase returns the current turn lifecycle state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	return c.Phase() != PhaseIdle
}

// Progress returns the latest progress of the in-flight turn. Zero when
// idle.
func (c *Controller) Progress() model.Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// WaitMsg returns a command that delivers the next turn event. Re-issue
// it after each delivery to keep draining the stream.
func (c *Controller) WaitMsg() tea.Cmd {
	return func() tea.Msg {
		return <-c.events
	}
}

func (c *Controller) emit(msg tea.Msg) {
	c.events <- msg
}

// =============================================================================
// SENDING A TURN
// =============================================================================

// Send submits one user message on the active session, creating and
// activating a session first when none exists. The user message is
// appended to the local transcript immediately; everything else arrives
// through the events channel.
//
// Call from the Apply goroutine.
func (c *Controller) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrTurnInFlight
	}

	sess, _ := c.store.EnsureActive()
	// Pending covers both the session just auto-created and one added by
	// a "new session" action that has not been sent on yet.
	register := c.store.IsPending(sess.ID)

	userMsg := model.NewUserMessage(text)
	if err := c.store.AppendMessage(sess.ID, userMsg); err != nil {
		c.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.phase = PhaseSending
	c.progress = model.Progress{}
	c.turnSessionID = sess.ID
	c.cancelTurn = cancel
	c.mu.Unlock()

	go c.runTurn(ctx, sess.ID, sess.Title, register, userMsg)
	return nil
}

// runTurn performs the network side of one turn: register the session if
// the backend does not know it yet, persist the user message, then stream
// the reply. Exactly one terminal message is emitted unless the turn's
// context is cancelled.
func (c *Controller) runTurn(ctx context.Context, sessionID, title string, register bool, userMsg *model.Message) {
	fail := func(message string) {
		if ctx.Err() != nil {
			return
		}
		c.emit(TurnFailedMsg{SessionID: sessionID, Message: message})
	}

	if register {
		if _, err := c.client.CreateSession(ctx, sessionID, title); err != nil {
			c.logger.Error("session create failed", slog.String("session", sessionID), slog.Any("error", err))
			fail(err.Error())
			return
		}
		// Only on success; a failed registration stays pending so the
		// next send retries it.
		c.store.MarkRegistered(sessionID)
	}

	if err := c.client.AppendMessage(ctx, sessionID, userMsg.Role.String(), userMsg.Content, userMsg.Timestamp); err != nil {
		c.logger.Error("user message persist failed", slog.String("session", sessionID), slog.Any("error", err))
		fail(err.Error())
		return
	}

	err := c.client.SendTurn(ctx, agentd.TurnRequest{
		SessionID: sessionID,
		Message:   userMsg.Content,
	}, agentd.TurnEvents{
		OnStart: func() {
			c.emit(TurnStartedMsg{SessionID: sessionID})
		},
		OnProgress: func(p model.Progress) {
			c.emit(ProgressMsg{SessionID: sessionID, Progress: p})
		},
		OnResponse: func(content string) {
			// Persist before the transcript sees it: if the write
			// fails the reply still renders, and the next transcript
			// load tells the truth about what the server kept.
			reply := model.NewAssistantMessage(content)
			if err := c.client.AppendMessage(ctx, sessionID, reply.Role.String(), reply.Content, reply.Timestamp); err != nil {
				c.logger.Error("reply persist failed", slog.String("session", sessionID), slog.Any("error", err))
			}
			c.emit(TurnCompleteMsg{SessionID: sessionID, Content: content})
		},
		OnError: func(message string) {
			c.emit(TurnFailedMsg{SessionID: sessionID, Message: message})
		},
	})

	if err != nil && ctx.Err() == nil {
		c.logger.Error("turn failed", slog.String("session", sessionID), slog.Any("error", err))
		fail(err.Error())
	}
}

// CancelTurn aborts the in-flight turn, if any. The stream stops without
// a reply; a terminal failure event is emitted so consumers waiting on
// the turn unblock and the transcript records the interruption.
func (c *Controller) CancelTurn() {
	c.mu.Lock()
	if c.cancelTurn == nil {
		c.mu.Unlock()
		return
	}
	sessionID := c.turnSessionID
	c.cancelTurn()
	c.phase = PhaseIdle
	c.progress = model.Progress{}
	c.turnSessionID = ""
	c.cancelTurn = nil
	c.mu.Unlock()

	c.emit(TurnFailedMsg{SessionID: sessionID, Message: "cancelled"})
}

// =============================================================================
// APPLY
// =============================================================================

// Apply performs the store mutation for one controller message. All
// messages the controller emits, whether from the events channel or a
// command closure, are applied here and nowhere else.
//
// A terminal turn message for a session that has since been deleted is
// dropped: the store rejects the append and the result is discarded.
func (c *Controller) Apply(msg tea.Msg) {
	switch m := msg.(type) {
	case TurnStartedMsg:
		c.mu.Lock()
		if c.turnSessionID == m.SessionID {
			c.phase = PhaseStreaming
		}
		c.mu.Unlock()

	case ProgressMsg:
		c.mu.Lock()
		if c.turnSessionID == m.SessionID {
			c.progress = m.Progress
		}
		c.mu.Unlock()

	case TurnCompleteMsg:
		c.finishTurn(m.SessionID)
		if err := c.store.AppendMessage(m.SessionID, model.NewAssistantMessage(m.Content)); err != nil {
			c.logger.Debug("reply dropped, session gone", slog.String("session", m.SessionID))
			return
		}
		c.cacheTranscript(m.SessionID)

	case TurnFailedMsg:
		c.finishTurn(m.SessionID)
		err := c.store.AppendMessage(m.SessionID, model.NewAssistantMessage(errorReplyPrefix+m.Message))
		if err != nil {
			c.logger.Debug("error reply dropped, session gone", slog.String("session", m.SessionID))
		}

	case SessionsRefreshedMsg:
		if m.Err != nil {
			c.logger.Warn("session refresh failed", slog.Any("error", m.Err))
			return
		}
		if c.store.ApplyRefresh(m.Gen, m.Metas) {
			c.cacheSessions()
		}

	case MessagesLoadedMsg:
		if m.Err != nil {
			c.logger.Warn("transcript load failed", slog.String("session", m.SessionID), slog.Any("error", m.Err))
			return
		}
		if err := c.store.SetMessages(m.SessionID, m.Messages); err != nil {
			return
		}
		c.cacheTranscript(m.SessionID)

	case SessionDeletedMsg:
		if m.Err != nil {
			c.logger.Warn("server delete failed", slog.String("session", m.SessionID), slog.Any("error", m.Err))
		}
	}
}

// finishTurn resets the lifecycle after a terminal turn message, provided
// the message belongs to the turn still considered in flight.
func (c *Controller) finishTurn(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turnSessionID != sessionID {
		return
	}
	c.phase = PhaseIdle
	c.progress = model.Progress{}
	c.turnSessionID = ""
	c.cancelTurn = nil
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// RefreshCmd returns a command that fetches the server session listing.
// The generation is taken up front so listings apply in start order, not
// completion order.
func (c *Controller) RefreshCmd(ctx context.Context) tea.Cmd {
	gen := c.store.NextGeneration()
	return func() tea.Msg {
		infos, err := c.client.ListSessions(ctx)
		if err != nil {
			return SessionsRefreshedMsg{Gen: gen, Err: err}
		}
		metas := make([]model.Meta, 0, len(infos))
		for _, info := range infos {
			metas = append(metas, model.Meta{
				ID:        info.ID,
				Title:     info.Title,
				CreatedAt: info.CreatedAt,
				UpdatedAt: info.UpdatedAt,
			})
		}
		return SessionsRefreshedMsg{Gen: gen, Metas: metas}
	}
}

// SwitchSession activates a session and, when its transcript has not been
// loaded yet, returns a command that loads it. Returns a nil command when
// nothing needs loading.
func (c *Controller) SwitchSession(ctx context.Context, sessionID string) (tea.Cmd, error) {
	if err := c.store.SetActive(sessionID); err != nil {
		return nil, err
	}
	if c.store.IsLoaded(sessionID) {
		return nil, nil
	}
	return c.loadMessagesCmd(ctx, sessionID), nil
}

// loadMessagesCmd returns a command that fetches one session transcript.
func (c *Controller) loadMessagesCmd(ctx context.Context, sessionID string) tea.Cmd {
	return func() tea.Msg {
		records, err := c.client.LoadMessages(ctx, sessionID)
		if err != nil {
			return MessagesLoadedMsg{SessionID: sessionID, Err: err}
		}
		msgs := make([]*model.Message, 0, len(records))
		for _, rec := range records {
			msgs = append(msgs, &model.Message{
				ID:        rec.ID,
				Role:      model.ParseRole(rec.Role),
				Content:   rec.Content,
				Timestamp: rec.Timestamp,
			})
		}
		return MessagesLoadedMsg{SessionID: sessionID, Messages: msgs}
	}
}

// DeleteSession removes a session locally and returns a command that
// removes it on the server. When the in-flight turn targets the deleted
// session its stream is cancelled; the store then rejects any write that
// still slips through.
//
// Call from the Apply goroutine.
func (c *Controller) DeleteSession(ctx context.Context, sessionID string) (tea.Cmd, error) {
	c.mu.Lock()
	if c.turnSessionID == sessionID && c.cancelTurn != nil {
		c.cancelTurn()
		c.phase = PhaseIdle
		c.progress = model.Progress{}
		c.turnSessionID = ""
		c.cancelTurn = nil
	}
	c.mu.Unlock()

	if err := c.store.Delete(sessionID); err != nil {
		return nil, err
	}
	c.cacheSessions()

	return func() tea.Msg {
		return SessionDeletedMsg{SessionID: sessionID, Err: c.client.DeleteSession(ctx, sessionID)}
	}, nil
}

// =============================================================================
// CACHE WRITES
// =============================================================================

func (c *Controller) cacheSessions() {
	if c.cache == nil {
		return
	}
	if err := c.cache.PutSessions(c.store.Metas()); err != nil {
		c.logger.Warn("session cache write failed", slog.Any("error", err))
	}
}

func (c *Controller) cacheTranscript(sessionID string) {
	if c.cache == nil {
		return
	}
	sess, ok := c.store.Get(sessionID)
	if !ok {
		return
	}
	if err := c.cache.PutTranscript(sessionID, sess.Messages); err != nil {
		c.logger.Warn("transcript cache write failed", slog.String("session", sessionID), slog.Any("error", err))
	}
}
