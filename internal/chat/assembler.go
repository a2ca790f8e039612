package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/nelsonwm45/senti-mochi-go/internal/logger"
)

// Stage is a phase of the progress indicator shown while an answer is being
// produced.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageSearching  Stage = "searching"
	StageAnalyzing  Stage = "analyzing"
	StageGenerating Stage = "generating"
	StageComplete   Stage = "complete"
)

// Progress FSM triggers
type progressTrigger string

const (
	triggerSearch   progressTrigger = "search"
	triggerAnalyze  progressTrigger = "analyze"
	triggerGenerate progressTrigger = "generate"
	triggerFinish   progressTrigger = "finish"
	triggerReset    progressTrigger = "reset"
)

// ErrSessionNotFound is returned by LoadSession for an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// User-facing fallback bubbles. Failures never surface as raw errors; they
// become one of these assistant messages.
const (
	noDataFallback  = "I couldn't find relevant information in the knowledge base for your question. Please try rephrasing or ask about the documents you have uploaded."
	genericFallback = "Sorry, something went wrong while processing your request. Please try again."
)

const feedbackTimeout = 5 * time.Second

// Observer receives conversation events as they happen, typically to push
// them over a websocket. Any field may be nil.
type Observer struct {
	OnStage   func(stage Stage)
	OnDelta   func(delta string)
	OnMessage func(msg Message)
}

// Options tunes a Conversation.
type Options struct {
	// StageDelay is the pause between the searching and analyzing phases of
	// the progress indicator, and again before generating starts.
	StageDelay time.Duration
	// CompleteDelay keeps the complete phase visible before the indicator
	// resets to idle.
	CompleteDelay time.Duration
	// HistoryLimit caps how many history rows are fetched when listing or
	// loading sessions.
	HistoryLimit int
	// Archive, when set, receives a copy of every settled exchange.
	Archive Archiver
}

// Conversation is the single active chat of the app. It owns the transcript,
// the citation binder and the progress indicator, and it is the only writer
// of all three.
//
// Send runs one request to completion at a time; issuing a second Send while
// one is in flight is the caller's responsibility to prevent.
type Conversation struct {
	src    ResponseSource
	opts   Options
	store  *Store
	binder *Binder
	now    func() time.Time

	mu         sync.Mutex
	sessionID  string
	generation uint64
	stage      Stage
}

// NewConversation returns an empty conversation backed by src.
func NewConversation(src ResponseSource, opts Options) *Conversation {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	return &Conversation{
		src:    src,
		opts:   opts,
		store:  NewStore(),
		binder: NewBinder(),
		now:    time.Now,
		stage:  StageIdle,
	}
}

// Send submits a user query and settles the conversation with exactly one
// assistant reply: the answer on success, a fallback bubble on any failure.
// Errors never escape; the returned message is what ended up rendered.
// Blank input is ignored and returns nil.
//
// If the conversation is cleared or switched to another session while the
// request is in flight, the late response is consumed but discarded.
func (c *Conversation) Send(ctx context.Context, text string, streaming bool, obs *Observer) *Message {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	gen := c.generation
	sessionID := c.sessionID
	c.mu.Unlock()

	user := c.newMessage(RoleUser, text)
	if c.appendIfCurrent(gen, user) {
		notifyMessage(obs, user)
	}

	fsm := c.newProgressFSM(obs)
	c.fire(ctx, fsm, triggerSearch)
	interrupted := c.pause(ctx, c.opts.StageDelay) != nil
	if !interrupted {
		c.fire(ctx, fsm, triggerAnalyze)
		interrupted = c.pause(ctx, c.opts.StageDelay) != nil
	}

	var reply Message
	switch {
	case interrupted:
		reply = c.settleFailure(gen, obs, ctx.Err())
	case streaming:
		c.fire(ctx, fsm, triggerGenerate)
		reply = c.streamReply(ctx, gen, obs, text, sessionID)
	default:
		c.fire(ctx, fsm, triggerGenerate)
		reply = c.askReply(ctx, gen, obs, text, sessionID)
	}

	c.fire(ctx, fsm, triggerFinish)
	_ = c.pause(ctx, c.opts.CompleteDelay)
	c.fire(ctx, fsm, triggerReset)

	c.archiveExchange(gen, user, reply)
	return &reply
}

// Clear wipes the transcript, the citation panel and the session binding.
// Any in-flight response becomes stale and will be discarded on arrival.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.sessionID = ""
	c.stage = StageIdle
	c.store.Clear()
	c.binder.Reset()
}

// LoadSession replaces the conversation with a past session fetched from the
// source. The citation panel is seeded from the session's last message.
func (c *Conversation) LoadSession(ctx context.Context, id string) (*Session, error) {
	items, err := c.src.FetchHistory(ctx, c.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	for _, sess := range GroupSessions(items) {
		if sess.ID != id {
			continue
		}
		c.mu.Lock()
		c.generation++
		c.sessionID = sess.ID
		c.stage = StageIdle
		c.store.Reset(sess.Messages)
		if n := len(sess.Messages); n > 0 {
			c.binder.SetCurrent(sess.Messages[n-1].Citations)
		} else {
			c.binder.Reset()
		}
		c.mu.Unlock()
		return &sess, nil
	}
	return nil, fmt.Errorf("session %q: %w", id, ErrSessionNotFound)
}

// Sessions lists past sessions, newest activity first.
func (c *Conversation) Sessions(ctx context.Context) ([]Session, error) {
	items, err := c.src.FetchHistory(ctx, c.opts.HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	return GroupSessions(items), nil
}

// SubmitFeedback forwards a message rating to the source in the background.
// The outcome never affects the conversation; failures are only logged.
func (c *Conversation) SubmitFeedback(messageID string, rating int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), feedbackTimeout)
		defer cancel()
		if err := c.src.SubmitFeedback(ctx, messageID, rating); err != nil {
			logger.L.Warnw("feedback submission failed", "messageId", messageID, "error", err)
		}
	}()
}

// Messages returns a copy of the current transcript.
func (c *Conversation) Messages() []Message {
	return c.store.Messages()
}

// SessionID returns the id of the bound session, or "" before the source has
// assigned one.
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Stage returns the current phase of the progress indicator.
func (c *Conversation) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Citations returns the citation list of the latest answer.
func (c *Conversation) Citations() []Citation {
	return c.binder.Current()
}

// ActiveCitation reports the source number the user clicked, if any.
func (c *Conversation) ActiveCitation() (int, bool) {
	return c.binder.Active()
}

// ClickCitation records a click on an inline source marker.
func (c *Conversation) ClickCitation(sourceNumber int) {
	c.binder.Click(sourceNumber)
}

// newProgressFSM builds the per-request progress machine. The happy path is
// searching -> analyzing -> generating -> complete -> idle; any phase may
// jump straight to complete when the request fails, so the indicator always
// clears.
func (c *Conversation) newProgressFSM(obs *Observer) *stateless.StateMachine {
	entry := func(stage Stage) func(context.Context, ...any) error {
		return func(context.Context, ...any) error {
			c.setStage(stage, obs)
			return nil
		}
	}

	fsm := stateless.NewStateMachine(StageIdle)
	fsm.Configure(StageIdle).
		OnEntry(entry(StageIdle)).
		Permit(triggerSearch, StageSearching)
	fsm.Configure(StageSearching).
		OnEntry(entry(StageSearching)).
		Permit(triggerAnalyze, StageAnalyzing).
		Permit(triggerFinish, StageComplete)
	fsm.Configure(StageAnalyzing).
		OnEntry(entry(StageAnalyzing)).
		Permit(triggerGenerate, StageGenerating).
		Permit(triggerFinish, StageComplete)
	fsm.Configure(StageGenerating).
		OnEntry(entry(StageGenerating)).
		Permit(triggerFinish, StageComplete)
	fsm.Configure(StageComplete).
		OnEntry(entry(StageComplete)).
		Permit(triggerReset, StageIdle)
	return fsm
}

func (c *Conversation) fire(ctx context.Context, fsm *stateless.StateMachine, trigger progressTrigger) {
	if err := fsm.FireCtx(ctx, trigger); err != nil {
		logger.L.Warnw("progress transition rejected", "trigger", trigger, "error", err)
	}
}

func (c *Conversation) setStage(stage Stage, obs *Observer) {
	c.mu.Lock()
	c.stage = stage
	c.mu.Unlock()
	notifyStage(obs, stage)
}

// pause waits for d unless the context ends first.
func (c *Conversation) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// askReply runs the non-streaming path: one request, one complete answer.
func (c *Conversation) askReply(ctx context.Context, gen uint64, obs *Observer, text, sessionID string) Message {
	answer, err := c.src.Ask(ctx, text, sessionID)
	if err != nil {
		logger.L.Warnw("query failed", "error", err)
		return c.settleFailure(gen, obs, err)
	}
	reply := c.newMessage(RoleAssistant, answer.Text)
	reply.Citations = answer.Citations
	if answer.MessageID != "" {
		reply.ID = answer.MessageID
	}
	if c.settleAnswer(gen, reply, answer.SessionID, answer.Citations) {
		notifyMessage(obs, reply)
	}
	return reply
}

// streamReply runs the streaming path: an empty assistant bubble is appended
// up front and filled in as deltas arrive. The event channel is always
// drained so the source can release its connection, even once the response
// has gone stale.
func (c *Conversation) streamReply(ctx context.Context, gen uint64, obs *Observer, text, sessionID string) Message {
	events, err := c.src.Stream(ctx, text, sessionID)
	if err != nil {
		logger.L.Warnw("stream connect failed", "error", err)
		return c.settleFailure(gen, obs, err)
	}

	reply := c.newMessage(RoleAssistant, "")
	live := c.appendIfCurrent(gen, reply)

	var full strings.Builder
	var doneMessageID, doneSessionID string
	var streamErr error
	for ev := range events {
		switch ev.Type {
		case StreamDelta:
			full.WriteString(ev.Delta)
			if live && c.replaceLastIfCurrent(gen, full.String()) {
				notifyDelta(obs, ev.Delta)
			}
		case StreamDone:
			doneMessageID = ev.MessageID
			doneSessionID = ev.SessionID
		case StreamError:
			streamErr = ev.Err
		}
	}

	if streamErr != nil {
		logger.L.Warnw("stream aborted", "error", streamErr)
		reply.Content = failureText(streamErr)
		if live && c.replaceLastIfCurrent(gen, reply.Content) {
			notifyMessage(obs, reply)
		}
		return reply
	}

	reply.Content = full.String()
	if live && c.finishStream(gen, &reply, doneMessageID, doneSessionID) {
		notifyMessage(obs, reply)
	}
	return reply
}

// settleFailure appends the fallback bubble for err.
func (c *Conversation) settleFailure(gen uint64, obs *Observer, err error) Message {
	reply := c.newMessage(RoleAssistant, failureText(err))
	if c.settleAnswer(gen, reply, "", nil) {
		notifyMessage(obs, reply)
	}
	return reply
}

// settleAnswer applies a complete answer to the conversation unless the
// generation moved on. The session id is adopted on the first answer and the
// citation panel swaps to the new list.
func (c *Conversation) settleAnswer(gen uint64, msg Message, sessionID string, citations []Citation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		logger.L.Debugw("stale answer discarded", "messageId", msg.ID)
		return false
	}
	c.store.Append(msg)
	if sessionID != "" {
		c.sessionID = sessionID
	}
	c.binder.SetCurrent(citations)
	return true
}

// finishStream finalizes a streamed answer: the bubble adopts the id the
// source assigned, the session id is bound, and the citation panel clears
// since streamed answers carry no citations.
func (c *Conversation) finishStream(gen uint64, reply *Message, messageID, sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	if messageID != "" {
		if err := c.store.SetLastID(messageID); err == nil {
			reply.ID = messageID
		}
	}
	if sessionID != "" {
		c.sessionID = sessionID
	}
	c.binder.SetCurrent(nil)
	return true
}

func (c *Conversation) appendIfCurrent(gen uint64, msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		logger.L.Debugw("stale message discarded", "role", msg.Role)
		return false
	}
	c.store.Append(msg)
	return true
}

func (c *Conversation) replaceLastIfCurrent(gen uint64, content string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	if err := c.store.ReplaceLast(content); err != nil {
		logger.L.Warnw("stream fragment dropped", "error", err)
		return false
	}
	return true
}

func (c *Conversation) archiveExchange(gen uint64, user, reply Message) {
	if c.opts.Archive == nil {
		return
	}
	c.mu.Lock()
	sessionID := c.sessionID
	current := gen == c.generation
	c.mu.Unlock()
	if !current || sessionID == "" {
		return
	}
	for _, msg := range []Message{user, reply} {
		if err := c.opts.Archive.Save(sessionID, msg); err != nil {
			logger.L.Warnw("archive write failed", "role", msg.Role, "error", err)
		}
	}
}

func (c *Conversation) newMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: c.now(),
	}
}

func failureText(err error) string {
	if errors.Is(err, ErrNoRelevantData) {
		return noDataFallback
	}
	return genericFallback
}

func notifyStage(obs *Observer, stage Stage) {
	if obs != nil && obs.OnStage != nil {
		obs.OnStage(stage)
	}
}

func notifyDelta(obs *Observer, delta string) {
	if obs != nil && obs.OnDelta != nil {
		obs.OnDelta(delta)
	}
}

func notifyMessage(obs *Observer, msg Message) {
	if obs != nil && obs.OnMessage != nil {
		obs.OnMessage(msg)
	}
}
