package stream

import (
	"fmt"
	"time"

	"ai-dashboard-client/internal/constant"
	"ai-dashboard-client/internal/dto"
	"ai-dashboard-client/internal/model"
	"ai-dashboard-client/internal/pkg/clock"
	"ai-dashboard-client/internal/pkg/eventloop"
	"ai-dashboard-client/internal/pkg/logger"
	"ai-dashboard-client/pkg/store"

	"github.com/google/uuid"
)

// Kind tells progress frames from frames that close an exchange.
type Kind int

const (
	KindProgress Kind = iota
	KindTerminal
)

// KindFor maps a response frame type to its kind.
func KindFor(frameType string) (Kind, bool) {
	switch frameType {
	case constant.FrameTypeAIResponse, constant.FrameTypeAIThinking:
		return KindProgress, true
	case constant.FrameTypeAIFinished, constant.FrameTypeChatResponse:
		return KindTerminal, true
	default:
		return 0, false
	}
}

const (
	defaultErrorText = "The assistant could not complete the response."
	finishedMemory   = 64
)

// ConversationLearner receives conversation ids seen on response frames.
// It keeps the first one and ignores the rest.
type ConversationLearner interface {
	Adopt(conversationID string)
}

// Accumulator folds response frames of the current exchange into the
// transcript. It runs on the event loop.
type Accumulator struct {
	transcript *store.Transcript
	learner    ConversationLearner
	exec       eventloop.Executor
	clock      clock.Clock
	timeout    time.Duration
	logger     logger.ILogger

	current       string
	opened        map[string]struct{}
	finished      map[string]struct{}
	finishedOrder []string
	// partial text committed early for an exchange superseded by a new submit
	flushed map[string][]string
	// superseded exchanges still waiting for their terminal frame, oldest first
	superseded []string

	timer    clock.Timer
	timerSeq uint64
}

func NewAccumulator(transcript *store.Transcript, learner ConversationLearner, exec eventloop.Executor, clk clock.Clock, timeout time.Duration, log logger.ILogger) *Accumulator {
	return &Accumulator{
		transcript: transcript,
		learner:    learner,
		exec:       exec,
		clock:      clk,
		timeout:    timeout,
		logger:     log,
		opened:     make(map[string]struct{}),
		finished:   make(map[string]struct{}),
		flushed:    make(map[string][]string),
	}
}

// Current is the id of the exchange pending updates are attributed to.
func (a *Accumulator) Current() string { return a.current }

// Begin records a user submission and opens exchangeID. A non-empty partial
// of the previous exchange is committed first.
func (a *Accumulator) Begin(exchangeID, text string) {
	a.supersede()

	a.transcript.Commit(model.CommittedMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Type:      model.MessageTypeUser,
		CreatedAt: a.clock.Now(),
	})
	a.open(exchangeID)
}

// Apply folds one decoded response frame.
func (a *Accumulator) Apply(kind Kind, resp dto.ResponseFrame) {
	resolves := resp.IsError || kind == KindTerminal || resp.IsFinished
	id, ok := a.attribute(resp.ExchangeID, resolves)
	if !ok {
		a.logger.Debug("Accumulator", "Dropping frame for finished exchange", map[string]interface{}{
			"exchange_id": id,
			"finished":    resp.IsFinished,
		})
		return
	}

	if resp.ConversationID != "" {
		a.learner.Adopt(resp.ConversationID)
	}

	switch {
	case resp.IsError:
		text := resp.ErrorMessage
		if text == "" {
			text = defaultErrorText
		}
		a.fail(id, text)
	case kind == KindTerminal || resp.IsFinished:
		a.complete(id, resp)
	default:
		a.progress(id, resp)
	}
}

// ApplyError resolves an exchange from an ai_error frame.
func (a *Accumulator) ApplyError(exchangeID, text string) {
	id, ok := a.attribute(exchangeID, true)
	if !ok {
		return
	}
	if text == "" {
		text = defaultErrorText
	}
	a.fail(id, text)
}

// Reset abandons the current exchange without committing anything. Frames
// that still arrive for it are dropped.
func (a *Accumulator) Reset() {
	for id := range a.opened {
		a.markFinished(id)
	}
	a.current = ""
	a.stopTimer()
	a.flushed = make(map[string][]string)
	a.superseded = nil
}

// attribute resolves which exchange a frame belongs to and whether it may
// still change state. Servers answer in submission order, so an unstamped
// frame that resolves an exchange belongs to the oldest superseded one, and
// unstamped progress is ambiguous until that backlog drains.
func (a *Accumulator) attribute(explicit string, resolves bool) (string, bool) {
	id := explicit
	if id == "" && len(a.superseded) > 0 {
		if !resolves {
			return a.superseded[0], false
		}
		id = a.superseded[0]
	}
	if id == "" {
		id = a.current
	}
	if id == "" {
		// unsolicited response with nothing open
		id = uuid.NewString()
		a.open(id)
		return id, true
	}
	if _, done := a.finished[id]; done {
		return id, false
	}
	if explicit != "" && explicit != a.current {
		if _, seen := a.opened[explicit]; !seen {
			a.supersede()
			a.open(explicit)
		}
	}
	return id, true
}

func (a *Accumulator) progress(id string, resp dto.ResponseFrame) {
	if id != a.current {
		a.logger.Debug("Accumulator", "Dropping progress for superseded exchange", map[string]interface{}{"exchange_id": id})
		return
	}
	a.updateSideChannel(resp)

	pending := store.PendingExchange{ExchangeID: id, StartedAt: a.clock.Now()}
	if prev := a.transcript.Pending(); prev != nil && prev.ExchangeID == id {
		pending = *prev
	}
	if resp.RawResponse != "" {
		pending.PartialText = resp.RawResponse
	}
	if resp.CurrentAgent != "" {
		pending.Responder = resp.CurrentAgent
	}
	a.transcript.SetPending(pending)
}

func (a *Accumulator) complete(id string, resp dto.ResponseFrame) {
	if id == a.current {
		a.transcript.ClearPending()
		a.stopTimer()
	}
	a.updateSideChannel(resp)

	for _, m := range finalMessages(resp) {
		if a.consumeFlushed(id, m.Content) {
			continue
		}
		a.commitAssistant(m.Content, m.Agent)
	}
	a.markFinished(id)
}

func (a *Accumulator) fail(id, text string) {
	a.logger.Warn("Accumulator", "Exchange failed", map[string]interface{}{"exchange_id": id, "error": text})
	if id == a.current {
		a.transcript.ClearPending()
		a.stopTimer()
	}
	a.commitSystem(text)
	a.markFinished(id)
}

func (a *Accumulator) expire(id string) {
	a.logger.Warn("Accumulator", "Exchange timed out", map[string]interface{}{"exchange_id": id, "timeout": a.timeout.String()})
	if p := a.transcript.Pending(); p != nil && p.ExchangeID == id && p.PartialText != "" {
		a.commitAssistant(p.PartialText, p.Responder)
	}
	a.transcript.ClearPending()
	a.commitSystem(fmt.Sprintf("No response received within %s.", a.timeout))
	// older exchanges cannot still be answered once the newest has timed out
	for _, old := range append([]string(nil), a.superseded...) {
		a.markFinished(old)
	}
	a.superseded = nil
	a.markFinished(id)
}

// supersede commits the visible partial of the current exchange and
// remembers it so its terminal frame does not render it again.
func (a *Accumulator) supersede() {
	if a.current != "" {
		if _, done := a.finished[a.current]; !done {
			a.superseded = append(a.superseded, a.current)
		}
	}
	if p := a.transcript.Pending(); p != nil && p.PartialText != "" {
		a.commitAssistant(p.PartialText, p.Responder)
		a.flushed[p.ExchangeID] = append(a.flushed[p.ExchangeID], p.PartialText)
	}
	a.transcript.ClearPending()
	a.stopTimer()
}

func (a *Accumulator) open(id string) {
	a.current = id
	a.opened[id] = struct{}{}
	a.transcript.SetPending(store.PendingExchange{ExchangeID: id, StartedAt: a.clock.Now()})
	a.armTimer(id)
}

func (a *Accumulator) consumeFlushed(id, text string) bool {
	texts := a.flushed[id]
	for i, t := range texts {
		if t == text {
			a.flushed[id] = append(texts[:i], texts[i+1:]...)
			return true
		}
	}
	return false
}

func (a *Accumulator) markFinished(id string) {
	if _, done := a.finished[id]; done {
		return
	}
	a.finished[id] = struct{}{}
	delete(a.opened, id)
	for i, s := range a.superseded {
		if s == id {
			a.superseded = append(a.superseded[:i], a.superseded[i+1:]...)
			break
		}
	}
	a.finishedOrder = append(a.finishedOrder, id)
	if len(a.finishedOrder) > finishedMemory {
		oldest := a.finishedOrder[0]
		a.finishedOrder = a.finishedOrder[1:]
		delete(a.finished, oldest)
	}
	delete(a.flushed, id)
}

func (a *Accumulator) armTimer(id string) {
	a.stopTimer()
	if a.timeout <= 0 {
		return
	}
	seq := a.timerSeq
	a.timer = a.clock.AfterFunc(a.timeout, func() {
		a.exec.Post(func() {
			if seq != a.timerSeq || id != a.current {
				return
			}
			a.timer = nil
			a.expire(id)
		})
	})
}

func (a *Accumulator) stopTimer() {
	a.timerSeq++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

func (a *Accumulator) updateSideChannel(resp dto.ResponseFrame) {
	if len(resp.Events) == 0 && len(resp.Agents) == 0 && len(resp.Guardrails) == 0 && len(resp.Context) == 0 {
		return
	}
	a.transcript.SetSideChannel(store.SideChannel{
		Events:     resp.Events,
		Agents:     resp.Agents,
		Guardrails: resp.Guardrails,
		Context:    resp.Context,
	})
}

func (a *Accumulator) commitAssistant(text, responder string) {
	a.transcript.Commit(model.CommittedMessage{
		ID:          uuid.NewString(),
		Text:        text,
		Type:        model.MessageTypeAssistant,
		ResponderID: responder,
		CreatedAt:   a.clock.Now(),
	})
}

func (a *Accumulator) commitSystem(text string) {
	a.transcript.Commit(model.CommittedMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Type:      model.MessageTypeSystem,
		CreatedAt: a.clock.Now(),
	})
}

// finalMessages prefers the explicit message list; otherwise the cumulative
// text becomes a single message.
func finalMessages(resp dto.ResponseFrame) []dto.ResponseMessage {
	var out []dto.ResponseMessage
	for _, m := range resp.Messages {
		if m.Content == "" {
			continue
		}
		if m.Agent == "" {
			m.Agent = resp.CurrentAgent
		}
		out = append(out, m)
	}
	if len(out) > 0 {
		return out
	}
	if resp.RawResponse != "" {
		return []dto.ResponseMessage{{Content: resp.RawResponse, Agent: resp.CurrentAgent}}
	}
	return nil
}
