package render

import (
	"context"
	"fmt"
	"io"
	"sync"

	"ai-dashboard-client/internal/model"
	"ai-dashboard-client/pkg/events"
	"ai-dashboard-client/pkg/store"

	"github.com/fatih/color"
)

const clearLine = "\r\033[K"

// Snapshotter returns the full transcript. History loads are rendered
// from it because their events carry no messages.
type Snapshotter func() (store.Snapshot, error)

// Renderer prints session events to a terminal.
type Renderer struct {
	mu       sync.Mutex
	out      io.Writer
	snapshot Snapshotter
	partial  bool

	user      *color.Color
	assistant *color.Color
	system    *color.Color
	status    *color.Color
	failure   *color.Color
}

func New(out io.Writer, snapshot Snapshotter) *Renderer {
	return &Renderer{
		out:       out,
		snapshot:  snapshot,
		user:      color.New(color.FgCyan, color.Bold),
		assistant: color.New(color.FgGreen),
		system:    color.New(color.FgYellow),
		status:    color.New(color.Faint),
		failure:   color.New(color.FgRed, color.Bold),
	}
}

// Handle renders one event. It matches service.EventHandler.
func (r *Renderer) Handle(_ context.Context, e events.BaseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := e.Payload()
	switch e.EventType() {
	case events.TypeMessageCommitted:
		r.endPartial()
		r.message(model.MessageType(str(data["type"])), str(data["text"]), str(data["responder"]))

	case events.TypePendingUpdated:
		text := str(data["partial_text"])
		if text == "" {
			return
		}
		r.partial = true
		fmt.Fprint(r.out, clearLine)
		r.status.Fprintf(r.out, "%s… %s", responderLabel(str(data["responder"])), text)

	case events.TypePendingCleared:
		r.endPartial()

	case events.TypeHistoryLoaded:
		r.endPartial()
		r.history()

	case events.TypeTranscriptCleared:
		r.endPartial()
		r.status.Fprintln(r.out, "── transcript cleared ──")

	case events.TypeConversationChanged:
		if id := str(data["conversation_id"]); id != "" {
			r.status.Fprintf(r.out, "* conversation %s\n", id)
		} else {
			r.status.Fprintln(r.out, "* new conversation")
		}

	case events.TypeConnectionState:
		r.status.Fprintf(r.out, "* %v → %v\n", data["from"], data["to"])

	case events.TypeConnectionReady:
		r.status.Fprintf(r.out, "* ready (%v)\n", data["connection_id"])

	case events.TypeRetryScheduled:
		r.status.Fprintf(r.out, "* reconnecting in %vms (attempt %v)\n", data["delay_ms"], data["attempt"])

	case events.TypeRetriesExhausted:
		r.failure.Fprintf(r.out, "! gave up after %v attempts, use /connect to retry\n", data["attempts"])

	case events.TypeAuthFailed:
		r.failure.Fprintf(r.out, "! authentication failed (%v): %v\n", data["code"], data["reason"])
	}
}

func (r *Renderer) message(kind model.MessageType, text, responder string) {
	switch kind {
	case model.MessageTypeUser:
		r.user.Fprint(r.out, "you> ")
		fmt.Fprintln(r.out, text)
	case model.MessageTypeAssistant:
		r.assistant.Fprintf(r.out, "%s> ", responderLabel(responder))
		fmt.Fprintln(r.out, text)
	default:
		r.system.Fprintf(r.out, "! %s\n", text)
	}
}

func (r *Renderer) history() {
	if r.snapshot == nil {
		return
	}
	snap, err := r.snapshot()
	if err != nil {
		return
	}
	r.status.Fprintf(r.out, "── %d messages from history ──\n", len(snap.Messages))
	for _, m := range snap.Messages {
		r.message(m.Type, m.Text, m.ResponderID)
	}
}

func (r *Renderer) endPartial() {
	if r.partial {
		fmt.Fprint(r.out, clearLine)
		r.partial = false
	}
}

func responderLabel(responder string) string {
	if responder == "" {
		return "assistant"
	}
	return responder
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
