package walker

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/apuracao/internal/apuracao/resolver"
)

// EventKind identifies the transition an Event reports.
type EventKind string

const (
	EventStateEntered      EventKind = "state_entered"
	EventPartitionResolved EventKind = "partition_resolved"
	EventPrimaryResolved   EventKind = "primary_resolved"
	EventSelected          EventKind = "selected"
	EventWalkStopped       EventKind = "walk_stopped"
	EventFallback          EventKind = "partition_fallback"
	EventDone              EventKind = "done"
	EventFailed            EventKind = "failed"
)

// Event is emitted by the walker at well-defined transition points. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	Mode      Mode
	State     State
	Match     resolver.Match
	Position  *Position
	Partition string
	Requested string
	Found     int
	Err       error
}

// Observer receives walker events. Implementations must not retain the
// Position pointer past the call.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// NopObserver discards every event.
func NopObserver() Observer { return nopObserver{} }

type multiObserver []Observer

func (m multiObserver) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// MultiObserver fans events out to every non-nil observer in order.
func MultiObserver(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return NopObserver()
	}
	return out
}

// LogObserver writes events to a slog logger. Transitions go out at debug
// level, failures at warn.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver returns a LogObserver; a nil logger means slog.Default().
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger.With("component", "draw-walker")}
}

func (o *LogObserver) Observe(e Event) {
	attrs := []slog.Attr{
		slog.String("event", string(e.Kind)),
		slog.String("mode", string(e.Mode)),
		slog.String("state", e.State.String()),
	}
	switch e.Kind {
	case EventPartitionResolved:
		attrs = append(attrs, slog.String("requested", e.Requested), slog.String("partition", e.Partition))
	case EventPrimaryResolved:
		attrs = append(attrs, slog.String("match", e.Match.String()))
	case EventFallback:
		attrs = append(attrs, slog.String("from", e.Requested), slog.String("partition", e.Partition), slog.Int("filled", e.Found))
	case EventWalkStopped, EventDone:
		attrs = append(attrs, slog.Int("found", e.Found))
	}
	if e.Position != nil {
		attrs = append(attrs,
			slog.Int("position", e.Position.Position),
			slog.String("numero", e.Position.Number),
			slog.String("chave_contato", e.Position.ContactKey),
		)
	}
	level := slog.LevelDebug
	if e.Kind == EventFailed {
		level = slog.LevelWarn
		attrs = append(attrs, slog.Any("error", e.Err))
	}
	o.logger.LogAttrs(context.Background(), level, "draw event", attrs...)
}
