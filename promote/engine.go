// Package promote decides who gets voice and when.
//
// An Engine owns the membership store and runs a single decision loop that
// multiplexes the transport's event stream with promotion triggers. Triggers
// come from a fixed ticker and from a short randomized wait scheduled after
// every promotion, which lets a backlog drain faster than one member per tick
// without sending a burst of mode changes.
package promote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/autovoice/chat"
	"github.com/onnwee/autovoice/members"
	"github.com/onnwee/autovoice/telemetry"
)

// Trigger names what caused a promotion check.
type Trigger string

const (
	TriggerTick   Trigger = "tick"
	TriggerJitter Trigger = "jitter"
)

const (
	// DefaultInterval is how often the store is checked without any promotion activity.
	DefaultInterval = 60 * time.Second
	commandTimeout  = 10 * time.Second
)

// Source is the inbound side of a transport.
type Source interface {
	Events() <-chan chat.Event
	Err() error
}

// Options configure an Engine.
type Options struct {
	Channel  string
	Nickname string // the bot's own nick; never promoted
	Cooldown time.Duration
	Interval time.Duration
	Jitter   Jitter // used as given; the zero value schedules re-checks immediately
	Now      func() time.Time
	Logger   *slog.Logger
}

// Status is a point-in-time view of the engine, safe to share across goroutines.
type Status struct {
	Channel        string     `json:"channel"`
	Nickname       string     `json:"nickname"`
	Cooldown       string     `json:"cooldown"`
	Tracked        int        `json:"tracked"`
	Promotions     int        `json:"promotions"`
	Failures       int        `json:"failures"`
	LastPromoted   string     `json:"last_promoted,omitempty"`
	LastPromotedAt *time.Time `json:"last_promoted_at,omitempty"`
}

// Engine is the promotion scheduler. Run may be called once.
type Engine struct {
	opts     Options
	voicer   chat.Voicer
	log      *slog.Logger
	store    *members.Store
	triggers chan Trigger
	wg       sync.WaitGroup
	status   atomic.Pointer[Status]

	// owned by the Run goroutine
	promotions     int
	failures       int
	lastPromoted   string
	lastPromotedAt time.Time
}

// New returns an Engine that promotes through voicer.
func New(opts Options, voicer chat.Voicer) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e := &Engine{
		opts:     opts,
		voicer:   voicer,
		log:      opts.Logger.With(slog.String("component", "promote")),
		store:    members.NewStore(),
		triggers: make(chan Trigger, 1),
	}
	e.publish()
	return e
}

// Status returns the most recently published status.
func (e *Engine) Status() Status {
	return *e.status.Load()
}

// Run processes events from src and promotion triggers until ctx is done or
// the event stream closes. A closed stream is fatal: membership would go
// stale, so Run returns an error wrapping the transport's cause.
func (e *Engine) Run(ctx context.Context, src Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		e.wg.Wait()
	}()

	e.spawn(func() { e.tick(ctx) })
	e.log.Info("promotion engine started",
		slog.String("channel", e.opts.Channel),
		slog.Duration("cooldown", e.opts.Cooldown),
		slog.Duration("interval", e.opts.Interval))

	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				cause := src.Err()
				if cause == nil {
					cause = chat.ErrClosed
				}
				return fmt.Errorf("irc client has been shutdown: %w", cause)
			}
			e.handleEvent(ev)
		case trig := <-e.triggers:
			e.check(ctx, trig)
		}
	}
}

func (e *Engine) handleEvent(ev chat.Event) {
	telemetry.CountEvent(eventKind(ev))
	e.log.Log(context.Background(), telemetry.LevelTrace, "received msg from irc server", slog.Any("event", ev))

	if ch := eventChannel(ev); ch != "" && !chat.SameChannel(ch, e.opts.Channel) {
		e.log.Debug("ignoring event for another channel", slog.String("channel", ch))
		return
	}

	switch ev := ev.(type) {
	case chat.Join:
		e.log.Debug("user has joined channel", slog.String("user", ev.Nick), slog.String("channel", ev.Channel))
	case chat.Part:
		e.log.Debug("user has left channel", slog.String("user", ev.Nick), slog.String("channel", ev.Channel))
	case chat.Names:
		list, _ := ev.List()
		e.log.Debug("received user list", slog.String("users", list))
	case chat.ISupport:
		e.log.Debug("received isupport message", slog.Any("tokens", ev.Tokens))
	}

	if err := Apply(e.store, ev, e.opts.Now()); err != nil {
		telemetry.Inc(telemetry.MalformedEvents)
		e.log.Error("error processing irc message", slog.Any("err", err))
		return
	}
	e.publish()
}

// check runs one selection and, on a hit, consumes the member and promotes it.
// The member leaves the store before the command is sent so a slow or failed
// command cannot select it twice.
func (e *Engine) check(ctx context.Context, trig Trigger) {
	telemetry.CountCheck(string(trig))
	e.log.Log(ctx, telemetry.LevelTrace, "checking if any users qualify for promotion", slog.String("trigger", string(trig)))

	nick, ok := Select(e.store.Snapshot(), e.opts.Cooldown, e.opts.Now())
	if !ok {
		return
	}
	e.store.Remove(nick)
	defer e.publish()

	if e.isSelf(nick) {
		telemetry.Inc(telemetry.SelfSkips)
		e.log.Debug("not promoting ourselves", slog.String("user", nick))
		return
	}
	e.promote(ctx, nick)
	e.scheduleRecheck(ctx)
}

// isSelf reports whether nick is the bot, under either the configured
// nickname or the one the server assigned.
func (e *Engine) isSelf(nick string) bool {
	if nick == e.opts.Nickname {
		return true
	}
	if r, ok := e.voicer.(chat.NickReporter); ok {
		cur := r.CurrentNick()
		return cur != "" && nick == cur
	}
	return false
}

func (e *Engine) promote(ctx context.Context, nick string) {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	log := telemetry.LoggerWithCorr(ctx, e.log).With(slog.String("user", nick), slog.String("channel", e.opts.Channel))
	ctx, span := telemetry.StartSpan(ctx, "promote.set_voice", telemetry.UserAttr(nick), telemetry.ChannelAttr(e.opts.Channel))
	defer span.End()

	log.Info("promoting user")
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	var err error
	telemetry.TimeFunc(telemetry.PromotionDuration, func() {
		err = e.voicer.SetVoice(cmdCtx, e.opts.Channel, nick)
	})
	if err != nil {
		e.failures++
		telemetry.Inc(telemetry.PromotionFailures)
		telemetry.RecordError(span, err)
		log.Error("failed to set mode for user", slog.Any("err", err))
		return
	}
	e.promotions++
	e.lastPromoted = nick
	e.lastPromotedAt = e.opts.Now()
	telemetry.Inc(telemetry.PromotionsTotal)
	telemetry.SetSpanSuccess(span)
}

// scheduleRecheck posts a jitter trigger after a random pause.
func (e *Engine) scheduleRecheck(ctx context.Context) {
	d := e.opts.Jitter.Next()
	e.spawn(func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		e.trigger(ctx, TriggerJitter)
	})
}

func (e *Engine) tick(ctx context.Context) {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.trigger(ctx, TriggerTick)
		}
	}
}

func (e *Engine) trigger(ctx context.Context, trig Trigger) {
	select {
	case e.triggers <- trig:
	case <-ctx.Done():
	}
}

func (e *Engine) spawn(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

func (e *Engine) publish() {
	s := &Status{
		Channel:      e.opts.Channel,
		Nickname:     e.opts.Nickname,
		Cooldown:     e.opts.Cooldown.String(),
		Tracked:      e.store.Len(),
		Promotions:   e.promotions,
		Failures:     e.failures,
		LastPromoted: e.lastPromoted,
	}
	if !e.lastPromotedAt.IsZero() {
		at := e.lastPromotedAt
		s.LastPromotedAt = &at
	}
	e.status.Store(s)
	telemetry.SetTracked(s.Tracked)
}
