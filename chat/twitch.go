package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// ErrConnectionLost ends a Twitch session whose connection dropped. The
// client library would reconnect on its own, but membership changes during
// the gap are never replayed.
var ErrConnectionLost = errors.New("twitch: chat connection lost")

// VIPGranter grants the VIP badge, Twitch's closest equivalent of voice.
type VIPGranter interface {
	AddVIP(ctx context.Context, channelLogin, userLogin string) error
}

// Twitch is a Transport for Twitch chat. Membership comes from IRC (with the
// membership capability); promotion goes through Helix.
type Twitch struct {
	Username string
	// Token is the bot's user access token, with or without the "oauth:" prefix.
	Token   string
	Channel string
	Helix   VIPGranter
	// IrcAddress overrides the chat server (tests).
	IrcAddress string
	Logger     *slog.Logger

	initOnce    sync.Once
	sink        *sink
	connected   atomic.Bool
	connects    atomic.Int32
	pingPending atomic.Bool
}

func (t *Twitch) init() {
	t.initOnce.Do(func() {
		t.sink = newSink()
		if t.Logger == nil {
			t.Logger = slog.Default()
		}
	})
}

// Events returns the inbound event stream. It is closed when the connection ends.
func (t *Twitch) Events() <-chan Event {
	t.init()
	return t.sink.ch
}

// Err reports why the event stream closed, or nil while it is open.
func (t *Twitch) Err() error {
	t.init()
	return t.sink.cause()
}

// Connected reports whether the chat connection is established.
func (t *Twitch) Connected() bool { return t.connected.Load() }

// CurrentNick returns the bot's login, which is how Twitch reports it in
// membership events.
func (t *Twitch) CurrentNick() string { return strings.ToLower(t.Username) }

// lose ends the session after the connection dropped.
func (t *Twitch) lose(client *twitch.Client, reason string) {
	t.connected.Store(false)
	t.Logger.Warn("twitch chat connection lost", slog.String("reason", reason))
	t.sink.finish(ErrConnectionLost)
	_ = client.Disconnect()
}

// Connect starts the chat client in the background.
func (t *Twitch) Connect(ctx context.Context) error {
	t.init()
	if t.Username == "" || t.Token == "" || t.Channel == "" {
		return errors.New("twitch: username, token and channel are required")
	}
	login := channelLogin(t.Channel)
	client := twitch.NewClient(strings.ToLower(t.Username), oauthPassword(t.Token))
	client.Capabilities = []string{twitch.TagsCapability, twitch.CommandsCapability, twitch.MembershipCapability}
	if t.IrcAddress != "" {
		client.IrcAddress = t.IrcAddress
		client.TLS = false
	}

	// One session is one connection: any sign that the client reconnected
	// ends the event stream.
	client.OnConnect(func() {
		if t.connects.Add(1) > 1 {
			t.lose(client, "reconnected")
			return
		}
		t.connected.Store(true)
		t.Logger.Info("twitch chat connected", slog.String("channel", login))
	})
	client.OnReconnectMessage(func(twitch.ReconnectMessage) {
		t.lose(client, "server requested reconnect")
	})
	// A ping sent while the previous one is unanswered went out on a new
	// connection.
	client.OnPingSent(func() {
		if t.pingPending.Swap(true) {
			t.lose(client, "ping unanswered")
		}
	})
	client.OnPongMessage(func(twitch.PongMessage) {
		t.pingPending.Store(false)
	})
	client.OnUserJoinMessage(func(msg twitch.UserJoinMessage) {
		t.sink.emit(ctx, Join{Nick: msg.User, Channel: NormalizeChannel(msg.Channel)})
	})
	client.OnUserPartMessage(func(msg twitch.UserPartMessage) {
		t.sink.emit(ctx, Part{Nick: msg.User, Channel: NormalizeChannel(msg.Channel)})
	})
	client.OnNamesMessage(func(msg twitch.NamesMessage) {
		t.sink.emit(ctx, twitchNames(t.Username, msg))
	})
	client.Join(login)

	// Handle context cancellation by closing the client
	go func() {
		select {
		case <-ctx.Done():
			_ = client.Disconnect()
		case <-t.sink.done:
		}
	}()
	go func() {
		err := client.Connect()
		t.connected.Store(false)
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		t.sink.finish(err)
	}()
	return nil
}

// SetVoice grants VIP in channel to nick.
func (t *Twitch) SetVoice(ctx context.Context, channel, nick string) error {
	if t.Helix == nil {
		return errors.New("twitch: no helix client configured")
	}
	if err := t.Helix.AddVIP(ctx, channelLogin(channel), strings.ToLower(nick)); err != nil {
		return fmt.Errorf("add vip: %w", err)
	}
	return nil
}

// twitchNames rebuilds RPL_NAMREPLY parameters from the parsed message.
func twitchNames(self string, msg twitch.NamesMessage) Names {
	params := []string{self, "="}
	if msg.Channel == "" {
		return Names{Params: params}
	}
	params = append(params, NormalizeChannel(msg.Channel))
	if msg.Users != nil {
		params = append(params, strings.Join(msg.Users, " "))
	}
	return Names{Params: params}
}

func channelLogin(channel string) string {
	return strings.ToLower(strings.TrimPrefix(channel, "#"))
}

func oauthPassword(token string) string {
	if strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}
