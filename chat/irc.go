package chat

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/irc.v3"
)

const (
	rplWelcome  = "001"
	rplISupport = "005"
	rplNamReply = "353"

	dialTimeout = 15 * time.Second
)

// ErrNotConnected is returned by SetVoice before registration completes.
var ErrNotConnected = errors.New("not connected")

// IRC is a Transport for a standard IRC network.
type IRC struct {
	// Server is host or host:port. Without a port, 6697 (TLS) or 6667 is used.
	Server   string
	Nickname string
	// Password is sent to NickServ with IDENTIFY once registered.
	Password  string
	Channel   string
	TLS       bool
	TLSConfig *tls.Config
	// Dial opens the raw connection. Nil uses a net.Dialer (wrapped in TLS
	// when TLS is set).
	Dial   func(ctx context.Context, network, addr string) (net.Conn, error)
	Logger *slog.Logger

	initOnce  sync.Once
	sink      *sink
	mu        sync.Mutex
	client    *irc.Client
	nick      string // as confirmed by the server
	connected atomic.Bool
}

func (c *IRC) init() {
	c.initOnce.Do(func() {
		c.sink = newSink()
		if c.Logger == nil {
			c.Logger = slog.Default()
		}
	})
}

// Events returns the inbound event stream. It is closed when the connection ends.
func (c *IRC) Events() <-chan Event {
	c.init()
	return c.sink.ch
}

// Err reports why the event stream closed, or nil while it is open.
func (c *IRC) Err() error {
	c.init()
	return c.sink.cause()
}

// Connected reports whether the server has accepted our registration.
func (c *IRC) Connected() bool { return c.connected.Load() }

// CurrentNick returns the nickname the server knows us by. It differs from
// Nickname when the configured nick was taken during registration.
func (c *IRC) CurrentNick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nick == "" {
		return c.Nickname
	}
	return c.nick
}

// Connect dials the server and starts the session in the background. The
// session ends when ctx is cancelled or the connection fails.
func (c *IRC) Connect(ctx context.Context) error {
	c.init()
	if c.Server == "" || c.Nickname == "" || c.Channel == "" {
		return errors.New("irc: server, nickname and channel are required")
	}
	addr := c.address()
	conn, err := c.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}

	client := irc.NewClient(conn, irc.ClientConfig{
		Nick:          c.Nickname,
		User:          c.Nickname,
		Name:          c.Nickname,
		PingFrequency: time.Minute,
		PingTimeout:   2 * time.Minute,
		Handler: irc.HandlerFunc(func(cl *irc.Client, m *irc.Message) {
			c.handle(ctx, cl, m)
		}),
	})
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	c.Logger.Info("irc connected", slog.String("server", addr), slog.Bool("tls", c.TLS))
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-c.sink.done:
		}
	}()
	go func() {
		err := client.RunContext(ctx)
		c.connected.Store(false)
		if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			c.Logger.Debug("irc close", slog.Any("err", cerr))
		}
		if err == nil {
			err = ctx.Err()
		}
		c.sink.finish(err)
	}()
	return nil
}

// SetVoice sends MODE <channel> +v <nick>.
func (c *IRC) SetVoice(ctx context.Context, channel, nick string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	return client.WriteMessage(&irc.Message{
		Command: "MODE",
		Params:  []string{channel, "+v", nick},
	})
}

func (c *IRC) handle(ctx context.Context, cl *irc.Client, m *irc.Message) {
	if m.Command == "NICK" {
		c.mu.Lock()
		if c.nick != "" && originator(m) == c.nick {
			c.nick = param(m, 0)
		}
		c.mu.Unlock()
	}
	if m.Command == rplWelcome {
		nick := param(m, 0)
		c.mu.Lock()
		c.nick = nick
		c.mu.Unlock()
		if nick != c.Nickname {
			c.Logger.Warn("registered under a different nickname", slog.String("nickname", c.Nickname), slog.String("current", nick))
		}
		c.connected.Store(true)
		if c.Password != "" {
			if err := cl.WriteMessage(&irc.Message{
				Command: "PRIVMSG",
				Params:  []string{"NickServ", "IDENTIFY " + c.Password},
			}); err != nil {
				c.Logger.Error("failed to identify with nickserv", slog.Any("err", err))
			}
		}
		if err := cl.WriteMessage(&irc.Message{Command: "JOIN", Params: []string{c.Channel}}); err != nil {
			c.Logger.Error("failed to join channel", slog.String("channel", c.Channel), slog.Any("err", err))
		}
	}
	c.sink.emit(ctx, ircEvent(m))
}

func (c *IRC) address() string {
	if _, _, err := net.SplitHostPort(c.Server); err == nil {
		return c.Server
	}
	port := "6667"
	if c.TLS {
		port = "6697"
	}
	return net.JoinHostPort(c.Server, port)
}

func (c *IRC) dial(ctx context.Context, addr string) (net.Conn, error) {
	if c.Dial != nil {
		return c.Dial(ctx, "tcp", addr)
	}
	nd := &net.Dialer{Timeout: dialTimeout}
	if !c.TLS {
		return nd.DialContext(ctx, "tcp", addr)
	}
	cfg := c.TLSConfig
	if cfg == nil {
		host, _, _ := net.SplitHostPort(addr)
		cfg = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}
	td := &tls.Dialer{NetDialer: nd, Config: cfg}
	return td.DialContext(ctx, "tcp", addr)
}

// ircEvent maps a raw IRC message onto the event set.
func ircEvent(m *irc.Message) Event {
	switch m.Command {
	case "JOIN":
		return Join{Nick: originator(m), Channel: param(m, 0)}
	case "PART":
		return Part{Nick: originator(m), Channel: param(m, 0)}
	case rplNamReply:
		return Names{Params: append([]string(nil), m.Params...)}
	case rplISupport:
		var tokens []string
		if len(m.Params) > 2 {
			tokens = append(tokens, m.Params[1:len(m.Params)-1]...)
		}
		return ISupport{Tokens: tokens}
	default:
		return Other{Command: m.Command}
	}
}

// originator returns the nickname that sent m, or "" when the prefix is
// missing or names a server.
func originator(m *irc.Message) string {
	if m.Prefix == nil || m.Prefix.Name == "" {
		return ""
	}
	if m.Prefix.User == "" && m.Prefix.Host == "" && strings.Contains(m.Prefix.Name, ".") {
		return ""
	}
	return m.Prefix.Name
}

func param(m *irc.Message, i int) string {
	if i < len(m.Params) {
		return m.Params[i]
	}
	return ""
}
