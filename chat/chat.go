package chat

import (
	"context"
	"strings"
)

// Event is one parsed protocol event. The set of implementations is closed:
// anything a transport does not recognise must be delivered as Other.
type Event interface {
	isEvent()
}

// Join is emitted when Nick joins Channel. Nick is empty when the message had
// no usable originator.
type Join struct {
	Nick    string
	Channel string
}

// Part is emitted when Nick leaves Channel.
type Part struct {
	Nick    string
	Channel string
}

// Names is a membership snapshot (RPL_NAMREPLY). Params are the raw reply
// parameters: target nick, channel type symbol, channel, space-separated names.
type Names struct {
	Params []string
}

// ISupport carries the server's RPL_ISUPPORT tokens.
type ISupport struct {
	Tokens []string
}

// Other is every event the moderator does not act on.
type Other struct {
	Command string
}

func (Join) isEvent()     {}
func (Part) isEvent()     {}
func (Names) isEvent()    {}
func (ISupport) isEvent() {}
func (Other) isEvent()    {}

// Channel returns the channel parameter of the reply, if present.
func (n Names) Channel() (string, bool) {
	if len(n.Params) < 3 || n.Params[2] == "" {
		return "", false
	}
	return n.Params[2], true
}

// List returns the space-separated names parameter, if present.
func (n Names) List() (string, bool) {
	if len(n.Params) < 4 {
		return "", false
	}
	return n.Params[3], true
}

// SpecialPrefixes mark members who already hold voice or can grant it to
// themselves.
// TODO: read the PREFIX token from ISUPPORT instead of assuming the common set.
const SpecialPrefixes = "@+~&%"

// HasSpecialRole reports whether a names-list entry starts with a role prefix.
func HasSpecialRole(name string) bool {
	return name != "" && strings.ContainsRune(SpecialPrefixes, rune(name[0]))
}

// Voicer applies the voice privilege to a member of a channel.
type Voicer interface {
	SetVoice(ctx context.Context, channel, nick string) error
}

// NickReporter is implemented by transports that know the nickname the
// server assigned to the bot, which may differ from the configured one.
type NickReporter interface {
	CurrentNick() string
}

// Transport is a connected chat session: it produces events and accepts
// voice commands. Events is closed when the session ends; Err then reports why.
type Transport interface {
	Voicer
	Connect(ctx context.Context) error
	Events() <-chan Event
	Err() error
	Connected() bool
}

// SameChannel compares channel names the way IRC servers do for ASCII names.
func SameChannel(a, b string) bool {
	return strings.EqualFold(a, b)
}

// NormalizeChannel prefixes a bare channel name with '#'.
func NormalizeChannel(channel string) string {
	if channel == "" || strings.ContainsRune("#&+!", rune(channel[0])) {
		return channel
	}
	return "#" + channel
}
