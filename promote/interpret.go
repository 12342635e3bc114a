package promote

import (
	"errors"
	"strings"
	"time"

	"github.com/onnwee/autovoice/chat"
	"github.com/onnwee/autovoice/members"
)

// ErrMalformedNames is returned for a names reply without a channel or names parameter.
var ErrMalformedNames = errors.New("malformed user-list irc message")

// Apply performs the store transition for a single event observed at now.
// Events without an originator and event kinds other than Join, Part and
// Names leave the store unchanged.
func Apply(store *members.Store, ev chat.Event, now time.Time) error {
	switch ev := ev.(type) {
	case chat.Join:
		if ev.Nick != "" {
			store.Record(ev.Nick, now)
		}
	case chat.Part:
		if ev.Nick != "" {
			store.Remove(ev.Nick)
		}
	case chat.Names:
		if _, ok := ev.Channel(); !ok {
			return ErrMalformedNames
		}
		list, ok := ev.List()
		if !ok {
			return ErrMalformedNames
		}
		for _, name := range strings.Fields(list) {
			if !chat.HasSpecialRole(name) {
				store.Record(name, now)
			}
		}
	}
	return nil
}

// eventKind is the metrics label for ev.
func eventKind(ev chat.Event) string {
	switch ev.(type) {
	case chat.Join:
		return "join"
	case chat.Part:
		return "part"
	case chat.Names:
		return "names"
	case chat.ISupport:
		return "isupport"
	default:
		return "other"
	}
}

// eventChannel returns the channel ev is addressed to, or "" when it has none.
func eventChannel(ev chat.Event) string {
	switch ev := ev.(type) {
	case chat.Join:
		return ev.Channel
	case chat.Part:
		return ev.Channel
	case chat.Names:
		ch, _ := ev.Channel()
		return ch
	}
	return ""
}
