package chat

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/irc.v3"
)

// fakeServer is the server end of a net.Pipe speaking raw IRC lines.
type fakeServer struct {
	t    *testing.T
	conn net.Conn
	msgs chan *irc.Message
}

func newFakeServer(t *testing.T, conn net.Conn) *fakeServer {
	s := &fakeServer{t: t, conn: conn, msgs: make(chan *irc.Message, 64)}
	go func() {
		defer close(s.msgs)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			line := strings.TrimRight(sc.Text(), "\r")
			if line == "" {
				continue
			}
			m, err := irc.ParseMessage(line)
			if err != nil {
				continue
			}
			s.msgs <- m
		}
	}()
	return s
}

func (s *fakeServer) send(line string) {
	s.t.Helper()
	_ = s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := s.conn.Write([]byte(line + "\r\n"))
	require.NoError(s.t, err)
}

// expect waits for the next client message with the given command.
func (s *fakeServer) expect(command string) *irc.Message {
	s.t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case m, ok := <-s.msgs:
			if !ok {
				s.t.Fatalf("connection closed while waiting for %s", command)
			}
			if m.Command == command {
				return m
			}
		case <-timeout:
			s.t.Fatalf("timed out waiting for %s", command)
		}
	}
}

// nextEvent returns the next event that is not Other.
func nextEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("event stream closed")
			}
			if _, other := ev.(Other); other {
				continue
			}
			return ev
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}
}

func connectPipe(t *testing.T, ctx context.Context, password string) (*IRC, *fakeServer) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	t.Cleanup(func() { _ = serverEnd.Close() })
	c := &IRC{
		Server:   "irc.example.net",
		Nickname: "autovoice",
		Password: password,
		Channel:  "#mod",
		Dial: func(context.Context, string, string) (net.Conn, error) {
			return clientEnd, nil
		},
	}
	srv := newFakeServer(t, serverEnd)
	require.NoError(t, c.Connect(ctx))
	srv.expect("NICK")
	return c, srv
}

func TestIRCRegistersAndJoins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, srv := connectPipe(t, ctx, "hunter2")

	assert.False(t, c.Connected())
	err := c.SetVoice(ctx, "#mod", "alice")
	assert.ErrorIs(t, err, ErrNotConnected)

	srv.send(":irc.example.net 001 autovoice :Welcome to the network")
	ident := srv.expect("PRIVMSG")
	assert.Equal(t, []string{"NickServ", "IDENTIFY hunter2"}, ident.Params)
	join := srv.expect("JOIN")
	assert.Equal(t, "#mod", join.Params[0])
	assert.True(t, c.Connected())
}

func TestIRCTranslatesMembershipEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, srv := connectPipe(t, ctx, "")
	srv.send(":irc.example.net 001 autovoice :Welcome")
	srv.expect("JOIN")

	srv.send(":alice!a@host.example JOIN #mod")
	assert.Equal(t, Join{Nick: "alice", Channel: "#mod"}, nextEvent(t, c.Events()))

	srv.send(":bob!b@host.example PART #mod :bye")
	assert.Equal(t, Part{Nick: "bob", Channel: "#mod"}, nextEvent(t, c.Events()))

	srv.send(":irc.example.net 353 autovoice = #mod :@admin user1 user2")
	names, ok := nextEvent(t, c.Events()).(Names)
	require.True(t, ok)
	ch, _ := names.Channel()
	list, _ := names.List()
	assert.Equal(t, "#mod", ch)
	assert.Equal(t, "@admin user1 user2", list)

	srv.send(":irc.example.net 005 autovoice PREFIX=(ov)@+ CHANTYPES=# :are supported by this server")
	isup, ok := nextEvent(t, c.Events()).(ISupport)
	require.True(t, ok)
	assert.Equal(t, []string{"PREFIX=(ov)@+", "CHANTYPES=#"}, isup.Tokens)

	// A server-originated JOIN has no usable originator.
	srv.send(":services.example.net JOIN #mod")
	assert.Equal(t, Join{Nick: "", Channel: "#mod"}, nextEvent(t, c.Events()))
}

func TestIRCFollowsAssignedNick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, srv := connectPipe(t, ctx, "")
	assert.Equal(t, "autovoice", c.CurrentNick())

	srv.send(":irc.example.net 433 * autovoice :Nickname is already in use")
	retry := srv.expect("NICK")
	assert.Equal(t, []string{"autovoice_"}, retry.Params)

	srv.send(":irc.example.net 001 autovoice_ :Welcome")
	srv.expect("JOIN")
	assert.Equal(t, "autovoice_", c.CurrentNick())

	srv.send(":autovoice_!u@host.example JOIN #mod")
	assert.Equal(t, Join{Nick: "autovoice_", Channel: "#mod"}, nextEvent(t, c.Events()))

	// A later rename of our own nick is tracked; other users' renames are not.
	srv.send(":alice!a@host.example NICK alicia")
	srv.send(":autovoice_!u@host.example NICK autovoice")
	srv.send(":irc.example.net 353 autovoice = #mod :autovoice")
	_, ok := nextEvent(t, c.Events()).(Names)
	require.True(t, ok)
	assert.Equal(t, "autovoice", c.CurrentNick())
}

func TestIRCSetVoice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, srv := connectPipe(t, ctx, "")
	srv.send(":irc.example.net 001 autovoice :Welcome")
	srv.expect("JOIN")

	require.NoError(t, c.SetVoice(ctx, "#mod", "alice"))
	mode := srv.expect("MODE")
	assert.Equal(t, []string{"#mod", "+v", "alice"}, mode.Params)
}

func TestIRCStreamEndsWhenServerCloses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c, srv := connectPipe(t, ctx, "")
	require.NoError(t, srv.conn.Close())

	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-c.Events():
			if ok {
				continue
			}
			assert.Error(t, c.Err())
			assert.False(t, c.Connected())
			return
		case <-timeout:
			t.Fatal("event stream not closed")
		}
	}
}

func TestIRCRequiresSettings(t *testing.T) {
	c := &IRC{Server: "irc.example.net"}
	assert.Error(t, c.Connect(context.Background()))
}

func TestIRCAddress(t *testing.T) {
	assert.Equal(t, "irc.example.net:6697", (&IRC{Server: "irc.example.net", TLS: true}).address())
	assert.Equal(t, "irc.example.net:6667", (&IRC{Server: "irc.example.net"}).address())
	assert.Equal(t, "irc.example.net:7000", (&IRC{Server: "irc.example.net:7000", TLS: true}).address())
}
