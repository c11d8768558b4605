package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Automobile-System/backend-sub001/internal/auth/domain"
	"github.com/Automobile-System/backend-sub001/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userTable map[string]*domain.User

func (u userTable) GetByID(_ context.Context, id string) (*domain.User, error) {
	return u[id], nil
}

type harness struct {
	url    string
	tokens interface {
		IssueAccessToken(string, string, []domain.Role, bool) (string, time.Time, error)
	}
}

func newHarness(t *testing.T, allowAnonymous bool) *harness {
	t.Helper()

	tokens := newTokens()
	users := userTable{
		"user-1": {ID: "user-1", Email: "user-1@example.com", Roles: []domain.Role{domain.RoleCustomer}, Enabled: true},
		"user-2": {ID: "user-2", Email: "user-2@example.com", Roles: []domain.Role{domain.RoleStaff}, Enabled: true},
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := realtime.NewHub(quietLogger())
	go hub.Run(ctx)

	auth := realtime.NewChannelAuthenticator(tokens, users, allowAnonymous, quietLogger())
	srv := httptest.NewServer(realtime.NewServer(hub, auth, nil, quietLogger()).Handler())
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &harness{url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", tokens: tokens}
}

func (h *harness) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := h.tokens.IssueAccessToken(userID, userID+"@example.com", nil, false)
	require.NoError(t, err)
	return token
}

func (h *harness) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(h.url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (h *harness) connect(t *testing.T, headers map[string]string) *websocket.Conn {
	t.Helper()
	conn := h.dial(t, nil)
	send(t, conn, realtime.Frame{Command: realtime.CommandConnect, Headers: headers})
	f := recv(t, conn)
	require.Equal(t, realtime.CommandConnected, f.Command)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, f realtime.Frame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(f))
}

func recv(t *testing.T, conn *websocket.Conn) realtime.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f realtime.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestConnectWithHeader(t *testing.T) {
	h := newHarness(t, true)
	conn := h.dial(t, nil)

	send(t, conn, realtime.Frame{Command: realtime.CommandConnect, Headers: bearer(h.token(t, "user-1"))})
	f := recv(t, conn)
	assert.Equal(t, realtime.CommandConnected, f.Command)
	assert.Equal(t, "user-1", f.Header(realtime.HeaderUser))
}

func TestConnectWithHandshakeCookie(t *testing.T) {
	h := newHarness(t, true)
	header := http.Header{}
	header.Set("Cookie", "access_token="+h.token(t, "user-2"))
	conn := h.dial(t, header)

	send(t, conn, realtime.Frame{Command: realtime.CommandConnect})
	f := recv(t, conn)
	assert.Equal(t, realtime.CommandConnected, f.Command)
	assert.Equal(t, "user-2", f.Header(realtime.HeaderUser))
}

func TestAnonymousSession(t *testing.T) {
	h := newHarness(t, true)
	conn := h.dial(t, nil)

	send(t, conn, realtime.Frame{Command: realtime.CommandConnect, Headers: bearer("garbage")})
	f := recv(t, conn)
	require.Equal(t, realtime.CommandConnected, f.Command)
	assert.Empty(t, f.Header(realtime.HeaderUser))

	send(t, conn, realtime.Frame{Command: realtime.CommandSubscribe, Destination: "/topic/bay-3"})
	assert.Equal(t, realtime.CommandError, recv(t, conn).Command)

	send(t, conn, realtime.Frame{Command: realtime.CommandSend, Destination: realtime.PublicTopic, Body: json.RawMessage(`"hi"`)})
	assert.Equal(t, realtime.CommandError, recv(t, conn).Command)

	send(t, conn, realtime.Frame{
		Command:     realtime.CommandSubscribe,
		Destination: realtime.PublicTopic,
		Headers:     map[string]string{realtime.HeaderReceipt: "sub-1"},
	})
	f = recv(t, conn)
	assert.Equal(t, realtime.CommandReceipt, f.Command)
	assert.Equal(t, "sub-1", f.Header(realtime.HeaderReceiptID))
}

func TestAnonymousRejectedWhenDisallowed(t *testing.T) {
	h := newHarness(t, false)
	conn := h.dial(t, nil)

	send(t, conn, realtime.Frame{Command: realtime.CommandConnect})
	f := recv(t, conn)
	assert.Equal(t, realtime.CommandError, f.Command)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestFirstFrameMustBeConnect(t *testing.T) {
	h := newHarness(t, true)
	conn := h.dial(t, nil)

	send(t, conn, realtime.Frame{Command: realtime.CommandSubscribe, Destination: realtime.PublicTopic})
	assert.Equal(t, realtime.CommandError, recv(t, conn).Command)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestTopicFanOut(t *testing.T) {
	h := newHarness(t, true)
	subscriber := h.connect(t, bearer(h.token(t, "user-1")))
	sender := h.connect(t, bearer(h.token(t, "user-2")))

	send(t, subscriber, realtime.Frame{
		Command:     realtime.CommandSubscribe,
		Destination: "/topic/bay-3",
		Headers:     map[string]string{realtime.HeaderReceipt: "sub"},
	})
	require.Equal(t, realtime.CommandReceipt, recv(t, subscriber).Command)

	send(t, sender, realtime.Frame{Command: realtime.CommandSend, Destination: "/topic/bay-3", Body: json.RawMessage(`{"status":"done"}`)})

	f := recv(t, subscriber)
	assert.Equal(t, realtime.CommandMessage, f.Command)
	assert.Equal(t, "/topic/bay-3", f.Destination)
	assert.Equal(t, "user-2", f.Header(realtime.HeaderSender))
	assert.JSONEq(t, `{"status":"done"}`, string(f.Body))
}

func TestUserDestination(t *testing.T) {
	h := newHarness(t, true)
	recipient := h.connect(t, bearer(h.token(t, "user-1")))
	sender := h.connect(t, bearer(h.token(t, "user-2")))

	send(t, sender, realtime.Frame{Command: realtime.CommandSend, Destination: "/user/user-1", Body: json.RawMessage(`"your car is ready"`)})

	f := recv(t, recipient)
	assert.Equal(t, realtime.CommandMessage, f.Command)
	assert.Equal(t, "/user/user-1", f.Destination)
	assert.JSONEq(t, `"your car is ready"`, string(f.Body))
}
