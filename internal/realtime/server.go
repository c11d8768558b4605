package realtime

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Server upgrades /ws requests and attaches each socket to the hub.
type Server struct {
	hub      *Hub
	auth     *ChannelAuthenticator
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

// NewServer accepts origins listed in allowedOrigins ("*" admits any). With no
// list, only same-host origins are accepted.
func NewServer(hub *Hub, auth *ChannelAuthenticator, allowedOrigins []string, logger logrus.FieldLogger) *Server {
	return &Server{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	return mux
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	attrs := s.auth.Handshake(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).WithField("ip", r.RemoteAddr).Warn("websocket upgrade failed")
		return
	}

	client := newClient(s.hub, conn, s.auth, attrs, s.log)
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(context.WithoutCancel(r.Context()))
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o = strings.TrimSpace(o); o != "" {
			set[strings.TrimSuffix(o, "/")] = true
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set["*"] || set[origin] {
			return true
		}
		if len(set) > 0 {
			return false
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// SplitOrigins parses a comma separated origin list.
func SplitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
