package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Duet/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

var ErrClosed = errors.New("signal connection closed")

// WSSignaler is the client end of the signaling socket.
type WSSignaler struct {
	conn *websocket.Conn

	wmu    sync.Mutex
	once   sync.Once
	closed chan struct{}
}

// SignalURL turns a server base URL into its WebSocket endpoint.
func SignalURL(server string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(server, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/api/ws/signal"
	return u.String(), nil
}

// Dial opens the signaling socket, authenticating with a bearer token.
func Dial(ctx context.Context, server, token string) (*WSSignaler, error) {
	target, err := SignalURL(server)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	d := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := d.DialContext(ctx, target, header)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "client.ws").Str("url", target).Msg("signal connected")
	return &WSSignaler{conn: conn, closed: make(chan struct{})}, nil
}

func (s *WSSignaler) Send(ev protocol.Event) error {
	frame, err := protocol.Encode(ev)
	if err != nil {
		return err
	}
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// Run reads events until the socket or ctx closes, handing each to handle
// in arrival order. A keepalive ping is sent every keepalive when > 0.
func (s *WSSignaler) Run(ctx context.Context, keepalive time.Duration, handle func(protocol.Event)) error {
	go func() {
		var tick <-chan time.Time
		if keepalive > 0 {
			t := time.NewTicker(keepalive)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-ctx.Done():
				s.Close()
				return
			case <-s.closed:
				return
			case <-tick:
				if err := s.Send(protocol.Ping{}); err != nil {
					log.Debug().Err(err).Str("module", "client.ws").Msg("keepalive failed")
				}
			}
		}
	}()

	defer s.Close()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		ev, err := protocol.DecodeOutbound(data)
		if err != nil {
			log.Debug().Err(err).Str("module", "client.ws").Msg("undecodable frame dropped")
			continue
		}
		handle(ev)
	}
}

func (s *WSSignaler) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.wmu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		s.wmu.Unlock()
		_ = s.conn.Close()
	})
}
