package vaillant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/joshp123/vaillant2mqtt/internal/hub"
)

const (
	defaultWSURL = "wss://appapi.vaillant-plus.com:8890/ws/app/v1"

	wsPingInterval   = 30 * time.Second
	wsWriteTimeout   = 10 * time.Second
	wsBackoffInitial = time.Second
	wsBackoffMax     = time.Minute
)

var ErrSessionDown = errors.New("websocket session down")

// wire frames exchanged with the app gateway
type wsFrame struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

type wsLoginReq struct {
	Token         string `json:"token"`
	P0Type        string `json:"p0_type"`
	AutoSubscribe bool   `json:"auto_subscribe"`
}

type wsLoginRes struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

type wsSubscribeEntry struct {
	DID string `json:"did"`
}

type wsNoti struct {
	DID   string         `json:"did"`
	Attrs map[string]any `json:"attrs"`
}

type wsWrite struct {
	DID   string         `json:"did"`
	MsgID string         `json:"msg_id"`
	Attrs map[string]any `json:"attrs"`
}

type wsError struct {
	ErrorCode int    `json:"error_code"`
	Msg       string `json:"msg"`
}

// invalid-token codes push the session through a token refresh
const wsErrTokenExpired = 1009

// Session is the push channel to the app gateway. It logs in with the
// current access token, subscribes the known devices, and feeds
// attribute notifications into the hub (reverse sync). Commands go out
// as c2s_write frames; when the session is down the caller falls back
// to HTTP control.
type Session struct {
	url    string
	tokens TokenSource
	report func(deviceID string, attrs hub.Attrs)

	mu        sync.Mutex
	conn      *websocket.Conn
	loggedIn  bool
	subs      map[string]bool
}

func NewSession(wsURL string, tokens TokenSource, report func(deviceID string, attrs hub.Attrs)) *Session {
	if wsURL == "" {
		wsURL = defaultWSURL
	}
	return &Session{
		url:    wsURL,
		tokens: tokens,
		report: report,
		subs:   make(map[string]bool),
	}
}

// Subscribe registers a device for attribute pushes. Safe to call
// before the session connects; subscriptions replay on reconnect.
func (s *Session) Subscribe(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	s.subs[deviceID] = true
	conn := s.conn
	ready := s.loggedIn
	s.mu.Unlock()

	if !ready {
		return nil
	}
	return s.writeFrame(conn, "subscribe_req", []wsSubscribeEntry{{DID: deviceID}})
}

// ControlDevice sends a write frame for the device. The gateway does
// not ack writes; the next s2c_noti reflects the change.
func (s *Session) ControlDevice(ctx context.Context, deviceID string, attrs hub.Attrs) error {
	s.mu.Lock()
	conn := s.conn
	ready := s.loggedIn
	s.mu.Unlock()

	if !ready {
		return ErrSessionDown
	}
	return s.writeFrame(conn, "c2s_write", wsWrite{
		DID:   deviceID,
		MsgID: uuid.NewString(),
		Attrs: attrs,
	})
}

// Run dials and serves the session until ctx is done, reconnecting
// with capped exponential backoff.
func (s *Session) Run(ctx context.Context) {
	backoff := wsBackoffInitial
	for {
		if ctx.Err() != nil {
			return
		}

		err := s.serveOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("websocket session: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsBackoffMax {
			backoff = wsBackoffMax
		}
	}
}

func (s *Session) serveOnce(ctx context.Context) error {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := s.login(conn, token); err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.loggedIn = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.loggedIn = false
		s.mu.Unlock()
	}()

	if err := s.resubscribeAll(conn); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(ctx, conn, done)

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := s.handleFrame(ctx, frame); err != nil {
			return err
		}
	}
}

func (s *Session) login(conn *websocket.Conn, token string) error {
	req := wsLoginReq{Token: token, P0Type: "attrs_v4", AutoSubscribe: false}
	if err := s.writeFrame(conn, "login_req", req); err != nil {
		return err
	}

	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		return fmt.Errorf("login read: %w", err)
	}
	if frame.Cmd != "login_res" {
		return fmt.Errorf("unexpected frame %q during login", frame.Cmd)
	}
	var res wsLoginRes
	if err := json.Unmarshal(frame.Data, &res); err != nil {
		return fmt.Errorf("login decode: %w", err)
	}
	if !res.Success {
		// An expired token is the usual cause; refresh before the
		// next reconnect attempt.
		s.tokens.TriggerRefresh(context.Background())
		return fmt.Errorf("login rejected: %s", res.Reason)
	}
	return nil
}

func (s *Session) resubscribeAll(conn *websocket.Conn) error {
	s.mu.Lock()
	entries := make([]wsSubscribeEntry, 0, len(s.subs))
	for did := range s.subs {
		entries = append(entries, wsSubscribeEntry{DID: did})
	}
	s.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	return s.writeFrame(conn, "subscribe_req", entries)
}

func (s *Session) handleFrame(ctx context.Context, frame wsFrame) error {
	switch frame.Cmd {
	case "s2c_noti":
		var noti wsNoti
		if err := json.Unmarshal(frame.Data, &noti); err != nil {
			return fmt.Errorf("noti decode: %w", err)
		}
		if s.report != nil && noti.DID != "" {
			s.report(noti.DID, hub.Attrs(noti.Attrs))
		}
		return nil
	case "s2c_invalid_msg":
		var wsErr wsError
		if err := json.Unmarshal(frame.Data, &wsErr); err != nil {
			return fmt.Errorf("error decode: %w", err)
		}
		if wsErr.ErrorCode == wsErrTokenExpired {
			s.tokens.TriggerRefresh(ctx)
			return fmt.Errorf("session token expired: %s", wsErr.Msg)
		}
		log.Printf("websocket invalid msg %d: %s", wsErr.ErrorCode, wsErr.Msg)
		return nil
	case "pong", "subscribe_res", "s2c_online_status":
		return nil
	default:
		log.Printf("websocket: ignoring frame %q", frame.Cmd)
		return nil
	}
}

func (s *Session) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			if err := s.writeFrame(conn, "ping", nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) writeFrame(conn *websocket.Conn, cmd string, data any) error {
	if conn == nil {
		return ErrSessionDown
	}

	frame := wsFrame{Cmd: cmd}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		frame.Data = raw
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(frame)
}
