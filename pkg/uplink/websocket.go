// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uplink

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/quadtherm/pkg/link"
	"github.com/Thermoquad/quadtherm/pkg/measurement"
	"github.com/Thermoquad/quadtherm/pkg/telemetry"
)

const writeTimeout = 5 * time.Second

// WebSocketOptions configures the telemetry uplink connection
type WebSocketOptions struct {
	URL         string
	Username    string
	Password    string
	NoSSLVerify bool
	// Address is stamped on every frame
	Address uint64
}

// WebSocketSink sends telemetry frames as binary WebSocket messages
type WebSocketSink struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	encoder *telemetry.Encoder
	now     func() time.Time
}

// DialWebSocket connects to the uplink endpoint with optional HTTP Basic auth
func DialWebSocket(ctx context.Context, opts WebSocketOptions) (*WebSocketSink, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.NoSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, opts.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketSink{
		conn:    conn,
		encoder: telemetry.NewEncoder(opts.Address),
		now:     time.Now,
	}, nil
}

// Send frames m as a sample
func (s *WebSocketSink) Send(ctx context.Context, m measurement.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame, err := s.encoder.EncodeSample(telemetry.Sample{Temperature: m, Time: s.now()})
	if err != nil {
		return err
	}
	return s.write(frame)
}

// SendLinkState frames the link outcome
func (s *WebSocketSink) SendLinkState(ctx context.Context, state link.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame, err := s.encoder.EncodeLinkState(state)
	if err != nil {
		return err
	}
	return s.write(frame)
}

func (s *WebSocketSink) write(frame []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Close sends a close message and closes the connection
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
