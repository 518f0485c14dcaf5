// Package controller implements the client side of a session with the
// Sentinel cluster controller: one WebSocket connection carrying the
// pub/sub wire protocol, with publish/receive/transact primitives on
// top.
package controller

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/monctl/internal/broker"
	"github.com/danmuck/monctl/internal/events"
)

var (
	ErrNotConnected = errors.New("controller: not connected")
	ErrTimeout      = errors.New("controller: request timed out")
	ErrSession      = errors.New("controller: session error")
)

// State tracks the session lifecycle. A session never leaves Failed;
// retrying is the operator's call, not ours.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateFailed
)

// Config carries the session knobs resolved from client settings.
type Config struct {
	// Topic is the controller's management topic; we publish to it and
	// subscribe to it during the handshake.
	Topic string
	// ConnectTimeout bounds the single dial-plus-handshake attempt.
	ConnectTimeout time.Duration
	// RequestTimeout bounds one Receive when the caller passes no
	// explicit timeout.
	RequestTimeout time.Duration
	// TLS enables wss and, when set, carries the client TLS setup.
	TLS *tls.Config
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 20 * time.Second
	}
	if strings.TrimSpace(c.Topic) == "" {
		c.Topic = "sentinel/management/controller"
	}
	return c
}

// inbound is one item off the wire: a recognized event, or the error
// that ended the session.
type inbound struct {
	ev  *broker.Event
	err error
}

// Client is one session with the controller, bound to a validated
// address. It lives for a single process invocation.
type Client struct {
	host     string
	port     int
	cfg      Config
	conn     *websocket.Conn
	incoming chan inbound
	state    State
}

func New(host string, port int, cfg Config) *Client {
	return &Client{host: host, port: port, cfg: cfg.withDefaults()}
}

func (c *Client) State() State { return c.state }

func (c *Client) url() string {
	scheme := "ws"
	if c.cfg.TLS != nil {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d/v1/messages/json", scheme, c.host, c.port)
}

// Connect performs exactly one attempt to establish the session: dial,
// send the topic handshake, read the ack. Ordinary connection failure is
// not an error condition here; it is logged and reported as false, and
// there is no retry or backoff.
func (c *Client) Connect(ctx context.Context) bool {
	log.Info().Msgf("connecting to controller %s:%d", c.host, c.port)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.ConnectTimeout,
		TLSClientConfig:  c.cfg.TLS,
	}
	conn, _, err := dialer.DialContext(ctx, c.url(), nil)
	if err != nil {
		c.state = StateFailed
		log.Error().Msgf("websocket connection to %s:%d failed: %v", c.host, c.port, err)
		return false
	}

	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	handshake, err := broker.HandshakeMessage{Topics: []string{c.cfg.Topic}}.Serialize()
	if err == nil {
		err = conn.WriteMessage(websocket.TextMessage, handshake)
	}
	if err != nil {
		c.fail(conn, "handshake send to %s:%d failed: %v", err)
		return false
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		c.fail(conn, "handshake with %s:%d failed: %v", err)
		return false
	}
	msg, err := broker.DecodeMessage(raw)
	if err != nil {
		c.fail(conn, "handshake with %s:%d returned garbage: %v", err)
		return false
	}
	ack, ok := msg.(broker.HandshakeAck)
	if !ok {
		c.fail(conn, "handshake with %s:%d rejected: %v", fmt.Errorf("unexpected %T reply", msg))
		return false
	}

	_ = conn.SetWriteDeadline(time.Time{})
	_ = conn.SetReadDeadline(time.Time{})
	c.conn = conn
	c.incoming = make(chan inbound, 16)
	c.state = StateConnected
	go c.readLoop()
	log.Info().Msgf("peered with controller %s:%d (endpoint %s, version %s)",
		c.host, c.port, ack.Endpoint, ack.Version)
	return true
}

func (c *Client) fail(conn *websocket.Conn, format string, err error) {
	_ = conn.Close()
	c.state = StateFailed
	log.Error().Msgf(format, c.host, c.port, err)
}

// readLoop owns all reads on the connection. It forwards recognized
// management events, skips everything else with a log line, and ends
// with the error that took the session down.
func (c *Client) readLoop() {
	defer close(c.incoming)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.incoming <- inbound{err: fmt.Errorf("%w: %v", ErrSession, err)}
			return
		}
		msg, err := broker.DecodeMessage(raw)
		if err != nil {
			log.Warn().Msgf("skipping undecodable message: %v", err)
			continue
		}
		switch m := msg.(type) {
		case broker.DataMessage:
			ev, err := events.Recognize(m.Value)
			if err != nil {
				log.Warn().Msgf("skipping unexpected message on %s: %v", m.Topic, err)
				continue
			}
			log.Debug().Msgf("received %s", ev)
			c.incoming <- inbound{ev: ev}
		case broker.ErrorMessage:
			c.incoming <- inbound{err: fmt.Errorf("%w: %s", ErrSession, m.Error())}
			return
		default:
			log.Warn().Msgf("skipping unexpected %T message", msg)
		}
	}
}

// Close tears the session down. Safe on a never-connected client;
// session lifetime normally equals process lifetime, so this is
// best-effort cleanup.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Publish sends one event to the controller topic.
func (c *Client) Publish(ev *broker.Event) error {
	if c.state != StateConnected {
		return ErrNotConnected
	}
	raw, err := broker.DataMessage{Topic: c.cfg.Topic, Value: ev}.Serialize()
	if err != nil {
		return err
	}
	log.Debug().Msgf("publishing %s", ev)
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

// Receive waits for the next recognized management event. A zero
// timeout means the configured request timeout; a negative one means
// wait until something arrives or the context ends.
func (c *Client) Receive(ctx context.Context, timeout time.Duration) (*broker.Event, error) {
	if c.state != StateConnected {
		return nil, ErrNotConnected
	}
	if timeout == 0 {
		timeout = c.cfg.RequestTimeout
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case in, ok := <-c.incoming:
		if !ok {
			return nil, fmt.Errorf("%w: connection closed", ErrSession)
		}
		return in.ev, in.err
	case <-expired:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Transact publishes a request and waits for the matching response:
// same response name, same request ID in the first argument. Responses
// to other requests are skipped.
func (c *Client) Transact(ctx context.Context, req *broker.Event, respName string) (*broker.Event, error) {
	if err := c.Publish(req); err != nil {
		return nil, err
	}
	reqid := events.ReqID(req)

	for {
		resp, err := c.Receive(ctx, 0)
		if err != nil {
			return nil, err
		}
		if resp.Name != respName {
			log.Debug().Msgf("skipping event %q while waiting for %q", resp.Name, respName)
			continue
		}
		if events.ReqID(resp) != reqid {
			log.Debug().Msgf("skipping response for request %q", events.ReqID(resp))
			continue
		}
		return resp, nil
	}
}

// TLSSettings describes the [ssl] section of the client settings.
type TLSSettings struct {
	Enabled       bool
	ValidateCerts bool
	CAFile        string
	CertFile      string
	KeyFile       string
}

// BuildTLSConfig turns the settings into a TLS client setup, or nil
// when TLS is disabled.
func BuildTLSConfig(s TLSSettings) (*tls.Config, error) {
	if !s.Enabled {
		return nil, nil
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !s.ValidateCerts,
	}
	if caPath := strings.TrimSpace(s.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("controller: parse tls ca bundle: %s", caPath)
		}
		cfg.RootCAs = pool
	}
	if s.CertFile != "" || s.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.CertFile, s.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
