package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
)

// ClientConfig configures the websocket signaling client.
type ClientConfig struct {
	URL          string
	Token        string // bearer token attached to the dial request
	DialTimeout  time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client maintains a websocket connection to the signaling server,
// delivers inbound messages one at a time to its handler, and implements
// Sender for the outbound direction.
type Client struct {
	cfg      ClientConfig
	log      *zerolog.Logger
	handler  Handler
	outbound chan Envelope
}

// NewClient builds a signaling client. handler receives every decoded
// inbound message; the next message is not read until its done fires.
func NewClient(cfg ClientConfig, logger *zerolog.Logger, handler Handler) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.ReconnectMin == 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax == 0 {
		cfg.ReconnectMax = 30 * time.Second
	}
	return &Client{
		cfg:      cfg,
		log:      logger,
		handler:  handler,
		outbound: make(chan Envelope, 32),
	}
}

// Run dials the signaling server and keeps the connection alive until the
// context is cancelled, reconnecting with backoff on failure.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.cfg.ReconnectMin
	for {
		err := c.runConn(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("signaling connection lost")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMax
		}
	}
}

func (c *Client) runConn(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	headers := http.Header{}
	if c.cfg.Token != "" {
		headers.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := websocket.Dial(dialCtx, c.cfg.URL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return fmt.Errorf("dial signaling: %w", err)
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	c.log.Info().Str("url", c.cfg.URL).Msg("signaling connected")

	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()

	errCh := make(chan error, 2)
	go func() {
		errCh <- c.readLoop(connCtx, conn)
	}()
	go func() {
		errCh <- c.writeLoop(connCtx, conn)
	}()

	err = <-errCh
	cancelConn()
	<-errCh

	conn.Close(websocket.StatusNormalClosure, "closing")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}

		msg, err := Decode(env)
		if err != nil {
			c.log.Warn().Err(err).Str("type", env.Type).Msg("dropping undecodable signaling message")
			continue
		}

		// Hold the read loop until the handler signals completion so the
		// consumer sees messages strictly in arrival order, one at a time.
		handled := make(chan struct{})
		c.handler(msg, func() { close(handled) })
		select {
		case <-handled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case env := <-c.outbound:
			if err := wsjson.Write(ctx, conn, env); err != nil {
				c.log.Error().Err(err).Str("type", env.Type).Msg("write signaling message")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) send(ctx context.Context, msg Message) error {
	env, err := Encode(msg)
	if err != nil {
		return err
	}
	select {
	case c.outbound <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendOffer implements Sender.
func (c *Client) SendOffer(ctx context.Context, peer string, data OfferData) error {
	return c.send(ctx, Message{Kind: KindOffer, Peer: peer, Offer: &data})
}

// SendAnswer implements Sender.
func (c *Client) SendAnswer(ctx context.Context, peer string, data AnswerData) error {
	return c.send(ctx, Message{Kind: KindAnswer, Peer: peer, Answer: &data})
}

// SendRinging implements Sender.
func (c *Client) SendRinging(ctx context.Context, peer string, data RingingData) error {
	return c.send(ctx, Message{Kind: KindRinging, Peer: peer, Ringing: &data})
}

// SendHangup implements Sender.
func (c *Client) SendHangup(ctx context.Context, peer string, data HangupData) error {
	return c.send(ctx, Message{Kind: KindHangup, Peer: peer, Hangup: &data})
}

// SendIceCandidates implements Sender.
func (c *Client) SendIceCandidates(ctx context.Context, peer string, data CandidatesData) error {
	return c.send(ctx, Message{Kind: KindIceCandidates, Peer: peer, Candidates: &data})
}
