// Package transport implements the persistent binary/text frame channel
// to the remote proxy (C6): a coder/websocket client modeled directly on
// the realtime-audio WebSocket sessions used elsewhere in the retrieved
// corpus (dial-with-context, a dedicated receive-loop goroutine, JSON
// text control frames dispatched by a Type field, mutex-guarded
// callback/state access, idempotent Close).
package transport

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/agalue/voice-endpoint/internal/assistanterr"
)

// OnBinary delivers a received binary frame verbatim.
type OnBinary func(data []byte)

// OnState reports a connect/disconnect transition; closeCode is the
// peer-supplied close code, or 0 if none was received (e.g. on connect).
type OnState func(connected bool, closeCode uint16)

// OnSpeech reports a speech_start (true) / speech_end (false) control
// event parsed from a text frame.
type OnSpeech func(speaking bool)

// controlMessage is the only text-frame schema this client recognizes.
// Unknown type values and unrelated keys are ignored.
type controlMessage struct {
	Type string `json:"type"`
}

// Client is the persistent bidirectional frame channel to the proxy.
// auto-reconnect is deliberately not implemented — state transitions must
// be explicit via Connect/Disconnect, per the wire contract.
type Client struct {
	url       string
	authToken string

	sendTimeout time.Duration
	keepalive   time.Duration

	onBin    OnBinary
	onState  OnState
	onSpeech OnSpeech

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// Init constructs an idle client bound to url. No network activity occurs
// until Connect.
func Init(url, authToken string, sendTimeout, keepalive time.Duration, onBin OnBinary, onState OnState, onSpeech OnSpeech) *Client {
	return &Client{
		url:         url,
		authToken:   authToken,
		sendTimeout: sendTimeout,
		keepalive:   keepalive,
		onBin:       onBin,
		onState:     onState,
		onSpeech:    onSpeech,
	}
}

// Connect dials the endpoint and starts the receive-loop and keepalive
// goroutines. Fires onState(true, 0) on success.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	opts := &websocket.DialOptions{}
	if c.authToken != "" {
		opts.HTTPHeader = http.Header{
			"Authorization": []string{"Bearer " + c.authToken},
		}
	}

	conn, _, err := websocket.Dial(ctx, c.url, opts)
	if err != nil {
		return assistanterr.Wrap("transport.Connect", assistanterr.ErrNotConnected, err)
	}

	sessCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.receiveLoop(sessCtx, conn, c.done)
	go c.keepaliveLoop(sessCtx, conn)

	if c.onState != nil {
		c.onState(true, 0)
	}
	return nil
}

// IsConnected reports the shared connected flag, guarded by mu.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendAudio sends a binary frame with a hard send deadline; len(data)==0
// is a legal end-of-turn marker. Never blocks the capture path longer
// than sendTimeout.
func (c *Client) SendAudio(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return assistanterr.New("transport.SendAudio", assistanterr.ErrNotConnected)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		if ctx.Err() != nil {
			return assistanterr.New("transport.SendAudio", assistanterr.ErrTimeout)
		}
		return assistanterr.Wrap("transport.SendAudio", assistanterr.ErrNotConnected, err)
	}
	return nil
}

// receiveLoop reads frames until the connection closes or ctx is
// cancelled, dispatching binary frames to onBin and text frames as
// control events. Runs as the transport's dedicated receive task; onBin
// and onSpeech may do bounded work but must not reenter transport
// operations synchronously.
func (c *Client) receiveLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			code, reason := closeCodeFromErr(err)
			c.setDisconnected(code)
			log.Printf("transport: receive loop ended: %v (reason=%q)", err, reason)
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if c.onBin != nil {
				c.onBin(data)
			}
		case websocket.MessageText:
			c.handleText(data)
		}
	}
}

// handleText parses a text frame as JSON and dispatches recognized
// control events; malformed or unrecognized frames are logged and
// ignored, never propagated.
func (c *Client) handleText(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("transport: %v, ignoring", assistanterr.Wrap("transport.handleText", assistanterr.ErrDecode, err))
		return
	}
	switch msg.Type {
	case "speech_start":
		if c.onSpeech != nil {
			c.onSpeech(true)
		}
	case "speech_end":
		if c.onSpeech != nil {
			c.onSpeech(false)
		}
	default:
		log.Printf("transport: %v %q, ignoring", assistanterr.New("transport.handleText", assistanterr.ErrProtocol), msg.Type)
	}
}

// keepaliveLoop sends a ping every c.keepalive; debug-logs only, per the
// wire contract (no action beyond a log on ping/pong).
func (c *Client) keepaliveLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Printf("transport: keepalive ping failed: %v", err)
			}
		}
	}
}

// setDisconnected marks the client disconnected and fires onState with
// the supplied close code.
func (c *Client) setDisconnected(closeCode uint16) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.mu.Unlock()

	if c.onState != nil {
		c.onState(false, closeCode)
	}
}

// Disconnect explicitly closes the connection with a normal-closure code.
// Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	if cancel != nil {
		cancel()
	}
	c.setDisconnected(0)
}

// Destroy disconnects and releases all resources. After Destroy the
// client must not be reused.
func (c *Client) Destroy() {
	c.Disconnect()
}

// closeCodeFromErr extracts a websocket close code/reason from a read
// error, per the wire contract's big-endian u16 code + UTF-8 reason.
// coder/websocket surfaces the close code via websocket.CloseStatus;
// the payload's raw bytes are not otherwise reachable once the library
// has parsed the frame.
func closeCodeFromErr(err error) (uint16, string) {
	status := websocket.CloseStatus(err)
	if status == -1 {
		return 0, err.Error()
	}
	return uint16(status), err.Error()
}

// decodeCloseCode extracts the big-endian u16 close code and UTF-8 reason
// from a raw close-frame payload, per the wire contract. Exercised
// directly by tests; coder/websocket's own error path normally makes this
// unnecessary (see closeCodeFromErr) but the spec's wire format is
// specified independently of any one client library's API.
func decodeCloseCode(payload []byte) (uint16, string) {
	if len(payload) < 2 {
		return 0, string(payload)
	}
	code := binary.BigEndian.Uint16(payload[:2])
	return code, string(payload[2:])
}
