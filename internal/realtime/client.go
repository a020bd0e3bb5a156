package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"qms/patient-client/internal/logging"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	eventsTotal     = expvar.NewInt("realtime_events_total")
	reconnectsTotal = expvar.NewInt("realtime_reconnects_total")
)

var (
	ErrNotConnected = errors.New("realtime connection not established")
	ErrClosed       = errors.New("realtime client closed")
)

// Event is the server push envelope.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

type Handler func(Event)

type outbound struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload,omitempty"`
}

type Options struct {
	URL          string
	Credential   string
	ReconnectMax time.Duration
	Dialer       *websocket.Dialer
	Logger       *logging.Logger
}

// Client holds the one realtime connection of a session. Handlers are invoked
// sequentially on the reader goroutine in receipt order.
type Client struct {
	url          string
	credential   string
	reconnectMax time.Duration
	dialer       *websocket.Dialer
	log          *logrus.Entry

	mu       sync.Mutex
	handlers map[string]map[uint64]Handler
	nextID   uint64
	rooms    []outbound
	conn     *websocket.Conn
	started  bool

	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) *Client {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	maxInterval := opts.ReconnectMax
	if maxInterval <= 0 {
		maxInterval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:          opts.URL,
		credential:   opts.Credential,
		reconnectMax: maxInterval,
		dialer:       dialer,
		log:          log.WithComponent("realtime"),
		handlers:     make(map[string]map[uint64]Handler),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// URLFromAPIBase derives the raw websocket endpoint served next to the REST API.
func URLFromAPIBase(base string) string {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/realtime/websocket"
	return u.String()
}

// Connect dials the server, retrying with exponential backoff until ctx is
// done, then keeps the connection alive in the background until Close.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	conn, err := c.dialWithRetry(ctx)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return err
	}
	c.attach(conn)
	go c.run(conn)
	return nil
}

// On registers h for events of the given type and returns its disposer.
func (c *Client) On(eventType string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	if c.handlers[eventType] == nil {
		c.handlers[eventType] = make(map[uint64]Handler)
	}
	c.handlers[eventType][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.handlers[eventType], id)
			if len(c.handlers[eventType]) == 0 {
				delete(c.handlers, eventType)
			}
		})
	}
}

func (c *Client) HandlerCount(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers[eventType])
}

// Emit sends an action to the server. The latest join of each kind is
// remembered and replayed after every reconnect, so joins succeed even while
// disconnected and a room left behind is not rejoined.
func (c *Client) Emit(action string, payload interface{}) error {
	msg := outbound{Action: action, Payload: payload}
	join := strings.HasPrefix(action, "join-")

	c.mu.Lock()
	if join {
		c.remember(msg)
	}
	conn := c.conn
	c.mu.Unlock()

	select {
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}
	if conn == nil {
		if join {
			return nil
		}
		return ErrNotConnected
	}
	return c.write(conn, msg)
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	started := c.started
	c.mu.Unlock()
	var err error
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = conn.Close()
	}
	if started {
		<-c.done
	}
	return err
}

func (c *Client) run(conn *websocket.Conn) {
	defer close(c.done)
	for {
		c.readLoop(conn)
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()

		if c.ctx.Err() != nil {
			return
		}
		c.log.Warn("connection lost, reconnecting")
		reconnectsTotal.Add(1)
		next, err := c.dialWithRetry(c.ctx)
		if err != nil {
			return
		}
		c.attach(next)
		conn = next
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.WithError(err).Debug("read failed")
			}
			return
		}
		var event Event
		if err := json.Unmarshal(data, &event); err != nil || event.Type == "" {
			c.log.WithField("raw", string(data)).Debug("ignoring malformed event")
			continue
		}
		eventsTotal.Add(1)
		c.dispatch(event)
	}
}

func (c *Client) dispatch(event Event) {
	c.mu.Lock()
	registered := c.handlers[event.Type]
	ids := make([]uint64, 0, len(registered))
	for id := range registered {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, registered[id])
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// attach installs conn as the live connection and replays room joins on it.
func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	rooms := append([]outbound(nil), c.rooms...)
	c.mu.Unlock()

	for _, room := range rooms {
		if err := c.write(conn, room); err != nil {
			c.log.WithError(err).WithField("action", room.Action).Warn("replay join failed")
		}
	}
	c.log.WithField("rooms", len(rooms)).Info("connected")
}

func (c *Client) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = c.reconnectMax

	return backoff.Retry(ctx, func() (*websocket.Conn, error) {
		if c.ctx.Err() != nil {
			return nil, backoff.Permanent(ErrClosed)
		}
		return c.dial(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.log.WithError(err).WithField("retry_in", next.String()).Debug("dial failed")
		}),
	)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.credential != "" {
		header.Set("Authorization", "Bearer "+c.credential)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) write(conn *websocket.Conn, msg outbound) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(msg)
}

// remember replaces the stored join with the same action. Callers hold c.mu.
func (c *Client) remember(msg outbound) {
	for i := range c.rooms {
		if c.rooms[i].Action == msg.Action {
			c.rooms[i] = msg
			return
		}
	}
	c.rooms = append(c.rooms, msg)
}
