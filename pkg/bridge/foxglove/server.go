// Package foxglove serves decoded IMU samples over the Foxglove WebSocket
// protocol.
package foxglove

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"razorlink/pkg/engine"
	"razorlink/pkg/logger"
	"razorlink/pkg/protocol"
)

type Server struct {
	cfg       Config
	hub       *engine.Hub
	log       zerolog.Logger
	sessionID string
	channels  []Channel
	supported map[uint64]struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
	addr    net.Addr
	ready   chan struct{}
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	subs   map[uint32]uint64
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer builds a bridge reading samples from hub. Empty config fields
// take their defaults.
func NewServer(cfg Config, hub *engine.Hub, opts ...Option) *Server {
	cfg = cfg.WithDefaults()
	channels := cfg.channels()
	supported := make(map[uint64]struct{}, len(channels))
	for _, ch := range channels {
		supported[ch.ID] = struct{}{}
	}
	s := &Server{
		cfg:       cfg,
		hub:       hub,
		log:       zerolog.Nop(),
		sessionID: uuid.NewString(),
		channels:  channels,
		supported: supported,
		clients:   make(map[*client]struct{}),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run listens on cfg.WSAddr and streams hub samples to subscribed clients
// until ctx ends. Run must be called at most once.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.WSAddr)
	if err != nil {
		return err
	}
	if s.hub != nil {
		sub := s.hub.Subscribe()
		go s.broadcastLoop(ctx, sub)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()
	close(s.ready)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info().Str("addr", ln.Addr().String()).Str("session", s.sessionID).Msg("foxglove bridge listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		s.closeClients()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr blocks until Run is listening and returns the bound address.
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) SessionID() string { return s.sessionID }

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(conn, s.cfg.SendBuf)
	if err := conn.WriteJSON(s.serverInfo()); err != nil {
		c.close()
		return
	}
	if err := conn.WriteJSON(AdvertiseMsg{Op: OpAdvertise, Channels: s.channels}); err != nil {
		c.close()
		return
	}
	s.addClient(c)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("foxglove client connected")

	go c.writeLoop()
	s.readLoop(c)

	c.close()
	s.removeClient(c)
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("foxglove client disconnected")
}

func (s *Server) serverInfo() ServerInfoMsg {
	return ServerInfoMsg{
		Op:                 OpServerInfo,
		Name:               s.cfg.Name,
		Capabilities:       []string{},
		SupportedEncodings: []string{},
		Metadata:           map[string]string{"frame_id": s.cfg.FrameID},
		SessionID:          s.sessionID,
	}
}

func (s *Server) broadcastLoop(ctx context.Context, sub <-chan engine.Sample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-sub:
			if !ok {
				return
			}
			s.PublishSample(sample)
		}
	}
}

// PublishSample fans one sample out to every channel it maps to.
func (s *Server) PublishSample(sample engine.Sample) {
	ts := sample.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	s.publishJSON(PacketChannelID, ts, PacketRecord{
		ID:         logger.FormatID(sample.ID),
		TS:         ts.UTC().Format(time.RFC3339Nano),
		Kind:       sample.Kind.String(),
		PayloadHex: hex.EncodeToString(sample.Payload),
		Data:       sample.Message,
	})

	switch msg := sample.Message.(type) {
	case protocol.Orientation:
		s.publishJSON(TransformChannelID, ts, s.transformFor(msg, ts))
		s.publishJSON(MarkerChannelID, ts, s.markerFor(msg, ts))
	case protocol.Analogs:
		s.publishJSON(AccelChannelID, ts, s.accelFor(msg, ts))
	}
}

// ReportEvent publishes decoder diagnostics on the log channel. It has the
// shape of an engine event handler.
func (s *Server) ReportEvent(ev protocol.Event, ts time.Time) {
	if entry, ok := s.logFor(ev, ts); ok {
		s.publishJSON(LogChannelID, ts, entry)
	}
}

func (s *Server) publishJSON(channelID uint64, ts time.Time, message any) {
	clients := s.snapshotClients()
	if len(clients) == 0 {
		return
	}
	payload, err := json.Marshal(message)
	if err != nil {
		s.log.Error().Err(err).Uint64("channel", channelID).Msg("encode foxglove message")
		return
	}

	logTime := uint64(ts.UnixNano())
	for _, c := range clients {
		for _, subID := range c.subIDsForChannel(channelID) {
			if !c.trySend(EncodeMessageData(subID, logTime, payload)) {
				s.log.Trace().Uint32("subscription", subID).Msg("foxglove client lagging, frame dropped")
			}
		}
	}
}

func (s *Server) readLoop(c *client) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var header struct {
			Op string `json:"op"`
		}
		if err := json.Unmarshal(data, &header); err != nil {
			continue
		}

		switch header.Op {
		case OpSubscribe:
			var msg SubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, sub := range msg.Subscriptions {
				if _, ok := s.supported[sub.ChannelID]; !ok {
					c.status(LogLevelWarning, "unknown channel")
					continue
				}
				c.addSub(sub.ID, sub.ChannelID)
			}
		case OpUnsubscribe:
			var msg UnsubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, id := range msg.SubscriptionIDs {
				c.removeSub(id)
			}
		}
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

func (s *Server) closeClients() {
	for _, c := range s.snapshotClients() {
		c.close()
	}
}

func newClient(conn *websocket.Conn, sendBuf int) *client {
	if sendBuf <= 0 {
		sendBuf = DefaultConfig().SendBuf
	}
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuf),
		subs: make(map[uint32]uint64),
	}
}

// writeLoop owns every write to conn after the handshake.
func (c *client) writeLoop() {
	for msg := range c.send {
		var err error
		if msg[0] == '{' {
			err = c.conn.WriteMessage(websocket.TextMessage, msg)
		} else {
			err = c.conn.WriteMessage(websocket.BinaryMessage, msg)
		}
		if err != nil {
			c.close()
			return
		}
	}
}

func (c *client) status(level uint8, message string) {
	raw, err := json.Marshal(StatusMsg{Op: OpStatus, Level: level, Message: message})
	if err != nil {
		return
	}
	c.trySend(raw)
}

// trySend queues msg without blocking; it reports false when the client is
// gone or its buffer is full.
func (c *client) trySend(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) addSub(id uint32, channelID uint64) {
	c.mu.Lock()
	c.subs[id] = channelID
	c.mu.Unlock()
}

func (c *client) removeSub(id uint32) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *client) subIDsForChannel(channelID uint64) []uint32 {
	c.mu.RLock()
	ids := make([]uint32, 0, len(c.subs))
	for id, ch := range c.subs {
		if ch == channelID {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	return ids
}

func (c *client) close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}
