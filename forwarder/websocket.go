package forwarder

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultWebSocketPath = "/telemetry"

	wsWriteWait    = time.Second
	wsReadLimit    = 512
	wsSendCapacity = 1
)

// WebSocketFeed pushes every frame to connected WebSocket clients as one text
// message. It is push only: anything a client sends is read and discarded.
// Each client has a single pending slot, a client that has not taken the
// previous frame misses the next one.
type WebSocketFeed struct {
	path     string
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewWebSocketFeed(path string) *WebSocketFeed {
	if path == "" {
		path = DefaultWebSocketPath
	}
	return &WebSocketFeed{
		path: path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsReadLimit,
			WriteBufferSize: maxFrameSize,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Start serves the feed on port until Stop is called.
func (f *WebSocketFeed) Start(port int) error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return errors.Wrapf(err, "unable to listen for websocket clients on port %d", port)
	}
	mux := http.NewServeMux()
	mux.Handle(f.path, f)
	f.listener = l
	f.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := f.server.Serve(l); err != nil && err != http.ErrServerClosed {
			log.WithField("err", err).Error("websocket feed stopped")
		}
	}()
	log.WithField("addr", l.Addr().String()).
		WithField("path", f.path).
		Info("websocket feed listening")
	return nil
}

func (f *WebSocketFeed) Addr() net.Addr {
	if f.listener == nil {
		return nil
	}
	return f.listener.Addr()
}

func (f *WebSocketFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("err", err).Debug("websocket upgrade failed")
		return
	}
	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, wsSendCapacity),
		done: make(chan struct{}),
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		c.close()
		return
	}
	f.clients[c] = struct{}{}
	f.wg.Add(2)
	f.mu.Unlock()
	log.WithField("client", c.id).
		WithField("remote", r.RemoteAddr).
		Info("websocket client connected")

	go f.writeLoop(c)
	f.readLoop(c)
}

func (f *WebSocketFeed) readLoop(c *wsClient) {
	defer f.wg.Done()
	defer f.remove(c)
	c.conn.SetReadLimit(wsReadLimit)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *WebSocketFeed) writeLoop(c *wsClient) {
	defer f.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				f.remove(c)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.WithField("client", c.id).
					WithField("err", err).
					Debug("websocket write failed")
				f.remove(c)
				return
			}
		}
	}
}

func (f *WebSocketFeed) remove(c *wsClient) {
	f.mu.Lock()
	_, ok := f.clients[c]
	delete(f.clients, c)
	f.mu.Unlock()
	c.close()
	if ok {
		log.WithField("client", c.id).Info("websocket client disconnected")
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Mirror hands frame to every client without blocking. One copy is shared by
// all clients.
func (f *WebSocketFeed) Mirror(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clients) == 0 {
		return
	}
	msg := append([]byte(nil), bytes.TrimSuffix(frame, []byte("\n"))...)
	for c := range f.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (f *WebSocketFeed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Stop closes the listener and every client and waits for their goroutines.
func (f *WebSocketFeed) Stop() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	clients := make([]*wsClient, 0, len(f.clients))
	for c := range f.clients {
		clients = append(clients, c)
	}
	f.mu.Unlock()

	if f.server != nil {
		if err := f.server.Close(); err != nil {
			log.WithField("err", err).Warn("unable to close websocket feed")
		}
	}
	for _, c := range clients {
		c.close()
	}
	f.wg.Wait()
	log.Info("websocket feed stopped")
}
