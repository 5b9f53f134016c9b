package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cowork/internal/app"
	"github.com/dkeye/Cowork/internal/config"
	"github.com/dkeye/Cowork/internal/core"
	"github.com/dkeye/Cowork/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// SignalWSController binds the relay to websocket connections. One goroutine
// reads each connection, so an inbound event is fully processed before the
// next one from the same connection.
type SignalWSController struct {
	Relay   *app.Relay
	Cfg     *config.Config
	limiter *JoinRateLimiter
}

func NewSignalWSController(relay *app.Relay, cfg *config.Config) *SignalWSController {
	return &SignalWSController{
		Relay:   relay,
		Cfg:     cfg,
		limiter: NewJoinRateLimiter(cfg.JoinLimit, cfg.JoinInterval),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	cid := domain.ConnID(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	ctl.Relay.Registry.BindSignal(cid, conn, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cid, conn)
}
