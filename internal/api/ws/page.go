package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/shared/id"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrPageClosed is returned when delivering to a disconnected page
	ErrPageClosed = errors.New("page connection closed")
	// ErrSlowPage is returned when a page's outbound buffer is full
	ErrSlowPage = errors.New("page is not reading its messages")
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageBytes = 1 << 20
	sendBuffer      = 64
)

// pageConn is one displayed page behind its main frame's socket. Every
// message goes down the same socket; the bridge script in the page routes
// responses by frameId and relays events to embedded frames.
type pageConn struct {
	id     id.PageID
	url    string
	conn   *websocket.Conn
	logger *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newPageConn(conn *websocket.Conn, url string, logger *zap.Logger) *pageConn {
	pageID := id.NewPageID()
	return &pageConn{
		id:     pageID,
		url:    url,
		conn:   conn,
		logger: logger.With(zap.String("page_id", pageID.String())),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (p *pageConn) ID() id.PageID { return p.id }
func (p *pageConn) URL() string   { return p.url }

func (p *pageConn) DeliverToMain(msg []byte) error { return p.enqueue(msg) }

func (p *pageConn) DeliverToFrame(_ id.FrameID, msg []byte) error { return p.enqueue(msg) }

func (p *pageConn) Broadcast(msg []byte) error { return p.enqueue(msg) }

func (p *pageConn) enqueue(msg []byte) error {
	select {
	case <-p.done:
		return ErrPageClosed
	default:
	}
	select {
	case p.send <- msg:
		return nil
	case <-p.done:
		return ErrPageClosed
	default:
		return ErrSlowPage
	}
}

// close stops the write pump; the read loop ends when the socket closes
func (p *pageConn) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *pageConn) closed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// writePump owns all writes to the socket
func (p *pageConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				p.logger.Debug("Page write failed", zap.Error(err))
				p.close()
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.close()
				return
			}
		case <-p.done:
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
