package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Plaza/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// RelayClient is the participant side of the relay connection.
type RelayClient struct {
	conn *websocket.Conn

	wmu sync.Mutex
}

func Dial(ctx context.Context, url string, header http.Header) (*RelayClient, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	return &RelayClient{conn: ws}, nil
}

// Send writes one message. Safe for concurrent use.
func (c *RelayClient) Send(msg protocol.Message) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Receive reads the next decodable message, skipping malformed frames.
func (c *RelayClient) Receive() (protocol.Message, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal.client").Msg("skipping frame")
			continue
		}
		return msg, nil
	}
}

// ReadLoop hands every message to handle until the connection or ctx ends.
func (c *RelayClient) ReadLoop(ctx context.Context, handle func(protocol.Message)) error {
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()
	for {
		msg, err := c.Receive()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		handle(msg)
	}
}

func (c *RelayClient) Close() error {
	c.wmu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.wmu.Unlock()
	if cerr := c.conn.Close(); cerr != nil && err == nil && !errors.Is(cerr, websocket.ErrCloseSent) {
		err = cerr
	}
	return err
}
