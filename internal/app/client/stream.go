package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/collabhub/internal/app/system/broker"
	"github.com/gorilla/websocket"
)

// Stream connects to the lifecycle event feed and calls fn for each message
// until ctx is cancelled or the connection drops. A cancelled ctx returns
// nil.
func (c *Client) Stream(ctx context.Context, fn func(broker.Message)) error {
	url := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/admin/stream"
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+c.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, hdr)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeResponse(resp, nil)
		}
		return err
	}
	defer conn.Close()

	// Unblock ReadJSON when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var m broker.Message
		if err := conn.ReadJSON(&m); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		fn(m)
	}
}
