package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"
)

// SignatureSubscriber waits for transaction confirmation through the
// signatureSubscribe websocket method.
type SignatureSubscriber struct {
	endpoint  string
	dialer    websocket.Dialer
	requestID atomic.Uint64
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsMessage struct {
	ID     *uint64         `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Value struct {
				Err interface{} `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewSignatureSubscriber creates a subscriber for the given websocket endpoint.
func NewSignatureSubscriber(endpoint string) *SignatureSubscriber {
	return &SignatureSubscriber{
		endpoint: endpoint,
		dialer: websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// WaitForSignature blocks until the signature is confirmed, fails, or ctx ends.
func (s *SignatureSubscriber) WaitForSignature(ctx context.Context, signature string) error {
	decoded, err := base58.Decode(signature)
	if err != nil || len(decoded) != 64 {
		return fmt.Errorf("invalid signature %q", signature)
	}

	conn, _, err := s.dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when the context ends.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	reqID := s.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": "confirmed"},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("signature subscription: %w", ctx.Err())
			}
			return fmt.Errorf("websocket read: %w", err)
		}

		if msg.Error != nil {
			return fmt.Errorf("signatureSubscribe error %d: %s", msg.Error.Code, msg.Error.Message)
		}

		if msg.Method != "signatureNotification" || msg.Params == nil {
			continue
		}

		if msg.Params.Result.Value.Err != nil {
			return fmt.Errorf("%w: %v", ErrTransactionFailed, msg.Params.Result.Value.Err)
		}
		return nil
	}
}
