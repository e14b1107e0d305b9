package transport

import (
	"context"
	"net"
	"time"

	"github.com/pingcap-incubator/tinydur/kv/message"
	"github.com/pkg/errors"
	"golang.org/x/net/netutil"
)

const (
	DefaultDialTimeout    = 3 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// Transport opens one connection per message. A read is the only exchange
// that gets a reply.
type Transport struct {
	codec          *message.Codec
	dialer         net.Dialer
	requestTimeout time.Duration
}

// NewTransport creates a Transport. Zero timeouts fall back to the defaults.
func NewTransport(codec *message.Codec, dialTimeout, requestTimeout time.Duration) *Transport {
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &Transport{
		codec:          codec,
		dialer:         net.Dialer{Timeout: dialTimeout},
		requestTimeout: requestTimeout,
	}
}

func (t *Transport) Codec() *message.Codec {
	return t.codec
}

func (t *Transport) dial(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	deadline := time.Now().Add(t.requestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err = conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, errors.WithStack(err)
	}
	return conn, nil
}

// Send delivers msg to addr over a fresh connection and closes it without
// waiting for anything back.
func (t *Transport) Send(ctx context.Context, addr string, msg message.Message) error {
	conn, err := t.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return errors.Wrapf(t.codec.Encode(conn, msg), "send %s to %s", msg.MsgType(), addr)
}

// Call sends req to addr and decodes the single reply frame into resp.
func (t *Transport) Call(ctx context.Context, addr string, req message.Message, resp interface{}) error {
	conn, err := t.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err = t.codec.Encode(conn, req); err != nil {
		return errors.Wrapf(err, "send %s to %s", req.MsgType(), addr)
	}
	if err = t.codec.DecodeInto(conn, resp); err != nil {
		return errors.Wrapf(err, "receive reply from %s", addr)
	}
	return nil
}

// Listen listens on addr and accepts at most maxConns connections at a time.
// A non-positive maxConns leaves the listener unbounded.
func Listen(addr string, maxConns int) (net.Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", addr)
	}
	if maxConns > 0 {
		l = netutil.LimitListener(l, maxConns)
	}
	return l, nil
}

// IsClosed reports whether err came from using a closed listener or
// connection.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if opErr, ok := errors.Cause(err).(*net.OpError); ok {
		err = opErr.Err
	}
	return err.Error() == "use of closed network connection"
}
