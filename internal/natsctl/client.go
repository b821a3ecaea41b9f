package natsctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"codeberg.org/mutker/simtempd/internal/errors"
	"github.com/nats-io/nats.go"
)

// Client issues control requests against a running daemon.
type Client struct {
	nc     *nats.Conn
	prefix string
}

func NewClient(nc *nats.Conn, prefix string) *Client {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Client{nc: nc, prefix: prefix}
}

// Call sends body to op and decodes the reply. A reply carrying an error
// is returned as that error.
func (c *Client) Call(ctx context.Context, op, body string) (*Reply, error) {
	errFactory := errors.New()

	msg, err := c.nc.RequestWithContext(ctx, c.prefix+"."+op, []byte(body))
	if err != nil {
		return nil, errFactory.Wrap(ErrRemoteCall, err)
	}

	dec := json.NewDecoder(bytes.NewReader(msg.Data))
	dec.UseNumber()

	var reply Reply
	if err := dec.Decode(&reply); err != nil {
		return nil, errFactory.Wrap(ErrBadReply, err)
	}
	if err := reply.Err(); err != nil {
		return nil, err
	}

	return &reply, nil
}

// Get returns the attribute value as text, e.g. "45000" or "noisy".
func (c *Client) Get(ctx context.Context, attr string) (string, error) {
	reply, err := c.Call(ctx, "get."+attr, "")
	if err != nil {
		return "", err
	}
	return fmt.Sprint(reply.Value), nil
}

// Set writes a plain-text attribute value.
func (c *Client) Set(ctx context.Context, attr, value string) error {
	_, err := c.Call(ctx, "set."+attr, value)
	return err
}

func (c *Client) Status(ctx context.Context) (*StatusBody, error) {
	reply, err := c.Call(ctx, OpStatus, "")
	if err != nil {
		return nil, err
	}
	if reply.Status == nil {
		return nil, errors.New().WithMessage(ErrBadReply, "reply without status")
	}
	return reply.Status, nil
}

// Read fetches one record. A zero wait performs a non-blocking read;
// otherwise the daemon waits up to wait for a sample.
func (c *Client) Read(ctx context.Context, wait time.Duration) (*Record, error) {
	op, body := OpRead, ""
	if wait > 0 {
		op, body = OpReadWait, strconv.FormatInt(wait.Milliseconds(), 10)
	}

	reply, err := c.Call(ctx, op, body)
	if err != nil {
		return nil, err
	}
	if reply.Record == nil {
		return nil, errors.New().WithMessage(ErrBadReply, "reply without record")
	}
	return reply.Record, nil
}
