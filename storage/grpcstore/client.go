package grpcstore

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/pqdag/storage"
)

// Client implements storage.Store over the TxStore service. Every reply is
// re-hashed locally, so a faulty server cannot substitute bytes.
type Client struct {
	cc     *grpc.ClientConn
	client TxStoreClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ storage.Store = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra is appended to the dial options, e.g. a custom dialer.
	Extra []grpc.DialOption
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Extra...)

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "grpcstore: dial %s", target)
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewTxStoreClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	expected, err := storage.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := c.client.Put(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	id, err := cid.Decode(reply.GetValue())
	if err != nil || !id.Defined() {
		return cid.Undef, storage.ErrInvalidCID
	}
	if id != expected {
		return cid.Undef, storage.Mismatch(expected)
	}
	return id, nil
}

func (c *Client) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := c.client.Get(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	b := reply.GetValue()
	if err := storage.Check(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Client) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := c.client.Has(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return false, mapRPC(err)
	}
	return reply.GetValue(), nil
}

// Keys pages through the server's listing. Each page is its own call and
// gets its own timeout.
func (c *Client) Keys(ctx context.Context) ([]cid.Cid, error) {
	var (
		out   []cid.Cid
		after string
	)
	for {
		page, err := c.keysAfter(ctx, after)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return storage.SortKeys(out), nil
		}
		out = append(out, page...)
		after = page[len(page)-1].String()
	}
}

func (c *Client) keysAfter(ctx context.Context, after string) ([]cid.Cid, error) {
	ctx, cancel := c.rpcContext(ctx)
	defer cancel()

	reply, err := c.client.Keys(ctx, wrapperspb.String(after))
	if err != nil {
		return nil, mapRPC(err)
	}
	out := make([]cid.Cid, 0, len(reply.GetValues()))
	for _, v := range reply.GetValues() {
		id, err := cid.Decode(v.GetStringValue())
		if err != nil {
			return nil, errors.Wrapf(storage.ErrInvalidCID, "key %q", v.GetStringValue())
		}
		if id.String() <= after {
			return nil, errors.Newf("grpcstore: keys out of order after %q", after)
		}
		out = append(out, id)
	}
	return out, nil
}

func (c *Client) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.Timeout)
}
