package comm

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const (
	serviceName    = "perfcollect.Coordinator"
	exchangeMethod = "/" + serviceName + "/Exchange"
	maxMsgSize     = 64 * 1024 * 1024
)

type exchangeRequest struct {
	Key    string  `json:"key"`
	Rank   int     `json:"rank"`
	Values []int64 `json:"values,omitempty"`
	// Want is the rank whose contribution is sent back, -1 for none.
	Want int `json:"want"`
	// Uniform rejects the round if contributions differ in length.
	Uniform bool `json:"uniform,omitempty"`
}

type exchangeResponse struct {
	Values []int64 `json:"values,omitempty"`
}

type coordinatorServer interface {
	Exchange(ctx context.Context, req *exchangeRequest) (*exchangeResponse, error)
}

// coordinator runs on rank 0 and hosts the rendezvous of the job.
type coordinator struct {
	rv *rendezvous
}

func (c *coordinator) Exchange(ctx context.Context, req *exchangeRequest) (*exchangeResponse, error) {
	parts, err := c.rv.contribute(ctx, req.Key, req.Rank, req.Values)
	if err != nil {
		if ctx.Err() != nil {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.Uniform {
		if _, err := concat(parts); err != nil {
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		}
	}
	resp := &exchangeResponse{}
	if req.Want >= 0 && req.Want < len(parts) {
		resp.Values = parts[req.Want]
	}
	return resp, nil
}

func exchangeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(exchangeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(coordinatorServer).Exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: exchangeMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(coordinatorServer).Exchange(ctx, req.(*exchangeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var coordinatorDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*coordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Exchange",
			Handler:    exchangeHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "perfcollect/comm",
}

// Node is one rank of a job spread over several processes. Rank 0 listens
// on the coordinator address and every other rank connects to it.
type Node struct {
	rank int
	size int
	addr string
	log  *zap.Logger
	seq  sequence

	coord *coordinator
	lis   net.Listener
	srv   *grpc.Server

	conn *grpc.ClientConn

	active bool
}

// NewNode returns rank of a job of size ranks whose coordinator listens on
// addr.
func NewNode(rank, size int, addr string, log *zap.Logger) (*Node, error) {
	if size < 1 {
		return nil, fmt.Errorf("invalid job size %d", size)
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("rank %d out of range [0, %d)", rank, size)
	}
	if addr == "" {
		return nil, errors.New("no coordinator address")
	}
	n := &Node{
		rank: rank,
		size: size,
		addr: addr,
		log:  log,
		seq:  make(sequence),
	}
	if rank == 0 {
		n.coord = &coordinator{rv: newRendezvous(size)}
	}
	return n, nil
}

// Addr returns the coordinator address. On rank 0 after Init this is the
// address actually bound, which resolves a port of 0.
func (n *Node) Addr() string {
	if n.lis != nil {
		return n.lis.Addr().String()
	}
	return n.addr
}

// Init starts the coordinator service on rank 0 and connects the other
// ranks. Connections are established lazily and calls wait until the
// coordinator is reachable.
func (n *Node) Init(ctx context.Context) error {
	if n.rank == 0 {
		lis, err := net.Listen("tcp", n.addr)
		if err != nil {
			return errors.Wrap(err, "listen")
		}
		n.lis = lis
		n.srv = grpc.NewServer(grpc.MaxRecvMsgSize(maxMsgSize), grpc.MaxSendMsgSize(maxMsgSize))
		n.srv.RegisterService(&coordinatorDesc, n.coord)
		go func() {
			if err := n.srv.Serve(lis); err != nil {
				n.log.Error("coordinator stopped", zap.Error(err))
			}
		}()
		n.log.Debug("coordinator listening", zap.String("addr", n.Addr()), zap.Int("size", n.size))
	} else {
		conn, err := grpc.NewClient(n.addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(
				grpc.CallContentSubtype(codecName),
				grpc.WaitForReady(true),
				grpc.MaxCallRecvMsgSize(maxMsgSize),
				grpc.MaxCallSendMsgSize(maxMsgSize)))
		if err != nil {
			return errors.Wrap(err, "dial coordinator")
		}
		n.conn = conn
	}
	n.active = true
	return nil
}

func (n *Node) call(ctx context.Context, req *exchangeRequest) (*exchangeResponse, error) {
	resp := new(exchangeResponse)
	err := n.conn.Invoke(ctx, exchangeMethod, req, resp)
	if status.Code(err) == codes.FailedPrecondition {
		return nil, errors.Wrap(ErrCountMismatch, status.Convert(err).Message())
	}
	return resp, err
}

// Finalize waits for every rank to finalize, then closes the connection or,
// on rank 0, stops the coordinator once all replies are sent.
func (n *Node) Finalize(ctx context.Context) error {
	if !n.active {
		return ErrNotInitialized
	}
	n.active = false
	key := n.seq.next("finalize")
	if n.rank == 0 {
		_, err := n.coord.rv.contribute(ctx, key, 0, nil)
		n.srv.GracefulStop()
		return err
	}
	_, err := n.call(ctx, &exchangeRequest{Key: key, Rank: n.rank, Want: -1})
	if cerr := n.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (n *Node) Rank() (int, error) {
	return n.rank, nil
}

func (n *Node) Size() (int, error) {
	return n.size, nil
}

// Gather collects send from every rank on rank 0, which is the only
// supported root.
func (n *Node) Gather(ctx context.Context, send []int64, root int) ([]int64, error) {
	if !n.active {
		return nil, ErrNotInitialized
	}
	if root != 0 {
		return nil, ErrRootUnsupported
	}
	key := n.seq.next("gather")
	if n.rank == 0 {
		parts, err := n.coord.rv.contribute(ctx, key, 0, send)
		if err != nil {
			return nil, err
		}
		return concat(parts)
	}
	_, err := n.call(ctx, &exchangeRequest{
		Key:     key,
		Rank:    n.rank,
		Values:  send,
		Want:    -1,
		Uniform: true,
	})
	return nil, err
}

// Bcast sends rank 0's value to every rank.
func (n *Node) Bcast(ctx context.Context, value int64, root int) (int64, error) {
	if !n.active {
		return 0, ErrNotInitialized
	}
	if root != 0 {
		return 0, ErrRootUnsupported
	}
	key := n.seq.next("bcast")
	if n.rank == 0 {
		_, err := n.coord.rv.contribute(ctx, key, 0, []int64{value})
		return value, err
	}
	resp, err := n.call(ctx, &exchangeRequest{Key: key, Rank: n.rank, Want: 0})
	if err != nil {
		return 0, err
	}
	if len(resp.Values) != 1 {
		return 0, fmt.Errorf("bcast: coordinator sent %d values", len(resp.Values))
	}
	return resp.Values[0], nil
}
