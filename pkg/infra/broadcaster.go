package infra

import (
	"context"
	"io"

	"github.com/osdi23p228/fabric-protos-go/common"
	"github.com/osdi23p228/fabric-protos-go/orderer"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// Broadcaster sends envelopes to the orderer. Every envelope gets its own
// AtomicBroadcast stream so its acknowledgment cannot be confused with
// another one. It implements submit.Orderer.
type Broadcaster struct {
	address string
	conn    *grpc.ClientConn
	client  orderer.AtomicBroadcastClient
	logger  log.FieldLogger
}

func NewBroadcaster(address string, conn *grpc.ClientConn, logger log.FieldLogger) *Broadcaster {
	return &Broadcaster{
		address: address,
		conn:    conn,
		client:  orderer.NewAtomicBroadcastClient(conn),
		logger:  logger,
	}
}

func CreateBroadcaster(ctx context.Context, dial Dialer, node Node, logger log.FieldLogger) (*Broadcaster, error) {
	conn, err := dial(ctx, node)
	if err != nil {
		return nil, err
	}
	return NewBroadcaster(node.Address, conn, logger), nil
}

// Broadcast sends env once and waits for the orderer's response.
func (b *Broadcaster) Broadcast(ctx context.Context, env *common.Envelope) (*orderer.BroadcastResponse, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := b.client.Broadcast(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to open broadcast stream to %s", b.address)
	}

	if err = stream.Send(env); err != nil {
		return nil, errors.Wrapf(err, "could not send to orderer node %s", b.address)
	}

	res, err := stream.Recv()
	if err != nil {
		if err == io.EOF {
			return nil, errors.Errorf("orderer %s closed the broadcast stream without a response", b.address)
		}
		return nil, errors.Wrapf(err, "receive broadcast error from %s", b.address)
	}

	if err = stream.CloseSend(); err != nil {
		b.logger.Debugf("Fail to close broadcast stream to %s: %v", b.address, err)
	}

	if res.Status != common.Status_SUCCESS {
		b.logger.Warnf("Receive error status %s from %s: %s", res.Status, b.address, res.Info)
	}
	return res, nil
}

func (b *Broadcaster) Close() error {
	return b.conn.Close()
}
