package infra

import (
	"context"
	"math"
	"sync"

	"github.com/osdi23p228/fabric-protos-go/common"
	"github.com/osdi23p228/fabric-protos-go/orderer"
	"github.com/osdi23p228/fabric-protos-go/peer"
	"github.com/osdi23p228/fabric/protoutil"
	"github.com/osdi23p228/txcommit/pkg/submit"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// Observer watches filtered blocks on the committing peer. Each
// subscription dials its own connection and releases it on Close. It
// implements submit.EventSource.
type Observer struct {
	node    Node
	channel string
	signer  protoutil.Signer
	dial    Dialer
	logger  log.FieldLogger
}

func NewObserver(node Node, channel string, signer protoutil.Signer, dial Dialer, logger log.FieldLogger) *Observer {
	return &Observer{
		node:    node,
		channel: channel,
		signer:  signer,
		dial:    dial,
		logger:  logger,
	}
}

// Subscribe starts delivering filtered blocks from the newest one on. The
// first response is drained before returning: once the peer answered, every
// later block reaches the subscription.
func (o *Observer) Subscribe(ctx context.Context, txID string) (submit.Subscription, error) {
	conn, err := o.dial(ctx, o.node)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	fail := func(err error) (submit.Subscription, error) {
		cancel()
		conn.Close()
		return nil, err
	}

	deliverer, err := peer.NewDeliverClient(conn).DeliverFiltered(streamCtx)
	if err != nil {
		return fail(errors.Wrapf(err, "fail to create DeliverFilteredClient for %s", o.node.Address))
	}

	envelope, err := CreateSignedDeliverNewestEnv(o.channel, o.signer)
	if err != nil {
		return fail(errors.WithMessage(err, "fail to create SignedEnvelope"))
	}

	if err = deliverer.Send(envelope); err != nil {
		return fail(errors.Wrap(err, "fail to send SignedEnvelope"))
	}

	// drain the first response
	first, err := deliverer.Recv()
	if err != nil {
		return fail(errors.Wrap(err, "fail to receive the first response"))
	}
	if status, ok := first.Type.(*peer.DeliverResponse_Status); ok {
		return fail(errors.Errorf("deliver service of %s answered with status %s", o.node.Address, status.Status))
	}

	s := &subscription{
		txID:   txID,
		conn:   conn,
		client: deliverer,
		ctx:    streamCtx,
		cancel: cancel,
		events: make(chan submit.CommitEvent, 1),
		done:   make(chan struct{}),
		logger: o.logger.WithField("txid", txID),
	}
	go s.receiveFilteredBlock(first)

	return s, nil
}

type subscription struct {
	txID   string
	conn   *grpc.ClientConn
	client peer.Deliver_DeliverFilteredClient
	ctx    context.Context
	cancel context.CancelFunc
	events chan submit.CommitEvent
	done   chan struct{}
	logger log.FieldLogger

	closeOnce sync.Once
	closeErr  error
}

func (s *subscription) Events() <-chan submit.CommitEvent {
	return s.events
}

// Close stops the stream, disconnects and waits for the receiver to exit.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.conn.Close()
		<-s.done
	})
	return s.closeErr
}

func (s *subscription) receiveFilteredBlock(first *peer.DeliverResponse) {
	defer close(s.done)
	defer close(s.events)

	deliverResponse := first
	for {
		switch t := deliverResponse.Type.(type) {
		case *peer.DeliverResponse_FilteredBlock:
			if event, ok := findTransaction(t.FilteredBlock, s.txID); ok {
				s.events <- event
				return
			}
		case *peer.DeliverResponse_Status:
			s.logger.Infoln("Status:", t.Status)
			return
		default:
			s.logger.Infoln("Unknown DeliverResponse type")
		}

		var err error
		deliverResponse, err = s.client.Recv()
		if err != nil {
			if s.ctx.Err() == nil {
				s.logger.Errorf("Fail to receive deliver response: %v", err)
			}
			return
		}
	}
}

func findTransaction(fb *peer.FilteredBlock, txID string) (submit.CommitEvent, bool) {
	if fb == nil {
		return submit.CommitEvent{}, false
	}
	for _, tx := range fb.FilteredTransactions {
		if tx.GetTxid() == txID {
			return submit.CommitEvent{
				TxID:           txID,
				ValidationCode: tx.TxValidationCode,
				BlockNumber:    fb.Number,
			}, true
		}
	}
	return submit.CommitEvent{}, false
}

func CreateSignedDeliverNewestEnv(channel string, signer protoutil.Signer) (*common.Envelope, error) {
	start := &orderer.SeekPosition{
		Type: &orderer.SeekPosition_Newest{
			Newest: &orderer.SeekNewest{},
		},
	}

	stop := &orderer.SeekPosition{
		Type: &orderer.SeekPosition_Specified{
			Specified: &orderer.SeekSpecified{
				Number: math.MaxUint64,
			},
		},
	}

	seekInfo := &orderer.SeekInfo{
		Start:    start,
		Stop:     stop,
		Behavior: orderer.SeekInfo_BLOCK_UNTIL_READY,
	}

	return protoutil.CreateSignedEnvelope(
		common.HeaderType_DELIVER_SEEK_INFO,
		channel,
		signer,
		seekInfo,
		0,
		0,
	)
}
