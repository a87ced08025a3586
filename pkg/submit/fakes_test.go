package submit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/osdi23p228/fabric-protos-go/common"
	"github.com/osdi23p228/fabric-protos-go/orderer"
	"github.com/osdi23p228/fabric-protos-go/peer"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
)

// recorder keeps the order in which collaborators were called.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(call string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) index(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calls {
		if c == call {
			return i
		}
	}
	return -1
}

type fakeIdentity struct {
	creator []byte
	minted  int64
	mintErr error
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{creator: []byte("Org1MSP-client")}
}

func (f *fakeIdentity) Sign(msg []byte) ([]byte, error) {
	sum := sha256.Sum256(msg)
	return sum[:], nil
}

func (f *fakeIdentity) Serialize() ([]byte, error) {
	return f.creator, nil
}

func (f *fakeIdentity) NewTransactionID() (TransactionID, error) {
	if f.mintErr != nil {
		return TransactionID{}, f.mintErr
	}
	n := atomic.AddInt64(&f.minted, 1)
	return NewTransactionID([]byte(fmt.Sprintf("nonce-%d", n)), f.creator), nil
}

type fakeEndorser struct {
	address string
	status  int32
	payload []byte
	err     error
	delay   time.Duration
	noSig   bool
	calls   int32
}

func goodEndorser(address string) *fakeEndorser {
	return &fakeEndorser{address: address, status: 200, payload: []byte("rwset")}
}

func (f *fakeEndorser) Address() string { return f.address }

func (f *fakeEndorser) ProcessProposal(ctx context.Context, sp *peer.SignedProposal) (*peer.ProposalResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	resp := &peer.ProposalResponse{
		Response: &peer.Response{Status: f.status, Message: "msg from " + f.address},
		Payload:  f.payload,
	}
	if !f.noSig {
		resp.Endorsement = &peer.Endorsement{Endorser: []byte(f.address), Signature: []byte("sig-" + f.address)}
	}
	return resp, nil
}

type mockOrderer struct {
	mock.Mock
}

func (m *mockOrderer) Broadcast(ctx context.Context, env *common.Envelope) (*orderer.BroadcastResponse, error) {
	args := m.Called(ctx, env)
	res, _ := args.Get(0).(*orderer.BroadcastResponse)
	return res, args.Error(1)
}

func ack(status common.Status) *orderer.BroadcastResponse {
	return &orderer.BroadcastResponse{Status: status}
}

type fakeSubscription struct {
	txID   string
	events chan CommitEvent
	closes int32
}

func (s *fakeSubscription) Events() <-chan CommitEvent { return s.events }

func (s *fakeSubscription) Close() error {
	atomic.AddInt32(&s.closes, 1)
	return nil
}

func (s *fakeSubscription) closeCount() int {
	return int(atomic.LoadInt32(&s.closes))
}

type fakeEventSource struct {
	mu           sync.Mutex
	subs         []*fakeSubscription
	subscribeErr error
	recorder     *recorder
	onSubscribe  func()
}

func (f *fakeEventSource) Subscribe(ctx context.Context, txID string) (Subscription, error) {
	f.recorder.record("subscribe")
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	if f.onSubscribe != nil {
		f.onSubscribe()
	}
	sub := &fakeSubscription{txID: txID, events: make(chan CommitEvent, 1)}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeEventSource) last() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeEventSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// emit delivers a commit event for the latest subscription.
func (f *fakeEventSource) emit(code peer.TxValidationCode) {
	sub := f.last()
	sub.events <- CommitEvent{TxID: sub.txID, ValidationCode: code, BlockNumber: 7}
}

type fixture struct {
	identity *fakeIdentity
	peers    []*fakeEndorser
	orderer  *mockOrderer
	events   *fakeEventSource
	clock    *clock.Mock
	recorder *recorder
	session  SessionContext
}

func newFixture(peers ...*fakeEndorser) *fixture {
	if len(peers) == 0 {
		peers = []*fakeEndorser{goodEndorser("peer0:7051"), goodEndorser("peer1:7051")}
	}
	rec := &recorder{}
	f := &fixture{
		identity: newFakeIdentity(),
		peers:    peers,
		orderer:  &mockOrderer{},
		events:   &fakeEventSource{recorder: rec},
		clock:    clock.NewMock(),
		recorder: rec,
	}

	endorsers := make([]Endorser, len(peers))
	for i, p := range peers {
		endorsers[i] = p
	}
	logger, _ := test.NewNullLogger()
	f.session = SessionContext{
		Identity:      f.identity,
		Channel:       "mychannel",
		Endorsers:     endorsers,
		Orderer:       f.orderer,
		Events:        f.events,
		CommitTimeout: 30 * time.Second,
		Clock:         f.clock,
		Logger:        logger,
	}
	return f
}

// onBroadcast makes the orderer answer with status and then run then.
func (f *fixture) onBroadcast(status common.Status, then func()) {
	f.orderer.On("Broadcast", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			f.recorder.record("broadcast")
			if then != nil {
				then()
			}
		}).
		Return(ack(status), nil).
		Once()
}

func (f *fixture) onBroadcastError(err error) {
	f.orderer.On("Broadcast", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { f.recorder.record("broadcast") }).
		Return(nil, err).
		Once()
}

func (f *fixture) coordinator() *Coordinator {
	c, err := NewCoordinator(f.session)
	if err != nil {
		panic(errors.Wrap(err, "bad fixture"))
	}
	return c
}

func basicRequest() Request {
	return Request{
		Chaincode: "hands-on",
		Fcn:       "put",
		Args:      []interface{}{"a", 100},
	}
}
