package infra

import (
	"context"

	"github.com/osdi23p228/fabric-protos-go/peer"
	"google.golang.org/grpc"
)

// Proposer sends proposals to one endorsing peer over a dedicated connection.
// It implements submit.Endorser.
type Proposer struct {
	address    string
	conn       *grpc.ClientConn
	grpcClient peer.EndorserClient
}

func NewProposer(address string, conn *grpc.ClientConn) *Proposer {
	return &Proposer{
		address:    address,
		conn:       conn,
		grpcClient: peer.NewEndorserClient(conn),
	}
}

func CreateProposer(ctx context.Context, dial Dialer, node Node) (*Proposer, error) {
	conn, err := dial(ctx, node)
	if err != nil {
		return nil, err
	}
	return NewProposer(node.Address, conn), nil
}

func (p *Proposer) Address() string {
	return p.address
}

func (p *Proposer) ProcessProposal(ctx context.Context, sp *peer.SignedProposal) (*peer.ProposalResponse, error) {
	return p.grpcClient.ProcessProposal(ctx, sp)
}

func (p *Proposer) Close() error {
	return p.conn.Close()
}
