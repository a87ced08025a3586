package infra

import (
	"context"

	"github.com/osdi23p228/txcommit/pkg/submit"
	log "github.com/sirupsen/logrus"
)

// Network holds the connections of one client session.
type Network struct {
	config      *Config
	proposers   []*Proposer
	broadcaster *Broadcaster
	coordinator *submit.Coordinator
	logger      *log.Logger
}

// LoadIdentity loads the client identity named in the config.
func LoadIdentity(c *Config) (*Crypto, error) {
	return LoadCrypto(CryptoConfig{
		MSPID:    c.MSPID,
		PrivKey:  c.PrivateKey,
		SignCert: c.SignCert,
	})
}

// Connect dials every endorser and the orderer. The committer is dialed
// per submission by the Observer.
func Connect(ctx context.Context, c *Config, identity submit.IdentityContext, dial Dialer, logger *log.Logger, metrics *submit.Metrics) (*Network, error) {
	n := &Network{config: c, logger: logger}

	endorsers := make([]submit.Endorser, 0, len(c.Endorsers))
	for _, node := range c.Endorsers {
		p, err := CreateProposer(ctx, dial, node)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.proposers = append(n.proposers, p)
		endorsers = append(endorsers, p)
	}

	broadcaster, err := CreateBroadcaster(ctx, dial, c.Orderer, logger.WithField("orderer", c.Orderer.Address))
	if err != nil {
		n.Close()
		return nil, err
	}
	n.broadcaster = broadcaster

	coordinator, err := submit.NewCoordinator(submit.SessionContext{
		Identity:      identity,
		Channel:       c.Channel,
		Endorsers:     endorsers,
		Orderer:       broadcaster,
		Events:        NewObserver(c.Committer, c.Channel, identity, dial, logger.WithField("committer", c.Committer.Address)),
		Policy:        c.Policy,
		CommitTimeout: c.CommitTimeout,
		Logger:        logger,
		Metrics:       metrics,
		CheckRWSet:    c.CheckRWSet,
	})
	if err != nil {
		n.Close()
		return nil, err
	}
	n.coordinator = coordinator

	return n, nil
}

// Submit runs one attempt, filling chaincode defaults from the config.
func (n *Network) Submit(ctx context.Context, req submit.Request) submit.Outcome {
	return n.coordinator.Submit(ctx, withDefaults(req, n.config))
}

func (n *Network) Close() {
	for _, p := range n.proposers {
		if err := p.Close(); err != nil {
			n.logger.Debugf("Fail to close connection to %s: %v", p.Address(), err)
		}
	}
	if n.broadcaster != nil {
		if err := n.broadcaster.Close(); err != nil {
			n.logger.Debugf("Fail to close connection to orderer: %v", err)
		}
	}
}
