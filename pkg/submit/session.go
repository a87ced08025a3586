package submit

import (
	"io/ioutil"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const DefaultCommitTimeout = 30 * time.Second

// SessionContext bundles everything an attempt needs from the outside world.
// It is passed by value and never mutated after construction.
type SessionContext struct {
	Identity  IdentityContext
	Channel   string // default channel when the request names none
	Endorsers []Endorser
	Orderer   Orderer
	Events    EventSource

	Policy        EndorsementPolicy
	CommitTimeout time.Duration

	Clock   clock.Clock
	Logger  log.FieldLogger
	Metrics *Metrics

	// CheckRWSet logs the read/write set of the endorsed simulation
	CheckRWSet bool
}

func (s SessionContext) validate() error {
	if s.Identity == nil {
		return errors.New("session has no identity")
	}
	if s.Orderer == nil {
		return errors.New("session has no orderer")
	}
	if s.Events == nil {
		return errors.New("session has no event source")
	}
	if s.CommitTimeout < 0 {
		return errors.Errorf("negative commit timeout %s", s.CommitTimeout)
	}
	return nil
}

func (s SessionContext) withDefaults() SessionContext {
	if s.Policy == nil {
		s.Policy = FirstResponsePolicy{}
	}
	if s.CommitTimeout == 0 {
		s.CommitTimeout = DefaultCommitTimeout
	}
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	if s.Logger == nil {
		logger := log.New()
		logger.Out = ioutil.Discard
		s.Logger = logger
	}
	return s
}

func (s SessionContext) endorser(address string) (Endorser, bool) {
	for _, e := range s.Endorsers {
		if e.Address() == address {
			return e, true
		}
	}
	return nil, false
}
