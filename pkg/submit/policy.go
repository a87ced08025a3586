package submit

import (
	"bytes"
	"crypto/sha256"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// EndorsementPolicy decides whether a set of proposal responses is good
// enough to be ordered. On success it returns the responses whose
// endorsements go into the transaction.
type EndorsementPolicy interface {
	Evaluate(responses []ProposalResponse) ([]ProposalResponse, error)
	String() string
}

// ParseEndorsementPolicy accepts "first", "all" or "quorum:N". The empty
// string selects "first".
func ParseEndorsementPolicy(s string) (EndorsementPolicy, error) {
	switch {
	case s == "" || s == "first":
		return FirstResponsePolicy{}, nil
	case s == "all":
		return AllResponsesPolicy{}, nil
	case strings.HasPrefix(s, "quorum:"):
		n, err := strconv.Atoi(strings.TrimPrefix(s, "quorum:"))
		if err != nil || n < 1 {
			return nil, errors.Errorf("invalid quorum size in endorsement policy %q", s)
		}
		return QuorumPolicy{Size: n}, nil
	}
	return nil, errors.Errorf("unknown endorsement policy %q", s)
}

// FirstResponsePolicy accepts when the first response is good. Only the
// first peer is judged; the good responses that agree with it are kept.
type FirstResponsePolicy struct{}

func (FirstResponsePolicy) String() string { return "first" }

func (FirstResponsePolicy) Evaluate(responses []ProposalResponse) ([]ProposalResponse, error) {
	if len(responses) == 0 {
		return nil, rejected("no proposal response")
	}
	first := responses[0]
	if !first.Good() {
		return nil, rejected(first.Problem())
	}

	accepted := []ProposalResponse{first}
	for _, r := range responses[1:] {
		if r.Good() && bytes.Equal(r.Response.Payload, first.Response.Payload) {
			accepted = append(accepted, r)
		}
	}
	return accepted, nil
}

// AllResponsesPolicy requires every target to endorse the same payload.
type AllResponsesPolicy struct{}

func (AllResponsesPolicy) String() string { return "all" }

func (AllResponsesPolicy) Evaluate(responses []ProposalResponse) ([]ProposalResponse, error) {
	if len(responses) == 0 {
		return nil, rejected("no proposal response")
	}
	if err := checkResponsesStatusValidity(responses); err != nil {
		return nil, err
	}
	if err := checkResponsePayloadValidity(responses); err != nil {
		return nil, err
	}
	return responses, nil
}

// QuorumPolicy requires at least Size good responses with identical payloads.
type QuorumPolicy struct {
	Size int
}

func (q QuorumPolicy) String() string { return "quorum:" + strconv.Itoa(q.Size) }

func (q QuorumPolicy) Evaluate(responses []ProposalResponse) ([]ProposalResponse, error) {
	groups := make(map[[sha256.Size]byte][]ProposalResponse)
	var largest [sha256.Size]byte
	for _, r := range responses {
		if !r.Good() {
			continue
		}
		h := sha256.Sum256(r.Response.Payload)
		groups[h] = append(groups[h], r)
		if len(groups[h]) > len(groups[largest]) {
			largest = h
		}
	}

	if len(groups) > 1 && len(groups[largest]) < q.Size {
		return nil, rejected("ProposalResponsePayloads from peers do not match")
	}
	if len(groups[largest]) < q.Size {
		return nil, rejected(
			"only " + strconv.Itoa(len(groups[largest])) + " good responses, quorum is " + strconv.Itoa(q.Size),
		)
	}
	return groups[largest], nil
}

func rejected(reason string) error {
	return errors.Wrap(ErrProposalRejected, reason)
}

func checkResponsesStatusValidity(responses []ProposalResponse) error {
	for _, r := range responses {
		if !r.Good() {
			return rejected(r.Problem())
		}
	}
	return nil
}

func checkResponsePayloadValidity(responses []ProposalResponse) error {
	payload := responses[0].Response.Payload
	for _, r := range responses[1:] {
		if !bytes.Equal(payload, r.Response.Payload) {
			return rejected("ProposalResponsePayloads from peers do not match")
		}
	}
	return nil
}
