package submit

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// CollectEndorsements sends the signed proposal to every target concurrently
// and waits until each one answered or failed. The result is aligned with
// p.Targets; failures are recorded in the response rather than dropped.
func CollectEndorsements(ctx context.Context, p *Proposal) []ProposalResponse {
	responses := make([]ProposalResponse, len(p.Targets))

	var wg sync.WaitGroup
	for i, endorser := range p.Targets {
		wg.Add(1)
		go func(i int, e Endorser) {
			defer wg.Done()
			responses[i] = endorse(ctx, e, p)
		}(i, endorser)
	}
	wg.Wait()

	return responses
}

func endorse(ctx context.Context, e Endorser, p *Proposal) ProposalResponse {
	resp, err := e.ProcessProposal(ctx, p.SignedProposal)
	if err != nil {
		return ProposalResponse{
			Endorser: e.Address(),
			Response: resp,
			Err:      errors.WithMessage(ErrEndorsementTransport, err.Error()),
		}
	}
	if resp == nil {
		return ProposalResponse{
			Endorser: e.Address(),
			Err:      errors.WithMessage(ErrEndorsementTransport, "received a nil ProposalResponse"),
		}
	}
	return ProposalResponse{Endorser: e.Address(), Response: resp}
}
