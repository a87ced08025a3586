package submit

import (
	"bytes"

	"github.com/golang/protobuf/proto"
	"github.com/osdi23p228/fabric-protos-go/common"
	"github.com/osdi23p228/fabric-protos-go/peer"
	"github.com/osdi23p228/fabric/core/ledger/kvledger/txmgmt/rwsetutil"
	"github.com/osdi23p228/fabric/protoutil"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// EndorsedEnvelope holds an accepted proposal and the endorsements that
// will be ordered with it.
type EndorsedEnvelope struct {
	Proposal  *Proposal
	Responses []ProposalResponse
	Header    *common.Header
}

// Integrate combines a proposal with the responses accepted by the
// endorsement policy.
func Integrate(p *Proposal, accepted []ProposalResponse) (*EndorsedEnvelope, error) {
	if len(accepted) == 0 {
		return nil, errors.Errorf("Fail to find any response")
	}

	header, err := getHeader(p.Proposal.Header)
	if err != nil {
		return nil, err
	}

	return &EndorsedEnvelope{
		Proposal:  p,
		Responses: accepted,
		Header:    header,
	}, nil
}

// Seal builds the transaction from the endorsements and signs it into an
// envelope for the orderer.
func (e *EndorsedEnvelope) Seal(signer IdentityContext) (*common.Envelope, error) {
	if err := checkHeaderSignerValidity(signer, e.Header); err != nil {
		return nil, err
	}

	ccActionPayload, err := generateChaincodeActionPayload(e.Proposal.Proposal, e.Responses)
	if err != nil {
		return nil, err
	}

	tx, err := generateTransaction(e.Header, ccActionPayload)
	if err != nil {
		return nil, err
	}

	payload, err := generatePayload(e.Header, tx)
	if err != nil {
		return nil, err
	}

	return generateEnvelope(signer, payload)
}

func getHeader(headerBytes []byte) (*common.Header, error) {
	header := &common.Header{}
	if err := proto.Unmarshal(headerBytes, header); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling Header")
	}
	return header, nil
}

// checkHeaderSignerValidity check that the signer is the same
// that is referenced in the header.
func checkHeaderSignerValidity(signer IdentityContext, header *common.Header) error {
	identityBytes, err := signer.Serialize()
	if err != nil {
		return err
	}

	signatureHeader := &common.SignatureHeader{}
	if err := proto.Unmarshal(header.SignatureHeader, signatureHeader); err != nil {
		return errors.Wrap(err, "error unmarshaling SignatureHeader")
	}

	if !bytes.Equal(identityBytes, signatureHeader.Creator) {
		return errors.Errorf("signer must be the same as the one referenced in the header")
	}
	return nil
}

func generateChaincodeActionPayload(proposal *peer.Proposal, responses []ProposalResponse) (*peer.ChaincodeActionPayload, error) {
	ccProposalPayload := &peer.ChaincodeProposalPayload{}
	if err := proto.Unmarshal(proposal.Payload, ccProposalPayload); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling ChaincodeProposalPayload")
	}

	// the transient map never leaves the client
	proposalPayloadBytes, err := protoutil.GetBytesProposalPayloadForTx(ccProposalPayload)
	if err != nil {
		return nil, err
	}

	endorsements := make([]*peer.Endorsement, len(responses))
	for i, r := range responses {
		endorsements[i] = r.Response.Endorsement
	}

	return &peer.ChaincodeActionPayload{
		ChaincodeProposalPayload: proposalPayloadBytes,
		Action: &peer.ChaincodeEndorsedAction{
			ProposalResponsePayload: responses[0].Response.Payload,
			Endorsements:            endorsements,
		},
	}, nil
}

func generateTransaction(header *common.Header, ccActionPayload *peer.ChaincodeActionPayload) (*peer.Transaction, error) {
	ccActionPayloadBytes, err := protoutil.GetBytesChaincodeActionPayload(ccActionPayload)
	if err != nil {
		return nil, err
	}

	txAction := &peer.TransactionAction{
		Header:  header.SignatureHeader,
		Payload: ccActionPayloadBytes,
	}
	return &peer.Transaction{Actions: []*peer.TransactionAction{txAction}}, nil
}

func generatePayload(header *common.Header, tx *peer.Transaction) (*common.Payload, error) {
	txBytes, err := protoutil.GetBytesTransaction(tx)
	if err != nil {
		return nil, err
	}
	return &common.Payload{Header: header, Data: txBytes}, nil
}

func generateEnvelope(signer IdentityContext, payload *common.Payload) (*common.Envelope, error) {
	payloadBytes, err := protoutil.GetBytesPayload(payload)
	if err != nil {
		return nil, err
	}

	signature, err := signer.Sign(payloadBytes)
	if err != nil {
		return nil, err
	}

	return &common.Envelope{
		Payload:   payloadBytes,
		Signature: signature,
	}, nil
}

// logTXRWSet writes the namespaces, reads and writes simulated by the first
// accepted endorser.
func logTXRWSet(logger log.FieldLogger, responses []ProposalResponse) {
	proposalResponsePayload, err := protoutil.UnmarshalProposalResponsePayload(responses[0].Response.Payload)
	if err != nil {
		logger.Errorf("Fail to unmarshal ProposalResponsePayload: %v", err)
		return
	}

	ccAction, err := protoutil.UnmarshalChaincodeAction(proposalResponsePayload.Extension)
	if err != nil {
		logger.Errorf("Fail to unmarshal ChaincodeAction: %v", err)
		return
	}

	txRWSet := &rwsetutil.TxRwSet{}
	if err = txRWSet.FromProtoBytes(ccAction.Results); err != nil {
		logger.Errorf("Fail to deserializes protobytes into TxReadWriteSet proto message: %v", err)
		return
	}

	for _, rwset := range txRWSet.NsRwSets {
		for _, rset := range rwset.KvRwSet.Reads {
			logger.Infof("namespace %s read %s", rwset.NameSpace, rset.String())
		}
		for _, wset := range rwset.KvRwSet.Writes {
			logger.Infof("namespace %s write %s", rwset.NameSpace, wset.String())
		}
	}
}
