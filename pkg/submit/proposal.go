package submit

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/osdi23p228/fabric-protos-go/common"
	"github.com/osdi23p228/fabric-protos-go/peer"
	"github.com/osdi23p228/fabric/protoutil"
	"github.com/pkg/errors"
)

const defaultFcn = "invoke"

// Proposal is a signed transaction proposal ready for endorsement.
type Proposal struct {
	TxID      TransactionID
	Channel   string
	Chaincode string
	Args      []string
	Targets   []Endorser

	Proposal       *peer.Proposal
	SignedProposal *peer.SignedProposal
}

// BuildProposal validates the request, mints a transaction id and returns the
// signed proposal. All errors wrap ErrInvalidRequest.
func BuildProposal(session SessionContext, req Request) (*Proposal, error) {
	channel := req.Channel
	if channel == "" {
		channel = session.Channel
	}
	if channel == "" {
		return nil, invalidRequest("channel id is absent")
	}
	if req.Chaincode == "" {
		return nil, invalidRequest("chaincode name is absent")
	}

	targets, err := resolveTargets(session, req.Targets)
	if err != nil {
		return nil, err
	}

	fcn := req.Fcn
	if fcn == "" {
		fcn = defaultFcn
	}
	args, err := StringifyArgs(req.Args)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidRequest, err.Error())
	}
	args = append([]string{fcn}, args...)

	txID, err := session.Identity.NewTransactionID()
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidRequest, "fail to mint transaction id: %v", err)
	}

	prop, err := CreateProposal(txID, channel, req.Chaincode, req.Version, args, req.Transient)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidRequest, "fail to create proposal %s: %v", txID, err)
	}

	signed, err := SignProposal(session.Identity, prop)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidRequest, "fail to sign proposal %s: %v", txID, err)
	}

	return &Proposal{
		TxID:           txID,
		Channel:        channel,
		Chaincode:      req.Chaincode,
		Args:           args,
		Targets:        targets,
		Proposal:       prop,
		SignedProposal: signed,
	}, nil
}

func invalidRequest(msg string) error {
	return errors.Wrap(ErrInvalidRequest, msg)
}

func resolveTargets(session SessionContext, addresses []string) ([]Endorser, error) {
	if len(addresses) == 0 {
		if len(session.Endorsers) == 0 {
			return nil, invalidRequest("target peer set is empty")
		}
		return session.Endorsers, nil
	}

	targets := make([]Endorser, 0, len(addresses))
	for _, address := range addresses {
		e, ok := session.endorser(address)
		if !ok {
			return nil, invalidRequest("unknown target peer " + address)
		}
		targets = append(targets, e)
	}
	return targets, nil
}

// StringifyArgs turns every argument into its textual form. Strings are kept
// as they are, raw JSON keeps its key order and literals, everything else is
// JSON encoded without HTML escaping.
func StringifyArgs(args []interface{}) ([]string, error) {
	out := make([]string, len(args))
	for i, arg := range args {
		switch v := arg.(type) {
		case string:
			out[i] = v
		case []byte:
			out[i] = string(v)
		case json.RawMessage:
			buf := &bytes.Buffer{}
			if err := json.Compact(buf, v); err != nil {
				return nil, errors.Wrapf(err, "argument %d cannot be converted to a string", i)
			}
			out[i] = buf.String()
		default:
			buf := &bytes.Buffer{}
			enc := json.NewEncoder(buf)
			enc.SetEscapeHTML(false)
			if err := enc.Encode(v); err != nil {
				return nil, errors.Wrapf(err, "argument %d cannot be converted to a string", i)
			}
			out[i] = strings.TrimSuffix(buf.String(), "\n")
		}
	}
	return out, nil
}

// CreateProposal creates an unsigned chaincode invocation proposal carrying the given transaction id
func CreateProposal(txID TransactionID, channel, ccname, version string, args []string, transient map[string]string) (*peer.Proposal, error) {
	// convert the argument list to a byte list
	var argsByte [][]byte
	for _, arg := range args {
		argsByte = append(argsByte, []byte(arg))
	}

	spec := &peer.ChaincodeSpec{
		Type:        peer.ChaincodeSpec_GOLANG,
		ChaincodeId: &peer.ChaincodeID{Name: ccname, Version: version},
		Input:       &peer.ChaincodeInput{Args: argsByte},
	}
	invocation := &peer.ChaincodeInvocationSpec{ChaincodeSpec: spec}

	var transientMap map[string][]byte
	if len(transient) > 0 {
		transientMap = make(map[string][]byte, len(transient))
		for k, v := range transient {
			transientMap[k] = []byte(v)
		}
	}

	prop, _, err := protoutil.CreateChaincodeProposalWithTxIDNonceAndTransient(
		txID.String(),
		common.HeaderType_ENDORSER_TRANSACTION,
		channel,
		invocation,
		txID.Nonce(),
		txID.Creator(),
		transientMap,
	)
	if err != nil {
		return nil, err
	}
	return prop, nil
}

// SignProposal signs an unsigned proposal and attach the signature to the signed proposal
func SignProposal(signer IdentityContext, prop *peer.Proposal) (*peer.SignedProposal, error) {
	proposalBytes, err := proto.Marshal(prop)
	if err != nil {
		return nil, err
	}

	signature, err := signer.Sign(proposalBytes)
	if err != nil {
		return nil, err
	}

	return &peer.SignedProposal{
		ProposalBytes: proposalBytes,
		Signature:     signature,
	}, nil
}
