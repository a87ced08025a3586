package submit

import (
	"context"

	"github.com/osdi23p228/fabric-protos-go/common"
	"github.com/pkg/errors"
)

// Broadcast sends env to the ordering service exactly once. A SUCCESS
// acknowledgment only means the envelope entered the ordering pipeline.
// Transport failures wrap ErrOrderingTransport and are never retried here.
func Broadcast(ctx context.Context, o Orderer, env *common.Envelope) (OrderingAck, error) {
	res, err := o.Broadcast(ctx, env)
	if err != nil {
		return OrderingAck{}, errors.WithMessage(ErrOrderingTransport, err.Error())
	}
	if res == nil {
		return OrderingAck{}, errors.WithMessage(ErrOrderingTransport, "received a nil BroadcastResponse")
	}
	return OrderingAck{Status: res.Status, Info: res.Info}, nil
}
