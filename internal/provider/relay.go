package provider

import (
	"context"

	"github.com/punchamoorthee/handlepay/internal/settlement"
)

// SponsoredRelay adapts the provider's send endpoint to the settlement
// router's sponsored-transfer path.
type SponsoredRelay struct {
	client *Client
}

func NewSponsoredRelay(c *Client) *SponsoredRelay {
	return &SponsoredRelay{client: c}
}

func (r *SponsoredRelay) SubmitSponsored(ctx context.Context, t settlement.Transfer) settlement.Attempt {
	p, err := r.client.SendPayment(ctx, SendRequest{
		FromExternalID: t.SenderID.String(),
		To:             t.RecipientAddress,
		TokenAddress:   t.Token,
		Amount:         t.Amount.String(),
	})
	if err != nil {
		if IsDeclined(err) {
			return settlement.Declined(err)
		}
		return settlement.Unavailable(err)
	}
	return settlement.OK(p.TxHash)
}
