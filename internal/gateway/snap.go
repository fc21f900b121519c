package gateway

import (
	"fmt"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
)

// TokenProvider creates a gateway payment token for a new order. The sale
// path treats token creation as best effort; a sale still succeeds when the
// gateway is unreachable.
type TokenProvider interface {
	PaymentToken(orderID string, grossAmount int64, customerName string) (string, error)
}

// SnapProvider wraps the Midtrans Snap client.
type SnapProvider struct {
	client snap.Client
}

func NewSnapProvider(serverKey string, production bool) *SnapProvider {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	p := &SnapProvider{}
	p.client.New(serverKey, env)
	return p
}

func (p *SnapProvider) PaymentToken(orderID string, grossAmount int64, customerName string) (string, error) {
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: grossAmount,
		},
	}
	if customerName != "" {
		req.CustomerDetail = &midtrans.CustomerDetails{FName: customerName}
	}
	resp, err := p.client.CreateTransaction(req)
	if err != nil {
		return "", fmt.Errorf("create snap transaction: %w", err)
	}
	return resp.Token, nil
}
