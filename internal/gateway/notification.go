// Package gateway handles the Midtrans integration: outbound Snap token
// creation and the inbound payment notification payload.
package gateway

import "strings"

// VANumber is one virtual account entry of a bank_transfer notification.
type VANumber struct {
	Bank     string `json:"bank"`
	VANumber string `json:"va_number"`
}

// Notification is the payment callback body posted by the gateway. Only the
// fields the reconciler consumes are declared; unknown fields are ignored.
type Notification struct {
	OrderID           string     `json:"order_id"`
	TransactionStatus string     `json:"transaction_status"`
	FraudStatus       string     `json:"fraud_status"`
	PaymentType       string     `json:"payment_type"`
	VANumbers         []VANumber `json:"va_numbers"`
	PermataVANumber   string     `json:"permata_va_number"`
	CardType          string     `json:"card_type"`
	MaskedCard        string     `json:"masked_card"`
	Bank              string     `json:"bank"`
	Acquirer          string     `json:"acquirer"`
	Store             string     `json:"store"`
	GrossAmount       string     `json:"gross_amount"`
	TransactionTime   string     `json:"transaction_time"`
}

// Payment is the normalized outcome of NormalizePayment.
type Payment struct {
	Method  string
	Channel string
}

// Label renders the method as "Method (Channel)", or just the method when
// no channel was resolved.
func (p Payment) Label() string {
	if p.Channel == "" {
		return p.Method
	}
	return p.Method + " (" + p.Channel + ")"
}

// VANumberUsed returns the virtual account number carried by the
// notification, regardless of which bank-specific field it arrived in.
func (n Notification) VANumberUsed() string {
	if len(n.VANumbers) > 0 {
		return n.VANumbers[0].VANumber
	}
	return n.PermataVANumber
}

// NormalizePayment maps the gateway-specific payload shape to a single
// human-readable method/channel pair. Pure; keyed by payment_type with
// case-insensitive substring matching on acquirer and store names.
func NormalizePayment(n Notification) Payment {
	switch n.PaymentType {
	case "bank_transfer":
		if len(n.VANumbers) > 0 && n.VANumbers[0].Bank != "" {
			return Payment{Method: "Transfer Bank", Channel: strings.ToUpper(n.VANumbers[0].Bank)}
		}
		if n.PermataVANumber != "" {
			return Payment{Method: "Transfer Bank", Channel: "PERMATA"}
		}
		return Payment{Method: "Transfer Bank"}
	case "echannel":
		return Payment{Method: "Transfer Bank", Channel: "MANDIRI"}
	case "credit_card":
		method := "Kartu Kredit"
		if strings.EqualFold(n.CardType, "debit") {
			method = "Kartu Debit"
		}
		if brand := cardBrand(n.MaskedCard); brand != "" {
			return Payment{Method: method, Channel: brand}
		}
		if n.Bank != "" {
			return Payment{Method: method, Channel: strings.ToUpper(n.Bank)}
		}
		return Payment{Method: method}
	case "gopay", "shopeepay":
		return Payment{Method: "E-Wallet", Channel: walletProvider(n.PaymentType, n.Acquirer)}
	case "qris":
		if provider := acquirerProvider(n.Acquirer); provider != "" {
			return Payment{Method: "QRIS", Channel: provider}
		}
		return Payment{Method: "QRIS"}
	case "cstore":
		switch strings.ToLower(n.Store) {
		case "indomaret":
			return Payment{Method: "Minimarket", Channel: "Indomaret"}
		case "alfamart":
			return Payment{Method: "Minimarket", Channel: "Alfamart"}
		default:
			return Payment{Method: "Minimarket"}
		}
	case "":
		return Payment{}
	default:
		return Payment{Method: n.PaymentType}
	}
}

// cardBrand infers the card network from the masked PAN prefix. The
// notification carries no brand field of its own, so the issuing bank is
// the fallback channel when the prefix is unrecognized.
func cardBrand(masked string) string {
	switch {
	case masked == "":
		return ""
	case strings.HasPrefix(masked, "34"), strings.HasPrefix(masked, "37"):
		return "AMEX"
	case strings.HasPrefix(masked, "35"):
		return "JCB"
	case masked[0] == '4':
		return "VISA"
	case masked[0] == '5', masked[0] == '2':
		return "MASTERCARD"
	default:
		return ""
	}
}

func walletProvider(paymentType, acquirer string) string {
	if provider := acquirerProvider(acquirer); provider != "" {
		return provider
	}
	if paymentType == "shopeepay" {
		return "ShopeePay"
	}
	return "GoPay"
}

func acquirerProvider(acquirer string) string {
	a := strings.ToLower(acquirer)
	switch {
	case strings.Contains(a, "gopay"):
		return "GoPay"
	case strings.Contains(a, "airpay"), strings.Contains(a, "shopee"):
		return "ShopeePay"
	default:
		return ""
	}
}
