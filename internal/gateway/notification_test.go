package gateway

import "testing"

func TestNormalizePayment(t *testing.T) {
	cases := []struct {
		name string
		in   Notification
		want string
	}{
		{
			"va bca",
			Notification{PaymentType: "bank_transfer", VANumbers: []VANumber{{Bank: "bca", VANumber: "12345"}}},
			"Transfer Bank (BCA)",
		},
		{
			"va bni",
			Notification{PaymentType: "bank_transfer", VANumbers: []VANumber{{Bank: "bni", VANumber: "98765"}}},
			"Transfer Bank (BNI)",
		},
		{
			"permata va",
			Notification{PaymentType: "bank_transfer", PermataVANumber: "8778001"},
			"Transfer Bank (PERMATA)",
		},
		{
			"bank transfer without va details",
			Notification{PaymentType: "bank_transfer"},
			"Transfer Bank",
		},
		{
			"echannel is mandiri",
			Notification{PaymentType: "echannel"},
			"Transfer Bank (MANDIRI)",
		},
		{
			"credit card brand from masked pan",
			Notification{PaymentType: "credit_card", Bank: "mandiri", CardType: "credit", MaskedCard: "481111-1114"},
			"Kartu Kredit (VISA)",
		},
		{
			"credit card mastercard prefix",
			Notification{PaymentType: "credit_card", CardType: "credit", MaskedCard: "521111-1117"},
			"Kartu Kredit (MASTERCARD)",
		},
		{
			"debit card falls back to issuer bank",
			Notification{PaymentType: "credit_card", Bank: "bni", CardType: "debit", MaskedCard: "981111-1110"},
			"Kartu Debit (BNI)",
		},
		{
			"credit card without metadata",
			Notification{PaymentType: "credit_card"},
			"Kartu Kredit",
		},
		{
			"gopay",
			Notification{PaymentType: "gopay"},
			"E-Wallet (GoPay)",
		},
		{
			"shopeepay via acquirer",
			Notification{PaymentType: "shopeepay", Acquirer: "airpay shopee"},
			"E-Wallet (ShopeePay)",
		},
		{
			"qris gopay acquirer",
			Notification{PaymentType: "qris", Acquirer: "GoPay"},
			"QRIS (GoPay)",
		},
		{
			"qris shopee acquirer",
			Notification{PaymentType: "qris", Acquirer: "AIRPAY SHOPEE"},
			"QRIS (ShopeePay)",
		},
		{
			"qris unknown acquirer stays generic",
			Notification{PaymentType: "qris", Acquirer: "nobu"},
			"QRIS",
		},
		{
			"cstore indomaret",
			Notification{PaymentType: "cstore", Store: "Indomaret"},
			"Minimarket (Indomaret)",
		},
		{
			"cstore unknown store",
			Notification{PaymentType: "cstore", Store: "warung sebelah"},
			"Minimarket",
		},
		{
			"unknown payment type passes through",
			Notification{PaymentType: "akulaku"},
			"akulaku",
		},
		{
			"empty payment type",
			Notification{},
			"",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizePayment(tc.in).Label()
			if got != tc.want {
				t.Fatalf("NormalizePayment(%+v).Label() = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestVANumberUsed(t *testing.T) {
	n := Notification{VANumbers: []VANumber{{Bank: "bca", VANumber: "111"}}, PermataVANumber: "222"}
	if got := n.VANumberUsed(); got != "111" {
		t.Fatalf("got %q, want va_numbers entry first", got)
	}
	n = Notification{PermataVANumber: "222"}
	if got := n.VANumberUsed(); got != "222" {
		t.Fatalf("got %q, want permata fallback", got)
	}
}
