package upi

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the only currency UPI deep links carry, whatever the invoice says.
const Currency = "INR"

// Request describes a payment to encode as a UPI deep link.
type Request struct {
	PayeeVPA  string
	PayeeName string
	Amount    float64
	InvoiceID string
	Note      string
}

// Result is a generated link and its QR image as a data URI. QRDataURI is empty
// when the image could not be rendered.
type Result struct {
	Link      string
	QRDataURI string
}

// Payable reports whether the request has a payee address and a positive amount.
func (r Request) Payable() bool {
	if strings.TrimSpace(r.PayeeVPA) == "" {
		return false
	}
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
		return false
	}
	return r.Amount > 0
}

// FormatAmount renders the amount with exactly two decimal places. It rounds
// the shortest decimal form of amount half-up, so 1.005 is "1.01" as written,
// not "1.00" as a binary toFixed(2) on 1.00499999... would give.
func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}

// DefaultNote is the transaction note used when the caller supplies none.
func DefaultNote(invoiceID string) string {
	return "Payment for Invoice #" + invoiceID
}

// BuildLink returns the upi://pay deep link for req. It returns false instead of
// a link when the request is not payable.
func BuildLink(req Request) (string, bool) {
	if !req.Payable() {
		return "", false
	}
	note := req.Note
	if strings.TrimSpace(note) == "" {
		note = DefaultNote(req.InvoiceID)
	}
	params := [][2]string{
		{"pa", strings.TrimSpace(req.PayeeVPA)},
		{"pn", req.PayeeName},
		{"am", FormatAmount(req.Amount)},
		{"cu", Currency},
		{"tr", req.InvoiceID},
		{"tn", note},
	}

	var b strings.Builder
	b.WriteString("upi://pay?")
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(escapeComponent(p[1]))
	}
	return b.String(), true
}

const upperhex = "0123456789ABCDEF"

// escapeComponent percent-encodes everything except A-Z a-z 0-9 and -_.!~*'()
// so spaces become %20 and '@' becomes %40, which UPI apps expect.
func escapeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
