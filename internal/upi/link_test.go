package upi

import (
	"math"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildLinkExample(t *testing.T) {
	link, ok := BuildLink(Request{
		PayeeVPA:  "alice@bank",
		PayeeName: "Alice",
		Amount:    250,
		InvoiceID: "INV-2024-0007",
	})
	require.True(t, ok)
	require.Equal(t,
		"upi://pay?pa=alice%40bank&pn=Alice&am=250.00&cu=INR&tr=INV-2024-0007&tn=Payment%20for%20Invoice%20%23INV-2024-0007",
		link)
}

func TestBuildLinkRejectsUnpayable(t *testing.T) {
	cases := []Request{
		{PayeeVPA: "", Amount: 10, InvoiceID: "1"},
		{PayeeVPA: "   ", Amount: 10, InvoiceID: "1"},
		{PayeeVPA: "a@b", Amount: 0, InvoiceID: "1"},
		{PayeeVPA: "a@b", Amount: -5, InvoiceID: "1"},
		{PayeeVPA: "a@b", Amount: math.NaN(), InvoiceID: "1"},
		{PayeeVPA: "a@b", Amount: math.Inf(1), InvoiceID: "1"},
	}
	for _, c := range cases {
		link, ok := BuildLink(c)
		require.False(t, ok, "expected %+v to be rejected", c)
		require.Empty(t, link)
	}
}

func TestBuildLinkAmountAlwaysTwoDecimals(t *testing.T) {
	cases := map[float64]string{
		10:      "am=10.00",
		0.5:     "am=0.50",
		1234.56: "am=1234.56",
		99.999:  "am=100.00",
	}
	for amount, want := range cases {
		link, ok := BuildLink(Request{PayeeVPA: "shop@upi", Amount: amount, InvoiceID: "X"})
		require.True(t, ok)
		require.Contains(t, link, "&"+want+"&")
	}
}

func TestFormatAmountRoundsWrittenValueHalfUp(t *testing.T) {
	cases := map[float64]string{
		1.005:  "1.01",
		1.045:  "1.05",
		2.675:  "2.68",
		1.004:  "1.00",
		0.125:  "0.13",
		100:    "100.00",
		0.0049: "0.00",
	}
	for amount, want := range cases {
		require.Equal(t, want, FormatAmount(amount), "amount %v", amount)
	}
}

func TestBuildLinkCurrencyIsAlwaysINR(t *testing.T) {
	link, ok := BuildLink(Request{PayeeVPA: "shop@upi", Amount: 12, InvoiceID: "USD-1"})
	require.True(t, ok)
	require.Contains(t, link, "cu=INR")
	require.NotContains(t, link, "USD&")
}

func TestBuildLinkCustomNoteAndEscaping(t *testing.T) {
	link, ok := BuildLink(Request{
		PayeeVPA:  "shop@upi",
		PayeeName: "Chai & Co",
		Amount:    42,
		InvoiceID: "Q/7",
		Note:      "Tea (x2) + snacks ~ 100%",
	})
	require.True(t, ok)
	require.True(t, strings.HasPrefix(link, "upi://pay?"))
	require.Contains(t, link, "pn=Chai%20%26%20Co")
	require.Contains(t, link, "tr=Q%2F7")
	require.Contains(t, link, "tn=Tea%20(x2)%20%2B%20snacks%20~%20100%25")

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "upi", parsed.Scheme)
	require.Equal(t, "pay", parsed.Host)
	q := parsed.Query()
	require.Equal(t, "Chai & Co", q.Get("pn"))
	require.Equal(t, "Tea (x2) + snacks ~ 100%", q.Get("tn"))
	require.Equal(t, "Q/7", q.Get("tr"))
}

func TestEscapeComponentUTF8(t *testing.T) {
	require.Equal(t, "%E2%82%B9", escapeComponent("₹"))
	require.Equal(t, "a-b_c.d!e~f*g'h(i)j", escapeComponent("a-b_c.d!e~f*g'h(i)j"))
}
