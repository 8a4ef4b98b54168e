package launcher

import (
	"regexp"
	"strings"
)

// PaymentMarker is the machine-readable prefix the automation prints once a
// booking reaches the payment gateway.
const PaymentMarker = "PAYMENT_URL_OUTPUT:"

var humanPaymentLine = regexp.MustCompile(`Payment URL: (https?://\S+)`)

// ParsePaymentMarker extracts a payment URL from one line of automation
// output. It understands both the machine marker and the human-readable
// "Payment URL:" line.
func ParsePaymentMarker(line string) (string, bool) {
	if i := strings.Index(line, PaymentMarker); i >= 0 {
		url := strings.TrimSpace(line[i+len(PaymentMarker):])
		return url, url != ""
	}
	if m := humanPaymentLine.FindStringSubmatch(line); m != nil {
		return m[1], true
	}
	return "", false
}
