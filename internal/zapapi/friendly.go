package zapapi

import (
	"context"
	"errors"
	"strings"
)

var friendlyMessages = []struct {
	needle  string
	message string
}{
	{"insufficient", "Insufficient liquidity, try increasing slippage"},
	{"slippage", "Price moved, try increasing slippage"},
	{"timeout", "Route service timed out, please retry"},
}

// FriendlyMessage renders a route error for display. Known substrings are
// translated; anything else is returned verbatim.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Route service timed out, please retry"
	}

	text := err.Error()
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		text = apiErr.Message
	}
	lower := strings.ToLower(text)
	for _, item := range friendlyMessages {
		if strings.Contains(lower, item.needle) {
			return item.message
		}
	}
	return text
}
