// Package scrape recognises anti-bot responses and turns scraped HTML into
// text that pattern extractors can scan.
package scrape

import (
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockAccess     BlockType = "access_denied"
	BlockJSShell    BlockType = "js_shell"
)

// BlockedError reports that a source served an anti-bot page instead of data.
type BlockedError struct {
	URL  string
	Type BlockType
}

func (e *BlockedError) Error() string {
	return "scrape: blocked (" + string(e.Type) + ") at " + e.URL
}

// IsBlocked reports whether err is or wraps a BlockedError.
func IsBlocked(err error) bool {
	var be *BlockedError
	return eris.As(err, &be)
}

// DetectBlock checks a response for signs of anti-bot protection.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" ||
			strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf-chl-") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}

	if strings.Contains(lower, "captcha-delivery.com") ||
		strings.Contains(lower, "px-captcha") ||
		strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "hcaptcha") {
		return true, BlockCaptcha
	}

	// Akamai style denial page.
	if resp.StatusCode == http.StatusForbidden &&
		strings.Contains(lower, "access denied") && strings.Contains(lower, "reference #") {
		return true, BlockAccess
	}

	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "enable javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, `meta http-equiv="refresh"`) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
