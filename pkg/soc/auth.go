package soc

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// wireTimeLayout is the timestamp format the remote security header expects.
const wireTimeLayout = "2006-01-02T15:04:05Z"

const (
	minTokenWindow = 10 * time.Minute
	maxTokenWindow = 60 * time.Minute
)

// Credentials authenticate remote calls for a principal organization.
type Credentials struct {
	Username string
	Password string

	// TokenWindow is the created/expires freshness window stamped on each
	// request. The remote rejects windows outside 10-60 minutes, so values
	// are clamped into that range. Zero means 30 minutes.
	TokenWindow time.Duration
}

// securityHeader is the XML security block carried on every request.
type securityHeader struct {
	Username       string `xml:"UsernameToken>Username"`
	PasswordDigest string `xml:"UsernameToken>PasswordDigest"`
	Created        string `xml:"UsernameToken>Created"`
	Expires        string `xml:"UsernameToken>Expires"`
}

// buildSecurityHeader stamps a fresh created/expires pair and derives the
// password digest the service expects: hex SHA-256 over
// username + password + created.
func buildSecurityHeader(creds Credentials, now time.Time) securityHeader {
	window := creds.TokenWindow
	if window == 0 {
		window = 30 * time.Minute
	}
	if window < minTokenWindow {
		window = minTokenWindow
	}
	if window > maxTokenWindow {
		window = maxTokenWindow
	}

	created := now.UTC().Format(wireTimeLayout)
	expires := now.UTC().Add(window).Format(wireTimeLayout)

	sum := sha256.Sum256([]byte(creds.Username + creds.Password + created))

	return securityHeader{
		Username:       creds.Username,
		PasswordDigest: hex.EncodeToString(sum[:]),
		Created:        created,
		Expires:        expires,
	}
}
