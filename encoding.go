package lnurlpay

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

const (
	humanReadablePart = "lnurl"

	lightningPrefix = "lightning:"
	payScheme       = "lnurlp"
)

var (
	// ErrUnsupportedScheme is returned when the input is neither a bech32
	// LNURL, an lnurlp:// url nor a Lightning Address.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrInsecureURL is returned when a resolved endpoint does not use
	// https and insecure urls are not allowed.
	ErrInsecureURL = errors.New("url is not https")

	// ErrMixedCase is returned for a bech32 LNURL mixing upper and lower
	// case characters.
	ErrMixedCase = errors.New("LNURL mixes upper and lower case")

	// ErrInvalidAddress is returned for a malformed Lightning Address.
	ErrInvalidAddress = errors.New("invalid LN address")
)

// DecodeURL decodes a bech32 encoded LNURL into the url it wraps. LNURLs are
// longer than the 90 characters bech32 normally allows, so the length limit
// is not enforced.
func DecodeURL(lnurl string) (string, error) {
	// Bech32 strings are either all lower or all upper case.
	lower := strings.ToLower(lnurl)
	if lnurl != lower && lnurl != strings.ToUpper(lnurl) {
		return "", ErrMixedCase
	}

	hrp, data, err := bech32.DecodeNoLimit(lower)
	if err != nil {
		return "", err
	}

	if hrp != humanReadablePart {
		return "", fmt.Errorf("incorrect hrp for LNURL. Expected "+
			"'%s', got '%s'", humanReadablePart, hrp)
	}

	data, err = bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// EncodeURL bech32 encodes the given url as an upper case LNURL.
func EncodeURL(url string) (string, error) {
	converted, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", err
	}

	str, err := bech32.Encode(humanReadablePart, converted)
	if err != nil {
		return "", err
	}

	return strings.ToUpper(str), nil
}

// ResolveEndpoint turns user input into the url of the LN SERVICE endpoint
// that serves the pay offer. The input may be a bech32 LNURL (optionally
// prefixed with "lightning:"), an lnurlp:// url or a Lightning Address of the
// form <username>@<domain>. Unless allowInsecure is set, the resulting url
// must use https, with the exception of onion services.
func ResolveEndpoint(input string, allowInsecure bool) (*url.URL, error) {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(strings.ToLower(input), lightningPrefix) {
		input = input[len(lightningPrefix):]
	}

	protocol := "https"
	if allowInsecure {
		protocol = "http"
	}

	var (
		rawURL string
		err    error
	)
	lower := strings.ToLower(input)
	switch {
	case strings.HasPrefix(lower, humanReadablePart+"1"):
		rawURL, err = DecodeURL(input)
		if err != nil {
			return nil, fmt.Errorf("error decoding LNURL: %w", err)
		}

	case strings.HasPrefix(lower, payScheme+"://"):
		rawURL = protocol + input[len(payScheme):]

	case strings.Contains(input, "@"):
		parts := strings.Split(input, "@")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("%w: expected the form "+
				"<username>@<domain>", ErrInvalidAddress)
		}

		username, domain := strings.ToLower(parts[0]), parts[1]
		if err := checkAddress(username, domain); err != nil {
			return nil, err
		}
		if strings.HasSuffix(domain, ".onion") {
			protocol = "http"
		}
		rawURL = fmt.Sprintf("%s://%s/.well-known/lnurlp/%s",
			protocol, domain, username)

	default:
		return nil, ErrUnsupportedScheme
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	// Onion services are reached over plain http.
	if strings.HasPrefix(lower, payScheme+"://") &&
		strings.HasSuffix(u.Hostname(), ".onion") {

		u.Scheme = "http"
	}

	if err := checkScheme(u, allowInsecure); err != nil {
		return nil, err
	}

	return u, nil
}

// checkAddress ensures that the parts of a Lightning Address can be used as
// is in the well-known url.
func checkAddress(username, domain string) error {
	if username == "." || username == ".." {
		return fmt.Errorf("%w: invalid username %q", ErrInvalidAddress,
			username)
	}

	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return fmt.Errorf("%w: username may only contain "+
				"a-z, 0-9, '-', '_' and '.'", ErrInvalidAddress)
		}
	}

	if strings.ContainsAny(domain, "/?#\\") {
		return fmt.Errorf("%w: invalid domain %q", ErrInvalidAddress,
			domain)
	}

	return nil
}

// checkScheme ensures that u is an absolute http(s) url and that plain http is
// only used for onion services or when explicitly allowed.
func checkScheme(u *url.URL, allowInsecure bool) error {
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", u)
	}

	switch u.Scheme {
	case "https":
		return nil

	case "http":
		if allowInsecure || strings.HasSuffix(u.Hostname(), ".onion") {
			return nil
		}
		return ErrInsecureURL

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}
