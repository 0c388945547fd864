// Package email provides address parsing helpers shared by the envelope
// decoder and the tenant resolver.
package email

import (
	"net/mail"
	"strings"
)

// NormalizeAddress extracts the bare address from a header value such as
// "Dana Ortiz <dana@client.example>" and lowercases it. Malformed values fall
// back to a trimmed, lowercased copy of the input so the caller can still log
// something recognizable.
func NormalizeAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if addr, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(raw)
}

// SplitAddress returns the local part and domain of an address. The second
// return is empty when the address has no "@".
func SplitAddress(addr string) (local, domain string) {
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return addr, ""
	}
	return addr[:at], addr[at+1:]
}

// ProjectTag extracts a plus-addressed project tag from a recipient address,
// e.g. "acme+proj-1a2b3c4d@mail.example" yields "PROJ-1A2B3C4D". Returns ""
// when the local part carries no tag.
func ProjectTag(addr string) string {
	local, _ := SplitAddress(NormalizeAddress(addr))
	plus := strings.IndexByte(local, '+')
	if plus < 0 || plus == len(local)-1 {
		return ""
	}
	return strings.ToUpper(local[plus+1:])
}

// StripTag removes a plus-address tag so "acme+proj-1@x.example" and
// "acme@x.example" resolve to the same mailbox.
func StripTag(addr string) string {
	addr = NormalizeAddress(addr)
	local, domain := SplitAddress(addr)
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}
	if domain == "" {
		return local
	}
	return local + "@" + domain
}

// Subdomain returns the first label of the address domain, used for
// subdomain-pattern tenant matching ("acme" from "intake@acme.mail.example").
func Subdomain(addr string) string {
	_, domain := SplitAddress(NormalizeAddress(addr))
	if domain == "" {
		return ""
	}
	if dot := strings.IndexByte(domain, '.'); dot > 0 {
		return domain[:dot]
	}
	return domain
}
