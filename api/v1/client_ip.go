package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Reverse-proxy headers carrying the client address, most trusted first.
var forwardingHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

// clientIP returns the public address the request came from, or "" when only
// private or malformed addresses are available.
func clientIP(c *fiber.Ctx) string {
	for _, header := range forwardingHeaders {
		if value := c.Get(header); value != "" {
			if addr, ok := preferredAddr(strings.Split(value, ",")); ok {
				return addr.String()
			}
		}
	}

	if forwarded := c.Get("Forwarded"); forwarded != "" {
		if addr, ok := preferredAddr(forwardedFor(forwarded)); ok {
			return addr.String()
		}
	}

	if addr, ok := preferredAddr([]string{c.Context().RemoteAddr().String(), c.IP()}); ok {
		return addr.String()
	}
	return ""
}

// preferredAddr returns the first public IPv4 address of values, falling back
// to the first public IPv6 one.
func preferredAddr(values []string) (netip.Addr, bool) {
	var v6 netip.Addr
	for _, raw := range values {
		addr, ok := parseAddr(raw)
		if !ok || !isPublic(addr) {
			continue
		}
		if addr.Is4() {
			return addr, true
		}
		if !v6.IsValid() {
			v6 = addr
		}
	}
	return v6, v6.IsValid()
}

// parseAddr accepts bare, quoted, bracketed, zoned and host:port forms.
func parseAddr(raw string) (netip.Addr, bool) {
	clean := strings.Trim(strings.TrimSpace(raw), `"`)
	if clean == "" {
		return netip.Addr{}, false
	}

	if addrPort, err := netip.ParseAddrPort(clean); err == nil {
		return addrPort.Addr().Unmap().WithZone(""), true
	}

	clean = strings.TrimSuffix(strings.TrimPrefix(clean, "["), "]")
	if percent := strings.IndexByte(clean, '%'); percent != -1 {
		clean = clean[:percent]
	}

	addr, err := netip.ParseAddr(clean)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

func isPublic(addr netip.Addr) bool {
	return !(addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsUnspecified())
}

// forwardedFor extracts the for= values of an RFC 7239 Forwarded header.
func forwardedFor(header string) []string {
	var candidates []string
	for _, entry := range strings.Split(header, ",") {
		for _, part := range strings.Split(entry, ";") {
			part = strings.TrimSpace(part)
			if len(part) > 4 && strings.EqualFold(part[:4], "for=") {
				candidates = append(candidates, part[4:])
			}
		}
	}
	return candidates
}

// etag returns a strong ETag for content.
func etag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}
