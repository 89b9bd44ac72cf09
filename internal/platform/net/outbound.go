// SPDX-License-Identifier: MIT

// Package net validates outbound request targets. Every worker that talks
// to the open internet (the metadata API clients and the tracker scraper)
// is pinned to its provider's host: a request URL is normalized, resolved,
// and checked against the worker's policy before a connection is dialed.
// DNS answers pointing into loopback or link-local space are refused unless
// the address range is explicitly allowlisted, which local stub servers in
// tests rely on.
package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

var (
	// ErrOutboundDisabled indicates outbound HTTP(S) access is disabled by policy.
	ErrOutboundDisabled = errors.New("outbound http(s) disabled")
	// ErrOutboundNotAllowed indicates the URL did not match the allowlist.
	ErrOutboundNotAllowed = errors.New("outbound url not allowed")
)

// OutboundAllowlist narrows the URL components a client may reach.
type OutboundAllowlist struct {
	Hosts   []string
	CIDRs   []string
	Ports   []int
	Schemes []string
}

// OutboundPolicy is the outbound access policy of one client.
type OutboundPolicy struct {
	Enabled bool
	Allow   OutboundAllowlist
}

// PolicyForBase builds the policy that pins a client to the scheme, host,
// and port of its configured base URL. When the host is an IP literal the
// address is also CIDR-allowlisted so loopback stub servers validate.
func PolicyForBase(baseURL string) (OutboundPolicy, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return OutboundPolicy{}, fmt.Errorf("invalid base url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return OutboundPolicy{}, fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return OutboundPolicy{}, fmt.Errorf("base url missing host")
	}
	if u.User != nil {
		return OutboundPolicy{}, fmt.Errorf("base url must not carry userinfo")
	}
	port, err := urlPort(u, scheme)
	if err != nil {
		return OutboundPolicy{}, err
	}
	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return OutboundPolicy{}, err
	}
	allow := OutboundAllowlist{
		Hosts:   []string{host},
		Ports:   []int{port},
		Schemes: []string{scheme},
	}
	if net.ParseIP(host) != nil {
		allow.CIDRs = []string{host}
	}
	return OutboundPolicy{Enabled: true, Allow: allow}, nil
}

// NormalizeHost validates and normalizes a host for comparison.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.Contains(host, "://") {
		return "", fmt.Errorf("host must not include scheme: %s", raw)
	}
	if strings.Contains(host, "/") {
		return "", fmt.Errorf("host must not include path: %s", raw)
	}
	if strings.Contains(host, "@") {
		return "", fmt.Errorf("host must not include userinfo: %s", raw)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include zone: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// ValidateOutboundURL verifies a URL against the outbound policy and
// returns a normalized URL string. The host is resolved and every address
// checked, so a provider hostname that suddenly resolves into blocked
// space fails closed.
func ValidateOutboundURL(ctx context.Context, raw string, policy OutboundPolicy) (string, error) {
	if !policy.Enabled {
		return "", ErrOutboundDisabled
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("outbound url empty")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("missing url scheme")
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing url host")
	}
	if u.User != nil {
		return "", fmt.Errorf("userinfo not allowed")
	}
	if u.Fragment != "" {
		return "", fmt.Errorf("fragments not allowed")
	}

	scheme := strings.ToLower(u.Scheme)
	if !policy.Allow.allowsScheme(scheme) {
		return "", fmt.Errorf("scheme %q not allowed", scheme)
	}

	port, err := urlPort(u, scheme)
	if err != nil {
		return "", err
	}
	if !policy.Allow.allowsPort(port) {
		return "", fmt.Errorf("port %d not allowed", port)
	}

	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return "", err
	}

	allowedHosts, err := policy.Allow.normalizedHosts()
	if err != nil {
		return "", err
	}
	allowedCIDRs, err := policy.Allow.cidrNets()
	if err != nil {
		return "", err
	}

	ips, err := resolveHostIPs(ctx, host)
	if err != nil {
		return "", err
	}

	_, hostAllowed := allowedHosts[host]
	ipAllowed := false
	for _, ip := range ips {
		if isBlockedIP(ip) && !ipInCIDRs(ip, allowedCIDRs) {
			return "", fmt.Errorf("blocked ip %s", ip.String())
		}
		if ipInCIDRs(ip, allowedCIDRs) {
			ipAllowed = true
		}
	}

	if !hostAllowed && !ipAllowed {
		return "", ErrOutboundNotAllowed
	}

	u.Host = joinHostPort(host, u.Port())
	return u.String(), nil
}

func (a OutboundAllowlist) allowsScheme(scheme string) bool {
	for _, s := range a.Schemes {
		if strings.EqualFold(strings.TrimSpace(s), scheme) {
			return true
		}
	}
	return false
}

func (a OutboundAllowlist) allowsPort(port int) bool {
	for _, p := range a.Ports {
		if p == port {
			return true
		}
	}
	return false
}

func (a OutboundAllowlist) normalizedHosts() (map[string]struct{}, error) {
	allow := make(map[string]struct{})
	for _, host := range a.Hosts {
		normalized, err := NormalizeHost(host)
		if err != nil {
			return nil, err
		}
		allow[normalized] = struct{}{}
	}
	return allow, nil
}

// cidrNets parses the CIDR allowlist; bare IPs become single-address nets.
func (a OutboundAllowlist) cidrNets() ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, entry := range a.CIDRs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ip, ipnet, err := net.ParseCIDR(entry)
		if err == nil {
			ipnet.IP = ip
			nets = append(nets, ipnet)
			continue
		}
		ip = net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid CIDR or IP: %s", entry)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{
			IP:   ip,
			Mask: net.CIDRMask(bits, bits),
		})
	}
	return nets, nil
}

func urlPort(u *url.URL, scheme string) (int, error) {
	if u.Port() == "" {
		switch scheme {
		case "http":
			return 80, nil
		case "https":
			return 443, nil
		default:
			return 0, fmt.Errorf("unknown scheme %q", scheme)
		}
	}
	portStr := u.Port()
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return port, nil
}

func resolveHostIPs(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve host %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve host %q: no addresses", host)
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		if addr.IP != nil {
			ips = append(ips, addr.IP)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("resolve host %q: no valid addresses", host)
	}
	return ips, nil
}

func isBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	return ip.IsLoopback() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast()
}

func ipInCIDRs(ip net.IP, cidrs []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range cidrs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func joinHostPort(host, port string) string {
	if port == "" {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}
