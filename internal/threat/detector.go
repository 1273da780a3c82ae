// Package threat matches inbound requests against attack signatures.
// Matches are monitoring signals; nothing here rejects a request.
package threat

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jonboulle/clockwork"
)

type signature struct {
	pattern string
	re      *regexp.Regexp
}

type category struct {
	name       models.ThreatCategory
	signatures []signature
}

func compile(name models.ThreatCategory, patterns ...string) category {
	c := category{name: name}
	for _, p := range patterns {
		c.signatures = append(c.signatures, signature{
			pattern: p,
			re:      regexp.MustCompile(`(?i)` + p),
		})
	}
	return c
}

// Signatures are evaluated in order; the first match per category wins.
var categories = []category{
	compile(models.ThreatSQLInjection,
		`(%27)|(')|(--)|(%23)|(#)`,
		`((%3D)|(=))[^\n]*((%27)|(')|(--)|(%23)|(#))`,
		`union.*select`,
		`exec(\s|\+)+(s|x)p\w+`,
	),
	compile(models.ThreatCrossSiteScript,
		`<script[^>]*>`,
		`javascript:`,
		`on\w+\s*=`,
		`<iframe[^>]*>`,
	),
	compile(models.ThreatPathTraversal,
		`\.\.[\\/]`,
		`\.\.%2f`,
		`%2e%2e%2f`,
	),
}

var hostileAgents = []string{
	"sqlmap", "nikto", "nmap", "masscan", "burp", "owasp",
	"dirbuster", "gobuster", "wfuzz", "hydra",
}

// ForwardingHeaders are the client-supplied address headers checked for
// injected markup.
var ForwardingHeaders = []string{"X-Forwarded-For", "X-Real-IP", "Client-IP"}

var headerInjection = []string{"<", ">", `"`, "'", "script", "javascript"}

// Detector scans requests. It holds no per-request state and is safe for
// concurrent use.
type Detector struct {
	clock clockwork.Clock
}

func NewDetector(clock clockwork.Clock) *Detector {
	return &Detector{clock: clock}
}

// Scan checks the request path and raw query, plus their percent-decoded
// forms, and returns at most one event per category.
func (d *Detector) Scan(target, query, sourceIdentity string) []models.ThreatEvent {
	inputs := candidates(target, query)

	var events []models.ThreatEvent
	for _, c := range categories {
		if sig, ok := c.match(inputs); ok {
			events = append(events, d.event(c.name, sig.pattern, target, query, sourceIdentity))
		}
	}
	return events
}

// ScanUserAgent flags known attack tooling. It returns nil for ordinary clients.
func (d *Detector) ScanUserAgent(userAgent, sourceIdentity string) *models.ThreatEvent {
	ua := strings.ToLower(userAgent)
	for _, agent := range hostileAgents {
		if strings.Contains(ua, agent) {
			ev := d.event(models.ThreatHostileClient, agent, userAgent, "", sourceIdentity)
			return &ev
		}
	}
	return nil
}

// ScanForwardingHeaders flags markup or quotes in address headers, which no
// proxy would produce.
func (d *Detector) ScanForwardingHeaders(h http.Header, sourceIdentity string) *models.ThreatEvent {
	for _, name := range ForwardingHeaders {
		value := strings.ToLower(h.Get(name))
		if value == "" {
			continue
		}
		for _, marker := range headerInjection {
			if strings.Contains(value, marker) {
				ev := d.event(models.ThreatSuspiciousHeader, marker, name+": "+h.Get(name), "", sourceIdentity)
				return &ev
			}
		}
	}
	return nil
}

func (c category) match(inputs []string) (signature, bool) {
	for _, sig := range c.signatures {
		for _, in := range inputs {
			if sig.re.MatchString(in) {
				return sig, true
			}
		}
	}
	return signature{}, false
}

func (d *Detector) event(name models.ThreatCategory, pattern, target, query, source string) models.ThreatEvent {
	if query != "" {
		target = target + "?" + query
	}
	return models.ThreatEvent{
		Timestamp:      d.clock.Now(),
		Category:       name,
		SourceIdentity: source,
		MatchedPattern: pattern,
		RequestTarget:  target,
	}
}

// candidates returns the non-empty raw and decoded forms of target and query.
func candidates(target, query string) []string {
	out := make([]string, 0, 4)
	add := func(s string) {
		if s == "" {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	add(target)
	if decoded, err := url.PathUnescape(target); err == nil {
		add(decoded)
	}
	add(query)
	if decoded, err := url.QueryUnescape(query); err == nil {
		add(decoded)
	}
	return out
}
