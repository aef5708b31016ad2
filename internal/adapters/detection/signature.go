package detection

import (
	"regexp"
	"sync/atomic"

	"github.com/authtail/authtail/internal/domain"
)

// Rule is one named signature: a pattern plus the severity it implies.
// Rules are evaluated in declaration order and the first match wins, so
// more specific or more severe patterns must be declared earlier (root
// login before generic successful login).
type Rule struct {
	Name        domain.ThreatType
	Pattern     *regexp.Regexp
	Severity    domain.Severity
	Description string
}

// DefaultRules returns the built-in ordered rule set for sshd auth logs.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        domain.ThreatTypeBruteForce,
			Pattern:     regexp.MustCompile(`(?i)Failed password|Failed publickey|authentication failure.*rhost=`),
			Severity:    domain.SeverityHigh,
			Description: "Failed login attempt detected",
		},
		{
			Name:        domain.ThreatTypeInvalidUser,
			Pattern:     regexp.MustCompile(`(?i)Invalid user|user unknown`),
			Severity:    domain.SeverityHigh,
			Description: "Login attempt with unknown user",
		},
		{
			Name:        domain.ThreatTypeRootLogin,
			Pattern:     regexp.MustCompile(`(?i)Accepted.*for root|session opened.*root`),
			Severity:    domain.SeverityCritical,
			Description: "Root user logged in",
		},
		{
			Name:        domain.ThreatTypeLoginSuccess,
			Pattern:     regexp.MustCompile(`(?i)Accepted password|Accepted publickey`),
			Severity:    domain.SeverityInfo,
			Description: "Successful login",
		},
		{
			Name:        domain.ThreatTypeSessionOpened,
			Pattern:     regexp.MustCompile(`(?i)session opened|New session`),
			Severity:    domain.SeverityInfo,
			Description: "Session opened",
		},
		{
			Name:        domain.ThreatTypeSessionClosed,
			Pattern:     regexp.MustCompile(`(?i)session closed|Removed session|logged out`),
			Severity:    domain.SeverityInfo,
			Description: "Session closed",
		},
		{
			Name:        domain.ThreatTypeSudoUsage,
			Pattern:     regexp.MustCompile(`(?i)sudo:.*COMMAND=`),
			Severity:    domain.SeverityMedium,
			Description: "Sudo command executed",
		},
		{
			Name:        domain.ThreatTypeConnectionClosed,
			Pattern:     regexp.MustCompile(`(?i)Connection closed|Disconnected from`),
			Severity:    domain.SeverityInfo,
			Description: "Connection closed",
		},
	}
}

var (
	ipPattern   = regexp.MustCompile(`from\s+(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})|rhost=(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)
	userPattern = regexp.MustCompile(`for\s+(\w+)|user[=\s]+(\w+)|USER=(\w+)`)
)

// SignatureMatcher classifies raw lines against an ordered rule list.
// The rule slice is swapped atomically so a hot reload never races a
// concurrent Match.
type SignatureMatcher struct {
	rules atomic.Pointer[[]Rule]
}

func NewSignatureMatcher(rules []Rule) *SignatureMatcher {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	m := &SignatureMatcher{}
	m.rules.Store(&rules)
	return m
}

// Match evaluates the rules in order and stops at the first hit. Address
// and username extraction run regardless of which rule matched.
func (m *SignatureMatcher) Match(line string) domain.Classification {
	ip := ExtractIP(line)
	user := extractUser(line)

	for _, rule := range *m.rules.Load() {
		if rule.Pattern.MatchString(line) {
			return domain.Classification{
				Matched:     true,
				ThreatType:  rule.Name,
				Severity:    rule.Severity,
				Description: rule.Description,
				SourceIP:    ip,
				Username:    user,
			}
		}
	}

	return domain.NoMatch(ip, user)
}

// ReplaceRules swaps in a new ordered rule set.
func (m *SignatureMatcher) ReplaceRules(rules []Rule) {
	if len(rules) == 0 {
		return
	}
	m.rules.Store(&rules)
}

func (m *SignatureMatcher) RuleCount() int {
	return len(*m.rules.Load())
}

// ExtractIP pulls the source address following a "from" token or inside a
// "rhost=" field. The first successful extraction wins; lines with neither
// report the unknown sentinel.
func ExtractIP(line string) string {
	groups := ipPattern.FindStringSubmatch(line)
	if groups == nil {
		return domain.UnknownIP
	}
	if groups[1] != "" {
		return groups[1]
	}
	return groups[2]
}

func extractUser(line string) string {
	groups := userPattern.FindStringSubmatch(line)
	if groups == nil {
		return ""
	}
	for _, g := range groups[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}
