package detection

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authtail/authtail/internal/domain"
)

func TestSignatureMatcher_Classification(t *testing.T) {
	matcher := NewSignatureMatcher(nil)

	tests := []struct {
		name         string
		line         string
		wantMatch    bool
		wantThreat   domain.ThreatType
		wantSeverity domain.Severity
	}{
		{
			name:         "failed password",
			line:         "Failed password for admin from 203.0.113.7 port 49812 ssh2",
			wantMatch:    true,
			wantThreat:   domain.ThreatTypeBruteForce,
			wantSeverity: domain.SeverityHigh,
		},
		{
			name:         "pam authentication failure",
			line:         "pam_unix(sshd:auth): authentication failure; logname= uid=0 euid=0 tty=ssh ruser= rhost=198.51.100.3",
			wantMatch:    true,
			wantThreat:   domain.ThreatTypeBruteForce,
			wantSeverity: domain.SeverityHigh,
		},
		{
			name:         "invalid user",
			line:         "Invalid user oracle from 203.0.113.7 port 55100",
			wantMatch:    true,
			wantThreat:   domain.ThreatTypeInvalidUser,
			wantSeverity: domain.SeverityHigh,
		},
		{
			name:         "root login accepted",
			line:         "Accepted password for root from 10.0.0.5 port 22 ssh2",
			wantMatch:    true,
			wantThreat:   domain.ThreatTypeRootLogin,
			wantSeverity: domain.SeverityCritical,
		},
		{
			name:         "regular login accepted",
			line:         "Accepted publickey for deploy from 10.0.0.6 port 50242 ssh2",
			wantMatch:    true,
			wantThreat:   domain.ThreatTypeLoginSuccess,
			wantSeverity: domain.SeverityInfo,
		},
		{
			name:         "session opened",
			line:         "pam_unix(sshd:session): session opened for user deploy by (uid=0)",
			wantMatch:    true,
			wantThreat:   domain.ThreatTypeSessionOpened,
			wantSeverity: domain.SeverityInfo,
		},
		{
			name:         "session closed",
			line:         "pam_unix(sshd:session): session closed for user deploy",
			wantMatch:    true,
			wantThreat:   domain.ThreatTypeSessionClosed,
			wantSeverity: domain.SeverityInfo,
		},
		{
			name:         "sudo command",
			line:         "sudo: deploy : TTY=pts/0 ; PWD=/home/deploy ; USER=root ; COMMAND=/usr/bin/systemctl restart nginx",
			wantMatch:    true,
			wantThreat:   domain.ThreatTypeSudoUsage,
			wantSeverity: domain.SeverityMedium,
		},
		{
			name:         "connection closed",
			line:         "Connection closed by 203.0.113.7 port 49812 [preauth]",
			wantMatch:    true,
			wantThreat:   domain.ThreatTypeConnectionClosed,
			wantSeverity: domain.SeverityInfo,
		},
		{
			name:         "unrelated line",
			line:         "CRON[1234]: (root) CMD (command -v debian-sa1 > /dev/null)",
			wantMatch:    false,
			wantSeverity: domain.SeverityInfo,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := matcher.Match(tc.line)

			assert.Equal(t, tc.wantMatch, c.Matched)
			assert.Equal(t, tc.wantSeverity, c.Severity)
			if tc.wantMatch {
				assert.Equal(t, tc.wantThreat, c.ThreatType)
				assert.NotEmpty(t, c.Description)
			} else {
				assert.Empty(t, c.ThreatType)
			}
		})
	}
}

// Root-specific rules sit before the generic ones, so a root login must
// never come back as a plain LOGIN_SUCCESS or SESSION_OPENED.
func TestSignatureMatcher_FirstMatchWins(t *testing.T) {
	matcher := NewSignatureMatcher(nil)

	tests := []struct {
		name string
		line string
		want domain.ThreatType
	}{
		{
			name: "root accepted beats login success",
			line: "Accepted password for root from 10.0.0.5 port 22 ssh2",
			want: domain.ThreatTypeRootLogin,
		},
		{
			name: "root session beats session opened",
			line: "pam_unix(sshd:session): session opened for user root by (uid=0)",
			want: domain.ThreatTypeRootLogin,
		},
		{
			name: "failed password for invalid user beats invalid user",
			line: "Failed password for invalid user oracle from 203.0.113.7 port 55100 ssh2",
			want: domain.ThreatTypeBruteForce,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := matcher.Match(tc.line)
			require.True(t, c.Matched)
			assert.Equal(t, tc.want, c.ThreatType)
		})
	}
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "from token",
			line: "Failed password for root from 10.1.2.3 port 22 ssh2",
			want: "10.1.2.3",
		},
		{
			name: "rhost field",
			line: "authentication failure; logname= uid=0 tty=ssh ruser= rhost=198.51.100.3",
			want: "198.51.100.3",
		},
		{
			name: "from wins over rhost",
			line: "Failed password from 10.1.2.3 rhost=198.51.100.3",
			want: "10.1.2.3",
		},
		{
			name: "no address",
			line: "session closed for user deploy",
			want: domain.UnknownIP,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractIP(tc.line))
		})
	}
}

func TestExtractUser(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{
			name: "for token",
			line: "Failed password for admin from 203.0.113.7 port 49812 ssh2",
			want: "admin",
		},
		{
			name: "user token",
			line: "session opened for user deploy by (uid=0)",
			want: "user",
		},
		{
			name: "no user",
			line: "Connection closed by 203.0.113.7 port 49812 [preauth]",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractUser(tc.line))
		})
	}
}

func TestSignatureMatcher_ReplaceRules(t *testing.T) {
	matcher := NewSignatureMatcher(nil)
	require.Equal(t, len(DefaultRules()), matcher.RuleCount())

	custom := []Rule{
		{
			Name:     domain.ThreatType("CUSTOM"),
			Pattern:  regexp.MustCompile(`special marker`),
			Severity: domain.SeverityLow,
		},
	}
	matcher.ReplaceRules(custom)

	assert.Equal(t, 1, matcher.RuleCount())
	assert.True(t, matcher.Match("a special marker appeared").Matched)
	assert.False(t, matcher.Match("Failed password for root from 10.0.0.1").Matched)

	// An empty replacement must not leave the matcher ruleless.
	matcher.ReplaceRules(nil)
	assert.Equal(t, 1, matcher.RuleCount())
}
