package detection

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authtail/authtail/internal/domain"
)

func writeRules(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

func TestLoadRulesFile_OrderPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, `
rules:
  - name: FIRST
    pattern: "alpha"
    severity: HIGH
    description: first rule
  - name: SECOND
    pattern: "alpha beta"
    severity: LOW
    description: second rule
`)

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, domain.ThreatType("FIRST"), rules[0].Name)
	assert.Equal(t, domain.ThreatType("SECOND"), rules[1].Name)

	// Both patterns hit this line; declaration order decides.
	matcher := NewSignatureMatcher(rules)
	c := matcher.Match("alpha beta gamma")
	require.True(t, c.Matched)
	assert.Equal(t, domain.ThreatType("FIRST"), c.ThreatType)
	assert.Equal(t, domain.SeverityHigh, c.Severity)
}

func TestLoadRulesFile_SkipsInvalidRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, `
rules:
  - name: BROKEN_PATTERN
    pattern: "["
    severity: HIGH
  - name: ""
    pattern: "nameless"
    severity: HIGH
  - name: BAD_SEVERITY
    pattern: "x"
    severity: EXTREME
  - name: GOOD
    pattern: "valid"
    severity: MEDIUM
    description: still loads
`)

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, domain.ThreatType("GOOD"), rules[0].Name)
}

func TestLoadRulesFile_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRulesFile(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		writeRules(t, path, "rules: [unclosed")
		_, err := LoadRulesFile(path)
		assert.Error(t, err)
	})

	t.Run("no valid rules", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		writeRules(t, path, `
rules:
  - name: BAD
    pattern: "["
    severity: HIGH
`)
		_, err := LoadRulesFile(path)
		assert.Error(t, err)
	})
}

func TestRuleWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, `
rules:
  - name: ONE
    pattern: "one"
    severity: HIGH
`)

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	matcher := NewSignatureMatcher(rules)
	require.Equal(t, 1, matcher.RuleCount())

	watcher, err := NewRuleWatcher(path, matcher)
	require.NoError(t, err)
	defer watcher.Stop()

	writeRules(t, path, `
rules:
  - name: ONE
    pattern: "one"
    severity: HIGH
  - name: TWO
    pattern: "two"
    severity: LOW
`)

	assert.Eventually(t, func() bool {
		return matcher.RuleCount() == 2
	}, 5*time.Second, 50*time.Millisecond, "matcher should pick up the rewritten rule file")
}

func TestRuleWatcher_KeepsRulesOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	writeRules(t, path, `
rules:
  - name: ONE
    pattern: "one"
    severity: HIGH
`)

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	matcher := NewSignatureMatcher(rules)

	watcher, err := NewRuleWatcher(path, matcher)
	require.NoError(t, err)
	defer watcher.Stop()

	writeRules(t, path, "rules: [broken")

	// The debounce plus reload window is 500ms; after it passes the
	// matcher must still hold the last good set.
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, 1, matcher.RuleCount())
	assert.True(t, matcher.Match("one more line").Matched)
}
