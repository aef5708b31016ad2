package detection

import (
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/authtail/authtail/internal/domain"
)

// RuleFile is the on-disk shape of a custom rule set. List order is the
// evaluation order.
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

type RuleSpec struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Severity    string `yaml:"severity"`
	Description string `yaml:"description"`
}

func (s RuleSpec) compile() (Rule, error) {
	if s.Name == "" {
		return Rule{}, fmt.Errorf("rule has no name")
	}
	if !domain.Severity(s.Severity).Valid() {
		return Rule{}, fmt.Errorf("rule %s: unknown severity %q", s.Name, s.Severity)
	}
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", s.Name, err)
	}
	return Rule{
		Name:        domain.ThreatType(s.Name),
		Pattern:     re,
		Severity:    domain.Severity(s.Severity),
		Description: s.Description,
	}, nil
}

// LoadRulesFile parses an ordered YAML rule list. Invalid rules are skipped
// with a warning so one bad pattern does not take the whole set down; an
// empty result is an error because the matcher must never run ruleless.
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var file RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	rules := make([]Rule, 0, len(file.Rules))
	for _, spec := range file.Rules {
		rule, err := spec.compile()
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("Invalid rule skipped")
			continue
		}
		rules = append(rules, rule)
	}

	if len(rules) == 0 {
		return nil, fmt.Errorf("rules file %s contains no valid rules", path)
	}

	log.Info().Int("rules", len(rules)).Str("file", path).Msg("Signature rules loaded")
	return rules, nil
}

// RuleWatcher hot-reloads a rule file into a matcher on file change.
type RuleWatcher struct {
	path     string
	matcher  *SignatureMatcher
	debounce time.Duration

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewRuleWatcher(path string, matcher *SignatureMatcher) (*RuleWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create rules watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch rules file: %w", err)
	}

	rw := &RuleWatcher{
		path:     path,
		matcher:  matcher,
		debounce: 500 * time.Millisecond,
		watcher:  w,
		stopChan: make(chan struct{}),
	}
	go rw.run()

	log.Info().Str("file", path).Msg("Rule hot-reload watching started")
	return rw, nil
}

func (rw *RuleWatcher) run() {
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-rw.stopChan:
			return
		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Editors fire several events per save; collapse them.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(rw.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Rules watcher error")
		case <-reload:
			rules, err := LoadRulesFile(rw.path)
			if err != nil {
				log.Error().Err(err).Msg("Rule reload failed, keeping current rules")
				continue
			}
			rw.matcher.ReplaceRules(rules)
			log.Info().Int("rules", len(rules)).Msg("Signature rules reloaded")
		}
	}
}

func (rw *RuleWatcher) Stop() {
	rw.stopOnce.Do(func() {
		close(rw.stopChan)
		rw.watcher.Close()
	})
}
