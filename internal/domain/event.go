package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxLineLength = 8192

// UnknownIP is reported when no source address can be extracted from a line.
const UnknownIP = "Unknown"

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

type ThreatType string

const (
	ThreatTypeBruteForce       ThreatType = "BRUTE_FORCE"
	ThreatTypeInvalidUser      ThreatType = "INVALID_USER"
	ThreatTypeRootLogin        ThreatType = "ROOT_LOGIN"
	ThreatTypeLoginSuccess     ThreatType = "LOGIN_SUCCESS"
	ThreatTypeSessionOpened    ThreatType = "SESSION_OPENED"
	ThreatTypeSessionClosed    ThreatType = "SESSION_CLOSED"
	ThreatTypeSudoUsage        ThreatType = "SUDO_USAGE"
	ThreatTypeConnectionClosed ThreatType = "CONNECTION_CLOSED"
)

// RawLine is one newline-delimited unit of text observed from a live source.
// It exists only between the line source and the matcher and is never stored.
type RawLine struct {
	Text       string
	ReceivedAt time.Time
}

// Classification is the result of matching one raw line against the
// signature rules. The zero value means "no rule matched".
type Classification struct {
	Matched     bool
	ThreatType  ThreatType
	Severity    Severity
	Description string
	SourceIP    string
	Username    string
}

// NoMatch classifies an unmatched line: plain INFO, no threat type.
func NoMatch(sourceIP, username string) Classification {
	return Classification{
		Severity: SeverityInfo,
		SourceIP: sourceIP,
		Username: username,
	}
}

// Event is the canonical, immutable record for one classified log line.
// Field names on the wire match what live viewers consume.
type Event struct {
	ID          string     `json:"id"`
	Message     string     `json:"message"`
	Source      string     `json:"source"`
	IP          string     `json:"ip"`
	User        string     `json:"user,omitempty"`
	Severity    Severity   `json:"severity,omitempty"`
	Threat      ThreatType `json:"threat,omitempty"`
	Description string     `json:"description,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// NewEvent builds an event from a classified line. The timestamp is capture
// time, not whatever timestamp the line itself claims; upstream clock skew
// must not leak into trend data.
func NewEvent(message, source string, c Classification) *Event {
	ip := c.SourceIP
	if ip == "" {
		ip = UnknownIP
	}
	e := &Event{
		ID:        uuid.NewString(),
		Message:   strings.TrimSpace(message),
		Source:    source,
		IP:        ip,
		User:      c.Username,
		Severity:  c.Severity,
		Timestamp: time.Now().UTC(),
	}
	if c.Matched {
		e.Threat = c.ThreatType
		e.Description = c.Description
	}
	return e
}

// NewIngestedEvent wraps an externally submitted line without classifying
// it. The payload is trusted as-is; only the id and timestamp are fresh.
func NewIngestedEvent(message, source, ip string) *Event {
	if source == "" {
		source = UnknownIP
	}
	if ip == "" {
		ip = UnknownIP
	}
	return &Event{
		ID:        uuid.NewString(),
		Message:   message,
		Source:    source,
		IP:        ip,
		Timestamp: time.Now().UTC(),
	}
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
