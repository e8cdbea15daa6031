package event

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// Wire header names.
const (
	HeaderMsgID         = "Msg-Id"
	HeaderAggregateID   = "Aggregate-Id"
	HeaderEventType     = "Event-Type"
	HeaderCorrelationID = "Correlation-Id"
	HeaderCausationID   = "Causation-Id"
	HeaderTimestamp     = "Timestamp"
)

// ValidatePrefix checks a subject prefix is alphanumeric or dashes.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return fmt.Errorf("%w: prefix %q must be alphanumeric or dashes", ErrInvalidSubject, prefix)
	}
	return nil
}

// VariantToken renders a variant name as a subject token:
// DeviceDiscovered becomes device_discovered.
func VariantToken(eventType string) string {
	var b strings.Builder
	for i, r := range eventType {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Subject returns the routing key for e under prefix.
func Subject(prefix string, e Envelope) string {
	return prefix + "." + string(e.Kind()) + "." + VariantToken(e.Type())
}

// MsgID is the dedup token for e: aggregate, variant and nanosecond time.
func MsgID(e Envelope) string {
	return e.AggregateID + ":" + e.Type() + ":" + strconv.FormatInt(e.Timestamp.UnixNano(), 10)
}

// Headers returns the wire headers for e.
func Headers(e Envelope) map[string]string {
	return map[string]string{
		HeaderMsgID:         MsgID(e),
		HeaderAggregateID:   e.AggregateID,
		HeaderEventType:     e.Type(),
		HeaderCorrelationID: e.CorrelationID.String(),
		HeaderCausationID:   e.CausationID.String(),
		HeaderTimestamp:     e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// ValidatePattern checks a subscription pattern: dot-separated non-empty
// tokens, "*" anywhere, ">" only last.
func ValidatePattern(pattern string) error {
	tokens := strings.Split(pattern, ".")
	for i, t := range tokens {
		if t == "" {
			return fmt.Errorf("%w: empty token in %q", ErrInvalidSubject, pattern)
		}
		if t == ">" && i != len(tokens)-1 {
			return fmt.Errorf("%w: '>' must be the last token in %q", ErrInvalidSubject, pattern)
		}
	}
	return nil
}

// MatchSubject reports whether subject matches pattern.
func MatchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}
