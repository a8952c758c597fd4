package mqtt

import (
	"fmt"
	"strings"
)

const (
	topicSeparator      = "/"
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

// Match reports whether topic matches the subscription pattern.
//
// Rules:
//   - Literal segments must be equal. Matching is case-sensitive.
//   - "+" matches exactly one segment, including an empty one.
//   - "#" (final segment only) matches the remaining segments, including none:
//     "a/#" matches "a", "a/b" and "a/b/c".
//   - Topics starting with "$" are never matched by a pattern whose first
//     segment is a wildcard, so "#" does not match "$SYS/uptime".
//
// A malformed pattern never matches. Match is pure and safe for concurrent use.
func Match(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if pattern == topic {
		return !strings.ContainsAny(pattern, "+#")
	}

	if topic[0] == '$' && (pattern[0] == '+' || pattern[0] == '#') {
		return false
	}

	for {
		pSeg, pRest, pMore := strings.Cut(pattern, topicSeparator)
		tSeg, tRest, tMore := strings.Cut(topic, topicSeparator)

		switch pSeg {
		case multiLevelWildcard:
			return !pMore
		case singleLevelWildcard:
		default:
			if strings.ContainsAny(pSeg, "+#") || pSeg != tSeg {
				return false
			}
		}

		switch {
		case !pMore && !tMore:
			return true
		case !tMore:
			// Topic exhausted; only a trailing "/#" can still match the parent level.
			return pRest == multiLevelWildcard
		case !pMore:
			return false
		}

		pattern, topic = pRest, tRest
	}
}

// ValidatePattern checks a subscription pattern before registration.
//
// Wildcards must occupy a whole segment and "#" must be the last segment.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: pattern is empty", ErrInvalidPattern)
	}
	if strings.ContainsRune(pattern, 0) {
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidPattern, pattern)
	}

	segments := strings.Split(pattern, topicSeparator)
	for i, seg := range segments {
		switch {
		case seg == multiLevelWildcard:
			if i != len(segments)-1 {
				return fmt.Errorf("%w: %q has '#' before the last segment", ErrInvalidPattern, pattern)
			}
		case seg == singleLevelWildcard:
		case strings.ContainsAny(seg, "+#"):
			return fmt.Errorf("%w: %q mixes a wildcard into segment %q", ErrInvalidPattern, pattern, seg)
		}
	}

	return nil
}

// ValidateTopic checks a concrete topic name used for publishing.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidTopic, topic)
	}
	return nil
}
