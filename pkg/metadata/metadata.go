// Package metadata validates and normalizes the free-form metadata attached
// to frames. Metadata is descriptive only: it never contributes to a frame's
// identity and is never read for integrity decisions.
//
// Only derived references are accepted. Keys that name raw payloads (prompt,
// completion, content, ...) are rejected outright, and values for keys with a
// recognized suffix must have the matching shape: "_digest" values are
// hex-encoded SHA-256 digests, "_id" values are short printable identifiers,
// "_url" values are URLs and "_at" values are RFC 3339 timestamps.
package metadata

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultMaxKeys       = 32
	DefaultMaxValueBytes = 512
)

// DefaultForbiddenKeys name raw payloads that must not be copied into
// metadata. A key is forbidden if it equals one of these or starts with one
// followed by '_' and has no recognized reference suffix.
var DefaultForbiddenKeys = []string{
	"body", "completion", "content", "input", "messages",
	"output", "payload", "prompt", "raw", "response", "text",
}

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,63}$`)

// suffixRules maps reference suffixes to validator tags for their values.
var suffixRules = []struct {
	suffix string
	tag    string
}{
	{"_digest", "hexadecimal,len=64"},
	{"_id", "printascii,min=1,max=128"},
	{"_url", "url,max=2048"},
	{"_at", "datetime=2006-01-02T15:04:05Z07:00"},
}

// Config tunes a Validator.
type Config struct {
	MaxKeys       int `toml:"max_keys" mapstructure:"max_keys"`
	MaxValueBytes int `toml:"max_value_bytes" mapstructure:"max_value_bytes"`

	// Strict accepts only keys with a reference suffix or listed in Allowed.
	Strict bool `toml:"strict" mapstructure:"strict"`

	Allowed   []string `toml:"allowed,omitempty" mapstructure:"allowed"`
	Forbidden []string `toml:"forbidden,omitempty" mapstructure:"forbidden"`
}

// PolicyError reports metadata rejected by policy.
type PolicyError struct {
	Key    string
	Reason string
}

func (e PolicyError) Error() string {
	if e.Key == "" {
		return "metadata rejected: " + e.Reason
	}
	return fmt.Sprintf("metadata key %q rejected: %s", e.Key, e.Reason)
}

// IsPolicyError reports whether err is, or wraps, a PolicyError.
func IsPolicyError(err error) bool {
	var pe PolicyError
	return errors.As(err, &pe)
}

// Validator applies a Config to metadata maps. It is safe for concurrent use.
type Validator struct {
	cfg       Config
	forbidden []string
	validate  *validator.Validate
}

// New creates a Validator, filling zero limits with defaults.
func New(cfg Config) *Validator {
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultMaxKeys
	}
	if cfg.MaxValueBytes <= 0 {
		cfg.MaxValueBytes = DefaultMaxValueBytes
	}
	forbidden := cfg.Forbidden
	if forbidden == nil {
		forbidden = DefaultForbiddenKeys
	}
	return &Validator{
		cfg:       cfg,
		forbidden: slices.Sorted(slices.Values(forbidden)),
		validate:  validator.New(),
	}
}

// Validate checks md and returns a normalized copy: keys are trimmed and
// lower-cased, values are trimmed. An empty or nil map yields nil.
func (v *Validator) Validate(md map[string]string) (map[string]string, error) {
	if len(md) == 0 {
		return nil, nil
	}
	if len(md) > v.cfg.MaxKeys {
		return nil, PolicyError{Reason: fmt.Sprintf("%d keys exceeds the limit of %d", len(md), v.cfg.MaxKeys)}
	}

	out := make(map[string]string, len(md))
	for _, raw := range slices.Sorted(maps.Keys(md)) {
		key := strings.ToLower(strings.TrimSpace(raw))
		value := strings.TrimSpace(md[raw])

		if _, dup := out[key]; dup {
			return nil, PolicyError{Key: key, Reason: "duplicate key after normalization"}
		}
		if err := v.checkKey(key); err != nil {
			return nil, err
		}
		if err := v.checkValue(key, value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, nil
}

func (v *Validator) checkKey(key string) error {
	if !keyPattern.MatchString(key) {
		return PolicyError{Key: key, Reason: "key must match " + keyPattern.String()}
	}

	rule := ruleFor(key)
	if rule == "" {
		for _, f := range v.forbidden {
			if key == f || strings.HasPrefix(key, f+"_") || strings.HasPrefix(key, f+".") {
				return PolicyError{Key: key, Reason: "raw payloads are not accepted; store a digest or link instead"}
			}
		}
	}

	if v.cfg.Strict && rule == "" && !slices.Contains(v.cfg.Allowed, key) {
		return PolicyError{Key: key, Reason: "strict policy accepts only reference keys"}
	}
	return nil
}

func (v *Validator) checkValue(key, value string) error {
	if value == "" {
		return PolicyError{Key: key, Reason: "empty value"}
	}
	if len(value) > v.cfg.MaxValueBytes {
		return PolicyError{Key: key, Reason: fmt.Sprintf("value of %d bytes exceeds the limit of %d", len(value), v.cfg.MaxValueBytes)}
	}
	if !utf8.ValidString(value) {
		return PolicyError{Key: key, Reason: "value is not valid UTF-8"}
	}
	if strings.ContainsAny(value, "\n\r") {
		return PolicyError{Key: key, Reason: "multi-line values are not accepted"}
	}

	tag := ruleFor(key)
	if tag == "" {
		return nil
	}
	if err := v.validate.Var(value, tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return PolicyError{Key: key, Reason: fmt.Sprintf("value fails %q", verrs[0].ActualTag())}
		}
		return PolicyError{Key: key, Reason: err.Error()}
	}
	return nil
}

func ruleFor(key string) string {
	for _, r := range suffixRules {
		if strings.HasSuffix(key, r.suffix) && len(key) > len(r.suffix) {
			return r.tag
		}
	}
	return ""
}
