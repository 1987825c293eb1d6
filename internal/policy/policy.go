// Package policy implements the MTA-STS (RFC 8461) data model: domain
// normalization, the _mta-sts TXT record grammar, and the policy document
// format served over HTTPS.
package policy

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Mode is the enforcement level a policy document declares.
type Mode string

const (
	ModeEnforce Mode = "enforce"
	ModeTesting Mode = "testing"
	ModeNone    Mode = "none"
)

// Body is a parsed MTA-STS policy document.
type Body struct {
	Mode   Mode
	MaxAge int
	MX     []string
}

// MalformedDNSRecordError reports why a _mta-sts TXT record could not be
// read as a v=STSv1 record.
type MalformedDNSRecordError struct {
	Desc string
}

func (e MalformedDNSRecordError) Error() string {
	return "policy: malformed DNS record: " + e.Desc
}

// MalformedPolicyError reports why a fetched policy document failed to
// parse.
type MalformedPolicyError struct {
	Desc string
}

func (e MalformedPolicyError) Error() string {
	return "policy: malformed policy document: " + e.Desc
}

// tag is one key/value pair out of either grammar this package reads: the
// semicolon-delimited TXT record, or the newline-delimited policy
// document. Only the surrounding whitespace of a whole tag is trimmed here;
// the two callers disagree about whether whitespace inside the key or
// value is meaningful, so each decides that for itself.
type tag struct {
	key, value string
}

// tokenize splits raw on recSep into tags, each split on the first
// occurrence of kvSep. Blank chunks (after trimming) are skipped; a
// non-blank chunk with no kvSep is a hard parse error.
func tokenize(raw string, recSep, kvSep byte) ([]tag, error) {
	var tags []tag
	for _, chunk := range strings.Split(raw, string(recSep)) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		i := strings.IndexByte(chunk, kvSep)
		if i < 0 {
			return nil, fmt.Errorf("tag %q has no %q delimiter", chunk, string(kvSep))
		}
		tags = append(tags, tag{key: chunk[:i], value: chunk[i+1:]})
	}
	return tags, nil
}

// ReadDNSRecord parses the concatenated contents of a _mta-sts.<domain>
// TXT record ("v=STSv1; id=<token>;", tolerant of whitespace) and returns
// the policy id.
func ReadDNSRecord(raw string) (string, error) {
	tags, err := tokenize(raw, ';', '=')
	if err != nil {
		return "", MalformedDNSRecordError{Desc: err.Error()}
	}

	known := make(map[string]string, len(tags))
	for _, t := range tags {
		if strings.ContainsAny(t.key, " \t") || strings.ContainsAny(t.value, " \t") {
			return "", MalformedDNSRecordError{Desc: "embedded whitespace around tag " + strings.TrimSpace(t.key)}
		}
		known[t.key] = t.value
	}

	v, ok := known["v"]
	if !ok {
		return "", MalformedDNSRecordError{Desc: "no v tag present"}
	}
	if v != "STSv1" {
		return "", MalformedDNSRecordError{Desc: "unrecognized version tag " + v}
	}
	id := known["id"]
	if id == "" {
		return "", MalformedDNSRecordError{Desc: "no id tag present"}
	}
	return id, nil
}

// mandatoryPolicyFields lists the fields every policy document must carry,
// regardless of mode.
var mandatoryPolicyFields = []string{"version", "mode", "max_age"}

// ReadBody parses a "key: value" MTA-STS policy document.
func ReadBody(contents io.Reader) (*Body, error) {
	raw, err := io.ReadAll(contents)
	if err != nil {
		return nil, err
	}

	tags, err := tokenize(string(raw), '\n', ':')
	if err != nil {
		return nil, MalformedPolicyError{Desc: err.Error()}
	}

	body := Body{}
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		value := strings.TrimSpace(t.value)
		switch t.key {
		case "version":
			if value != "STSv1" {
				return nil, MalformedPolicyError{Desc: "unsupported policy version: " + value}
			}
		case "mode":
			m := Mode(value)
			if m != ModeEnforce && m != ModeTesting && m != ModeNone {
				return nil, MalformedPolicyError{Desc: "invalid mode value: " + value}
			}
			body.Mode = m
		case "max_age":
			age, err := strconv.Atoi(value)
			if err != nil {
				return nil, MalformedPolicyError{Desc: "max_age is not an integer: " + value}
			}
			body.MaxAge = age
		case "mx":
			body.MX = append(body.MX, value)
		}
		seen[t.key] = true
	}

	for _, field := range mandatoryPolicyFields {
		if !seen[field] {
			return nil, MalformedPolicyError{Desc: field + " field is required"}
		}
	}
	if body.MaxAge <= 0 {
		return nil, MalformedPolicyError{Desc: "max_age must be a positive integer"}
	}
	if body.Mode != ModeNone && len(body.MX) == 0 {
		return nil, MalformedPolicyError{Desc: "mode " + string(body.Mode) + " requires at least one mx field"}
	}

	return &body, nil
}

// NormalizeDomain lowercases, trims whitespace and a single trailing dot
// from a recipient domain. It does not perform IDNA conversion; ASCII-only
// input is assumed, matching what the MTA hands the socketmap protocol.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimSuffix(d, ".")
	return d
}

// IsNonRecipient reports whether domain can never be a valid recipient
// domain for MTA-STS purposes: a parent-domain wildcard lookup key
// (leading '.'), a literal IP address in brackets, or anything containing
// a ':' (IPv6 literal or port).
func IsNonRecipient(domain string) bool {
	if domain == "" {
		return true
	}
	if strings.HasPrefix(domain, ".") || strings.HasPrefix(domain, "[") {
		return true
	}
	return strings.Contains(domain, ":")
}

// StripWildcard removes a single leading "*" from an mx pattern, keeping
// the dot after it ("*.example.com" becomes ".example.com"), as is done
// before it is reported to the MTA in a match= list.
func StripWildcard(mx string) string {
	return strings.TrimPrefix(mx, "*")
}

// Dedup returns mx with duplicate entries removed, preserving first
// occurrence order.
func Dedup(mx []string) []string {
	seen := make(map[string]struct{}, len(mx))
	out := make([]string, 0, len(mx))
	for _, m := range mx {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
