// Copyright 2025 Dynamo Works
// SPDX-License-Identifier: Apache-2.0

// Package scanner detects secrets and PII in prompt text before it leaves
// the engine. Detection runs two ordered passes: high-severity credential
// patterns first, then medium-severity heuristics. A medium finding whose
// range overlaps a high-severity match is discarded.
package scanner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// FindingType identifies the kind of sensitive data detected
type FindingType string

const (
	TypeAWSAccessKey     FindingType = "aws_access_key"
	TypeAWSSecretKey     FindingType = "aws_secret_key"
	TypeAPIToken         FindingType = "api_token"
	TypeGitHubToken      FindingType = "github_token"
	TypeSlackToken       FindingType = "slack_token"
	TypeBearerToken      FindingType = "bearer_token"
	TypeSSN              FindingType = "ssn"
	TypeCreditCard       FindingType = "credit_card"
	TypePrivateKey       FindingType = "private_key"
	TypeDatabaseURL      FindingType = "database_url"
	TypeConnectionString FindingType = "connection_string"
	TypeBulkEmail        FindingType = "bulk_email"
	TypeInternalIP       FindingType = "internal_ip"
)

// Severity is the risk level of a finding
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Finding is a single scanner hit. RedactedValue never contains more than
// four characters of the original match.
type Finding struct {
	Type          FindingType `json:"type"`
	Severity      Severity    `json:"severity"`
	RedactedValue string      `json:"redactedValue"`
	Index         int         `json:"index"`
}

// Result is the outcome of scanning one text
type Result struct {
	HasHighSeverity   bool      `json:"hasHighSeverity"`
	HasMediumSeverity bool      `json:"hasMediumSeverity"`
	Findings          []Finding `json:"findings"`
}

// pattern is one compiled detection rule. Validator may be nil; when set it
// receives the matched value and the text before the match and can reject
// false positives.
type pattern struct {
	Type      FindingType
	Severity  Severity
	Regexp    *regexp.Regexp
	Validator func(value, before string) bool
}

const connSchemes = `postgres|postgresql|mongodb|mongo|mysql|redis|amqp`

var highPatterns = []pattern{
	{
		Type:     TypeAWSAccessKey,
		Severity: SeverityHigh,
		Regexp:   regexp.MustCompile(`\bAKIA[A-Z0-9]{16}\b`),
	},
	{
		Type:      TypeAWSSecretKey,
		Severity:  SeverityHigh,
		Regexp:    regexp.MustCompile(`\b[A-Za-z0-9/+=]{40}\b`),
		Validator: validateAWSSecretContext,
	},
	{
		Type:     TypeAPIToken,
		Severity: SeverityHigh,
		Regexp:   regexp.MustCompile(`\bsk-[A-Za-z0-9_\-]{17,}`),
	},
	{
		Type:     TypeGitHubToken,
		Severity: SeverityHigh,
		Regexp:   regexp.MustCompile(`\bghp_[A-Za-z0-9]{36}\b`),
	},
	{
		Type:     TypeSlackToken,
		Severity: SeverityHigh,
		Regexp:   regexp.MustCompile(`\bxox[bp]-[A-Za-z0-9\-]{10,}`),
	},
	{
		Type:     TypeBearerToken,
		Severity: SeverityHigh,
		Regexp:   regexp.MustCompile(`Bearer\s+[A-Za-z0-9_\-.=]{20,}`),
	},
	{
		Type:      TypeSSN,
		Severity:  SeverityHigh,
		Regexp:    regexp.MustCompile(`\b(\d{3})-(\d{2})-(\d{4})\b`),
		Validator: validateSSNValue,
	},
	{
		Type:      TypeCreditCard,
		Severity:  SeverityHigh,
		Regexp:    regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`),
		Validator: validateLuhnValue,
	},
	{
		Type:     TypePrivateKey,
		Severity: SeverityHigh,
		Regexp:   regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
	},
	{
		Type:     TypeDatabaseURL,
		Severity: SeverityHigh,
		Regexp:   regexp.MustCompile(`(?i)\b(?:` + connSchemes + `)://[^\s:@/]+:[^\s@]+@[^\s]+`),
	},
}

var mediumPatterns = []pattern{
	{
		Type:     TypeConnectionString,
		Severity: SeverityMedium,
		Regexp:   regexp.MustCompile(`(?i)\b(?:` + connSchemes + `)://[^\s]+`),
	},
	{
		Type:     TypeInternalIP,
		Severity: SeverityMedium,
		Regexp:   regexp.MustCompile(`\b(?:10\.\d{1,3}\.\d{1,3}\.\d{1,3}|172\.(?:1[6-9]|2\d|3[01])\.\d{1,3}\.\d{1,3}|192\.168\.\d{1,3}\.\d{1,3})\b`),
	},
}

var emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

// bulkEmailThreshold is the number of distinct addresses that turns a text
// into a bulk-email finding
const bulkEmailThreshold = 11

// ScanText scans text for sensitive data. The function is pure: fresh match
// state is allocated per call, so concurrent scans never share a cursor.
func ScanText(text string) Result {
	result := Result{}

	// Pass 1: high-severity credential patterns. Ranges are recorded so the
	// medium pass can suppress overlapping hits.
	var highRanges [][2]int
	for _, p := range highPatterns {
		for _, loc := range p.Regexp.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			if p.Validator != nil && !p.Validator(value, text[:loc[0]]) {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				Type:          p.Type,
				Severity:      SeverityHigh,
				RedactedValue: Redact(value),
				Index:         loc[0],
			})
			highRanges = append(highRanges, [2]int{loc[0], loc[1]})
			result.HasHighSeverity = true
		}
	}

	// Pass 2: medium-severity heuristics
	for _, p := range mediumPatterns {
		for _, loc := range p.Regexp.FindAllStringIndex(text, -1) {
			if overlapsAny(loc[0], loc[1], highRanges) {
				continue
			}
			value := text[loc[0]:loc[1]]
			if p.Validator != nil && !p.Validator(value, text[:loc[0]]) {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				Type:          p.Type,
				Severity:      SeverityMedium,
				RedactedValue: Redact(value),
				Index:         loc[0],
			})
			result.HasMediumSeverity = true
		}
	}

	// Bulk-email heuristic: one finding when the text carries a mailing list
	if f, ok := detectBulkEmail(text, highRanges); ok {
		result.Findings = append(result.Findings, f)
		result.HasMediumSeverity = true
	}

	return result
}

func detectBulkEmail(text string, highRanges [][2]int) (Finding, bool) {
	locs := emailPattern.FindAllStringIndex(text, -1)
	if len(locs) < bulkEmailThreshold {
		return Finding{}, false
	}

	distinct := make(map[string]struct{})
	firstIndex := -1
	firstValue := ""
	for _, loc := range locs {
		addr := strings.ToLower(text[loc[0]:loc[1]])
		if _, seen := distinct[addr]; seen {
			continue
		}
		distinct[addr] = struct{}{}
		if firstIndex < 0 {
			firstIndex = loc[0]
			firstValue = text[loc[0]:loc[1]]
		}
	}
	if len(distinct) < bulkEmailThreshold {
		return Finding{}, false
	}
	if overlapsAny(firstIndex, firstIndex+len(firstValue), highRanges) {
		return Finding{}, false
	}

	return Finding{
		Type:          TypeBulkEmail,
		Severity:      SeverityMedium,
		RedactedValue: Redact(firstValue),
		Index:         firstIndex,
	}, true
}

func overlapsAny(start, end int, ranges [][2]int) bool {
	for _, r := range ranges {
		if start < r[1] && end > r[0] {
			return true
		}
	}
	return false
}

// Redact returns at most four leading characters of value followed by a
// mask. Values of four characters or fewer keep only the first character.
func Redact(value string) string {
	if value == "" {
		return "****"
	}
	if len(value) <= 4 {
		return value[:1] + "****"
	}
	return value[:4] + "****"
}

// validateAWSSecretContext requires an AWS-ish context word near a
// 40-character base64 candidate; bare base64 blobs are too common to flag
func validateAWSSecretContext(value, before string) bool {
	window := before
	if len(window) > 60 {
		window = window[len(window)-60:]
	}
	window = strings.ToLower(window)
	return strings.Contains(window, "aws") ||
		strings.Contains(window, "secret") ||
		strings.Contains(window, "credential")
}

// validateSSNValue applies the SSA area-number rules: area 000, 666, and
// 900+ were never issued; group 00 and serial 0000 are invalid
func validateSSNValue(value, _ string) bool {
	digits := strings.NewReplacer("-", "", " ", "").Replace(value)
	if len(digits) != 9 {
		return false
	}

	area := digits[0:3]
	group := digits[3:5]
	serial := digits[5:9]

	if area == "000" || area == "666" || area >= "900" {
		return false
	}
	if group == "00" {
		return false
	}
	if serial == "0000" {
		return false
	}
	return true
}

// validateLuhnValue runs the Luhn checksum over the card digits
func validateLuhnValue(value, _ string) bool {
	digits := strings.NewReplacer("-", "", " ", "").Replace(value)
	if len(digits) != 16 {
		return false
	}

	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// typeLabels are the human-readable names used in block messages. Values
// never appear there, only labels.
var typeLabels = map[FindingType]string{
	TypeAWSAccessKey:     "AWS Access Key",
	TypeAWSSecretKey:     "AWS Secret Key",
	TypeAPIToken:         "API Token",
	TypeGitHubToken:      "GitHub Personal Access Token",
	TypeSlackToken:       "Slack Token",
	TypeBearerToken:      "Bearer Token",
	TypeSSN:              "Social Security Number",
	TypeCreditCard:       "Credit Card Number",
	TypePrivateKey:       "Private Key",
	TypeDatabaseURL:      "Database URL with Credentials",
	TypeConnectionString: "Connection String",
	TypeBulkEmail:        "Bulk Email Addresses",
	TypeInternalIP:       "Internal IP Address",
}

// Label returns the display label for a finding type
func Label(t FindingType) string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

// BlockMessage formats the client-facing message for a blocked request.
// Only high-severity findings are named; duplicate types coalesce.
func BlockMessage(result Result) string {
	seen := make(map[FindingType]struct{})
	var labels []string
	for _, f := range result.Findings {
		if f.Severity != SeverityHigh {
			continue
		}
		if _, ok := seen[f.Type]; ok {
			continue
		}
		seen[f.Type] = struct{}{}
		labels = append(labels, Label(f.Type))
	}
	sort.Strings(labels)

	return fmt.Sprintf(
		"Request blocked: sensitive data detected (%s). Remove the sensitive values and try again.",
		strings.Join(labels, ", "))
}
