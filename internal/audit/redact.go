// Package audit implements the Audit Logger (spec §2 component 11, §4.11):
// per-request hashing, PII redaction, envelope-encrypted snapshotting, and
// the ResponseAudit record. Grounded on the teacher's internal/audit
// middleware pattern (hash + structured record, no raw content retained).
package audit

import "regexp"

// PatternName enumerates the fixed, versioned PII pattern set (spec
// §4.11). Only the matched names are ever retained — never the raw match.
type PatternName string

const (
	PatternSSN                PatternName = "ssn"
	PatternCardNumber         PatternName = "card_number"
	PatternEmail              PatternName = "email"
	PatternPhone              PatternName = "phone"
	PatternIPv4               PatternName = "ipv4"
	PatternDOB                PatternName = "date_of_birth"
	PatternBankAccountContext PatternName = "bank_account_with_context"
	PatternRoutingContext     PatternName = "routing_number_with_context"
)

// pattern pairs a PatternName with the regexp that detects it. Redact
// applies the patterns in slice order, each to the output of the previous
// one, so text already replaced by an earlier pattern is not matched again
// by a later one.
type pattern struct {
	name PatternName
	re   *regexp.Regexp
}

var patterns = []pattern{
	{PatternSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{PatternCardNumber, regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
	{PatternEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{PatternPhone, regexp.MustCompile(`\b(?:\+?1[ -]?)?\(?\d{3}\)?[ -]?\d{3}[ -]?\d{4}\b`)},
	{PatternIPv4, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)},
	{PatternDOB, regexp.MustCompile(`\b(?:19|20)\d{2}[-/](?:0[1-9]|1[0-2])[-/](?:0[1-9]|[12]\d|3[01])\b`)},
	{PatternBankAccountContext, regexp.MustCompile(`(?i)\baccount\s*(?:number|#|no\.?)?\s*[:#]?\s*\d{6,17}\b`)},
	{PatternRoutingContext, regexp.MustCompile(`(?i)\brouting\s*(?:number|#|no\.?)?\s*[:#]?\s*\d{9}\b`)},
}

const redactionToken = "[REDACTED]"

// Redact replaces every matched pattern occurrence with a fixed token and
// returns the redacted text plus the set of pattern names that matched.
// Redact(Redact(x)) == Redact(x): the token itself matches none of the
// patterns above, so a second pass is a no-op (spec §8 testable property
// 10, PII redaction idempotence).
func Redact(text string) (string, []PatternName) {
	matched := make(map[PatternName]bool)
	out := text
	for _, p := range patterns {
		if p.re.MatchString(out) {
			matched[p.name] = true
			out = p.re.ReplaceAllString(out, redactionToken)
		}
	}
	names := make([]PatternName, 0, len(matched))
	for _, p := range patterns {
		if matched[p.name] {
			names = append(names, p.name)
		}
	}
	return out, names
}
