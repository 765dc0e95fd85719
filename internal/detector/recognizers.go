package detector

import "regexp"

// SpanMatch is a candidate PII span proposed by a Recognizer, before context
// scoring and overlap resolution.
type SpanMatch struct {
	PIIType    string
	Start      int
	End        int
	Confidence float64
}

// Recognizer proposes candidate PII spans in a page's text. Recognizers
// never see more than one page at a time and must not retain state between
// calls — spec.md §9's "registry of values implementing a common
// capability {name, analyze(text) → [SpanMatch]}".
type Recognizer interface {
	Name() string
	Analyze(text string) []SpanMatch
}

// patternRecognizer is a regex-driven Recognizer, optionally gated by a
// checksum/structural validator run against the matched digits.
type patternRecognizer struct {
	name       string
	piiType    string
	re         *regexp.Regexp
	confidence float64
	validate   func(match string) bool
}

func (p *patternRecognizer) Name() string { return p.name }

func (p *patternRecognizer) Analyze(text string) []SpanMatch {
	locs := p.re.FindAllStringIndex(text, -1)
	if locs == nil {
		return nil
	}
	out := make([]SpanMatch, 0, len(locs))
	for _, loc := range locs {
		if p.validate != nil && !p.validate(text[loc[0]:loc[1]]) {
			continue
		}
		out = append(out, SpanMatch{PIIType: p.piiType, Start: loc[0], End: loc[1], Confidence: p.confidence})
	}
	return out
}

func newPattern(name, piiType, pattern string, confidence float64, validate func(string) bool) *patternRecognizer {
	return &patternRecognizer{
		name:       name,
		piiType:    piiType,
		re:         regexp.MustCompile(pattern),
		confidence: confidence,
		validate:   validate,
	}
}

// structuralRecognizers returns the fixed set of regex + checksum
// recognizers named in spec.md §4.3, grounded on the patterns and base
// confidences used by the Python original's custom Presidio recognizers
// (recognizers/government_id.py, financial_pii.py, digital_pii.py,
// medical_pii.py, legal_pii.py).
func structuralRecognizers() []Recognizer {
	return []Recognizer{
		newPattern("ssn_dashes", "US_SSN", `\b(?:[0-8]\d{2}|7[0-6]\d)-\d{2}-\d{4}\b`, 0.85, ssnGroupSerialValid),
		newPattern("ssn_keyword", "US_SSN", `(?i)(?:SSN|social security)[\s:]*\d{3}\d{2}\d{4}\b`, 0.8, nil),

		newPattern("itin", "US_ITIN", `\b9\d{2}-(?:7\d|8[0-8])-\d{4}\b`, 0.85, nil),

		newPattern("credit_card", "CREDIT_CARD", `\b(?:\d[ -]?){13,19}\b`, 0.75, digitsValidate(luhnValid)),

		newPattern("bank_account_keyword", "US_BANK_NUMBER", `(?i)(?:bank |checking |savings |deposit )?(?:account|acct)[\s#:.]*\d{8,17}\b`, 0.75, nil),

		newPattern("passport", "US_PASSPORT", `(?i)passport(?:\s+(?:number|no\.?))?[\s#:]*\d{9}\b`, 0.85, nil),

		newPattern("drivers_license", "US_DRIVER_LICENSE", `(?i)(?:driver'?s?\s*license|D\.?L\.?)[\s#:]*[A-Z]?\d{6,14}\b`, 0.75, nil),

		newPattern("phone", "PHONE_NUMBER", `\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`, 0.75, nil),

		newPattern("email", "EMAIL_ADDRESS", `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, 0.9, nil),

		newPattern("ipv4", "IP_ADDRESS", `\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`, 0.7, nil),

		newPattern("url", "URL", `\bhttps?://[^\s<>"]+`, 0.7, nil),

		newPattern("date_time", "DATE_TIME", `\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`, 0.55, nil),

		newPattern("mac_colon", "MAC_ADDRESS", `\b[0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5}\b`, 0.8, nil),
		newPattern("mac_dash", "MAC_ADDRESS", `\b[0-9A-Fa-f]{2}(?:-[0-9A-Fa-f]{2}){5}\b`, 0.8, nil),

		newPattern("imei_keyword", "DEVICE_ID", `(?i)IMEI[\s#:.]*\d{15}\b`, 0.9, nil),
		newPattern("imei_bare", "DEVICE_ID", `\b\d{15}\b`, 0.3, digitsValidate(luhnValid)),
		newPattern("device_serial", "DEVICE_ID", `(?i)(?:serial\s+(?:number|no\.?)|S/?N|device\s+(?:ID|identifier)|MEID|ESN)[\s#:.]*[A-Z0-9]{6,20}\b`, 0.75, nil),

		newPattern("routing_number", "ROUTING_NUMBER", `\b\d{9}\b`, 0.5, digitsValidate(abaCheckValid)),

		newPattern("case_number_dashed", "CASE_NUMBER", `\b\d{2,4}-(?:CV|CR|CIV|CRIM|MC|MJ|JV|DR|PR|AP|BK)-\d{4,8}\b`, 0.85, nil),
		newPattern("case_no_prefix", "CASE_NUMBER", `(?i)\b(?:Case|Docket|Cause)\s+No\.?\s*[:\s]?\s*\d{2,4}[-\s]?\d{3,8}\b`, 0.9, nil),

		newPattern("mrn_keyword", "MEDICAL_RECORD", `(?i)MRN[\s#:.]*\d{5,12}\b`, 0.9, nil),
		newPattern("medical_record_no", "MEDICAL_RECORD", `(?i)(?:medical|health)\s+record[\s#:.]*(?:number|no\.?)?[\s#:.]*\d{5,12}\b`, 0.85, nil),
		newPattern("patient_id", "MEDICAL_RECORD", `(?i)patient\s+(?:ID|identifier|number|no\.?)[\s#:.]*\d{5,12}\b`, 0.85, nil),
	}
}

// ssnGroupSerialValid rejects SSN-shaped matches whose group (positions 4-5)
// is "00" or whose serial (last 4 digits) is "0000" — the two exclusions
// that the dashed SSN pattern would otherwise express as negative lookahead,
// which Go's RE2-based regexp engine does not support.
func ssnGroupSerialValid(match string) bool {
	digits := onlyDigits(match)
	if len(digits) != 9 {
		return false
	}
	return digits[3:5] != "00" && digits[5:9] != "0000"
}

// digitsValidate adapts a digit-string validator (Luhn, ABA) to run against
// a matched substring that may contain separators.
func digitsValidate(check func(string) bool) func(string) bool {
	return func(match string) bool {
		return check(onlyDigits(match))
	}
}
