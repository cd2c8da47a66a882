// Package sanitize masks personal data before it reaches logs. Chat users
// type names, emails and phone numbers into free text, so anything derived
// from a message passes through here first.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	phonePattern  = regexp.MustCompile(`\+?\d[\d\s().-]{6,}\d`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[\w.-]+`)
)

// Text masks every email address, phone number and bearer token in s.
func Text(s string) string {
	s = emailPattern.ReplaceAllStringFunc(s, maskEmail)
	s = phonePattern.ReplaceAllStringFunc(s, maskPhone)
	return bearerPattern.ReplaceAllString(s, "Bearer [REDACTED]")
}

// MaskContact masks a value collected at the contact step, which may be an
// email, a phone number or anything else the user typed.
func MaskContact(contact string) string {
	contact = strings.TrimSpace(contact)
	switch {
	case emailPattern.MatchString(contact):
		return emailPattern.ReplaceAllStringFunc(contact, maskEmail)
	case phonePattern.MatchString(contact):
		return phonePattern.ReplaceAllStringFunc(contact, maskPhone)
	default:
		return PartialMask(contact, 2, 0)
	}
}

// Preview masks s and cuts it to at most n runes for log fields.
func Preview(s string, n int) string {
	s = Text(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}

// APIKey masks an API key, keeping its first and last four characters.
func APIKey(key string) string {
	if len(key) <= 8 {
		return "[REDACTED]"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// PartialMask masks the middle of s, keeping keepStart and keepEnd bytes.
func PartialMask(s string, keepStart, keepEnd int) string {
	if len(s) <= keepStart+keepEnd {
		return strings.Repeat("*", len(s))
	}
	return s[:keepStart] + strings.Repeat("*", len(s)-keepStart-keepEnd) + s[len(s)-keepEnd:]
}

func maskPhone(phone string) string {
	if len(phone) <= 5 {
		return "****"
	}
	return phone[:3] + strings.Repeat("*", len(phone)-5) + phone[len(phone)-2:]
}

func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "[email]"
	}
	if at <= 2 {
		return email[:1] + "***" + email[at:]
	}
	return email[:2] + "***" + email[at:]
}
