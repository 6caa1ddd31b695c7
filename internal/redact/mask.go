package redact

import "strings"

// MaskEmail hides all but the first character of the local part, for log
// lines that mention task assignees or followers: "jane@corp.io" becomes
// "j***@corp.io". Values without an "@" are masked entirely.
func MaskEmail(s string) string {
	if s == "" {
		return ""
	}
	local, domain, ok := strings.Cut(s, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}

// MaskIdentity masks s when it looks like an email and returns it unchanged
// otherwise (numeric tracker ids, "me").
func MaskIdentity(s string) string {
	if strings.Contains(s, "@") {
		return MaskEmail(s)
	}
	return s
}
