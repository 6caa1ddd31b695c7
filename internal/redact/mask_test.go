package redact

import "testing"

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"standard email", "john@gmail.com", "j***@gmail.com"},
		{"single char local part", "j@example.com", "j***@example.com"},
		{"empty string", "", ""},
		{"no at sign", "invalidemail", "***"},
		{"empty local part", "@domain.com", "***@domain.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskEmail(tt.input); got != tt.want {
				t.Errorf("MaskEmail(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMaskIdentity(t *testing.T) {
	if got := MaskIdentity("1200000000000"); got != "1200000000000" {
		t.Errorf("numeric id should pass through, got %q", got)
	}
	if got := MaskIdentity("me"); got != "me" {
		t.Errorf("\"me\" should pass through, got %q", got)
	}
	if got := MaskIdentity("ops@corp.io"); got != "o***@corp.io" {
		t.Errorf("email should be masked, got %q", got)
	}
}
