package core

import (
	"strings"
	"testing"
)

func TestValidateServiceURL(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		errMsg string
	}{
		{"https space", "https://black-forest-labs-flux-1-dev.hf.space", ""},
		{"http with port", "http://localhost:7860", ""},
		{"with path", "https://example.com/proxy/", ""},
		{"ipv6 host", "http://[2001:db8::1]:7860", ""},
		{"empty", "", "URL is empty"},
		{"missing scheme", "example.com", "scheme must be http or https"},
		{"ftp", "ftp://example.com", "scheme must be http or https"},
		{"missing host", "https://", "missing host"},
		{"unparseable", "http://[::1", "missing ']'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceURL(tt.url)
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("ValidateServiceURL(%q) = %v, want nil", tt.url, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("ValidateServiceURL(%q) = %v, want error containing %q", tt.url, err, tt.errMsg)
			}
		})
	}
}
