package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateOutboundURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		opts    OutboundURLOptions
		wantErr bool
	}{
		{"anthropic", "https://api.anthropic.com", OutboundURLOptions{}, false},
		{"telegram", "https://api.telegram.org/bot123:abc", OutboundURLOptions{}, false},
		{"http rejected", "http://api.telegram.org", OutboundURLOptions{}, true},
		{"http allowed", "http://api.telegram.org", OutboundURLOptions{AllowHTTP: true}, false},
		{"ftp", "ftp://example.com", OutboundURLOptions{AllowHTTP: true}, true},
		{"no host", "https:///path", OutboundURLOptions{}, true},
		{"localhost", "https://localhost:8080", OutboundURLOptions{}, true},
		{"loopback ip", "http://127.0.0.1:9000", OutboundURLOptions{AllowHTTP: true}, true},
		{"loopback allowed", "http://127.0.0.1:9000", OutboundURLOptions{AllowHTTP: true, AllowLocalNetworks: true}, false},
		{"private ip", "https://10.0.0.5", OutboundURLOptions{}, true},
		{"unspecified always rejected", "https://0.0.0.0", OutboundURLOptions{AllowLocalNetworks: true}, true},
		{"zoned ipv6", "https://[fe80::1%25eth0]/", OutboundURLOptions{}, true},
		{"zoned ipv6 local allowed", "https://[fe80::1%25eth0]/", OutboundURLOptions{AllowLocalNetworks: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutboundURL(tt.url, tt.opts)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDisallowedURL)
				return
			}
			assert.NoError(t, err)
		})
	}
}
