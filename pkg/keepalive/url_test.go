package keepalive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpoint(t *testing.T) {
	tests := []struct {
		serverURL string
		apiPath   string
		want      string
	}{
		{"http://vpn.example.com:5000", "/api/v1", "http://vpn.example.com:5000/api/v1/keepalive"},
		{"http://vpn.example.com:5000/", "/api/v1", "http://vpn.example.com:5000/api/v1/keepalive"},
		{"http://vpn.example.com:5000", "api/v1", "http://vpn.example.com:5000/api/v1/keepalive"},
		{"http://vpn.example.com:5000/", "api/v1/", "http://vpn.example.com:5000/api/v1/keepalive"},
		{"http://vpn.example.com:5000//", "//api//v1", "http://vpn.example.com:5000/api/v1/keepalive"},
		{"https://vpn.example.com", "", "https://vpn.example.com/keepalive"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Endpoint(tt.serverURL, tt.apiPath), "%s + %s", tt.serverURL, tt.apiPath)
	}
}
