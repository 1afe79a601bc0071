package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Identity
		wantErr bool
	}{
		{"payment", `{"type":"payment_request","data":{"code":"AB12CD34","photo_count":5}}`, Identity{TypePaymentRequest, "AB12CD34"}, false},
		{"bigscreen trims code", `{"type":"bigscreen_request","data":{"code":" AB12CD34 "}}`, Identity{TypeBigScreenRequest, "AB12CD34"}, false},
		{"clear without code", `{"type":"display_clear","data":{}}`, Identity{TypeDisplayClear, ""}, false},
		{"missing code", `{"type":"payment_request","data":{}}`, Identity{}, true},
		{"unknown type", `{"type":"ping","data":{"code":"X"}}`, Identity{}, true},
		{"not json", `hello`, Identity{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.Identity())
		})
	}
}

func TestIdentityString(t *testing.T) {
	assert.Equal(t, "payment_request:AB12CD34", Identity{TypePaymentRequest, "AB12CD34"}.String())
}
