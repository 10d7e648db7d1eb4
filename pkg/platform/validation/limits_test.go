package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "gatekeeper/pkg/domain-errors"
)

func TestCheckStringLength(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		max     int
		wantErr bool
	}{
		{"empty", "", MaxNameLength, false},
		{"at the limit", strings.Repeat("a", MaxMessageLength), MaxMessageLength, false},
		{"one over", strings.Repeat("a", MaxEmailLength+1), MaxEmailLength, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckStringLength("field", tt.value, tt.max)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), "field exceeds max length")
		})
	}
}
