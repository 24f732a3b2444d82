package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "+15551234567", want: "+15551234567"},
		{in: "+1 (555) 123-4567", want: "+15551234567"},
		{in: " +55 11 91234-5678 ", want: "+5511912345678"},
		{in: "+44 20 7946 0958", want: "+442079460958"},
		{in: "", wantErr: true},
		{in: "5551234567", wantErr: true},
		{in: "+1 555", wantErr: true},
		{in: "+abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if tt.wantErr {
				requireKind(t, err, KindValidation, FieldPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindValidation, 400},
		{KindVerification, 400},
		{KindNotFound, 404},
		{KindUserNotFound, 404},
		{KindConflict, 409},
		{KindBadCredentials, 401},
		{KindTotpRequired, 401},
		{KindTotpInvalid, 401},
		{KindUnauthorized, 401},
		{KindUnverified, 403},
		{KindAccountInactive, 403},
		{KindInternal, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, HTTPStatus(tt.kind), string(tt.kind))
	}

	err := verificationError(FieldCode)
	assert.ErrorIs(t, err, ErrVerification)
	assert.ErrorIs(t, err, &Error{Kind: KindVerification, Field: FieldCode})
	assert.NotErrorIs(t, err, &Error{Kind: KindVerification, Field: FieldPhone})
	assert.NotErrorIs(t, err, ErrValidation)
}
