package types_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

func TestReasonCodes(t *testing.T) {
	for _, r := range types.ReasonCodes {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, types.ReasonCode("MAYBE").Valid())

	assert.False(t, types.ReasonOK.IsPolicyDenial())
	assert.False(t, types.ReasonSystemError.IsPolicyDenial())
	assert.True(t, types.ReasonNoBalance.IsPolicyDenial())
	assert.True(t, types.ReasonDuplicateCheckIn.IsPolicyDenial())
}

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code      types.ErrorCode
		status    int
		retryable bool
	}{
		{types.ErrCodeValidationExternalKey, http.StatusBadRequest, false},
		{types.ErrCodeValidationUnknownKiosk, http.StatusBadRequest, false},
		{types.ErrCodeNotFoundMember, http.StatusNotFound, false},
		{types.ErrCodeUpstreamUnavailable, http.StatusServiceUnavailable, true},
		{types.ErrCodeUpstreamTimeout, http.StatusServiceUnavailable, true},
		{types.ErrCodeInternalUnexpected, http.StatusInternalServerError, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.status, tc.code.HTTPStatus())
			assert.Equal(t, tc.retryable, tc.code.Retryable())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := types.NewAppError(types.ErrCodeUpstreamUnavailable, "could not validate access", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus())
	assert.Contains(t, err.Error(), "upstream_store_unavailable")
	assert.Contains(t, err.Error(), "connection refused")
}
