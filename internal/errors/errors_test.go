package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/quizgen/internal/errors"
)

func TestConvert(t *testing.T) {
	cause := stderrors.New("session is finished")

	tests := map[string]struct {
		err        error
		wantCode   errors.Code
		wantStatus int
	}{
		"coded error": {
			err:        errors.New(errors.CodeNotFound),
			wantCode:   errors.CodeNotFound,
			wantStatus: http.StatusNotFound,
		},
		"wrapped coded error": {
			err:        fmt.Errorf("load: %w", errors.Wrap(errors.CodeFailedPrecondition, cause)),
			wantCode:   errors.CodeFailedPrecondition,
			wantStatus: http.StatusConflict,
		},
		"unavailable": {
			err:        errors.New(errors.CodeUnavailable),
			wantCode:   errors.CodeUnavailable,
			wantStatus: http.StatusServiceUnavailable,
		},
		"plain error": {
			err:        cause,
			wantCode:   errors.CodeInternal,
			wantStatus: http.StatusInternalServerError,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			e := errors.Convert(tt.err)
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantStatus, e.HTTPStatusCode())
			assert.Equal(t, tt.wantCode, errors.CodeOf(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("answer has the wrong shape")
	e := errors.Wrap(errors.CodeInvalidArgument, cause)

	assert.ErrorIs(t, e, cause)
	assert.Equal(t, "answer has the wrong shape", e.Message)
	assert.Equal(t, codes.InvalidArgument, status.Code(e))
	assert.Equal(t, "InvalidArgument", e.Code.String())
}
