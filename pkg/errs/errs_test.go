package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrappersKeepSentinels(t *testing.T) {
	cause := errors.New("connection reset")

	err := Unavailable("list dsv/p1/cam1", cause)
	assert.ErrorIs(t, err, ErrArchiveUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "list dsv/p1/cam1")

	err = Encode("batch 2", cause)
	assert.ErrorIs(t, err, ErrEncodeFailure)
	assert.ErrorIs(t, err, cause)

	assert.NoError(t, Unavailable("noop", nil))
	assert.NoError(t, Encode("noop", nil))

	err = Validation("date %q is not YYYYMMDD", "2024-13")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), `"2024-13"`)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, HTTPStatus(nil))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(Validation("bad")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("job %s", "x")))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(fmt.Errorf("weekly: %w", ErrInsufficientFrames)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrJobActive))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(Unavailable("get", errors.New("x"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
