package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"site-timelapse/pkg/errs"
)

func TestTagsValidate(t *testing.T) {
	assert.NoError(t, Tags{Owner: "dsv", Collection: "p1", Device: "cam1"}.Validate())
	assert.ErrorIs(t, Tags{Owner: "dsv", Collection: "", Device: "cam1"}.Validate(), errs.ErrValidation)
	assert.ErrorIs(t, Tags{Owner: "dsv", Collection: "p1", Device: "../x"}.Validate(), errs.ErrValidation)
	assert.ErrorIs(t, Tags{Owner: "..", Collection: "p1", Device: "cam1"}.Validate(), errs.ErrValidation)
}

func TestTagsValidateReportsFirstInvalidTag(t *testing.T) {
	for i := 0; i < 20; i++ {
		err := Tags{Owner: "", Collection: "p1", Device: "../x"}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "owner tag is required")

		err = Tags{Owner: "dsv", Collection: "", Device: ""}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "collection tag is required")
	}
}

func TestNormalizeDate(t *testing.T) {
	d, err := NormalizeDate("2024-01-07")
	require.NoError(t, err)
	assert.Equal(t, "20240107", d)

	d, err = NormalizeDate("20240229")
	require.NoError(t, err)
	assert.Equal(t, "20240229", d)

	for _, bad := range []string{"", "2024017", "20230229", "2024-13-01", "abcdefgh"} {
		_, err := NormalizeDate(bad)
		assert.ErrorIs(t, err, errs.ErrValidation, bad)
	}
}

func TestNormalizeRanges(t *testing.T) {
	dr, err := NormalizeDateRange("2024-01-01", "20240107")
	require.NoError(t, err)
	assert.Equal(t, DateRange{Start: "20240101", End: "20240107"}, dr)

	_, err = NormalizeDateRange("20240108", "20240101")
	assert.ErrorIs(t, err, errs.ErrValidation)

	hr, err := NormalizeHourRange("8", "18")
	require.NoError(t, err)
	assert.Equal(t, HourRange{Start: "08", End: "18"}, hr)

	hr, err = NormalizeHourRange("", "")
	require.NoError(t, err)
	assert.Equal(t, HourRange{Start: "00", End: "23"}, hr)

	_, err = NormalizeHourRange("19", "08")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = NormalizeHourRange("24", "")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestNormalizeTimePrefix(t *testing.T) {
	p, err := NormalizeTimePrefix("")
	require.NoError(t, err)
	assert.Equal(t, "120000", p)

	p, err = NormalizeTimePrefix("9")
	require.NoError(t, err)
	assert.Equal(t, "09", p)

	p, err = NormalizeTimePrefix("1230")
	require.NoError(t, err)
	assert.Equal(t, "1230", p)

	_, err = NormalizeTimePrefix("12:30")
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = NormalizeTimePrefix("1234567")
	assert.ErrorIs(t, err, errs.ErrValidation)
}
