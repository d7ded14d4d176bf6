package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bannerdesk/banner-service/internal/apperr"
)

type sample struct {
	Title  string `json:"title" validate:"required"`
	Status string `json:"status" validate:"image_status"`
	Temp   string `json:"temperatureRange" validate:"omitempty,temperature_range"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(sample{Title: "ok", Status: "approved"}))

	err := Struct(sample{Status: "published", Temp: "hot"})
	require.Error(t, err)

	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Equal(t, "required", appErr.Details["title"])
	assert.Equal(t, "image_status", appErr.Details["status"])
	assert.Equal(t, "temperature_range", appErr.Details["temperatureRange"])
}
