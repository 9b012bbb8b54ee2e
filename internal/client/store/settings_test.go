package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_AbsentKeyIsEmpty(t *testing.T) {
	s := setupStore(t)

	v, err := s.GetSetting(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestSettings_Upsert(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSetting(ctx, "device_name", "field-unit-3"))
	require.NoError(t, s.SetSetting(ctx, "device_name", "field-unit-4"))

	v, err := s.GetSetting(ctx, "device_name")
	require.NoError(t, err)
	assert.Equal(t, "field-unit-4", v)
}

func TestLastSync_Roundtrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	v, err := s.LastSync(ctx)
	require.NoError(t, err)
	assert.Empty(t, v, "watermark starts unset")

	at := time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC)
	require.NoError(t, s.SetLastSync(ctx, at))

	v, err = s.LastSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-20T10:30:00Z", v)
}
