package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSettings struct {
	*memorySettings
	mu    sync.Mutex
	reads int
}

func (v *countingSettings) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	v.mu.Lock()
	v.reads++
	v.mu.Unlock()
	return v.memorySettings.GetSetting(ctx, key, out)
}

func (v *countingSettings) Reads() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.reads
}

func newCachedTestSettings(t *testing.T, values map[string]any) (*CachedSettings, *countingSettings) {
	t.Helper()
	store, err := cache.New()
	require.NoError(t, err)
	backing := &countingSettings{memorySettings: newMemorySettings(values)}
	return NewCachedSettings(backing, store), backing
}

// waitCached keeps reading key until a read no longer reaches the backing store.
func waitCached(t *testing.T, settings *CachedSettings, backing *countingSettings, key string) {
	t.Helper()
	require.Eventually(t, func() bool {
		before := backing.Reads()
		var out any
		_, err := settings.GetSetting(context.Background(), key, &out)
		return err == nil && backing.Reads() == before
	}, time.Second, 10*time.Millisecond)
}

func TestCachedSettingsHit(t *testing.T) {
	settings, backing := newCachedTestSettings(t, map[string]any{SettingMaxFileSize: 12})
	ctx := context.Background()

	waitCached(t, settings, backing, SettingMaxFileSize)

	// Values served from the cache survive the backing store changing underneath.
	backing.values[SettingMaxFileSize] = "99"
	reads := backing.Reads()
	var size int64
	found, err := settings.GetSetting(ctx, SettingMaxFileSize, &size)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(12), size)
	assert.Equal(t, reads, backing.Reads())
}

func TestCachedSettingsRemembersMissingKeys(t *testing.T) {
	settings, backing := newCachedTestSettings(t, nil)

	waitCached(t, settings, backing, SettingScanEnabled)

	var enabled bool
	found, err := settings.GetSetting(context.Background(), SettingScanEnabled, &enabled)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCachedSettingsWriteInvalidates(t *testing.T) {
	settings, backing := newCachedTestSettings(t, map[string]any{SettingMaxFileSize: 12})
	ctx := context.Background()

	waitCached(t, settings, backing, SettingMaxFileSize)
	require.NoError(t, settings.SetSetting(ctx, SettingMaxFileSize, 20))

	var size int64
	found, err := settings.GetSetting(ctx, SettingMaxFileSize, &size)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(20), size)
}

func TestCachedSettingsPolicy(t *testing.T) {
	settings, backing := newCachedTestSettings(t, map[string]any{
		SettingMaxFileSize:      3,
		SettingAllowedFileTypes: []string{"png", "pdf"},
	})

	waitCached(t, settings, backing, SettingAllowedFileTypes)

	policy := LoadUploadPolicy(context.Background(), settings)
	assert.Equal(t, int64(3*1024*1024), policy.MaxFileSizeBytes)
	assert.Equal(t, []string{"png", "pdf"}, policy.AllowedExtensions)
}

func TestCachedSettingsDoesNotCacheErrors(t *testing.T) {
	settings, backing := newCachedTestSettings(t, map[string]any{SettingMaxFileSize: 12})
	backing.err = errors.New("settings table is locked")

	var size int64
	_, err := settings.GetSetting(context.Background(), SettingMaxFileSize, &size)
	assert.Error(t, err)

	backing.err = nil
	found, err := settings.GetSetting(context.Background(), SettingMaxFileSize, &size)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(12), size)
}
