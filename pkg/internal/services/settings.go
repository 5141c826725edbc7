package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/eko/gocache/lib/v4/store"
	jsoniter "github.com/json-iterator/go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsReader interface {
	// GetSetting decodes the value stored under key into out. It reports
	// false without an error when the key was never set.
	GetSetting(ctx context.Context, key string, out any) (bool, error)
}

type SettingsWriter interface {
	SetSetting(ctx context.Context, key string, value any) error
}

type SettingsStore interface {
	SettingsReader
	SettingsWriter
}

type cachedSetting struct {
	Found bool   `json:"found"`
	Raw   string `json:"raw"`
}

func GetSettingCacheKey(key string) any {
	return fmt.Sprintf("setting#%s", key)
}

// DatabaseSettings is the settings store backed by the settings table.
type DatabaseSettings struct {
	db *gorm.DB
}

func NewDatabaseSettings(db *gorm.DB) *DatabaseSettings {
	return &DatabaseSettings{db: db}
}

func (v *DatabaseSettings) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	var setting models.Setting
	if err := v.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := jsoniter.Unmarshal(setting.Value, out); err != nil {
		return false, fmt.Errorf("malformed setting %s: %v", key, err)
	}
	return true, nil
}

func (v *DatabaseSettings) SetSetting(ctx context.Context, key string, value any) error {
	raw, err := jsoniter.Marshal(value)
	if err != nil {
		return fmt.Errorf("unable to encode setting %s: %v", key, err)
	}

	setting := models.Setting{Key: key, Value: raw}
	if err := v.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error; err != nil {
		return fmt.Errorf("unable to save setting %s: %v", key, err)
	}
	return nil
}

// CachedSettings keeps lookups of another settings store for five minutes,
// including lookups of keys that were never set. Writes go through and drop
// the cached entry.
type CachedSettings struct {
	next  SettingsStore
	cache store.StoreInterface
}

func NewCachedSettings(next SettingsStore, cacheStore store.StoreInterface) *CachedSettings {
	return &CachedSettings{next: next, cache: cacheStore}
}

func (v *CachedSettings) marshal() *marshaler.Marshaler {
	return marshaler.New(cache.New[any](v.cache))
}

func (v *CachedSettings) GetSetting(ctx context.Context, key string, out any) (bool, error) {
	item, err := v.lookup(ctx, key)
	if err != nil {
		return false, err
	} else if !item.Found {
		return false, nil
	}

	if err := jsoniter.UnmarshalFromString(item.Raw, out); err != nil {
		return false, fmt.Errorf("malformed setting %s: %v", key, err)
	}
	return true, nil
}

func (v *CachedSettings) SetSetting(ctx context.Context, key string, value any) error {
	if err := v.next.SetSetting(ctx, key, value); err != nil {
		return err
	}
	if v.cache != nil {
		_ = v.marshal().Delete(ctx, GetSettingCacheKey(key))
	}
	return nil
}

func (v *CachedSettings) lookup(ctx context.Context, key string) (cachedSetting, error) {
	if v.cache != nil {
		if val, err := v.marshal().Get(ctx, GetSettingCacheKey(key), new(cachedSetting)); err == nil {
			return *val.(*cachedSetting), nil
		}
	}

	var raw jsoniter.RawMessage
	found, err := v.next.GetSetting(ctx, key, &raw)
	if err != nil {
		return cachedSetting{}, err
	}
	item := cachedSetting{Found: found, Raw: string(raw)}

	if v.cache != nil {
		_ = v.marshal().Set(
			ctx,
			GetSettingCacheKey(key),
			item,
			store.WithExpiration(5*time.Minute),
			store.WithTags([]string{"setting"}),
		)
	}
	return item, nil
}
