package services

import (
	"context"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/helpdesk/pkg/internal/models"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/eko/gocache/lib/v4/store"
)

func GetAttachmentCacheKey(id uint) any {
	return fmt.Sprintf("attachment#%d", id)
}

// MetadataCache keeps attachment rows close to the metadata endpoint.
// A nil cache is valid and caches nothing.
type MetadataCache struct {
	store store.StoreInterface
}

func NewMetadataCache(cacheStore store.StoreInterface) *MetadataCache {
	return &MetadataCache{store: cacheStore}
}

func (v *MetadataCache) marshal() *marshaler.Marshaler {
	return marshaler.New(cache.New[any](v.store))
}

func (v *MetadataCache) Get(ctx context.Context, id uint) (models.Attachment, bool) {
	if v == nil || v.store == nil {
		return models.Attachment{}, false
	}
	if val, err := v.marshal().Get(ctx, GetAttachmentCacheKey(id), new(models.Attachment)); err == nil {
		return *val.(*models.Attachment), true
	}
	return models.Attachment{}, false
}

func (v *MetadataCache) Set(ctx context.Context, item models.Attachment) {
	if v == nil || v.store == nil {
		return
	}
	_ = v.marshal().Set(
		ctx,
		GetAttachmentCacheKey(item.ID),
		item,
		store.WithExpiration(60*time.Minute),
		store.WithTags([]string{"attachment", fmt.Sprintf("ticket#%d", item.TicketID)}),
	)
}

func (v *MetadataCache) Delete(ctx context.Context, id uint) {
	if v == nil || v.store == nil {
		return
	}
	_ = v.marshal().Delete(ctx, GetAttachmentCacheKey(id))
}

// GetAttachment reads an attachment through the metadata cache.
func GetAttachment(ctx context.Context, repo Repository, metadata *MetadataCache, id uint) (models.Attachment, error) {
	if val, ok := metadata.Get(ctx, id); ok {
		return val, nil
	}

	attachment, err := repo.FindAttachment(ctx, id)
	if err != nil {
		return attachment, err
	}
	metadata.Set(ctx, attachment)
	return attachment, nil
}
