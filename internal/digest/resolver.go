package digest

import (
	"context"

	"github.com/sirupsen/logrus"

	"feishu-digest-bot/internal/models"
)

// defaultLocale is the single locale the card template renders.
const defaultLocale = "zh_cn"

// ImageAPI is the slice of the platform client the resolver needs.
type ImageAPI interface {
	DownloadMedia(ctx context.Context, fileToken string) ([]byte, error)
	UploadImage(ctx context.Context, image []byte) (string, error)
	UpdateRecord(ctx context.Context, appToken, tableID, recordID, field string, value any) error
}

// WriteBack names the record field the resolved image key should be
// persisted into so future builds skip re-resolution.
type WriteBack struct {
	AppToken string
	TableID  string
	RecordID string
	Field    string
}

// Resolver converts image references into platform-native image keys.
type Resolver struct {
	api ImageAPI
}

// NewResolver creates an image resolver backed by the given platform API.
func NewResolver(api ImageAPI) *Resolver {
	return &Resolver{api: api}
}

// Resolve maps one image reference to a platform image key. Already-resolved
// keys pass through without a network call. Attachment tokens and plain text
// values go through download-then-upload; on success the new key is written
// back into the source record when write-back coordinates are given
// (best-effort, a write-back failure only logs). Any resolution failure
// drops the image: ok is false and no error escapes.
func (r *Resolver) Resolve(ctx context.Context, ref models.ImageRef, wb *WriteBack) (models.ResolvedImage, bool) {
	switch ref.Kind {
	case models.ImageRefEmpty:
		return models.ResolvedImage{}, false

	case models.ImageRefResolvedKey:
		return resolvedImage(ref.Token), true

	case models.ImageRefAttachment, models.ImageRefText:
		content, err := r.api.DownloadMedia(ctx, ref.Token)
		if err != nil {
			logrus.Warnf("Failed to download image for token %s: %v", ref.Token, err)
			return models.ResolvedImage{}, false
		}

		key, err := r.api.UploadImage(ctx, content)
		if err != nil {
			logrus.Warnf("Failed to upload image for token %s: %v", ref.Token, err)
			return models.ResolvedImage{}, false
		}

		if wb != nil {
			if err := r.api.UpdateRecord(ctx, wb.AppToken, wb.TableID, wb.RecordID, wb.Field, key); err != nil {
				logrus.Warnf("Failed to write image key back to record %s field %s: %v", wb.RecordID, wb.Field, err)
			}
		}
		return resolvedImage(key), true

	default:
		return models.ResolvedImage{}, false
	}
}

// ResolveAll resolves a group of references sharing one write-back target,
// keeping input order and silently dropping the unresolvable ones.
func (r *Resolver) ResolveAll(ctx context.Context, refs []models.ImageRef, wb *WriteBack) []models.ResolvedImage {
	var pictures []models.ResolvedImage
	for _, ref := range refs {
		if img, ok := r.Resolve(ctx, ref, wb); ok {
			pictures = append(pictures, img)
		}
	}
	return pictures
}

func resolvedImage(key string) models.ResolvedImage {
	return models.ResolvedImage{
		ImgKey:     key,
		I18nImgKey: map[string]string{defaultLocale: key},
	}
}
