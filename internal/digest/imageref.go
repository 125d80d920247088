package digest

import (
	"strings"

	"feishu-digest-bot/internal/models"
)

// resolvedKeyPrefix marks a value that is already a platform image key and
// needs no resolution.
const resolvedKeyPrefix = "img_"

// ParseImageRefs turns a raw image field value into the closed ImageRef set.
// Attachment fields arrive as a list of objects carrying a file_token; text
// fields arrive as a plain string. Anything else yields no refs.
func ParseImageRefs(field any) []models.ImageRef {
	switch v := field.(type) {
	case []any:
		var refs []models.ImageRef
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			token, ok := obj["file_token"].(string)
			if !ok || token == "" {
				continue
			}
			refs = append(refs, classify(token, models.ImageRefAttachment))
		}
		return refs
	case string:
		if v == "" {
			return nil
		}
		return []models.ImageRef{classify(v, models.ImageRefText)}
	default:
		return nil
	}
}

func classify(token string, fallback models.ImageRefKind) models.ImageRef {
	if strings.HasPrefix(token, resolvedKeyPrefix) {
		return models.ImageRef{Kind: models.ImageRefResolvedKey, Token: token}
	}
	return models.ImageRef{Kind: fallback, Token: token}
}
