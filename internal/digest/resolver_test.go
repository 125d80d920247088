package digest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feishu-digest-bot/internal/models"
)

func TestResolvePassthrough(t *testing.T) {
	api := &fakeImageAPI{}
	r := NewResolver(api)

	img, ok := r.Resolve(context.Background(),
		models.ImageRef{Kind: models.ImageRefResolvedKey, Token: "img_already"}, nil)

	require.True(t, ok)
	assert.Equal(t, "img_already", img.ImgKey)
	assert.Equal(t, map[string]string{"zh_cn": "img_already"}, img.I18nImgKey)
	assert.Empty(t, api.downloads)
}

func TestResolveEmptyRef(t *testing.T) {
	r := NewResolver(&fakeImageAPI{})

	_, ok := r.Resolve(context.Background(), models.ImageRef{Kind: models.ImageRefEmpty}, nil)
	assert.False(t, ok)
}

func TestResolveAttachmentDownloadsAndUploads(t *testing.T) {
	api := &fakeImageAPI{}
	r := NewResolver(api)
	wb := &WriteBack{AppToken: "app", TableID: "tbl", RecordID: "rec", Field: "image_key1"}

	img, ok := r.Resolve(context.Background(),
		models.ImageRef{Kind: models.ImageRefAttachment, Token: "tok_1"}, wb)

	require.True(t, ok)
	assert.Equal(t, "img_uploaded_tok_1", img.ImgKey)
	assert.Equal(t, []string{"tok_1"}, api.downloads)
	require.Len(t, api.updates, 1)
	assert.Equal(t, "image_key1", api.updates[0].field)
}

func TestResolveWithoutWriteBackTarget(t *testing.T) {
	api := &fakeImageAPI{}
	r := NewResolver(api)

	_, ok := r.Resolve(context.Background(),
		models.ImageRef{Kind: models.ImageRefText, Token: "tok_1"}, nil)

	require.True(t, ok)
	assert.Empty(t, api.updates)
}

func TestResolveDropsOnFailure(t *testing.T) {
	api := &fakeImageAPI{
		failDownload: map[string]bool{"tok_dl": true},
		failUpload:   map[string]bool{"tok_up": true},
	}
	r := NewResolver(api)

	_, ok := r.Resolve(context.Background(),
		models.ImageRef{Kind: models.ImageRefAttachment, Token: "tok_dl"}, nil)
	assert.False(t, ok)

	_, ok = r.Resolve(context.Background(),
		models.ImageRef{Kind: models.ImageRefAttachment, Token: "tok_up"}, nil)
	assert.False(t, ok)
}

func TestResolveAllKeepsOrderAndSkipsFailures(t *testing.T) {
	api := &fakeImageAPI{failDownload: map[string]bool{"tok_bad": true}}
	r := NewResolver(api)

	pictures := r.ResolveAll(context.Background(), []models.ImageRef{
		{Kind: models.ImageRefResolvedKey, Token: "img_first"},
		{Kind: models.ImageRefAttachment, Token: "tok_bad"},
		{Kind: models.ImageRefAttachment, Token: "tok_ok"},
	}, nil)

	require.Len(t, pictures, 2)
	assert.Equal(t, "img_first", pictures[0].ImgKey)
	assert.Equal(t, "img_uploaded_tok_ok", pictures[1].ImgKey)
}

func TestParseImageRefsAttachmentList(t *testing.T) {
	refs := ParseImageRefs([]any{
		map[string]any{"file_token": "tok_a", "name": "a.png"},
		map[string]any{"file_token": "img_cached"},
		map[string]any{"name": "no token"},
		"not an object",
	})

	require.Len(t, refs, 2)
	assert.Equal(t, models.ImageRefAttachment, refs[0].Kind)
	assert.Equal(t, "tok_a", refs[0].Token)
	assert.Equal(t, models.ImageRefResolvedKey, refs[1].Kind)
}

func TestParseImageRefsString(t *testing.T) {
	refs := ParseImageRefs("img_key")
	require.Len(t, refs, 1)
	assert.Equal(t, models.ImageRefResolvedKey, refs[0].Kind)

	refs = ParseImageRefs("some_file_token")
	require.Len(t, refs, 1)
	assert.Equal(t, models.ImageRefText, refs[0].Kind)

	assert.Empty(t, ParseImageRefs(""))
	assert.Empty(t, ParseImageRefs(nil))
	assert.Empty(t, ParseImageRefs(42))
}
