package digest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"feishu-digest-bot/internal/models"
)

// linkPlaceholder is a display text some rows carry instead of a real URL;
// it marks the link as absent.
const linkPlaceholder = "AI-周报"

// Field alias lists for the table-record source, tried in order. The
// localized name comes first, the English fallback after.
var (
	nameAliases = []string{"名称", "name"}
	descAliases = []string{"描述", "desc"}
	urlAliases  = []string{"URL", "url", "链接", "link"}
	timeAliases = []string{"Time", "time"}

	imageSlot1Aliases = []string{"image1", "图片1", "image", "附件", "attachment1"}
	imageSlot2Aliases = []string{"image2", "图片2", "附件2", "attachment2"}
)

// imageKeyFields are the dedicated per-slot fields that cache a resolved
// image key; they are preferred over the attachment fields and receive the
// write-back.
var imageKeyFields = [2]string{"image_key1", "image_key2"}

// RecordFetcher is the slice of the platform client the normalizer needs.
type RecordFetcher interface {
	FetchSheetRows(ctx context.Context, spreadsheetToken, sheetID string) ([][]any, error)
	FetchTableRecords(ctx context.Context, appToken, tableID string) ([]models.RawRecord, error)
	FetchDocRaw(ctx context.Context, docToken string) (string, error)
}

// Normalizer converts raw rows or records from any configured source into
// uniform digest items. Fetch failures propagate; per-record and per-image
// problems degrade by dropping the unit.
type Normalizer struct {
	fetcher    RecordFetcher
	resolver   *Resolver
	windowDays int
	now        func() time.Time
}

// NewNormalizer creates a normalizer. windowDays bounds how old a table
// record may be and still appear in the digest.
func NewNormalizer(fetcher RecordFetcher, resolver *Resolver, windowDays int) *Normalizer {
	return &Normalizer{
		fetcher:    fetcher,
		resolver:   resolver,
		windowDays: windowDays,
		now:        time.Now,
	}
}

// Build fetches records from the active source variant and normalizes them.
func (n *Normalizer) Build(ctx context.Context, src models.DigestSource) ([]models.DigestItem, error) {
	switch src.Kind() {
	case models.SourceTable:
		return n.buildFromTable(ctx, src)
	case models.SourceSpreadsheet:
		return n.buildFromSheet(ctx, src)
	case models.SourceDocument:
		return n.buildFromDocument(ctx, src)
	default:
		return nil, fmt.Errorf("no digest source configured")
	}
}

// buildFromSheet maps spreadsheet rows positionally: name, description, two
// image references, link URL. Row 0 is the header. Rows carry no timestamp,
// so there is no time filtering.
func (n *Normalizer) buildFromSheet(ctx context.Context, src models.DigestSource) ([]models.DigestItem, error) {
	rows, err := n.fetcher.FetchSheetRows(ctx, src.SpreadsheetToken, src.SheetID)
	if err != nil {
		return nil, err
	}

	var items []models.DigestItem
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 5 {
			logrus.Debugf("Skipping sheet row %d with %d columns", i, len(row))
			continue
		}

		name := toString(row[0])
		if name == "" {
			continue
		}

		refs := append(ParseImageRefs(toString(row[2])), ParseImageRefs(toString(row[3]))...)
		items = append(items, models.DigestItem{
			Name:     name,
			Desc:     normalizeText(toString(row[1])),
			Pictures: n.resolver.ResolveAll(ctx, refs, nil),
			URL:      models.ItemLink{URL: toString(row[4])},
		})
	}
	return items, nil
}

// buildFromTable normalizes multi-dimensional table records using the field
// alias lists, the time window, and per-slot image resolution with
// write-back into the dedicated image key fields.
func (n *Normalizer) buildFromTable(ctx context.Context, src models.DigestSource) ([]models.DigestItem, error) {
	records, err := n.fetcher.FetchTableRecords(ctx, src.AppToken, src.TableID)
	if err != nil {
		return nil, err
	}

	var items []models.DigestItem
	for _, rec := range records {
		name := toString(rec.Field(nameAliases...))
		if name == "" {
			continue
		}

		if dropped := n.outsideWindow(rec.Field(timeAliases...)); dropped {
			logrus.Debugf("Skipping record %s outside %d-day window", rec.RecordID, n.windowDays)
			continue
		}

		var pictures []models.ResolvedImage
		for slot := 0; slot < 2; slot++ {
			refs := n.slotRefs(rec, slot)
			wb := &WriteBack{
				AppToken: src.AppToken,
				TableID:  src.TableID,
				RecordID: rec.RecordID,
				Field:    imageKeyFields[slot],
			}
			pictures = append(pictures, n.resolver.ResolveAll(ctx, refs, wb)...)
		}

		url := recordURL(rec)
		items = append(items, models.DigestItem{
			Name:     name,
			Desc:     normalizeText(toString(rec.Field(descAliases...))),
			Pictures: pictures,
			URL: models.ItemLink{
				URL:        url,
				PCURL:      url,
				AndroidURL: url,
				IOSURL:     url,
			},
		})
	}
	return items, nil
}

// buildFromDocument is a stub: the document is fetched to surface auth or
// permission errors, but no item parsing is implemented for free-form text.
func (n *Normalizer) buildFromDocument(ctx context.Context, src models.DigestSource) ([]models.DigestItem, error) {
	if _, err := n.fetcher.FetchDocRaw(ctx, src.DocToken); err != nil {
		return nil, err
	}
	logrus.Warn("Document source returns no items, parsing not implemented")
	return []models.DigestItem{}, nil
}

// slotRefs prefers the cached image key field of a slot and falls back to
// the slot's attachment aliases.
func (n *Normalizer) slotRefs(rec models.RawRecord, slot int) []models.ImageRef {
	if key := rec.StringField(imageKeyFields[slot]); key != "" {
		return ParseImageRefs(key)
	}
	aliases := imageSlot1Aliases
	if slot == 1 {
		aliases = imageSlot2Aliases
	}
	return ParseImageRefs(rec.Field(aliases...))
}

// outsideWindow reports whether a record's time field places it before the
// lookback window. A record exactly at the boundary is kept. A missing or
// unparsable time keeps the record (fail-open, logged).
func (n *Normalizer) outsideWindow(timeField any) bool {
	if timeField == nil {
		return false
	}
	recordTime, ok := parseRecordTime(timeField)
	if !ok {
		logrus.Debugf("Failed to parse record time %v, keeping record", timeField)
		return false
	}
	cutoff := n.now().AddDate(0, 0, -n.windowDays)
	return recordTime.Before(cutoff)
}

// recordURL resolves the link field: a rich-link object carries the URL in
// its url attribute; a plain string is the URL itself unless it is the
// known placeholder text.
func recordURL(rec models.RawRecord) string {
	switch v := rec.Field(urlAliases...).(type) {
	case map[string]any:
		u, _ := v["url"].(string)
		return u
	case string:
		if v == linkPlaceholder {
			return ""
		}
		return v
	case nil:
		return ""
	default:
		s := toString(v)
		if s == linkPlaceholder {
			return ""
		}
		return s
	}
}

// parseRecordTime tries the supported time shapes in order: ISO date (with
// the datetime part after a 'T' stripped first), ISO datetime, slash date,
// slash datetime, then numeric epoch (seconds up to 1e12, milliseconds
// above).
func parseRecordTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := t
		if i := strings.IndexByte(s, 'T'); i >= 0 {
			s = s[:i]
		}
		formats := []string{"2006-01-02", "2006-01-02 15:04:05", "2006/01/02", "2006/01/02 15:04:05"}
		for _, layout := range formats {
			if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	case float64:
		return epochTime(t), true
	case int64:
		return epochTime(float64(t)), true
	case int:
		return epochTime(float64(t)), true
	default:
		return time.Time{}, false
	}
}

func epochTime(ts float64) time.Time {
	if ts > 1e12 {
		return time.UnixMilli(int64(ts))
	}
	return time.Unix(int64(ts), 0)
}

// normalizeText rewrites the literal two-character \n escape to a real
// newline first, then real newlines to the card's line-break markup, so a
// value arriving either pre-escaped or already broken normalizes the same.
func normalizeText(s string) string {
	s = strings.ReplaceAll(s, `\n`, "\n")
	return strings.ReplaceAll(s, "\n", "<br>")
}

// toString renders the loosely typed cell/field values the platform returns.
func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return ""
	}
}
