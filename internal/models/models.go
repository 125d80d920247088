package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Span is a single tagged segment of a rich-text message line.
// Feishu post content tags: "text", "at" (mention), "img".
type Span struct {
	Tag      string `json:"tag"`
	Text     string `json:"text,omitempty"`
	UserID   string `json:"user_id,omitempty"`
	ImageKey string `json:"image_key,omitempty"`
}

// MessageLine is one line of a rich-text message.
type MessageLine []Span

// Mention identifies a user @-mentioned in a message.
type Mention struct {
	Key  string `json:"key"`
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// InboundEvent is a single message-receive event delivered by the platform.
// Consumed once by the admission filter.
type InboundEvent struct {
	EventID    string
	ChatID     string
	ChatType   string // "group" or "p2p"
	Lines      []MessageLine
	Mentions   []Mention
	OccurredAt time.Time
}

// TextContent concatenates all text spans of the event, ignoring mention and
// image spans.
func (e *InboundEvent) TextContent() string {
	var b strings.Builder
	for _, line := range e.Lines {
		for _, span := range line {
			if span.Tag == "text" {
				b.WriteString(span.Text)
			}
		}
	}
	return b.String()
}

// SourceKind identifies which digest source variant is active.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceDocument
	SourceSpreadsheet
	SourceTable
)

func (k SourceKind) String() string {
	switch k {
	case SourceDocument:
		return "document"
	case SourceSpreadsheet:
		return "spreadsheet"
	case SourceTable:
		return "table"
	default:
		return "none"
	}
}

// DigestSource describes where digest records come from. Exactly one variant
// is used per build; Kind applies the Table > Spreadsheet > Document
// precedence.
type DigestSource struct {
	DocToken         string
	SpreadsheetToken string
	SheetID          string
	AppToken         string
	TableID          string
}

// Kind returns the active source variant.
func (s DigestSource) Kind() SourceKind {
	switch {
	case s.AppToken != "" && s.TableID != "":
		return SourceTable
	case s.SpreadsheetToken != "" && s.SheetID != "":
		return SourceSpreadsheet
	case s.DocToken != "":
		return SourceDocument
	default:
		return SourceNone
	}
}

// RawRecord is one multi-dimensional table record as returned by the
/// platform: a loosely typed field map plus the record id needed for
// write-back.
type RawRecord struct {
	RecordID string         `json:"record_id"`
	Fields   map[string]any `json:"fields"`
}

// Field returns the first present field value among the given aliases.
func (r RawRecord) Field(aliases ...string) any {
	for _, name := range aliases {
		if v, ok := r.Fields[name]; ok && v != nil {
			return v
		}
	}
	return nil
}

// StringField returns the first present, non-empty string value among the
// given aliases. Non-string values yield "".
func (r RawRecord) StringField(aliases ...string) string {
	for _, name := range aliases {
		v, ok := r.Fields[name]
		if !ok || v == nil {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ImageRefKind tags the closed set of image reference shapes a raw record
// field can produce.
type ImageRefKind int

const (
	ImageRefEmpty ImageRefKind = iota
	ImageRefResolvedKey
	ImageRefAttachment
	ImageRefText
)

// ImageRef is a parsed image reference, total over its closed set of kinds,
// produced before any resolution logic runs.
type ImageRef struct {
	Kind  ImageRefKind
	Token string
}

// ResolvedImage is a platform-native image handle owned by one digest item.
type ResolvedImage struct {
	ImgKey     string            `json:"img_key"`
	I18nImgKey map[string]string `json:"i18n_img_key,omitempty"`
}

// ItemLink carries an item's primary URL plus per-platform variants, matching
// the card template's url variable shape.
type ItemLink struct {
	URL        string `json:"url"`
	PCURL      string `json:"pc_url"`
	AndroidURL string `json:"android_url"`
	IOSURL     string `json:"ios_url"`
}

// DigestItem is the normalized, source-agnostic unit rendered into the
// digest card.
type DigestItem struct {
	Name     string          `json:"name"`
	Desc     string          `json:"desc"`
	Pictures []ResolvedImage `json:"pictures"`
	URL      ItemLink        `json:"url"`
}

// DeliveryLog records one reply or digest push attempt.
type DeliveryLog struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Kind      string         `json:"kind" gorm:"type:varchar(50);not null;index"` // reply, digest
	TargetID  string         `json:"target_id" gorm:"type:varchar(255);not null;index"`
	Status    string         `json:"status" gorm:"type:varchar(50);not null"` // success, failure
	ErrorMsg  string         `json:"error_msg" gorm:"type:text"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for DeliveryLog
func (DeliveryLog) TableName() string {
	return "delivery_logs"
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
