package models

import "time"

// ContentKind identifies the Telegram message type a stored item is replayed as.
type ContentKind string

const (
	KindText        ContentKind = "text"
	KindPhoto       ContentKind = "photo"
	KindVideo       ContentKind = "video"
	KindDocument    ContentKind = "document"
	KindAudio       ContentKind = "audio"
	KindVoice       ContentKind = "voice"
	KindSticker     ContentKind = "sticker"
	KindUnsupported ContentKind = "unsupported"
)

// ContentItem is one captured source post. It is immutable once stored in a BatchLink.
type ContentItem struct {
	Kind ContentKind `bson:"type"`
	// FileID is the Telegram file reference for media kinds; empty for text.
	FileID string `bson:"file_id,omitempty"`
	// Text holds the message text for KindText and the caption otherwise.
	Text string `bson:"text,omitempty"`
	// OriginalText is Text before any rendering, kept to re-derive rebased links.
	OriginalText string `bson:"original,omitempty"`
	// SourceBaseURL is the base URL that was configured when the item was captured.
	SourceBaseURL string `bson:"website,omitempty"`
}

// BatchLink groups a contiguous range of source posts under one redemption token.
type BatchLink struct {
	Token      string
	RangeStart int
	RangeEnd   int
	CreatedAt  time.Time
	URLs       []string
	Items      []ContentItem
}

// BatchSummary is the listing view of a BatchLink.
type BatchSummary struct {
	Token      string
	RangeStart int
	RangeEnd   int
	URLCount   int
	ItemCount  int
	CreatedAt  time.Time
}

// Summary returns the listing view of the link.
func (b BatchLink) Summary() BatchSummary {
	return BatchSummary{
		Token:      b.Token,
		RangeStart: b.RangeStart,
		RangeEnd:   b.RangeEnd,
		URLCount:   len(b.URLs),
		ItemCount:  len(b.Items),
		CreatedAt:  b.CreatedAt,
	}
}

// Clone returns a deep copy of the link.
func (b BatchLink) Clone() BatchLink {
	out := b
	out.URLs = append([]string(nil), b.URLs...)
	out.Items = append([]ContentItem(nil), b.Items...)
	return out
}
