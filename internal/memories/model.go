package memories

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidMemoryID indicates that a memory identifier is empty or exceeds storage bounds.
	ErrInvalidMemoryID = errors.New("memories: invalid memory id")
	// ErrInvalidAuthorName indicates a missing author name.
	ErrInvalidAuthorName = errors.New("memories: author name required")
	// ErrInvalidAuthorEmail indicates a missing or malformed author email.
	ErrInvalidAuthorEmail = errors.New("memories: invalid author email")
	// ErrInvalidBody indicates a missing or oversized memory body.
	ErrInvalidBody = errors.New("memories: invalid body")
	// ErrNotFound indicates the requested memory does not exist or was deleted.
	ErrNotFound = errors.New("memories: not found")
)

// MemoryID represents a validated memory identifier.
type MemoryID string

// NewMemoryID validates raw input and returns a MemoryID.
func NewMemoryID(rawInput string) (MemoryID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidMemoryID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidMemoryID, maxIdentifierLength)
	}
	return MemoryID(trimmed), nil
}

// String returns the underlying string identifier.
func (id MemoryID) String() string {
	return string(id)
}

// NormalizeEmail validates and canonicalizes an author email. The email is
// used only for owner matching and is never rendered publicly.
func NormalizeEmail(rawInput string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAuthorEmail)
	}
	at := strings.Index(trimmed, "@")
	if at <= 0 || at == len(trimmed)-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAuthorEmail, trimmed)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidAuthorEmail, maxIdentifierLength)
	}
	return trimmed, nil
}

// Photo references one CDN-hosted image attached to a memory. PublicID is the
// CDN's asset identifier; this system stores only the reference.
type Photo struct {
	PublicID  string `json:"public_id"`
	Caption   string `json:"caption,omitempty"`
	TakenAt   string `json:"taken_at,omitempty"`
	SortIndex int    `json:"sort_index"`
}

// MemoryDetail is the full stored record of one memory.
type MemoryDetail struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Title     string  `json:"title,omitempty"`
	Date      string  `json:"date"`
	Body      string  `json:"body"`
	Photos    []Photo `json:"photos"`
	Seeded    bool    `json:"seeded,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
	DeletedAt string  `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the document carries a tombstone.
func (d MemoryDetail) IsDeleted() bool {
	return strings.TrimSpace(d.DeletedAt) != ""
}

// DisplayTitle returns the title, falling back to the author name.
func (d MemoryDetail) DisplayTitle() string {
	if strings.TrimSpace(d.Title) != "" {
		return d.Title
	}
	return d.Name
}

// IndexItem is the denormalized per-memory summary used for list views. It is
// re-derived from the document on every write, so cover, count, and excerpt
// never drift from the stored photos and body.
type IndexItem struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Name          string `json:"name"`
	Date          string `json:"date"`
	CoverPublicID string `json:"cover_public_id,omitempty"`
	PhotoCount    int    `json:"photo_count"`
	Excerpt       string `json:"excerpt"`
	Seeded        bool   `json:"seeded,omitempty"`
}

// DeriveIndexItem builds the summary for a document. excerptChars bounds the
// excerpt length in runes; longer bodies are cut there and suffixed with an
// ellipsis.
func DeriveIndexItem(doc MemoryDetail, excerptChars int) IndexItem {
	item := IndexItem{
		ID:         doc.ID,
		Title:      doc.DisplayTitle(),
		Name:       doc.Name,
		Date:       doc.Date,
		PhotoCount: len(doc.Photos),
		Excerpt:    Excerpt(doc.Body, excerptChars),
		Seeded:     doc.Seeded,
	}
	if len(doc.Photos) > 0 {
		item.CoverPublicID = doc.Photos[0].PublicID
	}
	return item
}

// Excerpt returns body unchanged when it fits in maxChars runes, otherwise
// exactly maxChars runes followed by an ellipsis.
func Excerpt(body string, maxChars int) string {
	if maxChars <= 0 {
		return body
	}
	runes := []rune(body)
	if len(runes) <= maxChars {
		return body
	}
	return string(runes[:maxChars]) + "…"
}

// NormalizePhotos drops entries without a public id, orders the remainder by
// their submitted sort index (ties keep submission order), and reassigns a
// dense 0..n-1 ordering.
func NormalizePhotos(photos []Photo) []Photo {
	normalized := make([]Photo, 0, len(photos))
	for _, photo := range photos {
		if strings.TrimSpace(photo.PublicID) == "" {
			continue
		}
		normalized = append(normalized, photo)
	}
	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].SortIndex < normalized[j].SortIndex
	})
	for position := range normalized {
		normalized[position].SortIndex = position
	}
	return normalized
}

// NormalizeDate parses a client-supplied timestamp and renders it as RFC3339
// UTC so stored dates sort by instant. Unparsable input falls back to now.
func NormalizeDate(rawInput string, now time.Time) string {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed != "" {
		if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
			return parsed.UTC().Format(time.RFC3339)
		}
	}
	return now.UTC().Format(time.RFC3339)
}
