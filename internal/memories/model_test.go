package memories

import (
	"strings"
	"testing"
	"time"
)

func TestExcerptReturnsShortBodiesVerbatim(testContext *testing.T) {
	body := strings.Repeat("a", 200)
	if got := Excerpt(body, 200); got != body {
		testContext.Fatalf("expected body unchanged, got %q", got)
	}
}

func TestExcerptTruncatesLongBodies(testContext *testing.T) {
	body := strings.Repeat("a", 201)
	got := Excerpt(body, 200)
	if got != strings.Repeat("a", 200)+"…" {
		testContext.Fatalf("expected 200 characters plus ellipsis, got %d characters", len([]rune(got)))
	}
}

func TestExcerptCountsRunesNotBytes(testContext *testing.T) {
	body := strings.Repeat("ü", 201)
	got := Excerpt(body, 200)
	runes := []rune(got)
	if len(runes) != 201 || runes[200] != '…' {
		testContext.Fatalf("expected 200 runes plus ellipsis, got %q", got)
	}
}

func TestNormalizePhotosDropsEntriesWithoutPublicID(testContext *testing.T) {
	photos := NormalizePhotos([]Photo{
		{PublicID: "a", SortIndex: 0},
		{PublicID: "  ", SortIndex: 1},
		{PublicID: "b", SortIndex: 2},
	})
	if len(photos) != 2 {
		testContext.Fatalf("expected 2 photos, got %d", len(photos))
	}
}

func TestNormalizePhotosReindexesDensely(testContext *testing.T) {
	photos := NormalizePhotos([]Photo{
		{PublicID: "third", SortIndex: 9},
		{PublicID: "first", SortIndex: 1},
		{PublicID: "second", SortIndex: 4},
	})
	expected := []string{"first", "second", "third"}
	for position, photo := range photos {
		if photo.PublicID != expected[position] {
			testContext.Fatalf("unexpected order at %d: %s", position, photo.PublicID)
		}
		if photo.SortIndex != position {
			testContext.Fatalf("expected dense sort index %d, got %d", position, photo.SortIndex)
		}
	}
}

func TestNormalizeEmailCanonicalizes(testContext *testing.T) {
	email, err := NormalizeEmail("  Visitor@Example.COM ")
	if err != nil {
		testContext.Fatalf("unexpected error: %v", err)
	}
	if email != "visitor@example.com" {
		testContext.Fatalf("unexpected email %q", email)
	}
}

func TestNormalizeEmailRejectsMalformedInput(testContext *testing.T) {
	for _, candidate := range []string{"", "no-at-sign", "@leading", "trailing@"} {
		if _, err := NormalizeEmail(candidate); err == nil {
			testContext.Fatalf("expected rejection for %q", candidate)
		}
	}
}

func TestNormalizeDateConvertsOffsetsToUTC(testContext *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	got := NormalizeDate("2024-05-01T10:00:00+02:00", now)
	if got != "2024-05-01T08:00:00Z" {
		testContext.Fatalf("expected UTC normalization, got %s", got)
	}
}

func TestNormalizeDateFallsBackToNow(testContext *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if got := NormalizeDate("yesterday-ish", now); got != "2024-06-01T12:00:00Z" {
		testContext.Fatalf("expected fallback to now, got %s", got)
	}
}

func TestDeriveIndexItemUsesFirstPhotoAsCover(testContext *testing.T) {
	doc := MemoryDetail{
		ID:   "m-1",
		Name: "Ada",
		Date: "2024-06-01T12:00:00Z",
		Body: "short body",
		Photos: []Photo{
			{PublicID: "cover", SortIndex: 0},
			{PublicID: "second", SortIndex: 1},
		},
	}
	item := DeriveIndexItem(doc, 200)
	if item.CoverPublicID != "cover" {
		testContext.Fatalf("unexpected cover %q", item.CoverPublicID)
	}
	if item.PhotoCount != 2 {
		testContext.Fatalf("unexpected photo count %d", item.PhotoCount)
	}
	if item.Title != "Ada" {
		testContext.Fatalf("expected title fallback to name, got %q", item.Title)
	}
}
