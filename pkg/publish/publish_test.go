package publish

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"fieldnotes/pkg/entry"
	"fieldnotes/pkg/index"
	"fieldnotes/pkg/keys"
	"fieldnotes/pkg/kv"
	"fieldnotes/pkg/models"
	"fieldnotes/pkg/validation"
)

func newTestPublisher() (*Publisher, *kv.Memory) {
	m := kv.NewMemory()
	records := entry.New(m)
	idx := index.New(m, records)
	return New(m, records, idx, nil, validation.Rules{}), m
}

func story(book, date, slug string) models.Story {
	return models.Story{
		Book:  book,
		Date:  date,
		Slug:  slug,
		Title: strings.ReplaceAll(slug, "-", " "),
	}
}

func TestPublishAndGet(t *testing.T) {
	p, _ := newTestPublisher()
	ctx := context.Background()

	key, err := p.Publish(ctx, story("alps-2024", "2024-07-19", "crossing-the-col"))
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if key != keys.Record("alps-2024", "2024-07-19", "crossing-the-col") {
		t.Fatalf("unexpected key: %q", key)
	}

	got, found, err := p.Get(ctx, "alps-2024", "2024-07-19", "crossing-the-col")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.Title != "crossing the col" {
		t.Fatalf("unexpected story: %+v", got)
	}
	if got.CreatedTS == 0 || got.UpdatedTS == 0 {
		t.Fatalf("timestamps not set: %+v", got)
	}
}

func TestPublishRejectsInvalid(t *testing.T) {
	p, _ := newTestPublisher()
	if _, err := p.Publish(context.Background(), models.Story{Book: "b"}); err == nil {
		t.Fatalf("invalid story accepted")
	}
}

func TestRepublishPreservesCreatedTS(t *testing.T) {
	p, _ := newTestPublisher()
	ctx := context.Background()

	s := story("alps-2024", "2024-07-19", "crossing-the-col")
	p.Publish(ctx, s)
	first, _, _ := p.Get(ctx, "alps-2024", "2024-07-19", "crossing-the-col")

	s.Title = "Revised Title"
	p.Publish(ctx, s)
	second, _, _ := p.Get(ctx, "alps-2024", "2024-07-19", "crossing-the-col")

	if second.Title != "Revised Title" {
		t.Fatalf("overwrite lost: %+v", second)
	}
	if second.CreatedTS != first.CreatedTS {
		t.Fatalf("creation time not preserved: %d vs %d", second.CreatedTS, first.CreatedTS)
	}
	if second.UpdatedTS < first.UpdatedTS {
		t.Fatalf("update time went backwards")
	}
}

func TestRecentNewestFirstAndMoveToFront(t *testing.T) {
	p, _ := newTestPublisher()
	ctx := context.Background()

	p.Publish(ctx, story("alps-2024", "2024-07-01", "first"))
	p.Publish(ctx, story("alps-2024", "2024-07-02", "second"))
	p.Publish(ctx, story("alps-2024", "2024-07-03", "third"))

	out, err := p.Recent(ctx, "alps-2024", 0, 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(out) != 3 || out[0].Slug != "third" || out[2].Slug != "first" {
		t.Fatalf("unexpected order: %+v", out)
	}

	// re-publishing re-surfaces the story
	p.Publish(ctx, story("alps-2024", "2024-07-01", "first"))
	out, _ = p.Recent(ctx, "alps-2024", 0, 10)
	if len(out) != 3 || out[0].Slug != "first" {
		t.Fatalf("expected move-to-front: %+v", out)
	}
}

func TestRecentAcrossAllBooks(t *testing.T) {
	p, _ := newTestPublisher()
	ctx := context.Background()

	p.Publish(ctx, story("alps-2024", "2024-07-01", "climb"))
	p.Publish(ctx, story("andes-2023", "2023-11-12", "descent"))

	out, err := p.Recent(ctx, "", 0, 10)
	if err != nil || len(out) != 2 {
		t.Fatalf("global listing: %d stories, %v", len(out), err)
	}
	if out[0].Slug != "descent" {
		t.Fatalf("unexpected global order: %+v", out)
	}
}

func TestRecentSkipsDeleted(t *testing.T) {
	p, _ := newTestPublisher()
	ctx := context.Background()

	p.Publish(ctx, story("alps-2024", "2024-07-01", "kept"))
	p.Publish(ctx, story("alps-2024", "2024-07-02", "gone"))
	if err := p.Delete(ctx, "alps-2024", "2024-07-02", "gone"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	out, err := p.Recent(ctx, "alps-2024", 0, 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(out) != 1 || out[0].Slug != "kept" {
		t.Fatalf("deleted story not skipped: %+v", out)
	}
}

func TestDeleteIsIdempotentAndClearsViews(t *testing.T) {
	p, m := newTestPublisher()
	ctx := context.Background()

	p.Publish(ctx, story("alps-2024", "2024-07-01", "climb"))
	p.RecordView(ctx, "alps-2024", "2024-07-01", "climb")

	if err := p.Delete(ctx, "alps-2024", "2024-07-01", "climb"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := p.Delete(ctx, "alps-2024", "2024-07-01", "climb"); err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
	key := keys.Record("alps-2024", "2024-07-01", "climb")
	if _, err := m.Get(ctx, keys.Views(key)); err == nil {
		t.Fatalf("view counter survived delete")
	}
}

func TestRecordView(t *testing.T) {
	p, _ := newTestPublisher()
	ctx := context.Background()
	p.Publish(ctx, story("alps-2024", "2024-07-01", "climb"))

	for want := int64(1); want <= 3; want++ {
		n, err := p.RecordView(ctx, "alps-2024", "2024-07-01", "climb")
		if err != nil || n != want {
			t.Fatalf("view count -> %d, %v (want %d)", n, err, want)
		}
	}
}

func TestRenderStory(t *testing.T) {
	p, _ := newTestPublisher()
	ctx := context.Background()

	s := story("alps-2024", "2024-07-19", "crossing-the-col")
	s.Photos = []models.Photo{{ID: "p1", RelativePath: "col.jpg", Alt: "col"}}
	body, _ := json.Marshal(map[string]any{
		"type": "doc",
		"content": []map[string]any{
			{"type": "paragraph", "content": []map[string]any{{"type": "text", "text": "up we went"}}},
			{"type": "photo", "attrs": map[string]any{"id": "p1"}},
		},
	})
	s.Body = body
	p.Publish(ctx, s)

	html, found, err := p.Render(ctx, "alps-2024", "2024-07-19", "crossing-the-col")
	if err != nil || !found {
		t.Fatalf("render: found=%v err=%v", found, err)
	}
	if html != `<p>up we went</p><figure><img src="col.jpg" alt="col"/></figure>` {
		t.Fatalf("unexpected html: %s", html)
	}
}

func TestRenderAbsentStory(t *testing.T) {
	p, _ := newTestPublisher()
	html, found, err := p.Render(context.Background(), "no", "2024-01-01", "such")
	if err != nil || found || html != "" {
		t.Fatalf("absent story: %q, %v, %v", html, found, err)
	}
}

func TestRenderEmptyBody(t *testing.T) {
	p, _ := newTestPublisher()
	ctx := context.Background()
	p.Publish(ctx, story("alps-2024", "2024-07-19", "quiet-day"))
	html, found, err := p.Render(ctx, "alps-2024", "2024-07-19", "quiet-day")
	if err != nil || !found || html != "" {
		t.Fatalf("empty body: %q, %v, %v", html, found, err)
	}
}
