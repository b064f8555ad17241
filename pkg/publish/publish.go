// Package publish is the write/read surface for stories: validated
// writes into the record store, recency index maintenance, listing,
// rendering and view counting.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fieldnotes/pkg/blob"
	"fieldnotes/pkg/entry"
	"fieldnotes/pkg/index"
	"fieldnotes/pkg/keys"
	"fieldnotes/pkg/kv"
	"fieldnotes/pkg/logger"
	"fieldnotes/pkg/models"
	"fieldnotes/pkg/render"
	"fieldnotes/pkg/validation"
)

// Publisher coordinates the content-platform core for story records.
type Publisher struct {
	kv      kv.Store
	records *entry.Store
	idx     *index.Manager
	blobs   blob.Store
	rules   validation.Rules
	now     func() time.Time
}

// New wires a publisher over its collaborators. blobs may be nil when
// cover storage is not needed (e.g. some tests).
func New(store kv.Store, records *entry.Store, idx *index.Manager, blobs blob.Store, rules validation.Rules) *Publisher {
	return &Publisher{kv: store, records: records, idx: idx, blobs: blobs, rules: rules, now: time.Now}
}

// Publish validates and writes a story, then re-surfaces it at the
// head of its book index and the global index. Re-publishing the same
// (book, date, slug) overwrites the record and moves it back to the
// front. Returns the record key.
func (p *Publisher) Publish(ctx context.Context, s models.Story) (string, error) {
	if err := validation.ValidateStory(s, p.rules); err != nil {
		return "", fmt.Errorf("invalid story: %w", err)
	}
	key := keys.Record(s.Book, s.Date, s.Slug)

	now := p.now().UTC().UnixNano()
	s.UpdatedTS = now
	if s.CreatedTS == 0 {
		s.CreatedTS = now
		// keep the original creation time on re-publish; the window
		// between this read and the write below is accepted (last
		// write wins)
		if raw, found, err := p.records.Get(ctx, key); err == nil && found {
			var prev models.Story
			if json.Unmarshal(raw, &prev) == nil && prev.CreatedTS != 0 {
				s.CreatedTS = prev.CreatedTS
			}
		}
	}

	if err := p.records.Put(ctx, key, s); err != nil {
		return "", err
	}
	if err := p.idx.Append(ctx, s.Book, key); err != nil {
		return "", err
	}
	if err := p.idx.Append(ctx, keys.AllIndex, key); err != nil {
		return "", err
	}
	logger.Info("story_published", "key", key, "book", s.Book)
	return key, nil
}

// Get loads one story by its addressing triple.
func (p *Publisher) Get(ctx context.Context, book, date, slug string) (models.Story, bool, error) {
	raw, found, err := p.records.Get(ctx, keys.Record(book, date, slug))
	if err != nil || !found {
		return models.Story{}, false, err
	}
	var s models.Story
	if err := json.Unmarshal(raw, &s); err != nil {
		return models.Story{}, false, fmt.Errorf("corrupt story record: %w", err)
	}
	return s, true, nil
}

// Delete removes the story record and its view counter. Index entries
// pointing at the key are left behind on purpose: absence is handled
// lazily at read time instead of fanning out an edit to every index
// that might reference the record.
func (p *Publisher) Delete(ctx context.Context, book, date, slug string) error {
	key := keys.Record(book, date, slug)
	if err := p.records.Delete(ctx, key); err != nil {
		return err
	}
	if err := p.kv.Delete(ctx, keys.Views(key)); err != nil {
		return err
	}
	logger.Info("story_deleted", "key", key)
	return nil
}

// Recent returns up to count stories for a book (or across all books
// when book is empty), newest first. Index entries whose record has
// been deleted are skipped, so fewer than count stories may come back
// even when the index had count keys.
func (p *Publisher) Recent(ctx context.Context, book string, offset, count int) ([]models.Story, error) {
	name := book
	if name == "" {
		name = keys.AllIndex
	}
	entries, err := p.idx.Resolve(ctx, name, offset, count)
	if err != nil {
		return nil, err
	}
	out := make([]models.Story, 0, len(entries))
	for _, e := range entries {
		if !e.Found {
			continue
		}
		var s models.Story
		if err := json.Unmarshal(e.Record, &s); err != nil {
			logger.Warn("story_record_corrupt", "key", e.Key, "error", err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Render loads a story and renders its body against its photo catalog.
func (p *Publisher) Render(ctx context.Context, book, date, slug string) (string, bool, error) {
	s, found, err := p.Get(ctx, book, date, slug)
	if err != nil || !found {
		return "", false, err
	}
	if len(s.Body) == 0 {
		return "", true, nil
	}
	doc, err := render.ParseDocument(s.Body)
	if err != nil {
		return "", true, err
	}
	return render.HTML(doc, render.NewCatalog(s.Photos)), true, nil
}

// RecordView bumps the story's view counter and returns the new count.
func (p *Publisher) RecordView(ctx context.Context, book, date, slug string) (int64, error) {
	return p.kv.Incr(ctx, keys.Views(keys.Record(book, date, slug)))
}

// StoreCover persists cover-image bytes in the blob store and returns
// the stable URL callers embed in the story record.
func (p *Publisher) StoreCover(ctx context.Context, filename string, data []byte, contentType string) (string, error) {
	if p.blobs == nil {
		return "", fmt.Errorf("no blob store configured")
	}
	return p.blobs.Store(ctx, filename, data, blob.Options{ContentType: contentType, Public: true})
}
