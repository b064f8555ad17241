package models

import "encoding/json"

// Story is one published adventure-log entry. Stories are stored as
// JSON under a deterministic record key built from (book, date, slug);
// the fields used for addressing are duplicated here so a stored story
// is self-describing without parsing its key.
type Story struct {
	Book  string `json:"book"`
	Date  string `json:"date"` // YYYY-MM-DD
	Slug  string `json:"slug"`
	Title string `json:"title"`
	// Author is an opaque identity id (clients manage meaning)
	Author string `json:"author,omitempty"`
	// Cover is the blob-store URL of the cover image
	Cover string `json:"cover,omitempty"`
	// Body is the structured document tree rendered by pkg/render
	Body json.RawMessage `json:"body,omitempty"`
	// Photos is the catalog resolved by photo nodes inside Body
	Photos []Photo `json:"photos,omitempty"`
	// Created/Updated timestamps (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	UpdatedTS int64 `json:"updated_ts,omitempty"`
}

// Photo is one photo-catalog entry referenced from a story body by id.
type Photo struct {
	ID           string `json:"id"`
	RelativePath string `json:"relativePath"`
	Alt          string `json:"alt"`
	Caption      string `json:"caption,omitempty"`
	Credit       string `json:"credit,omitempty"`
}
