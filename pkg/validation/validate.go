// Package validation checks write payloads before any store mutation.
// A story that fails validation is rejected whole; the store never
// sees a partially-applied invariant.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fieldnotes/pkg/models"
)

// Rules are the configurable, path-addressed checks applied to story
// payloads on top of the built-in identity checks. Paths are dotted,
// with `*` matching the first element of an array.
type Rules struct {
	Required []string
	Types    map[string]string
	MaxLen   map[string]int
	Enums    map[string][]string
}

var slugRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidateStory checks the fields a record key is built from plus any
// configured payload rules. Key fields must be present and well-formed
// because the same triple must always address the same record.
func ValidateStory(s models.Story, rules Rules) error {
	var errs []string
	if strings.TrimSpace(s.Book) == "" {
		errs = append(errs, "book is required")
	}
	if s.Date == "" {
		errs = append(errs, "date is required")
	} else if _, err := time.Parse("2006-01-02", s.Date); err != nil {
		errs = append(errs, fmt.Sprintf("date must be YYYY-MM-DD: %q", s.Date))
	}
	if s.Slug == "" {
		errs = append(errs, "slug is required")
	} else if !slugRe.MatchString(s.Slug) {
		errs = append(errs, fmt.Sprintf("slug must be lowercase words joined by hyphens: %q", s.Slug))
	}
	if strings.TrimSpace(s.Title) == "" {
		errs = append(errs, "title is required")
	}
	for i, p := range s.Photos {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("photos[%d]: id is required", i))
		}
		if p.RelativePath == "" {
			errs = append(errs, fmt.Sprintf("photos[%d]: relativePath is required", i))
		}
	}
	if len(s.Body) > 0 && !json.Valid(s.Body) {
		errs = append(errs, "body is not valid JSON")
	}

	errs = append(errs, applyRules(storyRoot(s), rules)...)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// storyRoot builds a generic map representation for path traversal.
func storyRoot(s models.Story) map[string]interface{} {
	var body interface{}
	if len(s.Body) > 0 {
		_ = json.Unmarshal(s.Body, &body)
	}
	photos := make([]interface{}, 0, len(s.Photos))
	for _, p := range s.Photos {
		photos = append(photos, map[string]interface{}{
			"id":           p.ID,
			"relativePath": p.RelativePath,
			"alt":          p.Alt,
			"caption":      p.Caption,
			"credit":       p.Credit,
		})
	}
	return map[string]interface{}{
		"book":   s.Book,
		"date":   s.Date,
		"slug":   s.Slug,
		"title":  s.Title,
		"author": s.Author,
		"cover":  s.Cover,
		"body":   body,
		"photos": photos,
	}
}

func applyRules(root map[string]interface{}, rules Rules) []string {
	var errs []string
	for _, p := range rules.Required {
		if !existsAt(root, p) {
			errs = append(errs, fmt.Sprintf("required path missing: %s", p))
		}
	}
	for p, t := range rules.Types {
		if v, ok := valueAt(root, p); ok {
			if !typeMatches(v, t) {
				errs = append(errs, fmt.Sprintf("type mismatch at %s: expected %s", p, t))
			}
		}
	}
	for p, max := range rules.MaxLen {
		if v, ok := valueAt(root, p); ok {
			switch vv := v.(type) {
			case string:
				if len(vv) > max {
					errs = append(errs, fmt.Sprintf("max length exceeded at %s: %d > %d", p, len(vv), max))
				}
			case []interface{}:
				if len(vv) > max {
					errs = append(errs, fmt.Sprintf("max length exceeded at %s: %d > %d", p, len(vv), max))
				}
			}
		}
	}
	for p, vals := range rules.Enums {
		if v, ok := valueAt(root, p); ok {
			if s, ok2 := v.(string); ok2 && !contains(vals, s) {
				errs = append(errs, fmt.Sprintf("invalid enum at %s", p))
			}
		}
	}
	return errs
}

func existsAt(root interface{}, path string) bool {
	_, ok := valueAt(root, path)
	return ok
}

func valueAt(root interface{}, path string) (interface{}, bool) {
	segs := strings.Split(path, ".")
	var cur interface{} = root
	for _, s := range segs {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[s]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			if s == "*" {
				if len(node) == 0 {
					return nil, false
				}
				cur = node[0]
			} else if idx, err := strconv.Atoi(s); err == nil {
				if idx < 0 || idx >= len(node) {
					return nil, false
				}
				cur = node[idx]
			} else {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return cur, true
}

func typeMatches(v interface{}, t string) bool {
	switch strings.ToLower(t) {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]interface{})
		return ok
	case "array":
		_, ok := v.([]interface{})
		return ok
	default:
		return true
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
