package keys

import "testing"

func TestRecordDeterministic(t *testing.T) {
	a := Record("alps-2024", "2024-07-19", "crossing-the-col")
	b := Record("alps-2024", "2024-07-19", "crossing-the-col")
	if a != b {
		t.Fatalf("same inputs produced different keys: %q vs %q", a, b)
	}
	if a != "record:alps-2024:2024-07-19:crossing-the-col" {
		t.Fatalf("unexpected key shape: %q", a)
	}
}

func TestParseRecordRoundtrip(t *testing.T) {
	key := Record("alps-2024", "2024-07-19", "crossing-the-col")
	book, date, slug, err := ParseRecord(key)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if book != "alps-2024" || date != "2024-07-19" || slug != "crossing-the-col" {
		t.Fatalf("roundtrip mismatch: %q %q %q", book, date, slug)
	}
}

func TestParseRecordRejectsMalformed(t *testing.T) {
	for _, bad := range []string{
		"list:all",
		"record:only-two:parts",
		"record:::",
		"record:a::c",
	} {
		if _, _, _, err := ParseRecord(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestIndexName(t *testing.T) {
	name, err := IndexName(Index("alps-2024"))
	if err != nil || name != "alps-2024" {
		t.Fatalf("got %q, %v", name, err)
	}
	if _, err := IndexName("record:a:b:c"); err == nil {
		t.Fatalf("expected error for non-index key")
	}
}

func TestRateCounterKey(t *testing.T) {
	k := RateCounter("login", "203.0.113.9", "2024-07-19")
	if k != "ratelimit:login:203.0.113.9:2024-07-19" {
		t.Fatalf("unexpected key: %q", k)
	}
}

func TestUserByEmailNormalizes(t *testing.T) {
	if UserByEmail(" Alice@Example.COM ") != UserByEmail("alice@example.com") {
		t.Fatalf("email key should be case and whitespace insensitive")
	}
}

func TestIsRecord(t *testing.T) {
	if !IsRecord(Record("b", "d", "s")) {
		t.Fatalf("record key not recognized")
	}
	if IsRecord(Index("all")) {
		t.Fatalf("index key misclassified as record")
	}
}
