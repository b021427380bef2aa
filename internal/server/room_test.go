package server

import (
	"encoding/json"
	"testing"
)

func TestParsePlayerString(t *testing.T) {
	tests := []struct {
		in       string
		username string
		country  string
		ok       bool
	}{
		{"alice (Brazil)", "alice", "Brazil", true},
		{"  bob  (Germany)  ", "bob", "Germany", true},
		{"carol ()", "carol", "", true},
		{"no parens", "", "", false},
		{"(Brazil)", "", "", false},
		{"", "", "", false},
		{"   ", "", "", false},
	}
	for _, tc := range tests {
		p := ParsePlayerString(tc.in)
		if !tc.ok {
			if p != nil {
				t.Fatalf("%q: expected nil for malformed input, got %+v", tc.in, p)
			}
			continue
		}
		if p == nil {
			t.Fatalf("%q: expected a player", tc.in)
		}
		if p.Username != tc.username || p.Country != tc.country {
			t.Fatalf("%q: got %q/%q, want %q/%q", tc.in, p.Username, p.Country, tc.username, tc.country)
		}
	}
}

func TestParsePlayerStringIdempotent(t *testing.T) {
	p := ParsePlayerString("alice (Brazil)")
	again := ParsePlayerString(FormatPlayer(p))
	if again == nil || *again != *p {
		t.Fatalf("round trip changed the record: %+v vs %+v", p, again)
	}
}

func TestPlayerUnmarshalBothShapes(t *testing.T) {
	var fromString Player
	if err := json.Unmarshal([]byte(`"alice (Brazil)"`), &fromString); err != nil {
		t.Fatalf("legacy string form: %v", err)
	}
	if fromString.Username != "alice" || fromString.Country != "Brazil" {
		t.Fatalf("legacy form parsed as %+v", fromString)
	}

	var fromObject Player
	if err := json.Unmarshal([]byte(`{"username":"alice","country":"Brazil","online":true}`), &fromObject); err != nil {
		t.Fatalf("record form: %v", err)
	}
	if fromObject.Username != "alice" || fromObject.Country != "Brazil" || !fromObject.Online {
		t.Fatalf("record form parsed as %+v", fromObject)
	}

	// Malformed legacy input normalizes to the empty record, not an error.
	var malformed Player
	if err := json.Unmarshal([]byte(`"garbage"`), &malformed); err != nil {
		t.Fatalf("malformed string form: %v", err)
	}
	if malformed.Username != "" {
		t.Fatalf("malformed input produced %+v", malformed)
	}
}

func TestPrivateChatKeySorted(t *testing.T) {
	if privateChatKey("bob", "alice") != privateChatKey("alice", "bob") {
		t.Fatal("pair key must be order independent")
	}
}
