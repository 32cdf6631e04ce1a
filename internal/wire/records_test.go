package wire

import (
	"errors"
	"testing"
)

func TestParseChatMessage(t *testing.T) {
	rec, err := ParseChatMessage([]byte(`{"type":"message","content":"hi","timestamp":1000,"from":{"id":"alice","name":"Alice"},"to":"bob"}`))
	if err != nil {
		t.Fatal(err)
	}
	if rec.From.ID != "alice" || rec.To != "bob" || rec.Content != "hi" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestParseChatMessageRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		"no sender":      `{"type":"message","content":"hi","to":"bob"}`,
		"no destination": `{"type":"message","content":"hi","from":{"id":"alice"}}`,
		"not json":       `{{{`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseChatMessage([]byte(payload))
			var perr *ProtocolError
			if !errors.As(err, &perr) {
				t.Fatalf("got %v, want *ProtocolError", err)
			}
		})
	}
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile([]byte(`{"id":"alice","name":"Alice","avatar":"ipfs://x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "alice" || p.Avatar != "ipfs://x" {
		t.Errorf("unexpected profile: %+v", p)
	}

	if _, err := ParseProfile([]byte(`{"name":"nobody"}`)); err == nil {
		t.Error("expected error for profile without id")
	}
}
