package sanitize

import (
	"errors"
	"strings"
	"testing"
)

func TestTextStripsMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello", "hello"},
		{"  <b>bold</b> move ", "bold move"},
		{"<script>alert(1)</script>hi", "hi"},
		{"&lt;img src=x onerror=alert(1)&gt;ok", "ok"},
		{"tom & jerry", "tom & jerry"},
		{"bell\x07ring", "bellring"},
	}
	for _, tt := range tests {
		if got := Text(tt.in, 0); got != tt.want {
			t.Errorf("Text(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTextLimitCountsRunes(t *testing.T) {
	got := Text(strings.Repeat("한", 30), 24)
	if n := len([]rune(got)); n != 24 {
		t.Fatalf("expected 24 runes, got %d", n)
	}
}

func TestNickname(t *testing.T) {
	name, err := Nickname("  alice \n smith ")
	if err != nil {
		t.Fatal(err)
	}
	if name != "alice smith" {
		t.Fatalf("unexpected nickname %q", name)
	}

	if _, err := Nickname("<i></i>  "); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestMessageRejectsEmpty(t *testing.T) {
	if _, err := Message("<p></p>"); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	body, err := Message("line one\nline two")
	if err != nil {
		t.Fatal(err)
	}
	if body != "line one\nline two" {
		t.Fatalf("newlines should survive, got %q", body)
	}
}
