package adapter

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	kit "hwbot/internal/transport"
)

func TestSplitTextShortPassesThrough(t *testing.T) {
	t.Parallel()
	got := splitText("привет", 10, "HTML")
	if len(got) != 1 || got[0] != "привет" {
		t.Fatalf("got %q", got)
	}
	if got := splitText("", 10, ""); len(got) != 1 || got[0] != "" {
		t.Fatalf("empty input: got %q", got)
	}
}

func TestSplitTextPrefersLines(t *testing.T) {
	t.Parallel()
	s := "aaaa\nbbbb\ncccc\n"
	got := splitText(s, 10, "")
	want := []string{"aaaa\nbbbb", "cccc"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSplitTextHardCutRespectsLimitAndTags(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("ж", 8) + "<b>x</b>" + strings.Repeat("ж", 8)
	got := splitText(s, 10, "HTML")
	for _, c := range got {
		if n := utf8.RuneCountInString(c); n > 10 {
			t.Fatalf("chunk %q has %d runes", c, n)
		}
	}
	if !strings.HasPrefix(got[1], "<b>") {
		t.Fatalf("tag split across chunks: %q", got)
	}
	if strings.Join(got, "") != s {
		t.Fatalf("content lost: %q", got)
	}
}

func TestTranslateErrFlood(t *testing.T) {
	t.Parallel()
	err := translateErr(tele.FloodError{RetryAfter: 2})
	var fe *kit.FloodError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FloodError, got %T", err)
	}
	if fe.RetryAfter != 2*time.Second {
		t.Fatalf("RetryAfter = %s", fe.RetryAfter)
	}

	plain := errors.New("forbidden")
	if got := translateErr(plain); got != plain {
		t.Fatalf("non-flood errors pass through, got %v", got)
	}
}
