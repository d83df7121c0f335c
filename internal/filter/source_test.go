package filter

import (
	"context"
	"strings"
	"testing"
)

func TestFileLineSourceDecodesLines(t *testing.T) {
	r := strings.NewReader("alpha\nbeta\ngamma\n")
	src := NewFileLineSource("mem", r, nil)
	defer src.Close()

	var got []string
	for {
		item, ok, err := src.Next(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, item.RawText)
	}
	want := []string{"alpha", "beta", "gamma"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestToValidUTF8ReplacesInvalidBytes(t *testing.T) {
	invalid := string([]byte{0xff, 0xfe, 'a'})
	out := toValidUTF8(invalid)
	if !strings.Contains(out, "a") {
		t.Fatalf("expected valid bytes preserved, got %q", out)
	}
}

func TestSliceSourceExhausts(t *testing.T) {
	src := NewSliceSource(nil)
	_, ok, err := src.Next(context.Background())
	if ok || err != nil {
		t.Fatalf("expected empty source to report done immediately")
	}
}
