package ingest

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_ShortTextOneChunk(t *testing.T) {
	got := NewSplitter(500, 50).Split("  Jane Doe\njane@example.com  ")
	if len(got) != 1 || got[0] != "Jane Doe\njane@example.com" {
		t.Errorf("Split = %q", got)
	}
}

func TestSplit_Empty(t *testing.T) {
	if got := NewSplitter(500, 50).Split(" \n\n "); len(got) != 0 {
		t.Errorf("Split(blank) = %q, want none", got)
	}
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	p1 := strings.Repeat("a", 30)
	p2 := strings.Repeat("b", 30)
	p3 := strings.Repeat("c", 30)
	got := NewSplitter(64, 0).Split(p1 + "\n\n" + p2 + "\n\n" + p3)

	want := []string{p1 + "\n\n" + p2, p3}
	if len(got) != len(want) {
		t.Fatalf("Split = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplit_ChunkSizeRespected(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 400; i++ {
		sb.WriteString("experience ")
		if i%25 == 0 {
			sb.WriteString("\n")
		}
		if i%90 == 0 {
			sb.WriteString("\n\n")
		}
	}
	chunks := NewSplitter(DefaultChunkSize, DefaultChunkOverlap).Split(sb.String())
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > DefaultChunkSize {
			t.Errorf("chunk %d has %d runes, max %d", i, n, DefaultChunkSize)
		}
		if c == "" || c != strings.TrimSpace(c) {
			t.Errorf("chunk %d not trimmed: %q", i, c)
		}
	}
}

func TestSplit_Overlap(t *testing.T) {
	words := make([]string, 40)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	// 40 words of 4 runes separated by spaces; 20-rune chunks with 10-rune overlap.
	chunks := NewSplitter(20, 10).Split(strings.Join(words, " "))
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1])
		first := strings.Fields(chunks[i])[0]
		if prev[len(prev)-1] != first && prev[len(prev)-2] != first {
			t.Errorf("chunk %d does not overlap the previous one: %q / %q", i, chunks[i-1], chunks[i])
		}
	}
}

func TestSplit_UnbrokenRunHardSplit(t *testing.T) {
	chunks := NewSplitter(10, 0).Split(strings.Repeat("é", 25))
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3: %q", len(chunks), chunks)
	}
	if utf8.RuneCountInString(chunks[0]) != 10 || utf8.RuneCountInString(chunks[2]) != 5 {
		t.Errorf("chunk sizes = %d, %d, %d", utf8.RuneCountInString(chunks[0]), utf8.RuneCountInString(chunks[1]), utf8.RuneCountInString(chunks[2]))
	}
}

func TestNewSplitter_Defaults(t *testing.T) {
	s := NewSplitter(0, -1)
	if s.ChunkSize != DefaultChunkSize || s.ChunkOverlap != DefaultChunkOverlap {
		t.Errorf("NewSplitter(0, -1) = %d/%d", s.ChunkSize, s.ChunkOverlap)
	}
	if s := NewSplitter(10, 10); s.ChunkOverlap >= s.ChunkSize {
		t.Errorf("overlap %d not reduced below size %d", s.ChunkOverlap, s.ChunkSize)
	}
}
