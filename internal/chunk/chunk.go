// Package chunk builds sliding windows over an ordered run of posts.
// It is pure: no storage, no clients, just the windowing arithmetic the
// index builder and its tests share.
package chunk

import (
	"fmt"
	"strings"
	"time"
)

// Config controls window geometry. Stride is WindowSize-Overlap and
// must be at least 1 so every pass makes progress.
type Config struct {
	WindowSize int
	Overlap    int
}

func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("overlap must be non-negative, got %d", c.Overlap)
	}
	if c.Overlap >= c.WindowSize {
		return fmt.Errorf("overlap (%d) must be smaller than window size (%d)", c.Overlap, c.WindowSize)
	}
	return nil
}

func (c Config) Stride() int {
	return c.WindowSize - c.Overlap
}

// Record is one post as the chunker sees it. AuthorKey is the stable
// per-poster identity used for citation; Author is the display name.
type Record struct {
	No        int64
	Author    string
	AuthorKey string
	Timestamp time.Time
	Body      string
}

// Window is one contiguous slice of records plus its rendered document
// text. StartNo and EndNo are the source numbers of the first and last
// member, inclusive.
type Window struct {
	StartNo int64
	EndNo   int64
	Records []Record
	Content string
}

// BuildWindows slides a window of cfg.WindowSize over records (which
// must be sorted by No ascending), advancing by the stride. The final
// window snaps back so it always covers the last WindowSize records
// when enough exist; with fewer records than a full window the single
// window covers everything.
func BuildWindows(records []Record, cfg Config) ([]Window, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	total := len(records)
	if total == 0 {
		return nil, nil
	}

	stride := cfg.Stride()
	var out []Window
	for pos := 0; ; pos += stride {
		if pos+cfg.WindowSize >= total {
			start := total - cfg.WindowSize
			if start < 0 {
				start = 0
			}
			out = append(out, newWindow(records[start:total]))
			break
		}
		out = append(out, newWindow(records[pos:pos+cfg.WindowSize]))
	}
	return out, nil
}

// RebuildFromNo returns the first source number (inclusive) an
// incremental index pass should read from: one window's width before
// the earliest new post, so the previously-final (snapped) window is
// regenerated and superseded rather than left stale.
func RebuildFromNo(lastIndexedNo int64, windowSize int) int64 {
	from := lastIndexedNo + 1 - int64(windowSize)
	if from < 0 {
		return 0
	}
	return from
}

func newWindow(records []Record) Window {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, FormatRecord(r))
	}
	return Window{
		StartNo: records[0].No,
		EndNo:   records[len(records)-1].No,
		Records: append([]Record(nil), records...),
		Content: strings.Join(parts, "\n\n---\n\n"),
	}
}

// FormatRecord renders one post for inclusion in a window document.
func FormatRecord(r Record) string {
	return fmt.Sprintf("No.%d %s %s\n%s", r.No, r.Author, r.Timestamp.Format("2006-01-02 15:04:05"), r.Body)
}
