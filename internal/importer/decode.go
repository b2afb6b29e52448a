package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/dataset-importer/internal/dataset"
)

// flexInt accepts JSON numbers and numeric strings. Set is false for null,
// absent and unparsable values.
type flexInt struct {
	Value int64
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	*f = flexInt{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		*f = flexInt{Value: n, Set: true}
		return nil
	}
	if fl, err := strconv.ParseFloat(string(b), 64); err == nil && fl == float64(int64(fl)) {
		*f = flexInt{Value: int64(fl), Set: true}
	}
	return nil
}

func (f flexInt) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, f.Value, 10), nil
}

// Present reports a non-zero value.
func (f flexInt) Present() bool {
	return f.Set && f.Value != 0
}

// flexString accepts JSON strings and numbers. Set is false for null and absent.
type flexString struct {
	Value string
	Set   bool
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	*f = flexString{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		if err := json.Unmarshal(b, &f.Value); err != nil {
			return err
		}
		f.Set = true
		return nil
	}
	f.Value = string(b)
	f.Set = true
	return nil
}

func (f flexString) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Present reports a non-empty value.
func (f flexString) Present() bool {
	return f.Set && f.Value != "" && f.Value != "0"
}

// Ptr returns nil when unset.
func (f flexString) Ptr() *string {
	if !f.Set {
		return nil
	}
	v := f.Value
	return &v
}

// jsonList re-encodes a list-valued field, defaulting to [] when absent or null.
func jsonList(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]")
	}
	return append(json.RawMessage(nil), trimmed...)
}

// jsonValue keeps a nested value as JSON, or nil when absent.
func jsonValue(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), trimmed...)
}

// parseDMY converts dd/mm/yyyy into a date. Empty or invalid input yields nil.
func parseDMY(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse("2/1/2006", s)
	if err != nil {
		return nil
	}
	return &t
}

var verseRefPattern = regexp.MustCompile(`\((\d+):(\d+)\)`)

// parseVerseRefs extracts "(surah:verse)" references in order of appearance,
// without duplicates.
func parseVerseRefs(found string) []dataset.VerseRef {
	matches := verseRefPattern.FindAllStringSubmatch(found, -1)
	seen := make(map[dataset.VerseRef]struct{}, len(matches))
	refs := make([]dataset.VerseRef, 0, len(matches))
	for _, m := range matches {
		surah, err1 := strconv.Atoi(m[1])
		verse, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		ref := dataset.VerseRef{Surah: surah, Verse: verse}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	return refs
}

// dedupe keeps the last occurrence of each key at the position of the first
// and reports how many rows were folded away.
func dedupe[T any, K comparable](rows []T, key func(T) K) ([]T, int) {
	index := make(map[K]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if i, ok := index[k]; ok {
			out[i] = r
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out, len(rows) - len(out)
}

// collapse dedupes rows of kind and logs the merged duplicates.
func collapse[T any, K comparable](b *base, kind string, rows []T, key func(T) K) ([]T, int) {
	out, merged := dedupe(rows, key)
	if merged > 0 {
		b.logger.Warn("duplicate records merged into their last occurrence",
			zap.String("kind", kind),
			zap.Int("merged", merged),
			zap.Int("kept", len(out)),
		)
	}
	return out, merged
}

func describe(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
