package search

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"GoRowSearch/internal/checksum"
)

const cursorPrefix = "cur1:"

// Cursor resumes a scan after Marker. It is only valid for the sort whose
// fingerprint it carries.
type Cursor struct {
	Sort   string     `json:"sort"`
	Marker RankMarker `json:"marker"`
}

type cursorToken struct {
	Cursor
	Sum string `json:"sum"`
}

// NewCursor binds a marker to the sort that produced it.
func NewCursor(s Sort, m RankMarker) Cursor {
	return Cursor{Sort: s.Fingerprint(), Marker: m}
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	body, err := json.Marshal(c)
	if err != nil {
		// Cursor holds only strings and float pointers.
		panic(fmt.Sprintf("search: marshal cursor: %v", err))
	}
	tok, _ := json.Marshal(cursorToken{Cursor: c, Sum: checksum.Compute(body).Short(16)})
	return cursorPrefix + base64.RawURLEncoding.EncodeToString(tok)
}

// DecodeCursor parses a token produced by Encode.
func DecodeCursor(token string) (Cursor, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(token), cursorPrefix)
	if !ok {
		return Cursor{}, fmt.Errorf("%w: missing %q prefix", ErrInvalidCursor, cursorPrefix)
	}
	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var tok cursorToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	body, err := json.Marshal(tok.Cursor)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if sum := checksum.Compute(body).Short(16); sum != tok.Sum {
		return Cursor{}, fmt.Errorf("%w: checksum mismatch", ErrInvalidCursor)
	}
	return tok.Cursor, nil
}
