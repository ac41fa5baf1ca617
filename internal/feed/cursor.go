package feed

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor pins a ranking epoch and a position within it. Ages are computed
// against the epoch, so replaying a cursor over unchanged counters
// reproduces the exact ordering; a fresh cursor picks up a fresh epoch and
// with it fresh data.
type Cursor struct {
	EpochUnixMilli int64 `json:"e"`
	Offset         int   `json:"o"`
}

func (c Cursor) Epoch() time.Time {
	return time.UnixMilli(c.EpochUnixMilli)
}

// Encode returns the opaque wire form.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeCursor parses the wire form. An empty string starts a new epoch at
// now with offset zero.
func DecodeCursor(s string, now time.Time) (Cursor, error) {
	if s == "" {
		return Cursor{EpochUnixMilli: now.UnixMilli()}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	if c.EpochUnixMilli <= 0 || c.Offset < 0 {
		return Cursor{}, fmt.Errorf("decode cursor: out of range")
	}
	return c, nil
}
