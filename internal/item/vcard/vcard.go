// Package vcard implements the CardDAV half of the item model (RFC 6350),
// grounded on the teacher's pkg/vcard, built on github.com/emersion/go-vcard.
package vcard

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	govcard "github.com/emersion/go-vcard"
)

var ErrInvalidItem = errors.New("vcard: invalid item")

func stripControlChars(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '\t' || b == '\n' || b == '\r' || b >= 0x20 {
			out = append(out, b)
		}
	}
	return out
}

// Parsed is a single decoded vCard, plus its UID (synthesized if absent).
type Parsed struct {
	UID  string
	Card govcard.Card
}

// Parse decodes exactly one vCard. A UID is synthesized from the content
// hash if the card does not carry one (spec.md §8 scenario 6).
func Parse(raw []byte) (*Parsed, error) {
	clean := stripControlChars(raw)
	dec := govcard.NewDecoder(bytes.NewReader(clean))
	card, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if _, err := dec.Decode(); err == nil {
		return nil, fmt.Errorf("%w: multiple vcards in one item", ErrInvalidItem)
	}
	if card.Value(govcard.FieldFormattedName) == "" {
		return nil, fmt.Errorf("%w: missing FN", ErrInvalidItem)
	}

	uid := card.Value(govcard.FieldUID)
	if uid == "" {
		uid = SynthesizeUID(clean)
		card.SetValue(govcard.FieldUID, uid)
	}
	return &Parsed{UID: uid, Card: card}, nil
}

// SynthesizeUID mirrors ical.SynthesizeUID: a stable hash of the bytes it
// is given (Parse passes the control-character-stripped upload), so
// re-uploading identical bytes is idempotent.
func SynthesizeUID(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return "synth-" + hex.EncodeToString(sum[:16]) + "@caldavd"
}

// ParseStream decodes a multi-card vCard stream into one Parsed per card,
// the whole-collection upload path of spec.md §4.6. Cards without a UID
// are synthesized one from their own encoded bytes.
func ParseStream(raw []byte) ([]*Parsed, error) {
	clean := stripControlChars(raw)
	dec := govcard.NewDecoder(bytes.NewReader(clean))
	var out []*Parsed
	for {
		card, err := dec.Decode()
		if err != nil {
			break
		}
		if card.Value(govcard.FieldFormattedName) == "" {
			return nil, fmt.Errorf("%w: missing FN", ErrInvalidItem)
		}
		uid := card.Value(govcard.FieldUID)
		if uid == "" {
			var buf bytes.Buffer
			if err := govcard.NewEncoder(&buf).Encode(card); err != nil {
				return nil, err
			}
			uid = SynthesizeUID(buf.Bytes())
			card.SetValue(govcard.FieldUID, uid)
		}
		out = append(out, &Parsed{UID: uid, Card: card})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty stream", ErrInvalidItem)
	}
	return out, nil
}

// Canonicalize re-serializes the card, ensuring VERSION is present.
func Canonicalize(card govcard.Card) ([]byte, error) {
	if card.Value(govcard.FieldVersion) == "" {
		card.SetValue(govcard.FieldVersion, "4.0")
	}
	var buf bytes.Buffer
	if err := govcard.NewEncoder(&buf).Encode(card); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
