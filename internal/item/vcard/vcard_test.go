package vcard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainCard = `BEGIN:VCARD
VERSION:4.0
FN:Alice Example
UID:alice-1@example.com
END:VCARD
`

func TestParseExtractsUID(t *testing.T) {
	p, err := Parse([]byte(plainCard))
	require.NoError(t, err)
	assert.Equal(t, "alice-1@example.com", p.UID)
}

func TestParseSynthesizesUIDWhenMissing(t *testing.T) {
	noUID := `BEGIN:VCARD
VERSION:4.0
FN:Bob Example
END:VCARD
`
	p1, err := Parse([]byte(noUID))
	require.NoError(t, err)
	p2, err := Parse([]byte(noUID))
	require.NoError(t, err)
	assert.NotEmpty(t, p1.UID)
	assert.Equal(t, p1.UID, p2.UID, "re-uploading identical bytes must synthesize the same UID")
}

func TestParseRejectsMissingFormattedName(t *testing.T) {
	_, err := Parse([]byte("BEGIN:VCARD\nVERSION:4.0\nUID:x@example.com\nEND:VCARD\n"))
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestParseRejectsMultipleCardsInOneItem(t *testing.T) {
	two := plainCard + `BEGIN:VCARD
VERSION:4.0
FN:Second Card
UID:second@example.com
END:VCARD
`
	_, err := Parse([]byte(two))
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestParseStreamDecodesMultipleCards(t *testing.T) {
	stream := plainCard + `BEGIN:VCARD
VERSION:4.0
FN:Carol Example
UID:carol-1@example.com
END:VCARD
`
	out, err := ParseStream([]byte(stream))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "alice-1@example.com", out[0].UID)
	assert.Equal(t, "carol-1@example.com", out[1].UID)
}

func TestParseStreamSynthesizesMissingUIDs(t *testing.T) {
	stream := `BEGIN:VCARD
VERSION:4.0
FN:No UID Card
END:VCARD
`
	out, err := ParseStream([]byte(stream))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.NotEmpty(t, out[0].UID)
}

func TestParseStreamRejectsMissingFormattedName(t *testing.T) {
	stream := `BEGIN:VCARD
VERSION:4.0
UID:x@example.com
END:VCARD
`
	_, err := ParseStream([]byte(stream))
	assert.ErrorIs(t, err, ErrInvalidItem)
}

func TestCanonicalizeEnsuresVersion(t *testing.T) {
	p, err := Parse([]byte(plainCard))
	require.NoError(t, err)
	delete(p.Card, "VERSION")
	out, err := Canonicalize(p.Card)
	require.NoError(t, err)
	assert.Contains(t, string(out), "VERSION:4.0")
}
