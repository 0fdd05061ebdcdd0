package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCaptionRules(t *testing.T) {
	for _, k := range Kinds {
		_, err := New(k, "ref", "cap")
		if k.SupportsCaption() {
			assert.NoError(t, err, "kind %s", k)
		} else {
			assert.ErrorIs(t, err, ErrCaptionNotAllowed, "kind %s", k)
		}
	}
}

func TestNewRejectsEmptyRefAndUnknownKind(t *testing.T) {
	_, err := New(KindPhoto, "  ", "")
	assert.ErrorIs(t, err, ErrEmptyRef)

	_, err = New(Kind("location"), "x", "")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestConstructors(t *testing.T) {
	it, err := Photo("AgACAgQ", "look")
	require.NoError(t, err)
	assert.Equal(t, KindPhoto, it.Kind())
	assert.Equal(t, "AgACAgQ", it.Ref())
	assert.Equal(t, "look", it.Caption())

	v, err := Voice("AwACAgQ")
	require.NoError(t, err)
	assert.Empty(t, v.Caption())

	txt, err := Text("hello")
	require.NoError(t, err)
	assert.Equal(t, "text(5 chars)", txt.String())
	assert.False(t, txt.IsZero())
	assert.True(t, Item{}.IsZero())
}
