// Package content defines the broadcastable payload: one text or media item with an optional caption.
package content

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindText     Kind = "text"
	KindPhoto    Kind = "photo"
	KindVideo    Kind = "video"
	KindDocument Kind = "document"
	KindAudio    Kind = "audio"
	KindVoice    Kind = "voice"
	KindSticker  Kind = "sticker"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindText, KindPhoto, KindVideo, KindDocument, KindAudio, KindVoice, KindSticker}

var (
	ErrUnknownKind       = errors.New("content: unknown kind")
	ErrEmptyRef          = errors.New("content: empty reference")
	ErrCaptionNotAllowed = errors.New("content: caption not supported for kind")
)

// SupportsCaption reports whether items of kind k may carry a caption.
func (k Kind) SupportsCaption() bool {
	switch k {
	case KindText, KindPhoto, KindVideo, KindDocument, KindAudio:
		return true
	default:
		return false
	}
}

func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// Item is immutable once built. For KindText, Ref is the message body;
// for media kinds it is the remote file handle.
type Item struct {
	kind    Kind
	ref     string
	caption string
}

// New validates and builds an Item.
func New(kind Kind, ref, caption string) (Item, error) {
	if !kind.Valid() {
		return Item{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if strings.TrimSpace(ref) == "" {
		return Item{}, fmt.Errorf("%w (%s)", ErrEmptyRef, kind)
	}
	if caption != "" && !kind.SupportsCaption() {
		return Item{}, fmt.Errorf("%w: %s", ErrCaptionNotAllowed, kind)
	}
	return Item{kind: kind, ref: ref, caption: caption}, nil
}

func Text(body string) (Item, error) { return New(KindText, body, "") }

func Photo(fileID, caption string) (Item, error)    { return New(KindPhoto, fileID, caption) }
func Video(fileID, caption string) (Item, error)    { return New(KindVideo, fileID, caption) }
func Document(fileID, caption string) (Item, error) { return New(KindDocument, fileID, caption) }
func Audio(fileID, caption string) (Item, error)    { return New(KindAudio, fileID, caption) }
func Voice(fileID string) (Item, error)             { return New(KindVoice, fileID, "") }
func Sticker(fileID string) (Item, error)           { return New(KindSticker, fileID, "") }

func (i Item) Kind() Kind      { return i.kind }
func (i Item) Ref() string     { return i.ref }
func (i Item) Caption() string { return i.caption }
func (i Item) IsZero() bool    { return i.kind == "" }

func (i Item) String() string {
	if i.kind == KindText {
		return fmt.Sprintf("text(%d chars)", len([]rune(i.ref)))
	}
	return fmt.Sprintf("%s(%s)", i.kind, i.ref)
}
