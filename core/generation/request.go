package generation

import (
	"unicode"
	"unicode/utf8"
)

// DefaultTitle is used when a request carries no descriptive text.
const DefaultTitle = "Untitled"

// Request is the submission shape accepted from clients. Every field is optional;
// an empty string means "not supplied".
type Request struct {
	Prompt            string `json:"prompt,omitempty"`
	Lyrics            string `json:"lyrics,omitempty"`
	FullDescribedSong string `json:"fullDescribedSong,omitempty"`
	DescribedLyrics   string `json:"describedLyrics,omitempty"`
	Instrumental      bool   `json:"instrumental,omitempty"`
}

// Variant is the mode a Request is interpreted in. Only Described and Structured implement it.
type Variant interface {
	isVariant()
}

// Described asks the worker to invent the whole song from one description.
type Described struct {
	Description string
}

// Structured carries a style prompt plus either raw lyrics or a lyrics description.
type Structured struct {
	Prompt          string
	Lyrics          string
	DescribedLyrics string
}

func (Described) isVariant()  {}
func (Structured) isVariant() {}

// Variant classifies r. A full description wins over everything else.
func (r Request) Variant() Variant {
	if r.FullDescribedSong != "" {
		return Described{Description: r.FullDescribedSong}
	}
	return Structured{
		Prompt:          r.Prompt,
		Lyrics:          r.Lyrics,
		DescribedLyrics: r.DescribedLyrics,
	}
}

// DeriveTitle picks the display title for v and upper-cases its first character.
func DeriveTitle(v Variant) string {
	title := DefaultTitle
	switch v := v.(type) {
	case Described:
		title = v.Description
	case Structured:
		if v.DescribedLyrics != "" {
			title = v.DescribedLyrics
		}
	}
	return upperFirst(title)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
