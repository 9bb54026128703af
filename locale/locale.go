// Package locale holds the notification texts per language.
//
// Texts are looked up by Key, never by free-form name. A language that lacks a
// key falls back to English for that key.
package locale

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Key identifies one translatable text.
type Key int

const (
	// LiveContent: role mention, display name, game.
	LiveContent Key = iota
	// UpdateContent: role mention, display name, game.
	UpdateContent
	// VodContent: role mention, display name, session duration.
	VodContent
	Playing
	Started
	// WatchFrom: markdown link to the VOD timestamp.
	WatchFrom
	Timestamps
	TopClips
	Views
	VideoRemoved
	NoCategory
	keyCount
)

// Lang is a resolved language with its text table.
type Lang struct {
	tag   language.Tag
	table map[Key]string
}

var (
	English = Lang{tag: language.English, table: en}
	German  = Lang{tag: language.German, table: de}
	Spanish = Lang{tag: language.Spanish, table: es}
	French  = Lang{tag: language.French, table: fr}

	supported = []Lang{English, German, Spanish, French}
	matcher   = language.NewMatcher([]language.Tag{language.English, language.German, language.Spanish, language.French})
)

// Parse resolves a language code such as "de" or "en-GB" to a supported Lang.
func Parse(code string) (Lang, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Lang{}, false
	}
	tag, err := language.Parse(code)
	if err != nil {
		return Lang{}, false
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return Lang{}, false
	}
	return supported[idx], true
}

// For resolves code, returning fallback for empty or unsupported codes.
// Twitch reports "other" for streams without a language; that falls back too.
func For(code string, fallback Lang) Lang {
	if l, ok := Parse(code); ok {
		return l
	}
	if fallback.table == nil {
		return English
	}
	return fallback
}

// Tag returns the BCP 47 tag of the language.
func (l Lang) Tag() language.Tag {
	if l.table == nil {
		return language.English
	}
	return l.tag
}

func (l Lang) String() string { return l.Tag().String() }

// Text formats the text for k with args. Missing keys fall back to English.
func (l Lang) Text(k Key, args ...any) string {
	tmpl, ok := l.table[k]
	if !ok {
		tmpl, ok = en[k]
	}
	if !ok {
		return fmt.Sprintf("!%d!", int(k))
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
