package article

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Mention classifies how a reader is addressed by the open discussion.
type Mention string

const (
	MentionNone     Mention = ""
	MentionUser     Mention = "user"
	MentionLanguage Mention = "language"
	MentionOther    Mention = "other"
)

const (
	markerSolved = "#solved"
	markerOpen   = "#open"
)

// statusMarker returns the thread status a comment text asks for, if any.
// #open is evaluated last and wins over #solved.
func statusMarker(text string) (string, bool) {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, markerOpen):
		return StatusOpen, true
	case strings.Contains(lower, markerSolved):
		return StatusSolved, true
	}
	return "", false
}

// AddComment appends a comment by user and moves user's read position to it.
func (a *Article) AddComment(user, text string, now time.Time) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Message: "empty comment"}
	}
	a.CommentList = append(a.CommentList, Comment{User: user, Timestamp: now, Text: text})
	a.CommentStatus = StatusOpen
	if status, ok := statusMarker(text); ok {
		a.CommentStatus = status
	}
	if a.CommentRead == nil {
		a.CommentRead = make(map[string]int)
	}
	a.CommentRead[user] = len(a.CommentList) - 1
	return nil
}

// EditComment replaces the text of comment index. Only its author may edit.
// The thread status changes only when the new text carries a marker.
func (a *Article) EditComment(user string, index int, text string, now time.Time) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Message: "empty comment"}
	}
	if index < 0 || index >= len(a.CommentList) {
		return &ValidationError{Message: fmt.Sprintf("comment index %d out of range", index)}
	}
	c := &a.CommentList[index]
	if c.User != user {
		return &AuthorizationError{Message: "only the author may change a comment"}
	}
	c.Text = text
	stamp := now
	c.EditStamp = &stamp
	// without a marker the thread keeps its status
	if status, ok := statusMarker(text); ok {
		a.CommentStatus = status
	}
	if a.CommentRead == nil {
		a.CommentRead = make(map[string]int)
	}
	if r, ok := a.CommentRead[user]; !ok || r < index {
		a.CommentRead[user] = index
	}
	return nil
}

// MarkCommentRead records that user has read through comment index.
// index is clamped to the last comment; -1 means nothing read. Returns
// false when there is no thread to read.
func (a *Article) MarkCommentRead(user string, index int) (bool, error) {
	if len(a.CommentList) == 0 {
		return false, nil
	}
	if index >= len(a.CommentList) {
		index = len(a.CommentList) - 1
	}
	if index < -1 {
		return false, &ValidationError{Message: fmt.Sprintf("read index %d out of range", index)}
	}
	if a.CommentRead == nil {
		a.CommentRead = make(map[string]int)
	}
	a.CommentRead[user] = index
	return true, nil
}

// IsCommentRead reports whether user has caught up with the thread.
func (a *Article) IsCommentRead(user string) bool {
	r, ok := a.CommentRead[user]
	if !ok {
		return false
	}
	return r >= len(a.CommentList)-1
}

// threadText is the legacy comment followed by every comment text.
func (a *Article) threadText() string {
	var b strings.Builder
	b.WriteString(a.Comment)
	for _, c := range a.CommentList {
		b.WriteString(" ")
		b.WriteString(c.Text)
	}
	return b.String()
}

func (a *Article) hasThread() bool {
	return a.Comment != "" || len(a.CommentList) > 0
}

// CommentMention reports how user is addressed in an unsolved thread:
// by name, by one of the two languages or @all, by an unaddressed comment,
// or not at all.
func (a *Article) CommentMention(user, lang1, lang2 string) Mention {
	if a.CommentStatus == StatusSolved || !a.hasThread() {
		return MentionNone
	}
	text := a.threadText()
	if strings.TrimSpace(text) == "" {
		return MentionNone
	}
	if user != "" && mentions(text, user) {
		return MentionUser
	}
	if lang1 != "" && mentions(text, lang1) {
		return MentionLanguage
	}
	if lang2 != "" && mentions(text, lang2) {
		return MentionLanguage
	}
	if mentions(text, "all") {
		return MentionLanguage
	}
	return MentionOther
}

// IsMentioned reports whether @tag (or @all when includeAll) appears in an
// unsolved thread.
func (a *Article) IsMentioned(tag string, includeAll bool) bool {
	if a.CommentStatus == StatusSolved || !a.hasThread() {
		return false
	}
	text := a.threadText()
	if tag != "" && mentions(text, tag) {
		return true
	}
	return includeAll && mentions(text, "all")
}

// mentions finds "@"+tag case-insensitively where the next rune is not a
// letter or digit.
func mentions(text, tag string) bool {
	hay := strings.ToLower(text)
	needle := "@" + strings.ToLower(tag)
	for off := 0; off <= len(hay)-len(needle); {
		i := strings.Index(hay[off:], needle)
		if i < 0 {
			return false
		}
		end := off + i + len(needle)
		if end == len(hay) {
			return true
		}
		r, _ := utf8.DecodeRuneInString(hay[end:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return true
		}
		off += i + 1
	}
	return false
}
