package article

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/osmbc/articles/internal/blog"
)

// Field names with special meaning.
const (
	FieldTitle              = "title"
	FieldCollection         = "collection"
	FieldCategory           = "categoryEN"
	FieldBlog               = "blog"
	FieldComment            = "comment"
	FieldCommentStatus      = "commentStatus"
	FieldPredecessorID      = "predecessorId"
	FieldUnpublishReason    = "unpublishReason"
	FieldUnpublishReference = "unpublishReference"

	MarkdownPrefix = "markdown"

	// CategoryUnpublished marks an article as retired.
	CategoryUnpublished = "--unpublished--"

	StatusOpen   = "open"
	StatusSolved = "solved"

	NoTranslation = "no translation"

	Table = "article"
)

// Comment is one entry of the discussion thread.
type Comment struct {
	User      string     `json:"user" bson:"user"`
	Timestamp time.Time  `json:"timestamp" bson:"timestamp"`
	Text      string     `json:"text" bson:"text"`
	EditStamp *time.Time `json:"editstamp,omitempty" bson:"editstamp,omitempty"`
}

// Lock is the cooperative editing marker.
type Lock struct {
	User      string    `json:"user" bson:"user"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Article is a collaboratively edited record. Known attributes are typed;
// markdown<LANG> texts and any extension attribute live in Fields and are
// flattened into the top level of the stored JSON/BSON object.
type Article struct {
	ID                 int64               `json:"id" bson:"_id"`
	Version            int                 `json:"version" bson:"version"`
	Title              string              `json:"title,omitempty" bson:"title,omitempty"`
	Collection         string              `json:"collection,omitempty" bson:"collection,omitempty"`
	CategoryEN         string              `json:"categoryEN,omitempty" bson:"categoryEN,omitempty"`
	Blog               string              `json:"blog,omitempty" bson:"blog,omitempty"`
	Comment            string              `json:"comment,omitempty" bson:"comment,omitempty"`
	CommentList        []Comment           `json:"commentList,omitempty" bson:"commentList,omitempty"`
	CommentStatus      string              `json:"commentStatus,omitempty" bson:"commentStatus,omitempty"`
	CommentRead        map[string]int      `json:"commentRead,omitempty" bson:"commentRead,omitempty"`
	Votes              map[string][]string `json:"votes,omitempty" bson:"votes,omitempty"`
	Tags               []string            `json:"tags,omitempty" bson:"tags,omitempty"`
	Lock               *Lock               `json:"lock,omitempty" bson:"lock,omitempty"`
	CopyTo             map[string]int64    `json:"copyTo,omitempty" bson:"copyTo,omitempty"`
	OriginArticleID    int64               `json:"originArticleId,omitempty" bson:"originArticleId,omitempty"`
	PredecessorID      string              `json:"predecessorId,omitempty" bson:"predecessorId,omitempty"`
	UnpublishReason    string              `json:"unpublishReason,omitempty" bson:"unpublishReason,omitempty"`
	UnpublishReference string              `json:"unpublishReference,omitempty" bson:"unpublishReference,omitempty"`

	Fields map[string]string `json:"-" bson:",inline"`

	// transient, never persisted
	container       *blog.Blog
	containerLoaded bool
	derived         *Derived
	links           []string
	backlinks       *Backlinks
	origin          *Origin
}

// Derived is the per-field authorship and last-change information
// reconstructed from the change log.
type Derived struct {
	LastChange map[string]time.Time `json:"lastChange"`
	Authors    map[string][]string  `json:"authors"`
}

// Backlinks maps every outbound link to the other articles referencing it.
type Backlinks struct {
	Links map[string][]*Article `json:"links"`
	Count int                   `json:"count"`
}

// Origin is the article this one was copied from, with its container.
type Origin struct {
	Article *Article   `json:"article"`
	Blog    *blog.Blog `json:"blog,omitempty"`
}

// structural attributes, not writable through a field proposal
var structural = map[string]bool{
	"id":              true,
	"_id":             true,
	"version":         true,
	"commentList":     true,
	"commentRead":     true,
	"votes":           true,
	"tags":            true,
	"lock":            true,
	"copyTo":          true,
	"originArticleId": true,
	"old":             true,
	"addComment":      true,
}

// operation names of the document API; a same-named field is never stored
var operations = map[string]bool{
	"save":                         true,
	"remove":                       true,
	"setAndSave":                   true,
	"proposeUpdate":                true,
	"addComment":                   true,
	"addCommentFunction":           true,
	"editComment":                  true,
	"markCommentRead":              true,
	"getCommentMention":            true,
	"getCommentRead":               true,
	"isMentioned":                  true,
	"isChangeAllowed":              true,
	"doLock":                       true,
	"doUnlock":                     true,
	"setVote":                      true,
	"unsetVote":                    true,
	"setTag":                       true,
	"unsetTag":                     true,
	"copyToBlog":                   true,
	"addNotranslate":               true,
	"calculateLinks":               true,
	"calculateUsedLinks":           true,
	"calculateDerivedFromChanges":  true,
	"calculateDerivedFromSourceId": true,
	"displayTitle":                 true,
	"getCategory":                  true,
	"getTable":                     true,
}

// IsReserved reports whether name may not be written through a proposal.
func IsReserved(name string) bool {
	return structural[name] || operations[name]
}

// IsMarkdownField reports whether name is a markdown<LANG> field.
func IsMarkdownField(name string) bool {
	return strings.HasPrefix(name, MarkdownPrefix) && len(name) > len(MarkdownPrefix)
}

func MarkdownField(lang string) string { return MarkdownPrefix + lang }

// Field returns the string value of a named attribute; unknown or unset
// attributes read as "".
func (a *Article) Field(name string) string {
	v, _ := a.Lookup(name)
	return v
}

// Lookup is Field with a presence flag. Empty typed attributes count as
// absent, matching the stored shape where they are omitted.
func (a *Article) Lookup(name string) (string, bool) {
	var v string
	switch name {
	case FieldTitle:
		v = a.Title
	case FieldCollection:
		v = a.Collection
	case FieldCategory:
		v = a.CategoryEN
	case FieldBlog:
		v = a.Blog
	case FieldComment:
		v = a.Comment
	case FieldCommentStatus:
		v = a.CommentStatus
	case FieldPredecessorID:
		v = a.PredecessorID
	case FieldUnpublishReason:
		v = a.UnpublishReason
	case FieldUnpublishReference:
		v = a.UnpublishReference
	default:
		s, ok := a.Fields[name]
		return s, ok
	}
	return v, v != ""
}

// SetField writes a string attribute. Reserved names are ignored and
// reported as false.
func (a *Article) SetField(name, value string) bool {
	if IsReserved(name) {
		return false
	}
	switch name {
	case FieldTitle:
		a.Title = value
	case FieldCollection:
		a.Collection = value
	case FieldCategory:
		a.CategoryEN = value
	case FieldBlog:
		a.Blog = value
		a.container, a.containerLoaded = nil, false
	case FieldComment:
		a.Comment = value
	case FieldCommentStatus:
		a.CommentStatus = value
	case FieldPredecessorID:
		a.PredecessorID = value
	case FieldUnpublishReason:
		a.UnpublishReason = value
	case FieldUnpublishReference:
		a.UnpublishReference = value
	default:
		if a.Fields == nil {
			a.Fields = make(map[string]string)
		}
		a.Fields[name] = value
	}
	a.links = nil
	return true
}

// MarkdownFields returns the names of all markdown fields in sorted order.
func (a *Article) MarkdownFields() []string {
	var out []string
	for k := range a.Fields {
		if IsMarkdownField(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// IsUnpublished reports whether the article is retired, either by category
// or by living in the trash container.
func (a *Article) IsUnpublished() bool {
	return a.CategoryEN == CategoryUnpublished || blog.IsTrash(a.Blog)
}

// Container returns the loaded owning container and whether it was loaded.
// A loaded nil container means there is no lifecycle dependency.
func (a *Article) Container() (*blog.Blog, bool) {
	return a.container, a.containerLoaded
}

func (a *Article) SetContainer(b *blog.Blog) {
	a.container = b
	a.containerLoaded = true
}

func (a *Article) CachedDerived() *Derived {
	return a.derived
}

func (a *Article) SetDerived(d *Derived) {
	a.derived = d
}

func (a *Article) CachedBacklinks() *Backlinks {
	return a.backlinks
}

func (a *Article) SetBacklinks(b *Backlinks) {
	a.backlinks = b
}

func (a *Article) CachedOrigin() *Origin {
	return a.origin
}

func (a *Article) SetOrigin(o *Origin) {
	a.origin = o
}

// ResetCaches drops memoized derived state after the article changed.
func (a *Article) ResetCaches() {
	a.derived = nil
	a.links = nil
	a.backlinks = nil
	a.origin = nil
}

// Clone returns a deep copy of the persisted attributes without any
// transient state.
func (a *Article) Clone() *Article {
	c := *a
	c.ResetCaches()
	c.container, c.containerLoaded = nil, false
	if a.CommentList != nil {
		c.CommentList = make([]Comment, len(a.CommentList))
		for i, cm := range a.CommentList {
			c.CommentList[i] = cm
			if cm.EditStamp != nil {
				t := *cm.EditStamp
				c.CommentList[i].EditStamp = &t
			}
		}
	}
	if a.CommentRead != nil {
		c.CommentRead = make(map[string]int, len(a.CommentRead))
		for k, v := range a.CommentRead {
			c.CommentRead[k] = v
		}
	}
	if a.Votes != nil {
		c.Votes = make(map[string][]string, len(a.Votes))
		for k, v := range a.Votes {
			c.Votes[k] = append([]string(nil), v...)
		}
	}
	if a.Tags != nil {
		c.Tags = append([]string(nil), a.Tags...)
	}
	if a.Lock != nil {
		l := *a.Lock
		c.Lock = &l
	}
	if a.CopyTo != nil {
		c.CopyTo = make(map[string]int64, len(a.CopyTo))
		for k, v := range a.CopyTo {
			c.CopyTo[k] = v
		}
	}
	if a.Fields != nil {
		c.Fields = make(map[string]string, len(a.Fields))
		for k, v := range a.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}

// record has the same layout as Article without its JSON methods.
type record Article

var knownJSON = map[string]bool{
	"id": true, "version": true, "title": true, "collection": true,
	"categoryEN": true, "blog": true, "comment": true, "commentList": true,
	"commentStatus": true, "commentRead": true, "votes": true, "tags": true,
	"lock": true, "copyTo": true, "originArticleId": true, "predecessorId": true,
	"unpublishReason": true, "unpublishReference": true,
}

// MarshalJSON flattens Fields into the top-level object.
func (a Article) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(record(a))
	if err != nil || len(a.Fields) == 0 {
		return base, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(base, &m); err != nil {
		return nil, err
	}
	for k, v := range a.Fields {
		if knownJSON[k] {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		m[k] = raw
	}
	return json.Marshal(m)
}

// UnmarshalJSON collects every unknown string attribute into Fields.
// Non-string unknown attributes are dropped.
func (a *Article) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*a = Article(r)
	for k, raw := range m {
		if knownJSON[k] {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) != nil {
			continue
		}
		if a.Fields == nil {
			a.Fields = make(map[string]string)
		}
		a.Fields[k] = s
	}
	return nil
}
