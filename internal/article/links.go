package article

import (
	"regexp"
	"strings"
	"unicode"
)

var urlPattern = regexp.MustCompile(`(http|ftp|https)://([\w\-_]+(?:(?:\.[\w\-_]+)+))([\w\-\.,@?^=%&:/~\+#]*[\w\-@?^=%&/~\+#])?`)

// ExcludedBacklinkCategories are recurring sections whose links point at
// many unrelated articles.
var ExcludedBacklinkCategories = map[string]bool{
	"Upcoming Events": true,
	"Releases":        true,
}

// Links returns the unique URLs found in collection and in every
// markdown<LANG> field of languages, in order of first appearance.
// URLs equal to one of flags (language flag images) are skipped.
func (a *Article) Links(languages []string, flags []string) []string {
	if a.links != nil {
		return a.links
	}
	skip := make(map[string]bool, len(flags))
	for _, f := range flags {
		skip[f] = true
	}
	sources := []string{a.Collection}
	for _, l := range languages {
		sources = append(sources, a.Fields[MarkdownField(l)])
	}
	seen := make(map[string]bool)
	links := []string{}
	for _, text := range sources {
		if text == "" {
			continue
		}
		for _, u := range urlPattern.FindAllString(text, -1) {
			if skip[u] || seen[u] {
				continue
			}
			seen[u] = true
			links = append(links, u)
		}
	}
	a.links = links
	return links
}

// IsSingleURL reports whether s, once trimmed, is exactly one URL.
func IsSingleURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	loc := urlPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// DisplayTitle is the title, or the collection, shortened to maxLength
// runes; "No Title" when both are empty. maxLength <= 0 means 30.
func (a *Article) DisplayTitle(maxLength int) string {
	if maxLength <= 0 {
		maxLength = 30
	}
	var result string
	if a.Title != "" {
		result = shorten(a.Title, maxLength)
	} else if a.Collection != "" {
		result = shorten(a.Collection, maxLength)
	}
	if strings.TrimSpace(result) == "" {
		return "No Title"
	}
	return result
}

// shorten collapses whitespace runs, then cuts to max runes with a "..."
// suffix.
func shorten(s string, max int) string {
	s = strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + "..."
}

// Category returns the translated category label for lang, falling back to
// the English category.
func (a *Article) Category(lang string, translations map[string]map[string]string) string {
	if t, ok := translations[a.CategoryEN]; ok {
		if label := t[lang]; label != "" {
			return label
		}
	}
	return a.CategoryEN
}

// IsChangeAllowed reports whether field may still be edited given the
// loaded container. Structural fields freeze as soon as any language is
// closed or exported; markdown<LANG> freezes with its language. Without a
// container there is no restriction.
func (a *Article) IsChangeAllowed(field string, languages []string) bool {
	if a.container == nil {
		return true
	}
	frozen := func(lang string) bool {
		return a.container.IsClosed(lang) || a.container.IsExported(lang)
	}
	switch field {
	case FieldTitle, FieldBlog, FieldPredecessorID, FieldCollection, FieldCategory:
		for _, l := range languages {
			if frozen(l) {
				return false
			}
		}
		return true
	}
	for _, l := range languages {
		if field == MarkdownField(l) && frozen(l) {
			return false
		}
	}
	return true
}

// IsMarkdown reports whether text holds real content.
func IsMarkdown(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return text != NoTranslation
}
