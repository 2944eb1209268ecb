// Package i18n renders client-facing messages for trading error codes.
//
// Messages are text/template strings keyed by code; error metadata fills the
// placeholders. Locale lookup uses BCP 47 matching, so "en-GB" resolves to
// the en-US catalog and "pt" to pt-BR.
package i18n

import (
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
)

// Code mirrors errors.Code as a plain string so this package stays a leaf.
type Code = string

// BaseLocale answers every lookup nothing else matches.
const BaseLocale = "en-US"

// Catalog holds one locale's parsed message templates.
type Catalog struct {
	locale string
	raw    map[Code]string
	parsed map[Code]*template.Template
}

// NewCatalog parses messages for locale. A message that fails to parse is
// kept and later returned verbatim.
func NewCatalog(locale string, messages map[Code]string) *Catalog {
	c := &Catalog{
		locale: locale,
		raw:    make(map[Code]string, len(messages)),
		parsed: make(map[Code]*template.Template, len(messages)),
	}
	for code, text := range messages {
		c.raw[code] = text
		if tmpl, err := template.New(code).Parse(text); err == nil {
			c.parsed[code] = tmpl
		}
	}
	return c
}

// Locale is the tag the catalog was registered under.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders code's message. Unknown codes render as the code itself.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	raw, ok := c.raw[code]
	if !ok {
		return code
	}
	tmpl := c.parsed[code]
	if tmpl == nil {
		return raw
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, metadata); err != nil {
		return raw
	}
	return out.String()
}

type registry struct {
	mu       sync.RWMutex
	catalogs map[string]*Catalog
	tags     []language.Tag
	names    []string
	matcher  language.Matcher
}

var defaultRegistry = newRegistry(
	NewCatalog(BaseLocale, enUSMessages),
	NewCatalog("pt-BR", ptBRMessages),
)

func newRegistry(base *Catalog, others ...*Catalog) *registry {
	r := &registry{catalogs: map[string]*Catalog{}}
	r.add(base)
	for _, c := range others {
		r.add(c)
	}
	return r
}

// add must be called with mu held for writing, or before r is shared.
func (r *registry) add(c *Catalog) {
	if _, exists := r.catalogs[c.locale]; !exists {
		if tag, err := language.Parse(c.locale); err == nil {
			r.tags = append(r.tags, tag)
			r.names = append(r.names, c.locale)
		}
	}
	r.catalogs[c.locale] = c
	r.matcher = language.NewMatcher(r.tags)
}

func (r *registry) lookup(locale string) *Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	locale = strings.TrimSpace(locale)
	if c, ok := r.catalogs[locale]; ok {
		return c
	}
	base := r.catalogs[BaseLocale]
	tag, err := language.Parse(locale)
	if err != nil {
		return base
	}
	_, index, confidence := r.matcher.Match(tag)
	if confidence == language.No {
		return base
	}
	return r.catalogs[r.names[index]]
}

// GetCatalog returns the best catalog for locale, falling back to en-US.
func GetCatalog(locale string) *Catalog {
	return defaultRegistry.lookup(locale)
}

// RegisterCatalog adds or replaces the catalog for locale.
func RegisterCatalog(locale string, c *Catalog) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	c.locale = locale
	defaultRegistry.add(c)
}
