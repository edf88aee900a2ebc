// Package service extracts contact data from lead websites, with caching.
package service

import (
	"context"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/renandiiias/build-automated-outreach/internal/leadenrichment/client"
	"github.com/renandiiias/build-automated-outreach/platform/logger"
	"github.com/renandiiias/build-automated-outreach/platform/phone"

	"github.com/PuerkitoBio/goquery"
)

const (
	cacheTTL    = 24 * time.Hour
	maxContacts = 10
	provider    = "website"
)

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\d[\d\s().-]{7,}\d`)

	assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}
)

// Contacts is what a website revealed. Phones are E.164.
type Contacts struct {
	Emails    []string  `json:"emails"`
	Phones    []string  `json:"phones"`
	Provider  string    `json:"provider"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Empty reports whether nothing was found.
func (c Contacts) Empty() bool { return len(c.Emails) == 0 && len(c.Phones) == 0 }

type cacheEntry struct {
	data      Contacts
	expiresAt time.Time
}

// Service looks up website contacts.
type Service struct {
	client   *client.Client
	log      *logger.Logger
	cache    map[string]cacheEntry
	cacheMu  sync.RWMutex
	cacheTTL time.Duration
	now      func() time.Time
}

// New creates a website enrichment service.
func New(client *client.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		client:   client,
		log:      log,
		cache:    make(map[string]cacheEntry),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// WebsiteContacts fetches website and returns up to ten emails and phones
// found in mailto/tel links and in the page text.
func (s *Service) WebsiteContacts(ctx context.Context, website string) (Contacts, error) {
	key := cacheKey(website)
	if cached, ok := s.getFromCache(key); ok {
		return cached, nil
	}

	html, err := s.client.FetchHTML(ctx, website)
	if err != nil {
		return Contacts{}, err
	}

	contacts := Extract(html)
	contacts.Provider = provider
	contacts.FetchedAt = s.now().UTC()
	s.setCache(key, contacts)

	s.log.WithContext(ctx).Info("website contacts extracted",
		"host", hostOf(website), "emails_found", len(contacts.Emails), "phones_found", len(contacts.Phones))
	return contacts, nil
}

// Extract pulls contacts out of an HTML document.
func Extract(html string) Contacts {
	emails := map[string]struct{}{}
	phones := map[string]struct{}{}
	text := html

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			href = strings.TrimSpace(href)
			switch {
			case hasPrefixFold(href, "mailto:"):
				addr := strings.SplitN(href[len("mailto:"):], "?", 2)[0]
				if decoded, err := url.PathUnescape(addr); err == nil {
					addr = decoded
				}
				addEmail(emails, addr)
			case hasPrefixFold(href, "tel:"):
				addPhone(phones, href[len("tel:"):])
			}
		})
		doc.Find("script, style, noscript").Remove()
		text = doc.Text()
	}

	for _, m := range emailRe.FindAllString(text, -1) {
		addEmail(emails, m)
	}
	for _, m := range phoneRe.FindAllString(text, -1) {
		addPhone(phones, m)
	}

	return Contacts{Emails: sortedCapped(emails), Phones: sortedCapped(phones)}
}

func addEmail(set map[string]struct{}, raw string) {
	addr := strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".,;:"))
	if !emailRe.MatchString(addr) || emailRe.FindString(addr) != addr {
		return
	}
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(addr, suffix) {
			return
		}
	}
	set[addr] = struct{}{}
}

func addPhone(set map[string]struct{}, raw string) {
	if !phone.IsValid(raw) {
		return
	}
	set[phone.NormalizeE164(raw)] = struct{}{}
}

func sortedCapped(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	slices.Sort(out)
	if len(out) > maxContacts {
		out = out[:maxContacts]
	}
	return out
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func cacheKey(website string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(website)), "/")
}

func hostOf(website string) string {
	u, err := url.Parse(strings.TrimSpace(website))
	if err != nil {
		return ""
	}
	return u.Host
}

func (s *Service) getFromCache(key string) (Contacts, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	entry, ok := s.cache[key]
	if !ok || s.now().After(entry.expiresAt) {
		return Contacts{}, false
	}
	return entry.data, true
}

func (s *Service) setCache(key string, data Contacts) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[key] = cacheEntry{data: data, expiresAt: s.now().Add(s.cacheTTL)}
}
