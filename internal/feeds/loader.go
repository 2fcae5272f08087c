package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed/atom"

	"shelflend/internal/core/domain/models"
	"shelflend/internal/infrastructure/resilience"
)

// Link relations used by OPDS lending servers.
const (
	relRevoke      = "http://librarysimplified.org/terms/rel/revoke"
	relBorrow      = "http://opds-spec.org/acquisition/borrow"
	relOpenAccess  = "http://opds-spec.org/acquisition/open-access"
	relCollection  = "collection"
	relGroup       = "http://opds-spec.org/group"
	extOPDSPrefix  = "opds"
	extAvailabilty = "availability"
)

// Loader fetches and parses a feed, refreshing authentication as needed.
// Implementations must honor ctx cancellation.
type Loader interface {
	FetchURIRefreshing(ctx context.Context, account *models.Account, uri string, method string) (*Feed, error)
}

// HTTPLoader is the production Loader: gofeed's Atom parser over net/http,
// with a per-request timeout and a circuit breaker around the fetch.
type HTTPLoader struct {
	client  *http.Client
	breaker *resilience.Breaker
	timeout time.Duration
}

var _ Loader = (*HTTPLoader)(nil)

// NewHTTPLoader creates a loader. timeout bounds each fetch; breaker may be
// nil to disable circuit breaking (tests do this).
func NewHTTPLoader(timeout time.Duration, logLevel string, breaker *resilience.Breaker) *HTTPLoader {
	return &HTTPLoader{
		client: &http.Client{
			Transport: &LoggingTransport{LogLevel: logLevel},
		},
		breaker: breaker,
		timeout: timeout,
	}
}

func (l *HTTPLoader) FetchURIRefreshing(ctx context.Context, account *models.Account, uri string, method string) (*Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var feed *Feed
	fetch := func() error {
		var err error
		feed, err = l.fetchOnce(ctx, account, uri, method)
		return err
	}

	if l.breaker == nil {
		if err := fetch(); err != nil {
			return nil, err
		}
		return feed, nil
	}
	if err := l.breaker.Execute(fetch); err != nil {
		return nil, err
	}
	return feed, nil
}

func (l *HTTPLoader) fetchOnce(ctx context.Context, account *models.Account, uri string, method string) (*Feed, error) {
	resp, err := l.do(ctx, account, uri, method)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Refresh: close the failed attempt and retry once with credentials
		// freshly attached. Servers drop basic-auth sessions routinely.
		_ = resp.Body.Close()
		if !account.Authenticated() {
			return nil, fmt.Errorf("fetching %s: %w", uri, ErrAuthentication)
		}
		resp, err = l.do(ctx, account, uri, method)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("fetching %s: %w", uri, ErrAuthentication)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{Code: resp.StatusCode}
	}

	parsed, err := (&atom.Parser{}).Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed from %s as Atom: %w", uri, err)
	}

	return mapFeed(parsed, uri), nil
}

func (l *HTTPLoader) do(ctx context.Context, account *models.Account, uri string, method string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return nil, err
	}
	if account.Authenticated() {
		req.SetBasicAuth(account.Credentials.Username, account.Credentials.Password)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed from %s: %w", uri, err)
	}
	return resp, nil
}

func mapFeed(src *atom.Feed, baseURI string) *Feed {
	feed := &Feed{Title: src.Title}
	base, _ := url.Parse(baseURI)

	seenGroups := map[string]bool{}
	addGroup := func(name string) {
		if name == "" || seenGroups[name] {
			return
		}
		seenGroups[name] = true
		feed.Groups = append(feed.Groups, name)
	}

	for _, entry := range src.Entries {
		for _, link := range entry.Links {
			if link.Rel == relCollection || link.Rel == relGroup {
				name := link.Title
				if name == "" {
					name = link.Href
				}
				addGroup(name)
			}
		}
		feed.Entries = append(feed.Entries, mapEntry(entry, base))
	}

	return feed
}

func mapEntry(entry *atom.Entry, base *url.URL) Entry {
	if entry.ID == "" {
		return Entry{Err: fmt.Errorf("entry %q has no atom ID", entry.Title)}
	}
	if entry.Title == "" {
		return Entry{Err: fmt.Errorf("entry %s has no title", entry.ID)}
	}

	book := models.Book{
		ID:    models.BookID(entry.ID),
		Title: entry.Title,
	}
	if len(entry.Authors) > 0 {
		book.Author = entry.Authors[0].Name
	}
	if entry.UpdatedParsed != nil {
		book.Updated = *entry.UpdatedParsed
	}

	return Entry{Book: book, Availability: availabilityOf(entry, base)}
}

// availabilityOf derives the availability state from the opds:availability
// extension when present, falling back to the entry's acquisition links.
// Recognized status values: the engine's own vocabulary ("open-access",
// "holdable", "loanable", "held", "ready", "loaned", "revoked") plus the
// OPDS aliases "available" (loaned), "reserved" (held) and "unavailable"
// (holdable).
func availabilityOf(entry *atom.Entry, base *url.URL) models.Availability {
	avail := models.Availability{Kind: availabilityKindOf(entry)}

	if opds, ok := entry.Extensions[extOPDSPrefix]; ok {
		if exts := opds[extAvailabilty]; len(exts) > 0 {
			attrs := exts[0].Attrs
			if kind, ok := kindFromStatus(attrs["status"]); ok {
				avail.Kind = kind
			}
			if until, err := time.Parse(time.RFC3339, attrs["until"]); err == nil {
				avail.Until = until
			}
		}
	}

	for _, link := range entry.Links {
		if link.Rel == relRevoke {
			avail.RevokeHref = resolveHref(base, link.Href)
			break
		}
	}
	return avail
}

func availabilityKindOf(entry *atom.Entry) models.AvailabilityKind {
	for _, link := range entry.Links {
		switch link.Rel {
		case relOpenAccess:
			return models.AvailabilityOpenAccess
		case relBorrow:
			return models.AvailabilityLoanable
		}
	}
	return models.AvailabilityLoaned
}

func kindFromStatus(status string) (models.AvailabilityKind, bool) {
	switch status {
	case "open-access":
		return models.AvailabilityOpenAccess, true
	case "holdable", "unavailable":
		return models.AvailabilityHoldable, true
	case "loanable":
		return models.AvailabilityLoanable, true
	case "held", "reserved":
		return models.AvailabilityHeld, true
	case "ready":
		return models.AvailabilityHeldReady, true
	case "loaned", "available":
		return models.AvailabilityLoaned, true
	case "revoked":
		return models.AvailabilityRevoked, true
	default:
		return 0, false
	}
}

func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
