// Package caldav implements the calendar gateway: an authenticated CalDAV
// client able to discover the principal's calendars and run windowed event
// queries against them.
package caldav

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "remindd/internal/log"
	"remindd/internal/model"
)

// ErrNotLoggedIn is returned by operations that require a completed Login.
var ErrNotLoggedIn = errors.New("caldav: not logged in")

// Calendar is one calendar collection on the server.
type Calendar struct {
	ID   string
	Name string
	URL  string
}

// Client talks WebDAV/CalDAV to a single calendar store.
type Client struct {
	base     *url.URL
	username string
	password string
	client   *http.Client
	loc      *time.Location

	// homeSet is the calendar-home-set discovered by Login; nil until then.
	homeSet *url.URL
}

// NewClient builds a client for the given store endpoint. Constructing the
// client performs no server communication; credentials are validated by
// Login.
func NewClient(rawURL, username, password string, loc *time.Location) (*Client, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("caldav: invalid URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("caldav: invalid URL %q", redactRaw(rawURL))
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		base:     base,
		username: username,
		password: password,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		loc: loc,
	}, nil
}

const propfindPrincipal = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop><d:current-user-principal/></d:prop>
</d:propfind>`

const propfindHomeSet = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop><c:calendar-home-set/></d:prop>
</d:propfind>`

const propfindCalendars = `<?xml version="1.0" encoding="utf-8"?>
<d:propfind xmlns:d="DAV:">
  <d:prop><d:displayname/><d:resourcetype/></d:prop>
</d:propfind>`

// Login authenticates against the store by discovering the current user
// principal and its calendar home set. It must succeed before Calendars or
// Search are usable.
func (c *Client) Login(ctx context.Context) error {
	appLog.Debug("caldav login", "url", redact(c.base), "username", c.username)

	ms, err := c.do(ctx, "PROPFIND", c.base, "0", propfindPrincipal)
	if err != nil {
		return fmt.Errorf("caldav: principal discovery: %w", err)
	}
	principalHref := firstHref(ms, func(p msProp) string { return p.CurrentUserPrincipal.Href })
	if principalHref == "" {
		return errors.New("caldav: server returned no current-user-principal")
	}
	principal, err := c.resolve(principalHref)
	if err != nil {
		return err
	}

	ms, err = c.do(ctx, "PROPFIND", principal, "0", propfindHomeSet)
	if err != nil {
		return fmt.Errorf("caldav: calendar-home-set discovery: %w", err)
	}
	homeHref := firstHref(ms, func(p msProp) string { return p.CalendarHomeSet.Href })
	if homeHref == "" {
		return errors.New("caldav: server returned no calendar-home-set")
	}
	home, err := c.resolve(homeHref)
	if err != nil {
		return err
	}

	c.homeSet = home
	appLog.Debug("caldav login complete", "home_set", redact(home))
	return nil
}

// Calendars lists the calendar collections under the principal's home set.
func (c *Client) Calendars(ctx context.Context) ([]Calendar, error) {
	if c.homeSet == nil {
		return nil, ErrNotLoggedIn
	}

	ms, err := c.do(ctx, "PROPFIND", c.homeSet, "1", propfindCalendars)
	if err != nil {
		return nil, fmt.Errorf("caldav: listing calendars: %w", err)
	}

	cals := make([]Calendar, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		prop, ok := okProp(resp)
		if !ok || prop.ResourceType.Calendar == nil {
			continue
		}
		u, err := c.resolve(resp.Href)
		if err != nil {
			continue
		}
		cals = append(cals, Calendar{
			ID:   lastPathSegment(u.Path),
			Name: prop.DisplayName,
			URL:  u.String(),
		})
	}

	appLog.Debug("caldav calendars fetched", "count", len(cals))
	return cals, nil
}

// Search runs a VEVENT time-range query over the given calendars and returns
// the normalized events, recurring ones expanded into [start, end]. Any
// calendar failing the query fails the whole search; the caller treats that
// as a degraded cycle.
func (c *Client) Search(ctx context.Context, cals []Calendar, start, end time.Time) ([]model.Event, error) {
	if c.homeSet == nil {
		return nil, ErrNotLoggedIn
	}

	parsed := make([]parsedEvent, 0)
	for _, cal := range cals {
		u, err := url.Parse(cal.URL)
		if err != nil {
			return nil, fmt.Errorf("caldav: calendar %s: %w", cal.ID, err)
		}

		body := calendarQueryBody(start, end)
		ms, err := c.do(ctx, "REPORT", u, "1", body)
		if err != nil {
			return nil, fmt.Errorf("caldav: query calendar %s: %w", cal.ID, err)
		}

		for _, resp := range ms.Responses {
			prop, ok := okProp(resp)
			if !ok || prop.CalendarData == "" {
				continue
			}
			evs, err := parseCalendarData([]byte(prop.CalendarData), c.loc)
			if err != nil {
				appLog.Warn("skipping unparsable calendar object", "calendar", cal.ID, "href", resp.Href, "err", err)
				continue
			}
			parsed = append(parsed, evs...)
		}
	}

	events := expandEvents(parsed, start, end)
	appLog.Debug("caldav search complete", "calendars", len(cals), "events", len(events))
	return events, nil
}

// calendarQueryBody builds the calendar-query REPORT for a VEVENT time range.
func calendarQueryBody(start, end time.Time) string {
	const layout = "20060102T150405Z"
	return `<?xml version="1.0" encoding="utf-8"?>
<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop><d:getetag/><c:calendar-data/></d:prop>
  <c:filter>
    <c:comp-filter name="VCALENDAR">
      <c:comp-filter name="VEVENT">
        <c:time-range start="` + start.UTC().Format(layout) + `" end="` + end.UTC().Format(layout) + `"/>
      </c:comp-filter>
    </c:comp-filter>
  </c:filter>
</c:calendar-query>`
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, depth, body string) (*multistatus, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `application/xml; charset="utf-8"`)
	req.Header.Set("Depth", depth)
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusMultiStatus, http.StatusOK:
		var ms multistatus
		if err := xml.NewDecoder(resp.Body).Decode(&ms); err != nil {
			return nil, fmt.Errorf("decoding multistatus from %s: %w", redact(u), err)
		}
		return &ms, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("authorization failed (%s) for %s", resp.Status, redact(u))
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %s from %s", resp.Status, redact(u))
	}
}

// resolve turns a server-provided href into an absolute URL against the base.
func (c *Client) resolve(href string) (*url.URL, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("caldav: invalid href %q: %w", href, err)
	}
	return c.base.ResolveReference(ref), nil
}

func lastPathSegment(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) == 0 {
		return p
	}
	return parts[len(parts)-1]
}

// multistatus models the subset of a WebDAV 207 response this client reads.
// Property elements are matched by local name, which covers both the DAV:
// and the caldav namespaces.
type multistatus struct {
	XMLName   xml.Name     `xml:"multistatus"`
	Responses []msResponse `xml:"response"`
}

type msResponse struct {
	Href      string       `xml:"href"`
	Propstats []msPropstat `xml:"propstat"`
}

type msPropstat struct {
	Status string `xml:"status"`
	Prop   msProp `xml:"prop"`
}

type msProp struct {
	CurrentUserPrincipal msHref  `xml:"current-user-principal"`
	CalendarHomeSet      msHref  `xml:"calendar-home-set"`
	DisplayName          string  `xml:"displayname"`
	ResourceType         msRType `xml:"resourcetype"`
	CalendarData         string  `xml:"calendar-data"`
}

type msHref struct {
	Href string `xml:"href"`
}

type msRType struct {
	Calendar *struct{} `xml:"calendar"`
}

// okProp returns the prop of the first propstat with a 200-class status.
func okProp(resp msResponse) (msProp, bool) {
	for _, ps := range resp.Propstats {
		if ps.Status == "" || strings.Contains(ps.Status, "200") {
			return ps.Prop, true
		}
	}
	return msProp{}, false
}

// firstHref scans all responses for the first non-empty href selected by f.
func firstHref(ms *multistatus, f func(msProp) string) string {
	for _, resp := range ms.Responses {
		for _, ps := range resp.Propstats {
			if href := f(ps.Prop); href != "" {
				return href
			}
		}
	}
	return ""
}

// redact hides the path of a store URL in logs; paths can embed usernames.
func redact(u *url.URL) string {
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}

func redactRaw(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return redact(u)
	}
	return "...(redacted)"
}
