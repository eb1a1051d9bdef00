package caldav

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-webdav/caldav"

	"github.com/tazhate/pimstore/internal/domain"
)

// Directory exposes one CalDAV account and the calendars it offers as
// collections.
type Directory struct {
	baseURL     string
	username    string
	password    string
	accountType string

	mu     sync.Mutex
	client *caldav.Client
}

// NewDirectory creates a directory for the account at baseURL
func NewDirectory(baseURL, username, password, accountType string) *Directory {
	return &Directory{
		baseURL:     strings.TrimRight(baseURL, "/"),
		username:    username,
		password:    password,
		accountType: accountType,
	}
}

// IsConfigured returns true if the directory has a server and credentials
func (d *Directory) IsConfigured() bool {
	return d.baseURL != "" && d.username != "" && d.password != ""
}

// Account is the identity collections of this directory are stored under.
func (d *Directory) Account() domain.Account {
	return domain.Account{Name: d.username, Type: d.accountType}
}

// connect establishes connection to CalDAV server
func (d *Directory) connect() (*caldav.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.client != nil {
		return d.client, nil
	}

	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username: d.username,
			password: d.password,
		},
		Timeout: 30 * time.Second,
	}

	client, err := caldav.NewClient(httpClient, d.baseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to CalDAV: %w", err)
	}

	d.client = client
	return client, nil
}

// basicAuthTransport adds Basic Auth to HTTP requests
type basicAuthTransport struct {
	username string
	password string
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	return http.DefaultTransport.RoundTrip(req)
}

// Accounts lists the configured account. An unconfigured directory has no
// accounts, so every remote collection counts as orphaned.
func (d *Directory) Accounts(ctx context.Context) ([]domain.Account, error) {
	if !d.IsConfigured() {
		return nil, nil
	}
	return []domain.Account{d.Account()}, nil
}

// Collections discovers the calendars of account that can hold journals,
// notes or tasks.
func (d *Directory) Collections(ctx context.Context, account domain.Account) ([]domain.Collection, error) {
	if account != d.Account() {
		return nil, fmt.Errorf("account %s (%s): %w", account.Name, account.Type, domain.ErrNotFound)
	}

	cals, err := d.DiscoverCalendars(ctx)
	if err != nil {
		return nil, err
	}

	var result []domain.Collection
	for _, cal := range cals {
		c := cal.Collection()
		if !c.SupportsVJournal && !c.SupportsVTodo {
			continue
		}
		c.AccountName = account.Name
		c.AccountType = account.Type
		result = append(result, c)
	}
	return result, nil
}

// DiscoverCalendars returns all calendars for the user
func (d *Directory) DiscoverCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := d.connect()
	if err != nil {
		return nil, err
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	result := make([]Calendar, 0, len(cals))
	for _, cal := range cals {
		result = append(result, Calendar{
			Path:        cal.Path,
			DisplayName: cal.Name,
			Description: cal.Description,
			URL:         d.resolve(cal.Path),
			Components:  cal.SupportedComponentSet,
		})
	}
	return result, nil
}

// resolve turns a server path into an absolute URL.
func (d *Directory) resolve(path string) string {
	base, err := url.Parse(d.baseURL)
	if err != nil {
		return path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return base.ResolveReference(ref).String()
}

// supports reports whether comp is in the advertised component set. An
// empty set means the server accepts every component.
func supports(components []string, comp string) bool {
	if len(components) == 0 {
		return true
	}
	for _, c := range components {
		if strings.EqualFold(c, comp) {
			return true
		}
	}
	return false
}
