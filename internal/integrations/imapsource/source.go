package imapsource

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/charset"

	"mailgraph/internal/domain"
)

const (
	defaultPort    = 993
	defaultFolder  = "INBOX"
	defaultTimeout = 30 * time.Second
	fetchBuffer    = 16
)

func init() {
	imap.CharsetReader = charset.Reader
}

// conn is the subset of *client.Client used by Source.
type conn interface {
	State() imap.ConnState
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
}

type dialFunc func(addr string, timeout time.Duration) (conn, error)

func dialTLS(addr string, timeout time.Duration) (conn, error) {
	host, _, _ := net.SplitHostPort(addr)
	c, err := client.DialWithDialerTLS(&net.Dialer{Timeout: timeout}, addr, &tls.Config{ServerName: host})
	if err != nil {
		return nil, err
	}
	c.Timeout = timeout
	return c, nil
}

// Config locates the mailbox. Password is resolved by the caller.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string
	Timeout  time.Duration
}

// Source reads a single IMAP folder in read-only mode. The connection is
// opened lazily and reopened after the server drops it. Calls are
// serialised; go-imap clients cannot pipeline from several goroutines.
type Source struct {
	cfg  Config
	dial dialFunc
	log  *slog.Logger

	mu sync.Mutex
	c  conn
}

func New(cfg Config, log *slog.Logger) (*Source, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, errors.New("imapsource: host must not be empty")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, errors.New("imapsource: username must not be empty")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Folder == "" {
		cfg.Folder = defaultFolder
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{cfg: cfg, dial: dialTLS, log: log}, nil
}

// session returns a logged-in connection with the folder selected.
// Caller holds s.mu.
func (s *Source) session(ctx context.Context) (conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.c != nil && s.c.State() != imap.LogoutState {
		return s.c, nil
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	c, err := s.dial(addr, s.cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("imapsource: dial %s: %w", addr, err)
	}
	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imapsource: login: %w", err)
	}
	if _, err := c.Select(s.cfg.Folder, true); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imapsource: select %q: %w", s.cfg.Folder, err)
	}
	s.log.Debug("imap session opened", "addr", addr, "folder", s.cfg.Folder)
	s.c = c
	return c, nil
}

// FetchHeaders returns the headers of messages dated in w, oldest first.
func (s *Source) FetchHeaders(ctx context.Context, w domain.Window) ([]domain.MessageHeader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	uids, err := c.UidSearch(searchCriteria(w))
	if err != nil {
		return nil, fmt.Errorf("imapsource: search: %w", err)
	}
	if len(uids) == 0 {
		return []domain.MessageHeader{}, nil
	}

	set := new(imap.SeqSet)
	set.AddNum(uids...)
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate}

	out := make([]domain.MessageHeader, 0, len(uids))
	err = fetch(c, set, items, func(m *imap.Message) error {
		h := headerOf(m)
		if inWindow(h.Date, w) {
			out = append(out, h)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("imapsource: fetch headers: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// FetchMessage returns one message by UID, header and body.
func (s *Source) FetchMessage(ctx context.Context, id string) (domain.Message, error) {
	uid, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil || uid == 0 {
		return domain.Message{}, fmt.Errorf("imapsource: message %q: %w", id, domain.ErrNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.session(ctx)
	if err != nil {
		return domain.Message{}, err
	}

	set := new(imap.SeqSet)
	set.AddNum(uint32(uid))
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate, section.FetchItem()}

	var (
		msg   domain.Message
		found bool
	)
	err = fetch(c, set, items, func(m *imap.Message) error {
		if m.Uid != uint32(uid) {
			return nil
		}
		parsed, err := parseMessage(m, section)
		if err != nil {
			return err
		}
		msg, found = parsed, true
		return nil
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("imapsource: fetch message %s: %w", id, err)
	}
	if !found {
		return domain.Message{}, fmt.Errorf("imapsource: message %s: %w", id, domain.ErrNotFound)
	}
	return msg, nil
}

// FetchBody returns the body and attachments of one message.
func (s *Source) FetchBody(ctx context.Context, id string) (domain.MessageBody, error) {
	m, err := s.FetchMessage(ctx, id)
	if err != nil {
		return domain.MessageBody{}, err
	}
	return domain.MessageBody{Text: m.Body, Attachments: m.Attachments}, nil
}

// Close logs out of the server if a session is open.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return nil
	}
	err := s.c.Logout()
	s.c = nil
	if err != nil && !errors.Is(err, client.ErrAlreadyLoggedOut) {
		return fmt.Errorf("imapsource: logout: %w", err)
	}
	return nil
}

// fetch drains a UID FETCH, handing each message to fn. The first fn error
// is returned after the fetch completes.
func fetch(c conn, set *imap.SeqSet, items []imap.FetchItem, fn func(*imap.Message) error) error {
	ch := make(chan *imap.Message, fetchBuffer)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(set, items, ch)
	}()

	var firstErr error
	for m := range ch {
		if firstErr != nil {
			continue
		}
		firstErr = fn(m)
	}
	if err := <-done; err != nil {
		return err
	}
	return firstErr
}

// searchCriteria widens w to whole days with a day of slack at the start:
// SENTSINCE compares the Date header's own calendar day, which can trail
// the UTC day by up to one. Results are narrowed again by inWindow.
func searchCriteria(w domain.Window) *imap.SearchCriteria {
	sc := imap.NewSearchCriteria()
	if !w.After.IsZero() {
		sc.SentSince = truncateDay(w.After).AddDate(0, 0, -1)
	}
	if !w.Before.IsZero() {
		sc.SentBefore = truncateDay(w.Before).AddDate(0, 0, 1)
	}
	return sc
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func inWindow(t time.Time, w domain.Window) bool {
	if !w.After.IsZero() && t.Before(w.After) {
		return false
	}
	if !w.Before.IsZero() && !t.Before(w.Before) {
		return false
	}
	return true
}
