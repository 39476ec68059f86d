package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/kajix/internal/common"
	"github.com/dmitrijs2005/kajix/internal/dbx"
	"github.com/dmitrijs2005/kajix/internal/logging"
	"github.com/dmitrijs2005/kajix/internal/server/models"
	"github.com/dmitrijs2005/kajix/internal/server/repositories/scraped"
	"github.com/dmitrijs2005/kajix/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/kajix/internal/server/repositories/users"
	"github.com/dmitrijs2005/kajix/internal/server/tokenstore"
	"github.com/google/uuid"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	s *fakeScrapedRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository             { return m.u }
func (m *fakeRepoManager) Tokens(dbx.DBTX) tokens.Repository           { return nil }
func (m *fakeRepoManager) Scraped(dbx.DBTX) scraped.Repository         { return m.s }

type fakeUsersRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	failErr error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	for _, existing := range f.byID {
		if strings.EqualFold(existing.Email, u.Email) || existing.Username == u.Username {
			return nil, common.ErrorConflict
		}
	}
	c := *u
	c.ID = uuid.NewString()
	f.byID[c.ID] = &c
	out := c
	return &out, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	for _, u := range f.byID {
		if strings.EqualFold(u.Email, email) {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsersRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUsersRepo) MarkEmailVerified(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	if u.EmailVerifiedAt == nil {
		now := time.Now()
		u.EmailVerifiedAt = &now
	}
	return nil
}

type fakeScrapedRepo struct {
	mu        sync.Mutex
	rows      map[string]*models.ScrapedContent
	upsertErr error
	lastQuery scraped.ListQuery
}

func newFakeScrapedRepo() *fakeScrapedRepo {
	return &fakeScrapedRepo{rows: map[string]*models.ScrapedContent{}}
}

func (f *fakeScrapedRepo) Upsert(ctx context.Context, c *models.ScrapedContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.rows[c.ScrappedURL]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		c.ID = uuid.NewString()
	}
	stored := *c
	f.rows[c.ScrappedURL] = &stored
	return nil
}

func (f *fakeScrapedRepo) List(ctx context.Context, q scraped.ListQuery) ([]models.ScrapedContent, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q

	all := make([]models.ScrapedContent, 0, len(f.rows))
	for _, r := range f.rows {
		if q.BaseURL == "" || r.BaseURL == q.BaseURL {
			all = append(all, *r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ScrappedURL < all[j].ScrappedURL })

	total := len(all)
	if q.Offset >= total {
		return []models.ScrapedContent{}, total, nil
	}
	end := min(q.Offset+q.Limit, total)
	return all[q.Offset:end], total, nil
}

func (f *fakeScrapedRepo) GetByID(ctx context.Context, id string) (*models.ScrapedContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			c := *r
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

// memStore is an in-memory tokenstore.Store with failure injection.
type memStore struct {
	mu      sync.Mutex
	live    map[string]tokenstore.Record
	putErr  map[models.TokenKind]error
	deleted []tokenstore.Key
	revoked []string
}

func newMemStore() *memStore {
	return &memStore{live: map[string]tokenstore.Record{}, putErr: map[models.TokenKind]error{}}
}

func (m *memStore) Put(ctx context.Context, r tokenstore.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.putErr[r.Kind]; err != nil {
		return err
	}
	m.live[r.Key.String()] = r
	return nil
}

func (m *memStore) Exists(ctx context.Context, k tokenstore.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[k.String()]
	return ok, nil
}

func (m *memStore) MarkUsed(ctx context.Context, k tokenstore.Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[k.String()]; !ok {
		return false, nil
	}
	delete(m.live, k.String())
	return true, nil
}

func (m *memStore) Delete(ctx context.Context, k tokenstore.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, k)
	delete(m.live, k.String())
	return nil
}

func (m *memStore) RevokeUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked = append(m.revoked, userID)
	for key, r := range m.live {
		if r.UserID == userID {
			delete(m.live, key)
		}
	}
	return nil
}

func (m *memStore) count(kind models.TokenKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.live {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// atomicStore adds PutAll to memStore; putAllErr fails the whole batch.
type atomicStore struct {
	*memStore
	putAllErr error
	batches   int
}

func (a *atomicStore) PutAll(ctx context.Context, rs ...tokenstore.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batches++
	if a.putAllErr != nil {
		return a.putAllErr
	}
	for _, r := range rs {
		a.live[r.Key.String()] = r
	}
	return nil
}

// recordingSender keeps the links it was asked to deliver.
type recordingSender struct {
	mu    sync.Mutex
	links map[string]string
	err   error
}

func (r *recordingSender) SendVerification(ctx context.Context, email, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.links == nil {
		r.links = map[string]string{}
	}
	r.links[email] = link
	return nil
}

func (r *recordingSender) token(email string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	link := r.links[email]
	return link[strings.LastIndex(link, "/")+1:]
}

var errBoom = errors.New("boom")
