package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/BVSokolov/udemy-prostore/internal/domain"
	"github.com/BVSokolov/udemy-prostore/internal/repository"
	apperrors "github.com/BVSokolov/udemy-prostore/pkg/errors"
)

// --- In-memory store ---

// memStore keeps products, reviews and users in maps. Transactions are
// serialized, and a failed transaction restores the state it started from,
// the way a row lock plus rollback behaves in Postgres.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products map[string]domain.Product
	reviews  map[string]domain.Review
	users    map[string]domain.User

	// failOn makes the named operation return its error.
	failOn map[string]error
	// beforeCreate runs inside Create before the uniqueness check.
	beforeCreate func(s *memStore)
	accesses     int
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]domain.Product),
		reviews:  make(map[string]domain.Review),
		users:    make(map[string]domain.User),
		failOn:   make(map[string]error),
	}
}

func (s *memStore) stores() repository.Stores {
	return repository.Stores{
		Products: memProducts{s},
		Reviews:  memReviews{s},
		Users:    memUsers{s},
	}
}

func (s *memStore) access(op string) error {
	s.accesses++
	return s.failOn[op]
}

func (s *memStore) Accesses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accesses
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, stores repository.Stores) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	products := cloneMap(s.products)
	reviews := cloneMap(s.reviews)
	users := cloneMap(s.users)
	s.mu.Unlock()

	if err := fn(ctx, s.stores()); err != nil {
		s.mu.Lock()
		s.products, s.reviews, s.users = products, reviews, users
		s.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) addProduct(id, slug string) {
	s.products[id] = domain.Product{ID: id, Name: "Product " + slug, Slug: slug, Rating: domain.NewRating(decimal.Zero)}
}

func (s *memStore) addReview(id, userID, productID string, rating int, at time.Time) {
	s.reviews[id] = domain.Review{
		ID: id, UserID: userID, ProductID: productID, Rating: rating,
		Title: "title", Description: "description", CreatedAt: at, UpdatedAt: at,
	}
}

func (s *memStore) reviewsOf(productID string) []domain.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Review
	for _, rv := range s.reviews {
		if rv.ProductID == productID {
			out = append(out, rv)
		}
	}
	return out
}

func (s *memStore) product(id string) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

type memProducts struct{ s *memStore }

func (r memProducts) GetByID(_ context.Context, id string) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("products.get"); err != nil {
		return nil, err
	}
	p, ok := r.s.products[id]
	if !ok {
		return nil, apperrors.NotFound("product", id)
	}
	return &p, nil
}

func (r memProducts) GetByIDForUpdate(ctx context.Context, id string) (*domain.Product, error) {
	return r.GetByID(ctx, id)
}

func (r memProducts) GetBySlug(_ context.Context, slug string) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("products.get_by_slug"); err != nil {
		return nil, err
	}
	for _, p := range r.s.products {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, apperrors.NotFound("product", slug)
}

func (r memProducts) List(_ context.Context, _ repository.ProductFilter) ([]domain.Product, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("products.list"); err != nil {
		return nil, 0, err
	}
	out := make([]domain.Product, 0, len(r.s.products))
	for _, p := range r.s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r memProducts) ListIDs(context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("products.list_ids"); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(r.s.products))
	for id := range r.s.products {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r memProducts) Upsert(_ context.Context, p *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("products.upsert"); err != nil {
		return err
	}
	if existing, ok := r.s.products[p.ID]; ok {
		p.Rating, p.NumReviews = existing.Rating, existing.NumReviews
	}
	r.s.products[p.ID] = *p
	return nil
}

func (r memProducts) UpdateRating(_ context.Context, id string, agg domain.RatingAggregate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("products.update_rating"); err != nil {
		return err
	}
	if err := r.s.failOn["products.update_rating:"+id]; err != nil {
		return err
	}
	p, ok := r.s.products[id]
	if !ok {
		return apperrors.NotFound("product", id)
	}
	p.ApplyAggregate(agg)
	r.s.products[id] = p
	return nil
}

type memReviews struct{ s *memStore }

func (r memReviews) find(userID, productID string) *domain.Review {
	for _, rv := range r.s.reviews {
		if rv.UserID == userID && rv.ProductID == productID {
			return &rv
		}
	}
	return nil
}

func (r memReviews) FindByUserAndProduct(_ context.Context, userID, productID string) (*domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("reviews.find"); err != nil {
		return nil, err
	}
	return r.find(userID, productID), nil
}

func (r memReviews) Create(_ context.Context, rv *domain.Review) error {
	if hook := r.s.beforeCreate; hook != nil {
		r.s.beforeCreate = nil
		hook(r.s)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("reviews.create"); err != nil {
		return err
	}
	if r.find(rv.UserID, rv.ProductID) != nil {
		return apperrors.AlreadyExists("review", "user_id", rv.UserID)
	}
	r.s.reviews[rv.ID] = *rv
	return nil
}

func (r memReviews) Update(_ context.Context, rv *domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("reviews.update"); err != nil {
		return err
	}
	if _, ok := r.s.reviews[rv.ID]; !ok {
		return apperrors.NotFound("review", rv.ID)
	}
	r.s.reviews[rv.ID] = *rv
	return nil
}

func (r memReviews) ListByProduct(_ context.Context, productID string) ([]domain.ReviewWithAuthor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("reviews.list"); err != nil {
		return nil, err
	}
	out := make([]domain.ReviewWithAuthor, 0)
	for _, rv := range r.s.reviews {
		if rv.ProductID != productID {
			continue
		}
		var name *string
		if u, ok := r.s.users[rv.UserID]; ok {
			name = &u.Name
		}
		out = append(out, domain.ReviewWithAuthor{Review: rv, UserName: domain.AuthorName(name)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r memReviews) Aggregate(_ context.Context, productID string) (domain.RatingAggregate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("reviews.aggregate"); err != nil {
		return domain.RatingAggregate{}, err
	}
	var ratings []int
	for _, rv := range r.s.reviews {
		if rv.ProductID == productID {
			ratings = append(ratings, rv.Rating)
		}
	}
	return domain.MeanOf(ratings), nil
}

type memUsers struct{ s *memStore }

func (r memUsers) Upsert(_ context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("users.upsert"); err != nil {
		return err
	}
	r.s.users[u.ID] = *u
	return nil
}

func (r memUsers) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.access("users.delete"); err != nil {
		return err
	}
	delete(r.s.users, id)
	return nil
}

// --- Mocks ---

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) Invalidate(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishReviewSubmitted(ctx context.Context, review *domain.Review, created bool) error {
	args := m.Called(ctx, review, created)
	return args.Error(0)
}

func (m *mockPublisher) PublishRatingUpdated(ctx context.Context, product *domain.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

// --- Helpers ---

var errStorage = errors.New("connection reset by peer")

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}
