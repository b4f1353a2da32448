// Package memory is an in-process repository used when no database is
// configured and by service tests. Transactions are serialized by a single
// lock and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

type state struct {
	accounts     map[string]*models.Account
	credentials  map[string]*models.Credential
	certificates map[uint]*models.Certificate
	workload     map[string]*models.WorkloadCounter
	tokens       map[uint]*models.SecurityToken

	accountSeq     int64
	certificateSeq uint
	tokenSeq       uint
}

func newState() *state {
	return &state{
		accounts:     make(map[string]*models.Account),
		credentials:  make(map[string]*models.Credential),
		certificates: make(map[uint]*models.Certificate),
		workload:     make(map[string]*models.WorkloadCounter),
		tokens:       make(map[uint]*models.SecurityToken),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		cp := *v
		c.accounts[k] = &cp
	}
	for k, v := range s.credentials {
		cp := *v
		c.credentials[k] = &cp
	}
	for k, v := range s.certificates {
		cp := *v
		c.certificates[k] = &cp
	}
	for k, v := range s.workload {
		cp := *v
		c.workload[k] = &cp
	}
	for k, v := range s.tokens {
		cp := *v
		c.tokens[k] = &cp
	}
	c.accountSeq = s.accountSeq
	c.certificateSeq = s.certificateSeq
	c.tokenSeq = s.tokenSeq
	return c
}

// Store holds the shared state behind every Repository view
type Store struct {
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

type Option func(*Store)

// WithClock overrides the timestamp source used for CreatedAt/UpdatedAt
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// MemoryRepository implements repositories.Repository
type MemoryRepository struct {
	store *Store
	inTx  bool

	account     *accountRepository
	credential  *credentialRepository
	certificate *certificateRepository
	workload    *workloadRepository
	token       *tokenRepository
}

func NewMemoryRepository(opts ...Option) *MemoryRepository {
	store := &Store{data: newState(), now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return newView(store, false)
}

func newView(store *Store, inTx bool) *MemoryRepository {
	r := &MemoryRepository{store: store, inTx: inTx}
	r.account = &accountRepository{r}
	r.credential = &credentialRepository{r}
	r.certificate = &certificateRepository{r}
	r.workload = &workloadRepository{r}
	r.token = &tokenRepository{r}
	return r
}

// lock acquires the store lock unless this view already runs inside a transaction
func (r *MemoryRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *MemoryRepository) data() *state {
	return r.store.data
}

func (r *MemoryRepository) now() time.Time {
	return r.store.now()
}

func (r *MemoryRepository) Account() repositories.AccountRepository         { return r.account }
func (r *MemoryRepository) Credential() repositories.CredentialRepository   { return r.credential }
func (r *MemoryRepository) Certificate() repositories.CertificateRepository { return r.certificate }
func (r *MemoryRepository) Workload() repositories.WorkloadRepository       { return r.workload }
func (r *MemoryRepository) Token() repositories.TokenRepository             { return r.token }

// WithTransaction executes fn while holding the store lock
func (r *MemoryRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) (err error) {
	if r.inTx {
		return fn(r)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	snapshot := r.store.data.clone()
	committed := false
	defer func() {
		if !committed {
			r.store.data = snapshot
		}
	}()

	if err := fn(newView(r.store, true)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRepository) Close() error {
	return nil
}

// RepositoryManager serves a single in-memory repository
type RepositoryManager struct {
	opts []Option
	repo *MemoryRepository
}

func NewRepositoryManager(opts ...Option) repositories.RepositoryManager {
	return &RepositoryManager{opts: opts}
}

func (rm *RepositoryManager) Initialize() error {
	rm.repo = NewMemoryRepository(rm.opts...)
	return nil
}

func (rm *RepositoryManager) GetRepository() repositories.Repository {
	return rm.repo
}

func (rm *RepositoryManager) HealthCheck(ctx context.Context) error {
	if rm.repo == nil {
		return fmt.Errorf("repository not initialized")
	}
	return rm.repo.Ping(ctx)
}

func (rm *RepositoryManager) Shutdown(ctx context.Context) error {
	if rm.repo == nil {
		return nil
	}
	return rm.repo.Close()
}
