package integration

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// memStore backs the wallet, ledger and audit repositories for the
// integration suite with read-committed semantics. Transactions buffer their
// writes and publish them atomically on commit. A write takes a row lock
// (wallet id or event id) held until commit or rollback, so a concurrent
// writer waits and then re-checks the committed version the way a Postgres
// UPDATE ... WHERE version = $n does.
type memStore struct {
	mu    sync.Mutex
	freed *sync.Cond
	locks map[string]*memTx

	wallets   map[uuid.UUID]*domain.Wallet
	byProject map[string]uuid.UUID
	ledger    []domain.LedgerEntry
	byEvent   map[string]int
	audits    []domain.AuditLog

	// casFailures forces the next N compare-and-set writes to conflict.
	casFailures atomic.Int32
	// conflicts counts version conflicts the store reported, forced or not.
	conflicts atomic.Int32
}

func newMemStore() *memStore {
	s := &memStore{
		locks:     make(map[string]*memTx),
		wallets:   make(map[uuid.UUID]*domain.Wallet),
		byProject: make(map[string]uuid.UUID),
		byEvent:   make(map[string]int),
	}
	s.freed = sync.NewCond(&s.mu)
	return s
}

// lock takes the row lock key for tx, waiting while another transaction
// holds it. s.mu must be held.
func (s *memStore) lock(tx *memTx, key string) {
	for {
		holder, ok := s.locks[key]
		if !ok || holder == tx {
			break
		}
		s.freed.Wait()
	}
	if _, ok := s.locks[key]; !ok {
		s.locks[key] = tx
		tx.held = append(tx.held, key)
	}
}

// release drops every lock tx holds. s.mu must be held.
func (s *memStore) release(tx *memTx) {
	for _, key := range tx.held {
		delete(s.locks, key)
	}
	tx.held = nil
	s.freed.Broadcast()
}

// corruptBalance moves a stored balance without a ledger entry.
func (s *memStore) corruptBalance(id uuid.UUID, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[id].Balance += delta
}

func (s *memStore) entries(walletID uuid.UUID) []domain.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range s.ledger {
		if e.WalletID == walletID {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) auditActions() []domain.AuditAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(s.audits))
	for _, a := range s.audits {
		out = append(out, a.Action)
	}
	return out
}

// wallet returns a copy of the committed row. s.mu must be held.
func (s *memStore) wallet(id uuid.UUID) *domain.Wallet {
	w, ok := s.wallets[id]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}

// --- Transactor ---

type memTransactor struct{ s *memStore }

func (t memTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memTx{s: t.s, wallets: make(map[uuid.UUID]domain.Wallet)}, nil
}

// memTx implements pgx.Tx over memStore. Only Commit and Rollback do anything.
type memTx struct {
	s       *memStore
	held    []string
	wallets map[uuid.UUID]domain.Wallet
	entries []domain.LedgerEntry
	done    bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, w := range t.wallets {
		cp := w
		t.s.wallets[id] = &cp
	}
	for _, e := range t.entries {
		t.s.ledger = append(t.s.ledger, e)
		t.s.byEvent[e.EventID] = len(t.s.ledger) - 1
	}
	t.s.release(t)
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.s.release(t)
	return nil
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, errors.New("nested transactions unsupported") }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

func asMemTx(tx pgx.Tx) *memTx {
	mt, ok := tx.(*memTx)
	if !ok || mt.done {
		panic("in-memory repository used outside an open transaction")
	}
	return mt
}

// --- Wallet repo ---

type memWalletRepo struct{ s *memStore }

var _ ports.WalletRepository = memWalletRepo{}

func (r memWalletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.byProject[w.ProjectID]; ok {
		return domain.ErrWalletExists
	}
	cp := *w
	r.s.wallets[w.ID] = &cp
	r.s.byProject[w.ProjectID] = w.ID
	return nil
}

func (r memWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.wallet(id), nil
}

func (r memWalletRepo) GetByProjectID(ctx context.Context, projectID string) (*domain.Wallet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byProject[projectID]
	if !ok {
		return nil, nil
	}
	return r.s.wallet(id), nil
}

// GetByIDTx sees the transaction's own pending write, else the committed row.
func (r memWalletRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	mt := asMemTx(tx)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if w, ok := mt.wallets[id]; ok {
		return &w, nil
	}
	return r.s.wallet(id), nil
}

func (r memWalletRepo) List(ctx context.Context, params ports.WalletListParams) ([]domain.Wallet, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var result []domain.Wallet
	for _, w := range r.s.wallets {
		if params.Status != nil && w.Status != *params.Status {
			continue
		}
		result = append(result, *w)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Wallet{}, total, nil
	}
	end := min(start+params.PageSize, len(result))
	return result[start:end], total, nil
}

func (r memWalletRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.s.wallets))
	for id := range r.s.wallets {
		ids = append(ids, id)
	}
	return ids, nil
}

// update locks the wallet row for tx, then compares the version against the
// row as tx sees it and buffers the new row.
func (r memWalletRepo) update(tx pgx.Tx, id uuid.UUID, expectedVersion int64, mutate func(domain.Wallet) (domain.Wallet, error)) (*domain.Wallet, error) {
	mt := asMemTx(tx)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lock(mt, "wallet:"+id.String())

	current, ok := mt.wallets[id]
	if !ok {
		committed := r.s.wallet(id)
		if committed == nil {
			return nil, domain.ErrVersionConflict
		}
		current = *committed
	}
	if current.Version != expectedVersion {
		r.s.conflicts.Add(1)
		return nil, domain.ErrVersionConflict
	}
	if r.s.casFailures.Load() > 0 && r.s.casFailures.Add(-1) >= 0 {
		r.s.conflicts.Add(1)
		return nil, domain.ErrVersionConflict
	}

	after, err := mutate(current)
	if err != nil {
		return nil, err
	}
	mt.wallets[id] = after
	return &after, nil
}

func (r memWalletRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount, expectedVersion int64) (*domain.Wallet, error) {
	return r.update(tx, walletID, expectedVersion, func(w domain.Wallet) (domain.Wallet, error) {
		return w.Apply(amount)
	})
}

func (r memWalletRepo) SetStatus(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, status domain.WalletStatus, expectedVersion int64) (*domain.Wallet, error) {
	return r.update(tx, walletID, expectedVersion, func(w domain.Wallet) (domain.Wallet, error) {
		w.Status = status
		w.Version++
		return w, nil
	})
}

// --- Ledger repo ---

type memLedgerRepo struct{ s *memStore }

var _ ports.LedgerRepository = memLedgerRepo{}

// Append locks the event id, so a second writer of the same event waits for
// the first to finish and then sees the unique violation.
func (r memLedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	mt := asMemTx(tx)
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lock(mt, "event:"+e.EventID)
	if _, ok := r.s.byEvent[e.EventID]; ok {
		return domain.ErrDuplicateEvent
	}
	for _, pending := range mt.entries {
		if pending.EventID == e.EventID {
			return domain.ErrDuplicateEvent
		}
	}
	mt.entries = append(mt.entries, *e)
	return nil
}

func (r memLedgerRepo) GetByEventID(ctx context.Context, eventID string) (*domain.LedgerEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.byEvent[eventID]
	if !ok {
		return nil, nil
	}
	e := r.s.ledger[i]
	return &e, nil
}

func (r memLedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	all := r.s.entries(walletID)
	// newest first
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	total := int64(len(all))
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []domain.LedgerEntry{}, total, nil
	}
	end := min(start+pageSize, len(all))
	return all[start:end], total, nil
}

func (r memLedgerRepo) SumForWallet(ctx context.Context, walletID uuid.UUID) (int64, error) {
	var sum int64
	for _, e := range r.s.entries(walletID) {
		sum += e.Amount
	}
	return sum, nil
}

// --- Audit repo ---

type memAuditRepo struct{ s *memStore }

func (r memAuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audits = append(r.s.audits, *log)
	return nil
}
