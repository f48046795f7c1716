package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"TradeDesk/internal/domain/models"
)

const AccountTypePaper = "paper"

var (
	ErrInvalidAccount  = errors.New("invalid account")
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
	ErrPaperOnly       = errors.New("only paper accounts are supported")
)

// UserAccount describes one user's paper account. Broker credentials are
// never accepted, so nothing secret is stored.
type UserAccount struct {
	UserID      string    `json:"user_id"`
	AccountType string    `json:"account_type"`
	AccountID   string    `json:"account_id"`
	CreatedAt   time.Time `json:"created_at"`
	Active      bool      `json:"is_active"`
}

// AccountState is the persisted form of a user account and its ledger.
type AccountState struct {
	Account UserAccount `json:"account"`
	Ledger  State       `json:"ledger"`
}

type userBook struct {
	account UserAccount
	ledger  *Ledger
}

// Accounts holds per-user paper ledgers. Each follows the desk's executed
// decisions with its own capital and caps.
type Accounts struct {
	cfg  Config
	opts []Option
	now  func() time.Time

	mu    sync.RWMutex
	books map[string]*userBook
}

func NewAccounts(cfg Config, opts ...Option) *Accounts {
	return &Accounts{
		cfg:   cfg.withDefaults(),
		opts:  opts,
		now:   New(cfg, opts...).now,
		books: make(map[string]*userBook),
	}
}

// Create opens a paper account for userID. An empty accountID is
// generated from the user and creation time.
func (a *Accounts) Create(userID, accountType, accountID string) (UserAccount, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserAccount{}, fmt.Errorf("%w: user id is empty", ErrInvalidAccount)
	}
	if accountType == "" {
		accountType = AccountTypePaper
	}
	if !strings.EqualFold(accountType, AccountTypePaper) {
		return UserAccount{}, fmt.Errorf("%w: %q", ErrPaperOnly, accountType)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.books[userID]; ok {
		return UserAccount{}, fmt.Errorf("%w: %s", ErrAccountExists, userID)
	}
	now := a.now()
	if accountID == "" {
		accountID = fmt.Sprintf("paper_%s_%d", userID, now.Unix())
	}
	acct := UserAccount{
		UserID:      userID,
		AccountType: AccountTypePaper,
		AccountID:   accountID,
		CreatedAt:   now,
		Active:      true,
	}
	cfg := a.cfg
	cfg.AccountID = accountID
	a.books[userID] = &userBook{account: acct, ledger: New(cfg, a.opts...)}
	return acct, nil
}

func (a *Accounts) Get(userID string) (UserAccount, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.books[userID]
	if !ok {
		return UserAccount{}, false
	}
	return b.account, true
}

// Ledger returns the user's ledger for queries.
func (a *Accounts) Ledger(userID string) (*Ledger, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.books[userID]
	if !ok {
		return nil, false
	}
	return b.ledger, true
}

func (a *Accounts) List() []UserAccount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]UserAccount, 0, len(a.books))
	for _, b := range a.books {
		out = append(out, b.account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (a *Accounts) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.books)
}

// Execute applies a decision to every active account and returns the
// fills keyed by user.
func (a *Accounts) Execute(d models.Decision, price float64) map[string]Order {
	out := make(map[string]Order)
	for _, b := range a.active() {
		o := b.ledger.ExecuteDecision(d, price)
		if o.Status == OrderFilled {
			out[b.account.UserID] = o
		}
	}
	return out
}

func (a *Accounts) MarkToMarket(symbol string, price float64) {
	for _, b := range a.active() {
		b.ledger.MarkToMarket(symbol, price)
	}
}

func (a *Accounts) active() []*userBook {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*userBook, 0, len(a.books))
	for _, b := range a.books {
		if b.account.Active {
			out = append(out, b)
		}
	}
	return out
}

func (a *Accounts) Export() []AccountState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]AccountState, 0, len(a.books))
	for _, b := range a.books {
		out = append(out, AccountState{Account: b.account, Ledger: b.ledger.Export()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account.UserID < out[j].Account.UserID })
	return out
}

// Restore replaces every account with the persisted set.
func (a *Accounts) Restore(states []AccountState) {
	books := make(map[string]*userBook, len(states))
	for _, st := range states {
		if st.Account.UserID == "" {
			continue
		}
		cfg := a.cfg
		cfg.AccountID = st.Account.AccountID
		l := New(cfg, a.opts...)
		l.Restore(st.Ledger)
		books[st.Account.UserID] = &userBook{account: st.Account, ledger: l}
	}
	a.mu.Lock()
	a.books = books
	a.mu.Unlock()
}
