package inmemory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/localpay/localpay/internal/domain/comments"
	"github.com/localpay/localpay/internal/domain/payments"
	"github.com/localpay/localpay/internal/domain/users"
	"github.com/localpay/localpay/internal/storage"
)

var _ storage.Storage = (*Storage)(nil)

type accountState struct {
	ceiling          decimal.Decimal
	spent            decimal.Decimal
	accessToPayments bool
}

// Storage is the in-memory mirror of the Postgres implementation, used in
// tests and local runs. One mutex guards everything: account mutations span
// users, payments and comments, and must be serialized per the same rules as
// the SQL transactions.
type Storage struct {
	mu        sync.Mutex
	users     map[string]*users.User
	accounts  map[string]*accountState
	payments  map[int64]*payments.Payment
	comments  []*comments.Entry
	nextPmtID int64
	nextCmtID int64
}

func NewStorage() *Storage {
	return &Storage{
		users:     make(map[string]*users.User),
		accounts:  make(map[string]*accountState),
		payments:  make(map[int64]*payments.Payment),
		comments:  make([]*comments.Entry, 0),
		nextPmtID: 1,
		nextCmtID: 1,
	}
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) Ping(_ context.Context) error {
	return nil
}

func (s *Storage) CreateUser(_ context.Context, usr *users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[usr.Login()]; ok {
		return storage.ErrUserAlreadyExists
	}

	s.users[usr.Login()] = usr
	s.accounts[usr.Login()] = &accountState{
		ceiling:          decimal.Zero,
		spent:            decimal.Zero,
		accessToPayments: usr.Role() != users.RoleSupervisor,
	}

	return nil
}

func (s *Storage) GetUser(_ context.Context, login string) (*users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usr, ok := s.users[login]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	return usr, nil
}

func (s *Storage) UpdateUserProfile(_ context.Context, login string, upd users.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	usr, ok := s.users[login]
	if !ok {
		return storage.ErrUserNotFound
	}

	name, surname := usr.Name(), usr.Surname()
	if upd.Name != nil {
		name = *upd.Name
	}

	if upd.Surname != nil {
		surname = *upd.Surname
	}

	region := usr.Region()
	if upd.Region != nil {
		region = *upd.Region
	}

	planupID := usr.PlanupID()
	if upd.PlanupID != nil {
		planupID = *upd.PlanupID
	}

	updated, err := users.RestoreUser(login, usr.PasswordHash(), usr.Role(),
		users.WithName(name, surname),
		users.WithRegion(region),
		users.WithPlanupID(planupID),
		users.WithActive(usr.Active()),
		users.WithRegisteredAt(usr.RegisteredAt()),
	)
	if err != nil {
		return err
	}

	s.users[login] = updated

	if upd.AccessToPayments != nil {
		if acct, ok := s.accounts[login]; ok {
			acct.accessToPayments = *upd.AccessToPayments
		}
	}

	return nil
}

func (s *Storage) DeactivateUser(_ context.Context, login string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	usr, ok := s.users[login]
	if !ok {
		return storage.ErrUserNotFound
	}

	updated, err := users.RestoreUser(login, usr.PasswordHash(), usr.Role(),
		users.WithName(usr.Name(), usr.Surname()),
		users.WithRegion(usr.Region()),
		users.WithPlanupID(usr.PlanupID()),
		users.WithActive(false),
		users.WithRegisteredAt(usr.RegisteredAt()),
	)
	if err != nil {
		return err
	}

	s.users[login] = updated

	return nil
}

func (s *Storage) GetAccount(_ context.Context, login string) (*users.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accountLocked(login)
}

func (s *Storage) ApplyPayment(_ context.Context, pmt *payments.Payment) (*payments.Payment, *comments.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.accountLocked(pmt.UserLogin())
	if err != nil {
		return nil, nil, err
	}

	chg, err := acct.DebitForPayment(pmt.Amount())
	if err != nil {
		return nil, nil, err
	}

	entry, err := comments.NewEntry(pmt.UserLogin(), comments.TypePayment, pmt.Comment(), chg)
	if err != nil {
		return nil, nil, err
	}

	stored := s.storePaymentLocked(pmt)
	s.storeAccountLocked(acct)
	s.storeCommentLocked(entry)

	return stored, entry, nil
}

func (s *Storage) AnnulPayment(_ context.Context, paymentID int64, note string) (*payments.Payment, *comments.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pmt, ok := s.payments[paymentID]
	if !ok {
		return nil, nil, storage.ErrPaymentNotFound
	}

	if pmt.Annulled() {
		return nil, nil, storage.ErrPaymentAlreadyAnnulled
	}

	acct, err := s.accountLocked(pmt.UserLogin())
	if err != nil {
		return nil, nil, err
	}

	chg, err := acct.CreditForAnnulment(pmt.Amount())
	if err != nil {
		return nil, nil, err
	}

	if err := pmt.Annul(); err != nil {
		return nil, nil, err
	}

	if note != "" {
		pmt.SetComment(note)
	}

	entry, err := comments.NewEntry(pmt.UserLogin(), comments.TypeAnnulment, note, chg)
	if err != nil {
		return nil, nil, err
	}

	s.storeAccountLocked(acct)
	s.storeCommentLocked(entry)

	return pmt, entry, nil
}

func (s *Storage) RefillBalance(_ context.Context, login string, amount decimal.Decimal, note string, record *payments.Payment) (*comments.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.accountLocked(login)
	if err != nil {
		return nil, err
	}

	chg, err := acct.Refill(amount)
	if err != nil {
		return nil, err
	}

	entry, err := comments.NewEntry(login, comments.TypeRefill, note, chg)
	if err != nil {
		return nil, err
	}

	if record != nil {
		s.storePaymentLocked(record)
	}

	s.storeAccountLocked(acct)
	s.storeCommentLocked(entry)

	return entry, nil
}

func (s *Storage) WriteOffBalance(_ context.Context, login string, amount decimal.Decimal, note string) (*comments.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.accountLocked(login)
	if err != nil {
		return nil, err
	}

	chg, err := acct.WriteOff(amount)
	if err != nil {
		return nil, err
	}

	entry, err := comments.NewEntry(login, comments.TypeWriteOff, note, chg)
	if err != nil {
		return nil, err
	}

	s.storeAccountLocked(acct)
	s.storeCommentLocked(entry)

	return entry, nil
}

func (s *Storage) GetPayment(_ context.Context, id int64) (*payments.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pmt, ok := s.payments[id]
	if !ok {
		return nil, storage.ErrPaymentNotFound
	}

	return pmt, nil
}

func (s *Storage) ListPayments(_ context.Context, filter storage.PaymentFilter) ([]*payments.Payment, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*payments.Payment, 0)

	for id := int64(1); id < s.nextPmtID; id++ {
		pmt, ok := s.payments[id]
		if !ok {
			continue
		}

		if !matchesFilter(pmt, filter) {
			continue
		}

		matched = append(matched, pmt)
	}

	if filter.Limit <= 0 || len(matched) <= filter.Limit {
		return matched, 0, nil
	}

	// The cursor filter is exclusive, so the cursor is the last returned row.
	nextCursor := matched[filter.Limit-1].ID()

	return matched[:filter.Limit], nextCursor, nil
}

func (s *Storage) ListComments(_ context.Context, filter storage.CommentFilter) ([]*comments.Entry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*comments.Entry, 0)

	for _, entry := range s.comments {
		if filter.Cursor != 0 && entry.ID() <= filter.Cursor {
			continue
		}

		if filter.UserLogin != "" && entry.UserLogin() != filter.UserLogin {
			continue
		}

		matched = append(matched, entry)
	}

	if filter.Limit <= 0 || len(matched) <= filter.Limit {
		return matched, 0, nil
	}

	nextCursor := matched[filter.Limit-1].ID()

	return matched[:filter.Limit], nextCursor, nil
}

func (s *Storage) accountLocked(login string) (*users.Account, error) {
	usr, ok := s.users[login]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	if !usr.Active() {
		return nil, storage.ErrUserInactive
	}

	state, ok := s.accounts[login]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}

	return users.NewAccount(login, state.ceiling, state.spent, state.accessToPayments)
}

func (s *Storage) storeAccountLocked(acct *users.Account) {
	s.accounts[acct.Login()] = &accountState{
		ceiling:          acct.Ceiling(),
		spent:            acct.Spent(),
		accessToPayments: acct.AccessToPayments(),
	}
}

func (s *Storage) storePaymentLocked(pmt *payments.Payment) *payments.Payment {
	id := s.nextPmtID
	s.nextPmtID++

	stored := payments.RestorePayment(
		id,
		pmt.TxnID(), pmt.UserLogin(), pmt.LsAbon(),
		pmt.Amount(), pmt.Status(),
		pmt.DocumentNumber(), pmt.Comment(),
		pmt.RequestedAt(), pmt.AcceptedAt(), pmt.UpdatedAt(),
	)
	s.payments[id] = stored

	return stored
}

func (s *Storage) storeCommentLocked(entry *comments.Entry) {
	id := s.nextCmtID
	s.nextCmtID++

	s.comments = append(s.comments, comments.RestoreEntry(
		id, entry.UserLogin(), entry.Type(), entry.Text(), entry.Change(), entry.CreatedAt(),
	))
}

func matchesFilter(pmt *payments.Payment, filter storage.PaymentFilter) bool {
	if filter.Cursor != 0 && pmt.ID() <= filter.Cursor {
		return false
	}

	if filter.UserLogin != "" && pmt.UserLogin() != filter.UserLogin {
		return false
	}

	if filter.LsAbon != "" && pmt.LsAbon() != filter.LsAbon {
		return false
	}

	if len(filter.Statuses) > 0 {
		found := false

		for _, status := range filter.Statuses {
			if pmt.Status() == status {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	if filter.NonZeroOnly && pmt.Amount().IsZero() {
		return false
	}

	if !filter.From.IsZero() && pmt.RequestedAt().Before(filter.From) {
		return false
	}

	if !filter.To.IsZero() && pmt.RequestedAt().After(filter.To) {
		return false
	}

	return true
}
