package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fenilmodi00/ipo-sim-backend/models"
	"github.com/fenilmodi00/ipo-sim-backend/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryApplicationStore keeps applications in process memory. It is used
// when no DATABASE_URL is configured and in tests.
type MemoryApplicationStore struct {
	mu   sync.RWMutex
	apps map[uuid.UUID]*models.Application
}

func NewMemoryApplicationStore() *MemoryApplicationStore {
	return &MemoryApplicationStore{apps: make(map[uuid.UUID]*models.Application)}
}

func (s *MemoryApplicationStore) Create(ctx context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apps[app.ID]; exists {
		return shared.NewStateConflictError("DUPLICATE_APPLICATION",
			fmt.Sprintf("application %s already exists", app.ID), "MemoryApplicationStore", "Create")
	}
	if !app.Withdrawn {
		for _, existing := range s.apps {
			if existing.IPOSymbol == app.IPOSymbol && existing.UserID == app.UserID && !existing.Withdrawn {
				return shared.NewStateConflictError("DUPLICATE_APPLICATION",
					fmt.Sprintf("user already holds an active application for %s", app.IPOSymbol),
					"MemoryApplicationStore", "Create")
			}
		}
	}

	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *MemoryApplicationStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.apps[id]
	if !ok {
		return nil, shared.NewNotFoundError("APPLICATION_NOT_FOUND",
			fmt.Sprintf("application %s not found", id), "MemoryApplicationStore", "FindByID")
	}
	return app.Clone(), nil
}

func (s *MemoryApplicationStore) FindActive(ctx context.Context, symbol string, userID uuid.UUID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Application
	for _, app := range s.apps {
		if app.IPOSymbol != symbol || app.UserID != userID || app.Withdrawn {
			continue
		}
		if found == nil || app.ApplicationDate.After(found.ApplicationDate) {
			found = app
		}
	}
	if found == nil {
		return nil, shared.NewNotFoundError("APPLICATION_NOT_FOUND",
			fmt.Sprintf("no active application for %s", symbol), "MemoryApplicationStore", "FindActive")
	}
	return found.Clone(), nil
}

func (s *MemoryApplicationStore) Update(ctx context.Context, app *models.Application, expected models.ApplicationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.apps[app.ID]
	if !ok {
		return shared.NewNotFoundError("APPLICATION_NOT_FOUND",
			fmt.Sprintf("application %s not found", app.ID), "MemoryApplicationStore", "Update")
	}
	if cur.Withdrawn || cur.Status != expected {
		return applicationChanged(app.ID, "MemoryApplicationStore", "Update")
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *MemoryApplicationStore) RestoreWithdrawal(ctx context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.apps[app.ID]
	if !ok {
		return shared.NewNotFoundError("APPLICATION_NOT_FOUND",
			fmt.Sprintf("application %s not found", app.ID), "MemoryApplicationStore", "RestoreWithdrawal")
	}
	if !cur.Withdrawn {
		return applicationChanged(app.ID, "MemoryApplicationStore", "RestoreWithdrawal")
	}
	for id, other := range s.apps {
		if id != app.ID && other.IPOSymbol == app.IPOSymbol && other.UserID == app.UserID && !other.Withdrawn {
			return shared.NewStateConflictError("DUPLICATE_APPLICATION",
				fmt.Sprintf("user already holds an active application for %s", app.IPOSymbol),
				"MemoryApplicationStore", "RestoreWithdrawal")
		}
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *MemoryApplicationStore) ListActive(ctx context.Context) ([]*models.Application, error) {
	return s.filter(func(a *models.Application) bool { return !a.Withdrawn }, true), nil
}

func (s *MemoryApplicationStore) ListBySymbolAndStatus(ctx context.Context, symbol string, status models.ApplicationStatus) ([]*models.Application, error) {
	return s.filter(func(a *models.Application) bool {
		return a.IPOSymbol == symbol && a.Status == status
	}, true), nil
}

func (s *MemoryApplicationStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Application, error) {
	return s.filter(func(a *models.Application) bool { return a.UserID == userID }, false), nil
}

// filter returns matching clones ordered by application date.
func (s *MemoryApplicationStore) filter(match func(*models.Application) bool, ascending bool) []*models.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Application, 0)
	for _, app := range s.apps {
		if match(app) {
			out = append(out, app.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].ApplicationDate.Before(out[j].ApplicationDate)
		}
		return out[i].ApplicationDate.After(out[j].ApplicationDate)
	})
	return out
}

// MemoryLedger is an in-process balance ledger with exact decimal arithmetic.
type MemoryLedger struct {
	mu    sync.Mutex
	users map[uuid.UUID]*memoryUser
}

type memoryUser struct {
	user    models.User
	balance decimal.Decimal
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{users: make(map[uuid.UUID]*memoryUser)}
}

func (l *MemoryLedger) EnsureUser(ctx context.Context, userID uuid.UUID, startingBalance float64) (*models.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[userID]
	if !ok {
		now := time.Now()
		u = &memoryUser{
			user:    models.User{ID: userID, CreatedAt: now, UpdatedAt: now},
			balance: decimal.NewFromFloat(startingBalance),
		}
		l.users[userID] = u
	}
	return u.snapshot(), nil
}

func (l *MemoryLedger) GetBalance(ctx context.Context, userID uuid.UUID) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[userID]
	if !ok {
		return 0, userNotFound(userID, "GetBalance")
	}
	return u.balance.InexactFloat64(), nil
}

func (l *MemoryLedger) IncrementBalance(ctx context.Context, userID uuid.UUID, delta float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[userID]
	if !ok {
		return 0, userNotFound(userID, "IncrementBalance")
	}

	next := u.balance.Add(decimal.NewFromFloat(delta))
	if next.IsNegative() {
		return 0, shared.NewStateConflictError("INSUFFICIENT_BALANCE",
			fmt.Sprintf("balance cannot cover %.2f", -delta), "MemoryLedger", "IncrementBalance")
	}
	u.balance = next
	u.user.UpdatedAt = time.Now()
	return next.InexactFloat64(), nil
}

func (u *memoryUser) snapshot() *models.User {
	c := u.user
	c.Balance = u.balance.InexactFloat64()
	return &c
}
