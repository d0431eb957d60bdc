package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"warungpos/internal/domain"
	"warungpos/internal/permission"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestCreateCashierStoresPasswordHashAndRole(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}

	manager := NewAuthManager("test-secret", time.Hour, store)
	cashier, err := manager.CreateCashier(domain.CashierCreateRequest{
		Username:    "kasirbaru",
		Password:    "pass1234",
		CashierRole: permission.RoleSenior,
	})
	if err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}
	if cashier.Username != "kasirbaru" {
		t.Fatalf("unexpected username %s", cashier.Username)
	}
	if cashier.CashierRole != permission.RoleSenior {
		t.Fatalf("expected senior cashier role, got %s", cashier.CashierRole)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "kasirbaru" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected cashier to be saved")
	}
	if found.Password == "pass1234" {
		t.Fatalf("expected cashier password to be hashed")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	_, err = manager.Login(domain.LoginRequest{
		Username: "kasirbaru",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("login with hashed cashier failed: %v", err)
	}
}

func TestCreateCashierRejectsUnknownRoleAndPermission(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{users: map[string]domain.UserAccount{}})

	_, err := manager.CreateCashier(domain.CashierCreateRequest{
		Username:    "kasirbaru",
		Password:    "pass1234",
		CashierRole: "wizard",
	})
	if err == nil {
		t.Fatalf("expected error for unknown cashier role")
	}

	_, err = manager.CreateCashier(domain.CashierCreateRequest{
		Username:    "kasirlain",
		Password:    "pass1234",
		CashierRole: permission.RoleJunior,
		Permissions: []string{"fly"},
	})
	if err == nil {
		t.Fatalf("expected error for unknown permission grant")
	}
}

func TestTokenRoundTripCarriesCashierRoleAndGrants(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, store)

	if _, err := manager.CreateCashier(domain.CashierCreateRequest{
		Username:    "kasirbaru",
		Password:    "pass1234",
		CashierRole: permission.RoleJunior,
		Permissions: []string{string(permission.VoidTransaction)},
	}); err != nil {
		t.Fatalf("create cashier failed: %v", err)
	}

	resp, err := manager.Login(domain.LoginRequest{Username: "kasirbaru", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.CashierRole != permission.RoleJunior {
		t.Fatalf("expected junior role in response, got %s", resp.CashierRole)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "kasirbaru" || actor.CashierRole != permission.RoleJunior {
		t.Fatalf("unexpected actor %+v", actor)
	}
	if len(actor.Permissions) != 1 || actor.Permissions[0] != string(permission.VoidTransaction) {
		t.Fatalf("expected explicit void grant in claims, got %v", actor.Permissions)
	}
	if !permission.Allowed(actor, permission.VoidTransaction) {
		t.Fatalf("expected explicit grant to allow void")
	}
}
