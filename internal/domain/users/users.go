package users

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserLoginEmpty  = errors.New("user login is empty")
	ErrUserPasswdEmpty = errors.New("user password is empty")
	ErrRoleUnknown     = errors.New("user role is unknown")
)

// Role controls access to the administrative operations.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
)

func ParseRole(role string) (Role, error) {
	switch Role(role) {
	case RoleUser, RoleAdmin, RoleSupervisor:
		return Role(role), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrRoleUnknown, role)
	}
}

type User struct {
	login        string
	passwordHash string
	name         string
	surname      string
	role         Role
	region       string
	active       bool
	planupID     int64
	registeredAt time.Time
}

// NewUser creates a user with a freshly hashed password.
func NewUser(login, password string, role Role, opts ...Option) (*User, error) {
	if err := ValidateLogin(login); err != nil {
		return nil, err
	}

	if password == "" {
		return nil, ErrUserPasswdEmpty
	}

	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	passwordHash, err := getPasswordHash(password)
	if err != nil {
		return nil, fmt.Errorf("getPasswordHash: %w", err)
	}

	usr := &User{
		login:        login,
		passwordHash: passwordHash,
		role:         role,
		active:       true,
		registeredAt: time.Now(),
	}

	for _, opt := range opts {
		opt(usr)
	}

	return usr, nil
}

// RestoreUser rebuilds a user from persisted state. The password hash is
// taken as-is.
func RestoreUser(login, passwordHash string, role Role, opts ...Option) (*User, error) {
	if err := ValidateLogin(login); err != nil {
		return nil, err
	}

	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	usr := &User{
		login:        login,
		passwordHash: passwordHash,
		role:         role,
		active:       true,
	}

	for _, opt := range opts {
		opt(usr)
	}

	return usr, nil
}

type Option func(u *User)

func WithName(name, surname string) Option {
	return func(u *User) {
		u.name = name
		u.surname = surname
	}
}

func WithRegion(region string) Option {
	return func(u *User) {
		u.region = region
	}
}

func WithPlanupID(id int64) Option {
	return func(u *User) {
		u.planupID = id
	}
}

func WithActive(active bool) Option {
	return func(u *User) {
		u.active = active
	}
}

func WithRegisteredAt(t time.Time) Option {
	return func(u *User) {
		u.registeredAt = t
	}
}

func (u *User) Login() string           { return u.login }
func (u *User) PasswordHash() string    { return u.passwordHash }
func (u *User) Name() string            { return u.name }
func (u *User) Surname() string         { return u.surname }
func (u *User) Role() Role              { return u.role }
func (u *User) Region() string          { return u.region }
func (u *User) Active() bool            { return u.active }
func (u *User) PlanupID() int64         { return u.planupID }
func (u *User) RegisteredAt() time.Time { return u.registeredAt }

// ProfileUpdate is the allow-listed set of mutable profile fields. Balance
// fields are deliberately absent: they change only through account mutations.
type ProfileUpdate struct {
	Name             *string
	Surname          *string
	Region           *string
	AccessToPayments *bool
	PlanupID         *int64
}

func getPasswordHash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt.GenerateFromPassword: %w", err)
	}

	return string(hash), nil
}

func ValidateLogin(login string) error {
	if login == "" {
		return ErrUserLoginEmpty
	}

	return nil
}
