package devapi

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/mrlokans/campusadmin/internal/entities"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrPasswordTooLong = errors.New("password exceeds maximum length of 72 bytes")
	ErrEmailTaken      = errors.New("email already in use")
)

// User is an account known to the dev API.
type User struct {
	ID            string
	Email         string
	FirstName     string
	LastName      string
	Phone         string
	Role          string
	EmailVerified bool
	PasswordHash  string
}

// Profile is the public view of the user returned by the API.
func (u *User) Profile() entities.UserProfile {
	return entities.UserProfile{
		"id":            u.ID,
		"email":         u.Email,
		"firstName":     u.FirstName,
		"lastName":      u.LastName,
		"phone":         u.Phone,
		"role":          u.Role,
		"emailVerified": u.EmailVerified,
	}
}

// SeedUser describes an account created at startup.
type SeedUser struct {
	ID        string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// DefaultSeedUsers are the accounts available out of the box.
func DefaultSeedUsers() []SeedUser {
	return []SeedUser{
		{ID: "u1", Email: "admin@campus.edu", Password: "Campus!2024", FirstName: "Campus", LastName: "Admin", Role: "admin"},
		{ID: "u2", Email: "editor@campus.edu", Password: "Editor!2024", FirstName: "News", LastName: "Editor", Role: "editor"},
	}
}

// HashPassword creates a bcrypt hash of the password.
func HashPassword(password string, cost int) (string, error) {
	// bcrypt has a 72-byte limit
	if len(password) > 72 {
		return "", ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a password with its hash.
func CheckPassword(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidPassword
	}
	return err
}

// UserStore keeps accounts in memory.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*User
	cost  int

	// compared against for unknown identifiers
	dummyHash string
}

// NewUserStore hashes and stores the seed accounts.
func NewUserStore(seed []SeedUser, cost int) (*UserStore, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := HashPassword("not-a-real-password", cost)
	if err != nil {
		return nil, err
	}
	s := &UserStore{users: make(map[string]*User), cost: cost, dummyHash: dummy}
	for _, su := range seed {
		hash, err := HashPassword(su.Password, cost)
		if err != nil {
			return nil, err
		}
		s.users[su.ID] = &User{
			ID:            su.ID,
			Email:         su.Email,
			FirstName:     su.FirstName,
			LastName:      su.LastName,
			Role:          su.Role,
			EmailVerified: true,
			PasswordHash:  hash,
		}
	}
	return s, nil
}

// Get returns a copy of the user with the given ID.
func (s *UserStore) Get(id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// FindByIdentifier matches an email (case-insensitive) or a user ID.
func (s *UserStore) FindByIdentifier(identifier string) (*User, error) {
	identifier = strings.TrimSpace(identifier)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, ok := s.users[identifier]; ok {
		cp := *u
		return &cp, nil
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, identifier) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

// Authenticate returns the user when identifier and password match.
func (s *UserStore) Authenticate(identifier, password string) (*User, error) {
	u, err := s.FindByIdentifier(identifier)
	if err != nil {
		_ = CheckPassword(password, s.dummyHash)
		return nil, ErrInvalidPassword
	}
	if err := CheckPassword(password, u.PasswordHash); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword replaces the user's password.
func (s *UserStore) SetPassword(id, password string) error {
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

// MarkVerified flags the user's email as verified.
func (s *UserStore) MarkVerified(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.EmailVerified = true
	return nil
}

// ProfileUpdate holds the editable profile fields; nil means unchanged.
type ProfileUpdate struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Email     *string `json:"email"`
	Phone     *string `json:"phone"`
}

// UpdateProfile applies upd and returns the updated user. Changing the
// email clears its verified flag.
func (s *UserStore) UpdateProfile(id string, upd ProfileUpdate) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}

	if upd.Email != nil && !strings.EqualFold(*upd.Email, u.Email) {
		for _, other := range s.users {
			if other.ID != id && strings.EqualFold(other.Email, *upd.Email) {
				return nil, ErrEmailTaken
			}
		}
		u.Email = *upd.Email
		u.EmailVerified = false
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}

	cp := *u
	return &cp, nil
}
