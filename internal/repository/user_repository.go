package repository

import (
	"sort"
	"strings"

	"github.com/iliyamo/seat-tracker/internal/utils"
)

// Roles assigned to configured users.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is a configured account.  Only the bcrypt hash of the password is kept.
type User struct {
	Name         string
	PasswordHash string
	Role         string
}

// UserRepo is an in-memory credential store built from configuration.
// It is read-only after construction and safe for concurrent use.
type UserRepo struct{ users map[string]User }

// NewUserRepo hashes each plain password with the given bcrypt cost.  Names
// listed in admins get RoleAdmin; everyone else gets RoleUser.
func NewUserRepo(plain map[string]string, admins []string, cost int) (*UserRepo, error) {
	isAdmin := make(map[string]bool, len(admins))
	for _, a := range admins {
		isAdmin[strings.TrimSpace(a)] = true
	}
	users := make(map[string]User, len(plain))
	for name, pass := range plain {
		hash, err := utils.HashPassword(pass, cost)
		if err != nil {
			return nil, err
		}
		role := RoleUser
		if isAdmin[name] {
			role = RoleAdmin
		}
		users[name] = User{Name: name, PasswordHash: hash, Role: role}
	}
	return &UserRepo{users: users}, nil
}

// GetByName fetches a user by name.
func (r *UserRepo) GetByName(name string) (User, error) {
	u, ok := r.users[strings.TrimSpace(name)]
	if !ok {
		return User{}, ErrUnknownUser
	}
	return u, nil
}

// Verify reports whether proof is the password of identity.
func (r *UserRepo) Verify(identity, proof string) bool {
	u, err := r.GetByName(identity)
	if err != nil {
		return false
	}
	return utils.VerifyPassword(u.PasswordHash, proof)
}

// Names returns the configured user names in sorted order.
func (r *UserRepo) Names() []string {
	out := make([]string, 0, len(r.users))
	for n := range r.users {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
