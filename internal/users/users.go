// Package users implements account registration, login and profile
// management on top of the record store.
package users

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/keithlinneman/themehub/internal/auth"
	"github.com/keithlinneman/themehub/internal/log"
	"github.com/keithlinneman/themehub/internal/records"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// Roles accepted for new accounts. "Admin" is the spelling older
// dashboard builds send.
var Roles = []string{records.RoleSuperAdmin, records.RoleAdmin, "Admin", records.RoleUser}

// NewUser is the registration input.
type NewUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type Options struct {
	Store  records.UserStore
	Tokens *auth.Tokens
	Logger log.Logger

	// AllowOpenBootstrap lets anyone register a super admin even when one
	// exists already.
	AllowOpenBootstrap bool

	Now func() time.Time
}

type Service struct {
	store     records.UserStore
	tokens    *auth.Tokens
	logger    log.Logger
	openBoot  bool
	now       func() time.Time
	bootstrap sync.Mutex
}

func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, xerrors.New("users: Store is required")
	}
	if opts.Tokens == nil {
		return nil, xerrors.New("users: Tokens is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    opts.Store,
		tokens:   opts.Tokens,
		logger:   opts.Logger,
		openBoot: opts.AllowOpenBootstrap,
		now:      opts.Now,
	}, nil
}

// RegisterSuperAdmin creates the first super admin and returns a token for
// it. Once a super admin exists further calls are forbidden unless open
// bootstrap is enabled.
func (s *Service) RegisterSuperAdmin(ctx context.Context, in NewUser) (records.User, string, error) {
	in.Role = records.RoleSuperAdmin
	if err := in.validate(); err != nil {
		return records.User{}, "", err
	}

	s.bootstrap.Lock()
	defer s.bootstrap.Unlock()
	if !s.openBoot {
		n, err := s.store.CountUsersByRole(ctx, records.RoleSuperAdmin)
		if err != nil {
			return records.User{}, "", xerrors.Wrap(err, "count super admins")
		}
		if n > 0 {
			return records.User{}, "", xerrors.Forbidden("a super admin already exists")
		}
	}
	return s.create(ctx, in)
}

// AddUser creates an account on behalf of caller. Only super admins may
// create other super admins.
func (s *Service) AddUser(ctx context.Context, caller *auth.Claims, in NewUser) (records.User, string, error) {
	if err := in.validate(); err != nil {
		return records.User{}, "", err
	}
	if in.Role == "" {
		return records.User{}, "", xerrors.Invalid("all fields are required")
	}
	if !validRole(in.Role) {
		return records.User{}, "", xerrors.Invalid("unknown role %q", in.Role)
	}
	if strings.EqualFold(in.Role, records.RoleSuperAdmin) && (caller == nil || !strings.EqualFold(caller.Role, records.RoleSuperAdmin)) {
		return records.User{}, "", xerrors.Forbidden("only a super admin can add a super admin")
	}
	return s.create(ctx, in)
}

func (s *Service) create(ctx context.Context, in NewUser) (records.User, string, error) {
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return records.User{}, "", err
	}
	now := s.now().UTC()
	u, err := s.store.CreateUser(ctx, records.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        records.NormalizeEmail(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Role:         in.Role,
		Status:       records.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return records.User{}, "", xerrors.Wrap(err, "create user")
	}
	token, err := s.tokens.Issue(u)
	if err != nil {
		return records.User{}, "", err
	}
	s.logger.Info(ctx, "user registered", "user_id", u.ID, "role", u.Role)
	return u, token, nil
}

// Login checks credentials. Unknown accounts are NotFound, inactive ones
// Forbidden and wrong passwords Unauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (records.User, string, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return records.User{}, "", xerrors.Invalid("email and password are required")
	}
	u, err := s.store.UserByEmail(ctx, email)
	if xerrors.Is(err, xerrors.KindNotFound) {
		return records.User{}, "", xerrors.NotFound("user not found")
	}
	if err != nil {
		return records.User{}, "", xerrors.Wrap(err, "find user")
	}
	if !u.Active() {
		return records.User{}, "", xerrors.Forbidden("user account is not active")
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		s.logger.Info(ctx, "login rejected", "user_id", u.ID, "reason", xerrors.KindOf(err).String())
		return records.User{}, "", err
	}
	token, err := s.tokens.Issue(u)
	if err != nil {
		return records.User{}, "", err
	}
	return u, token, nil
}

// Details returns the account of the token holder.
func (s *Service) Details(ctx context.Context, caller *auth.Claims) (records.User, error) {
	if caller == nil {
		return records.User{}, xerrors.Unauthorized("authorization token is required")
	}
	u, err := s.store.UserByEmail(ctx, caller.Email)
	if xerrors.Is(err, xerrors.KindNotFound) {
		return records.User{}, xerrors.NotFound("user not found")
	}
	return u, err
}

// ChangePassword replaces the password of userID after checking the old
// one. Callers may change their own password; admins anyone's.
func (s *Service) ChangePassword(ctx context.Context, caller *auth.Claims, userID, oldPassword, newPassword string) error {
	if userID == "" || oldPassword == "" || newPassword == "" {
		return xerrors.Invalid("all fields are required")
	}
	if err := mayEdit(caller, userID); err != nil {
		return err
	}
	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return xerrors.Wrap(err, "find user")
	}
	if err := auth.CheckPassword(u.PasswordHash, oldPassword); err != nil {
		if xerrors.Is(err, xerrors.KindUnauthorized) {
			return xerrors.Unauthorized("old password is incorrect")
		}
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.SetPassword(ctx, userID, hash, s.now().UTC()); err != nil {
		return xerrors.Wrap(err, "set password")
	}
	s.logger.Info(ctx, "password changed", "user_id", userID)
	return nil
}

// Update changes profile fields of id; empty fields are kept.
func (s *Service) Update(ctx context.Context, caller *auth.Claims, id string, upd records.UserUpdate) (records.User, error) {
	if err := mayEdit(caller, id); err != nil {
		return records.User{}, err
	}
	upd.Name = strings.TrimSpace(upd.Name)
	upd.Phone = strings.TrimSpace(upd.Phone)
	if upd.Email != "" {
		if _, err := mail.ParseAddress(upd.Email); err != nil {
			return records.User{}, xerrors.Invalid("invalid email %q", upd.Email)
		}
		upd.Email = records.NormalizeEmail(upd.Email)
	}
	u, err := s.store.UpdateUser(ctx, id, upd, s.now().UTC())
	if err != nil {
		return records.User{}, xerrors.Wrap(err, "update user")
	}
	return u, nil
}

// List returns every account.
func (s *Service) List(ctx context.Context) ([]records.User, error) {
	return s.store.ListUsers(ctx)
}

func mayEdit(caller *auth.Claims, id string) error {
	if caller == nil {
		return xerrors.Unauthorized("authorization token is required")
	}
	if caller.UserID() == id || auth.IsAdminRole(caller.Role) {
		return nil
	}
	return xerrors.Forbidden("cannot modify another user")
}

func (in NewUser) validate() error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" ||
		strings.TrimSpace(in.Phone) == "" || in.Password == "" {
		return xerrors.Invalid("all fields are required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return xerrors.Invalid("invalid email %q", in.Email)
	}
	return nil
}

func validRole(role string) bool {
	for _, r := range Roles {
		if role == r {
			return true
		}
	}
	return false
}
