// Package userhttp serves account registration, login and profile routes.
package userhttp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/themehub/internal/auth"
	"github.com/keithlinneman/themehub/internal/httpmw"
	"github.com/keithlinneman/themehub/internal/records"
	"github.com/keithlinneman/themehub/internal/respond"
	"github.com/keithlinneman/themehub/internal/users"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// Users is the account service behind the routes.
type Users interface {
	RegisterSuperAdmin(ctx context.Context, in users.NewUser) (records.User, string, error)
	AddUser(ctx context.Context, caller *auth.Claims, in users.NewUser) (records.User, string, error)
	Login(ctx context.Context, email, password string) (records.User, string, error)
	Details(ctx context.Context, caller *auth.Claims) (records.User, error)
	ChangePassword(ctx context.Context, caller *auth.Claims, userID, oldPassword, newPassword string) error
	Update(ctx context.Context, caller *auth.Claims, id string, upd records.UserUpdate) (records.User, error)
	List(ctx context.Context) ([]records.User, error)
}

// LoginObserver counts login attempts by outcome.
type LoginObserver interface {
	ObserveLogin(err error)
}

var (
	adminRoles = []string{records.RoleSuperAdmin, records.RoleAdmin}
	anyRole    = []string{records.RoleSuperAdmin, records.RoleAdmin, records.RoleUser}
)

type Options struct {
	Users Users
	Guard *auth.Guard

	// RateLimit, when set, wraps every /auth route.
	RateLimit func(http.Handler) http.Handler
	Logins    LoginObserver
}

type API struct {
	users     Users
	guard     *auth.Guard
	rateLimit func(http.Handler) http.Handler
	logins    LoginObserver
}

func NewAPI(opts Options) *API {
	return &API{
		users:     opts.Users,
		guard:     opts.Guard,
		rateLimit: opts.RateLimit,
		logins:    opts.Logins,
	}
}

// RegisterRoutes mounts /auth and /user.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		if api.rateLimit != nil {
			r.Use(api.rateLimit)
		}
		r.With(httpmw.Scope("auth.add_super_admin")).Post("/addSuperAdmin", api.HandleAddSuperAdmin)
		r.With(httpmw.Scope("auth.login")).Post("/login", api.HandleLogin)

		r.With(httpmw.Scope("auth.add_user"), api.guard.RequireRoles(adminRoles...)).Post("/addNewUser", api.HandleAddUser)
		r.Group(func(r chi.Router) {
			r.Use(api.guard.RequireRoles(anyRole...))
			r.With(httpmw.Scope("auth.user_details")).Get("/userDetails", api.HandleUserDetails)
			r.With(httpmw.Scope("auth.change_password")).Post("/changePassword", api.HandleChangePassword)
			r.With(httpmw.Scope("auth.update_user")).Put("/usersDetailUpdate/{id}", api.HandleUpdateUser)
		})
	})
	r.Route("/user", func(r chi.Router) {
		r.Use(api.guard.RequireRoles(adminRoles...))
		r.With(httpmw.Scope("users.list")).Get("/users", api.HandleListUsers)
	})
}

// duplicate emails answer 400 like the other input errors of registration
var registerStatus = respond.StatusFor(xerrors.KindConflict, http.StatusBadRequest)

func (api *API) HandleAddSuperAdmin(w http.ResponseWriter, r *http.Request) {
	var in users.NewUser
	if err := decodeJSON(r, &in); err != nil {
		respond.Error(w, r, err)
		return
	}
	_, token, err := api.users.RegisterSuperAdmin(r.Context(), in)
	if err != nil {
		respond.Error(w, r, err, registerStatus)
		return
	}
	respond.JSON(w, r, http.StatusCreated, respond.MessageBody{Message: "Super admin registered successfully", Token: token})
}

func (api *API) HandleAddUser(w http.ResponseWriter, r *http.Request) {
	var in users.NewUser
	if err := decodeJSON(r, &in); err != nil {
		respond.Error(w, r, err)
		return
	}
	caller, _ := auth.ClaimsFromContext(r.Context())
	_, token, err := api.users.AddUser(r.Context(), caller, in)
	if err != nil {
		respond.Error(w, r, err, registerStatus)
		return
	}
	respond.JSON(w, r, http.StatusCreated, respond.MessageBody{Message: "User registered successfully", Token: token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (api *API) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(r, &in); err != nil {
		respond.Error(w, r, err)
		return
	}
	_, token, err := api.users.Login(r.Context(), in.Email, in.Password)
	if api.logins != nil {
		api.logins.ObserveLogin(err)
	}
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, respond.MessageBody{Message: "Login successful", Token: token})
}

type userResponse struct {
	Message string       `json:"message,omitempty"`
	User    records.User `json:"user"`
}

func (api *API) HandleUserDetails(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.ClaimsFromContext(r.Context())
	u, err := api.users.Details(r.Context(), caller)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, userResponse{User: u})
}

type changePasswordRequest struct {
	UserID      string `json:"userID"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (api *API) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var in changePasswordRequest
	if err := decodeJSON(r, &in); err != nil {
		respond.Error(w, r, err)
		return
	}
	caller, _ := auth.ClaimsFromContext(r.Context())
	if err := api.users.ChangePassword(r.Context(), caller, in.UserID, in.OldPassword, in.NewPassword); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, r, http.StatusOK, "Password changed successfully")
}

type updateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (api *API) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var in updateUserRequest
	if err := decodeJSON(r, &in); err != nil {
		respond.Error(w, r, err)
		return
	}
	caller, _ := auth.ClaimsFromContext(r.Context())
	u, err := api.users.Update(r.Context(), caller, chi.URLParam(r, "id"), records.UserUpdate{
		Name:  in.Name,
		Email: in.Email,
		Phone: in.Phone,
	})
	if err != nil {
		respond.Error(w, r, err, registerStatus)
		return
	}
	respond.JSON(w, r, http.StatusOK, userResponse{Message: "User updated successfully", User: u})
}

func (api *API) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := api.users.List(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, list)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return xerrors.Invalid("invalid JSON body: %v", err)
	}
	return nil
}
