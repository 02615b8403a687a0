// Package websitehttp serves the website records the dashboard lists.
package websitehttp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/themehub/internal/httpmw"
	"github.com/keithlinneman/themehub/internal/records"
	"github.com/keithlinneman/themehub/internal/respond"
	"github.com/keithlinneman/themehub/internal/websites"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

type Websites interface {
	Create(ctx context.Context, in websites.Input) (records.Website, error)
	Get(ctx context.Context, id string) (records.Website, error)
	List(ctx context.Context) ([]records.Website, error)
	Delete(ctx context.Context, id string) error
}

type API struct {
	websites Websites
	read     func(http.Handler) http.Handler
	write    func(http.Handler) http.Handler
}

// NewAPI guards reads with read and changes with write. Nil guards leave
// the routes open.
func NewAPI(svc Websites, read, write func(http.Handler) http.Handler) *API {
	return &API{websites: svc, read: read, write: write}
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.Route("/website", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			use(r, api.read)
			r.With(httpmw.Scope("websites.list")).Get("/", api.HandleList)
			r.With(httpmw.Scope("websites.get")).Get("/{id}", api.HandleGet)
		})
		r.Group(func(r chi.Router) {
			use(r, api.write)
			r.With(httpmw.Scope("websites.create")).Post("/", api.HandleCreate)
			r.With(httpmw.Scope("websites.delete")).Delete("/{id}", api.HandleDelete)
		})
	})
}

func use(r chi.Router, mw func(http.Handler) http.Handler) {
	if mw != nil {
		r.Use(mw)
	}
}

func (api *API) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := api.websites.List(r.Context())
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, list)
}

func (api *API) HandleGet(w http.ResponseWriter, r *http.Request) {
	site, err := api.websites.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, site)
}

func (api *API) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in websites.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.Error(w, r, xerrors.Invalid("invalid JSON body: %v", err))
		return
	}
	site, err := api.websites.Create(r.Context(), in)
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusCreated, site)
}

func (api *API) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := api.websites.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, r, http.StatusOK, "Website deleted successfully")
}
