// Package themehttp serves the theme manager routes the dashboard calls.
package themehttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/themehub/internal/httpmw"
	"github.com/keithlinneman/themehub/internal/records"
	"github.com/keithlinneman/themehub/internal/respond"
	"github.com/keithlinneman/themehub/internal/themes"
	"github.com/keithlinneman/themehub/internal/xerrors"
)

// MountPath is where the dashboard expects the theme routes.
const MountPath = "/theme_manager_Store_gcp"

// Themes is the theme service the routes drive.
type Themes interface {
	CreateFolder(ctx context.Context, bucket, folder string) error
	DeleteFolder(ctx context.Context, bucket, folder string) (int, error)
	SetTheme(ctx context.Context, bucket, folder string) (themes.SwapResult, error)
	Details(ctx context.Context, bucket string) (records.ThemeRecord, error)
	Upload(ctx context.Context, bucket, folder, filename string, r io.Reader, contentType string) (string, error)
	DeleteFile(ctx context.Context, bucket, folder, file string) error
	Media(ctx context.Context, bucket string) ([]themes.File, error)
	List(ctx context.Context, bucket, location string) ([]themes.File, error)
	Pages(ctx context.Context, bucket string) ([]string, error)
	Folder(ctx context.Context, bucket, folder string) (themes.FolderListing, error)
	CurrentFolder() string
}

// API implements the theme manager endpoints.
type API struct {
	themes Themes
	guard  func(http.Handler) http.Handler
}

// NewAPI returns the routes of svc behind guard, which must admit only
// admins. A nil guard leaves the routes open and is meant for tests.
func NewAPI(svc Themes, guard func(http.Handler) http.Handler) *API {
	return &API{themes: svc, guard: guard}
}

// RegisterRoutes mounts the theme routes under MountPath.
func (api *API) RegisterRoutes(r chi.Router) {
	r.Route(MountPath, func(r chi.Router) {
		if api.guard != nil {
			r.Use(api.guard)
		}
		r.With(httpmw.Scope("themes.create_folder")).Post("/media/folders/{bucket}", api.HandleCreateFolder)
		r.With(httpmw.Scope("themes.delete_folder")).Delete("/media/folders/{bucket}/{folder}", api.HandleDeleteFolder)
		r.With(httpmw.Scope("themes.set_theme")).Post("/setTheme/{bucket}/{folder}", api.HandleSetTheme)
		r.With(httpmw.Scope("themes.details")).Get("/getThemeDetails/{bucket}", api.HandleThemeDetails)
		r.With(httpmw.Scope("themes.upload")).Post("/media/upload/{bucket}/{folder}", api.HandleUpload)
		r.With(httpmw.Scope("themes.delete_file")).Delete("/media/delete/{bucket}/{folder}/{file}", api.HandleDeleteFile)
		r.With(httpmw.Scope("themes.media")).Get("/media/{bucket}", api.HandleMedia)
		r.With(httpmw.Scope("themes.list")).Get("/media/list/{bucket}", api.HandleList)
		r.With(httpmw.Scope("themes.pages")).Get("/currfolders/{bucket}", api.HandlePages)
		r.With(httpmw.Scope("themes.folder")).Get("/currfolders/{bucket}/{folder}", api.HandleFolder)
	})
}

type createFolderRequest struct {
	FolderName string `json:"folderName"`
}

// HandleCreateFolder answers 400 when the folder exists, as the dashboard
// expects.
func (api *API) HandleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := decodeJSON(r, &req); err != nil {
		respond.Error(w, r, err)
		return
	}
	if err := api.themes.CreateFolder(r.Context(), chi.URLParam(r, "bucket"), req.FolderName); err != nil {
		respond.Error(w, r, err, respond.StatusFor(xerrors.KindConflict, http.StatusBadRequest))
		return
	}
	respond.Message(w, r, http.StatusOK, "Folder created successfully")
}

type deleteFolderResponse struct {
	Message string `json:"message"`
	Deleted int    `json:"deleted"`
}

func (api *API) HandleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	n, err := api.themes.DeleteFolder(r.Context(), chi.URLParam(r, "bucket"), chi.URLParam(r, "folder"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, deleteFolderResponse{Message: "Folder deleted successfully", Deleted: n})
}

type setThemeResponse struct {
	Message string `json:"message"`
	themes.SwapResult
}

// swapFailedResponse lists what a failed swap could not do, by key and
// error kind only.
type swapFailedResponse struct {
	Error     string               `json:"error"`
	RequestID string               `json:"request_id,omitempty"`
	Copied    int                  `json:"copied"`
	Failed    []themes.ItemFailure `json:"failed"`
}

func (api *API) HandleSetTheme(w http.ResponseWriter, r *http.Request) {
	res, err := api.themes.SetTheme(r.Context(), chi.URLParam(r, "bucket"), chi.URLParam(r, "folder"))
	var swapErr *themes.SwapError
	switch {
	case errors.As(err, &swapErr):
		// already logged with its cause by the service
		respond.JSON(w, r, http.StatusInternalServerError, swapFailedResponse{
			Error:     "theme swap failed",
			RequestID: httpmw.RequestIDFromContext(r.Context()),
			Copied:    swapErr.Result.Copied,
			Failed:    swapErr.Result.Failed,
		})
		return
	case err != nil:
		respond.Error(w, r, err)
		return
	}
	msg := "Theme set successfully by copying files to '" + api.themes.CurrentFolder() + "'."
	respond.JSON(w, r, http.StatusOK, setThemeResponse{Message: msg, SwapResult: res})
}

func (api *API) HandleThemeDetails(w http.ResponseWriter, r *http.Request) {
	rec, err := api.themes.Details(r.Context(), chi.URLParam(r, "bucket"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, rec)
}

type uploadResponse struct {
	Message string `json:"message"`
	Key     string `json:"key"`
}

// HandleUpload streams the multipart field "file" into the store without
// buffering it to disk.
func (api *API) HandleUpload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		respond.Error(w, r, xerrors.Invalid("expected a multipart form with a file field"))
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			respond.Error(w, r, xerrors.Invalid("no file uploaded"))
			return
		}
		if err != nil {
			respondBodyError(w, r, err)
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		key, err := api.themes.Upload(r.Context(), chi.URLParam(r, "bucket"), chi.URLParam(r, "folder"),
			part.FileName(), part, partContentType(part.Header.Get("Content-Type")))
		_ = part.Close()
		if err != nil {
			respondBodyError(w, r, err)
			return
		}
		respond.JSON(w, r, http.StatusOK, uploadResponse{Message: "Media content uploaded successfully", Key: key})
		return
	}
}

func (api *API) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	err := api.themes.DeleteFile(r.Context(), chi.URLParam(r, "bucket"), chi.URLParam(r, "folder"), chi.URLParam(r, "file"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.Message(w, r, http.StatusOK, "File deleted successfully")
}

func (api *API) HandleMedia(w http.ResponseWriter, r *http.Request) {
	files, err := api.themes.Media(r.Context(), chi.URLParam(r, "bucket"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, files)
}

func (api *API) HandleList(w http.ResponseWriter, r *http.Request) {
	files, err := api.themes.List(r.Context(), chi.URLParam(r, "bucket"), r.URL.Query().Get("location"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, files)
}

func (api *API) HandlePages(w http.ResponseWriter, r *http.Request) {
	pages, err := api.themes.Pages(r.Context(), chi.URLParam(r, "bucket"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, pages)
}

func (api *API) HandleFolder(w http.ResponseWriter, r *http.Request) {
	l, err := api.themes.Folder(r.Context(), chi.URLParam(r, "bucket"), chi.URLParam(r, "folder"))
	if err != nil {
		respond.Error(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, l)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return xerrors.Invalid("invalid JSON body: %v", err)
	}
	return nil
}

// respondBodyError maps an oversized request body to 413.
func respondBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respond.JSON(w, r, http.StatusRequestEntityTooLarge, respond.ErrorBody{
			Error:     "upload exceeds the size limit",
			RequestID: httpmw.RequestIDFromContext(r.Context()),
		})
		return
	}
	respond.Error(w, r, err)
}

// partContentType keeps a well formed client type and drops the rest.
func partContentType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mime.FormatMediaType(mt, params)
}
