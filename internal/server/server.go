package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"checkline/internal/app"
	"checkline/internal/domain"
	"checkline/internal/engine"
	"checkline/internal/export"
	"checkline/internal/logger"
	"checkline/internal/normalize"
	"checkline/internal/order"
	"checkline/internal/progress"
	"checkline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Workspace *app.Workspace
	BasePath  string
	Auth      AuthConfig
	Log       *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"export_blocked"`
	Message string         `json:"message" example:"export blocked: 1 failed item(s) without a note"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// service owns the session served over HTTP. Requests are serialised through mu so the
// engine keeps its single-threaded model.
type service struct {
	ws      *app.Workspace
	log     *zap.Logger
	mu      sync.Mutex
	session *engine.Session
}

// New returns an HTTP handler exposing the Checkline API for the workspace's session.
func New(ctx context.Context, cfg Config) (http.Handler, error) {
	if cfg.Workspace == nil {
		return nil, errors.New("server: workspace is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	s, err := cfg.Workspace.LoadSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	a := &service{ws: cfg.Workspace, log: log, session: s}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(logger.Middleware(log))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Checkline API", "0.1.0")
	hcfg.OpenAPIPath = path.Join(basePath, "openapi")
	hcfg.DocsPath = ""
	humaAPI := humachi.New(router, hcfg)
	group := huma.NewGroup(humaAPI, basePath)

	registerHealth(group)
	a.registerDocument(group)
	a.registerProgress(group)
	a.registerMeta(group)
	a.registerSections(group)
	a.registerItems(group)
	a.registerPhotos(group)
	a.registerOutput(group)
	a.registerEvents(group)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ge *export.GateError
	if errors.As(err, &ge) {
		violations := ge.Violations
		if violations == nil {
			violations = []export.Violation{}
		}
		return newAPIError(http.StatusUnprocessableEntity, "export_blocked", err.Error(), map[string]any{
			"violations":     violations,
			"missing_fields": ge.MissingFields,
		})
	}
	switch {
	case errors.Is(err, engine.ErrNoDocument):
		return newAPIError(http.StatusConflict, "no_document", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, normalize.ErrInvalidDocument),
		errors.Is(err, engine.ErrTextRequired),
		errors.Is(err, engine.ErrUnknownField),
		errors.Is(err, engine.ErrInvalidValue),
		errors.Is(err, engine.ErrEmptyPayload),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidDirection):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func sectionNotFound(id string) huma.StatusError {
	return newAPIError(http.StatusNotFound, "not_found", "section not found", map[string]any{"section_id": id})
}

func itemNotFound(sectionID, itemID string) huma.StatusError {
	return newAPIError(http.StatusNotFound, "not_found", "item not found", map[string]any{"section_id": sectionID, "item_id": itemID})
}

// view runs fn against the session without persisting.
func (a *service) view(fn func(e engine.Engine) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn(a.ws.Engine(a.session))
}

// mutate runs fn and, when it succeeds, persists the session with the changes it recorded.
// Response bodies built inside fn must be copies: they are encoded after the lock is released.
func (a *service) mutate(ctx context.Context, fn func(e engine.Engine) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := fn(a.ws.Engine(a.session)); err != nil {
		return err
	}
	if err := a.ws.Persist(ctx, a.session, actorFromContext(ctx)); err != nil {
		a.log.Error("persist session", zap.Error(err))
		return err
	}
	return nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type documentOutput struct {
	Body DocumentResponse `json:"body"`
}

func (a *service) registerDocument(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-document",
		Method:      http.MethodGet,
		Path:        "/document",
		Summary:     "Current session and document",
	}, func(ctx context.Context, _ *struct{}) (*documentOutput, error) {
		var out documentOutput
		_ = a.view(func(e engine.Engine) error {
			out.Body = documentResponse(e.Session)
			return nil
		})
		return &out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "open-document",
		Method:      http.MethodPost,
		Path:        "/document",
		Summary:     "Open a checklist JSON document, replacing the session",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		FileName string `query:"file_name"`
		RawBody  []byte `contentType:"application/json"`
	}) (*documentOutput, error) {
		var out documentOutput
		err := a.mutate(ctx, func(e engine.Engine) error {
			if _, err := e.Open(input.FileName, input.RawBody); err != nil {
				return err
			}
			out.Body = documentResponse(e.Session)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "new-document",
		Method:        http.MethodPost,
		Path:          "/document/new",
		Summary:       "Start a new document from the configured template",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, _ *struct{}) (*documentOutput, error) {
		var out documentOutput
		err := a.mutate(ctx, func(e engine.Engine) error {
			e.NewDocument()
			out.Body = documentResponse(e.Session)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "close-document",
		Method:        http.MethodDelete,
		Path:          "/document",
		Summary:       "Close the session, discarding the draft",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		if err := a.mutate(ctx, func(e engine.Engine) error { return e.Close() }); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-document",
		Method:      http.MethodPost,
		Path:        "/document/reset",
		Summary:     "Reset every item to todo and clear notes and meta",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*documentOutput, error) {
		var out documentOutput
		err := a.mutate(ctx, func(e engine.Engine) error {
			if err := e.ResetStates(); err != nil {
				return err
			}
			out.Body = documentResponse(e.Session)
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &out, nil
	})
}

func (a *service) registerProgress(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/progress",
		Summary:     "Completion per section and overall",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		var resp ProgressResponse
		err := a.view(func(e engine.Engine) error {
			doc, err := e.Document()
			if err != nil {
				return err
			}
			resp.Global = progress.Global(doc)
			resp.Sections = []SectionProgress{}
			for _, s := range order.Sections(doc) {
				resp.Sections = append(resp.Sections, SectionProgress{
					ID: s.ID, Title: s.Title, Stats: progress.Section(s), Badges: progress.Badges(s),
				})
			}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func (a *service) registerMeta(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "update-meta",
		Method:      http.MethodPatch,
		Path:        "/meta",
		Summary:     "Update meta fields",
		Description: "Keys are interchange names (centraleNome, anno, ...) or English aliases (site, year, ...).",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body map[string]string `json:"body"`
	}) (*struct {
		Body domain.Meta `json:"body"`
	}, error) {
		var unknown []string
		for k := range input.Body {
			if _, ok := engine.MetaFields[k]; !ok {
				unknown = append(unknown, k)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown meta field", map[string]any{"field": unknown[0], "fields": unknown})
		}
		var meta domain.Meta
		err := a.mutate(ctx, func(e engine.Engine) error {
			if err := e.SetMetaFields(input.Body); err != nil {
				return err
			}
			doc, err := e.Document()
			if err != nil {
				return err
			}
			meta = doc.Meta
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Meta `json:"body"`
		}{Body: meta}, nil
	})
}

type sectionOutput struct {
	Body domain.Section `json:"body"`
}

type moveOutput struct {
	Body MoveResponse `json:"body"`
}

func (a *service) registerSections(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-section",
		Method:        http.MethodPost,
		Path:          "/sections",
		Summary:       "Append a section",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body TitleRequest `json:"body"`
	}) (*sectionOutput, error) {
		var out sectionOutput
		err := a.mutate(ctx, func(e engine.Engine) error {
			s, err := e.AddSection(input.Body.Title)
			out.Body = s.Clone()
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-section",
		Method:      http.MethodPatch,
		Path:        "/sections/{section_id}",
		Summary:     "Rename a section",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SectionID string       `path:"section_id"`
		Body      TitleRequest `json:"body"`
	}) (*sectionOutput, error) {
		var out sectionOutput
		err := a.mutate(ctx, func(e engine.Engine) error {
			ok, err := e.RenameSection(input.SectionID, input.Body.Title)
			if err != nil {
				return err
			}
			if !ok {
				return sectionNotFound(input.SectionID)
			}
			doc, _ := e.Document()
			out.Body = doc.FindSection(input.SectionID).Clone()
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-section",
		Method:        http.MethodDelete,
		Path:          "/sections/{section_id}",
		Summary:       "Delete a section and all of its items",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SectionID string `path:"section_id"`
		Confirm   bool   `query:"confirm" doc:"must be true"`
	}) (*struct{}, error) {
		if !input.Confirm {
			return nil, newAPIError(http.StatusBadRequest, "confirmation_required", "deleting a section removes all of its items; repeat with confirm=true", map[string]any{"section_id": input.SectionID})
		}
		err := a.mutate(ctx, func(e engine.Engine) error {
			ok, err := e.DeleteSection(input.SectionID)
			if err != nil {
				return err
			}
			if !ok {
				return sectionNotFound(input.SectionID)
			}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-section",
		Method:      http.MethodPost,
		Path:        "/sections/{section_id}/move",
		Summary:     "Move a section up or down",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SectionID string      `path:"section_id"`
		Body      MoveRequest `json:"body"`
	}) (*moveOutput, error) {
		dir, err := domain.ParseDirection(input.Body.Direction)
		if err != nil {
			return nil, handleError(err)
		}
		var out moveOutput
		err = a.mutate(ctx, func(e engine.Engine) error {
			doc, err := e.Document()
			if err != nil {
				return err
			}
			if doc.FindSection(input.SectionID) == nil {
				return sectionNotFound(input.SectionID)
			}
			out.Body.Moved, err = e.MoveSection(input.SectionID, dir)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &out, nil
	})
}

type itemOutput struct {
	Body domain.Item `json:"body"`
}

type ItemPath struct {
	SectionID string `path:"section_id"`
	ItemID    string `path:"item_id"`
}

func (a *service) registerItems(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-item",
		Method:        http.MethodPost,
		Path:          "/sections/{section_id}/items",
		Summary:       "Append an item to a section",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		SectionID string      `path:"section_id"`
		Body      TextRequest `json:"body"`
	}) (*itemOutput, error) {
		var out itemOutput
		err := a.mutate(ctx, func(e engine.Engine) error {
			it, ok, err := e.AddItem(input.SectionID, input.Body.Text)
			if err != nil {
				return err
			}
			if !ok {
				return sectionNotFound(input.SectionID)
			}
			out.Body = it.Clone()
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rename-item",
		Method:      http.MethodPatch,
		Path:        "/sections/{section_id}/items/{item_id}",
		Summary:     "Change an item's text",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ItemPath
		Body TextRequest `json:"body"`
	}) (*itemOutput, error) {
		return a.itemOp(ctx, input.ItemPath, func(e engine.Engine) (bool, error) {
			return e.RenameItem(input.SectionID, input.ItemID, input.Body.Text)
		})
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-item",
		Method:        http.MethodDelete,
		Path:          "/sections/{section_id}/items/{item_id}",
		Summary:       "Delete an item",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *ItemPath) (*struct{}, error) {
		err := a.mutate(ctx, func(e engine.Engine) error {
			ok, err := e.DeleteItem(input.SectionID, input.ItemID)
			if err != nil {
				return err
			}
			if !ok {
				return itemNotFound(input.SectionID, input.ItemID)
			}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-item",
		Method:      http.MethodPost,
		Path:        "/sections/{section_id}/items/{item_id}/move",
		Summary:     "Move an item up or down within its section",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ItemPath
		Body MoveRequest `json:"body"`
	}) (*moveOutput, error) {
		dir, err := domain.ParseDirection(input.Body.Direction)
		if err != nil {
			return nil, handleError(err)
		}
		var out moveOutput
		err = a.mutate(ctx, func(e engine.Engine) error {
			doc, err := e.Document()
			if err != nil {
				return err
			}
			if doc.FindItem(input.SectionID, input.ItemID) == nil {
				return itemNotFound(input.SectionID, input.ItemID)
			}
			out.Body.Moved, err = e.MoveItem(input.SectionID, input.ItemID, dir)
			return err
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-item-status",
		Method:      http.MethodPut,
		Path:        "/sections/{section_id}/items/{item_id}/status",
		Summary:     "Set an item's status",
		Description: "Any transition is allowed. note_required flags a ko item that still has no note.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ItemPath
		Body StatusRequest `json:"body"`
	}) (*struct {
		Body TransitionResponse `json:"body"`
	}, error) {
		st, err := domain.ParseStatus(input.Body.Status)
		if err != nil {
			return nil, handleError(err)
		}
		var tr engine.Transition
		err = a.mutate(ctx, func(e engine.Engine) error {
			if input.Body.Note != nil {
				ok, err := e.SetItemNote(input.SectionID, input.ItemID, *input.Body.Note)
				if err != nil {
					return err
				}
				if !ok {
					return itemNotFound(input.SectionID, input.ItemID)
				}
			}
			var err error
			tr, err = e.SetItemStatus(input.SectionID, input.ItemID, st)
			if err != nil {
				return err
			}
			if !tr.Applied {
				return itemNotFound(input.SectionID, input.ItemID)
			}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TransitionResponse `json:"body"`
		}{Body: tr}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-item-note",
		Method:      http.MethodPut,
		Path:        "/sections/{section_id}/items/{item_id}/note",
		Summary:     "Set an item's note",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ItemPath
		Body NoteRequest `json:"body"`
	}) (*itemOutput, error) {
		return a.itemOp(ctx, input.ItemPath, func(e engine.Engine) (bool, error) {
			return e.SetItemNote(input.SectionID, input.ItemID, input.Body.Note)
		})
	})
}

// itemOp runs an item mutation and returns the item as stored afterwards.
func (a *service) itemOp(ctx context.Context, p ItemPath, fn func(e engine.Engine) (bool, error)) (*itemOutput, error) {
	var out itemOutput
	err := a.mutate(ctx, func(e engine.Engine) error {
		ok, err := fn(e)
		if err != nil {
			return err
		}
		if !ok {
			return itemNotFound(p.SectionID, p.ItemID)
		}
		doc, _ := e.Document()
		out.Body = doc.FindItem(p.SectionID, p.ItemID).Clone()
		return nil
	})
	if err != nil {
		return nil, handleError(err)
	}
	return &out, nil
}

func (a *service) registerPhotos(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "add-item-photo",
		Method:      http.MethodPost,
		Path:        "/sections/{section_id}/items/{item_id}/photos",
		Summary:     "Attach or replace a photo",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ItemPath
		Body PhotoRequest `json:"body"`
	}) (*itemOutput, error) {
		if payload := strings.TrimSpace(input.Body.DataURL); payload != "" && !strings.HasPrefix(payload, "data:") {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "dataUrl must be a data: URL", nil)
		}
		at := -1
		if input.Body.At != nil {
			at = *input.Body.At
		}
		att := domain.Attachment{DataURL: input.Body.DataURL, Name: input.Body.Name}
		var out itemOutput
		err := a.mutate(ctx, func(e engine.Engine) error {
			doc, err := e.Document()
			if err != nil {
				return err
			}
			it := doc.FindItem(input.SectionID, input.ItemID)
			if it == nil {
				return itemNotFound(input.SectionID, input.ItemID)
			}
			ok, err := e.AddAttachment(input.SectionID, input.ItemID, att, at)
			if err != nil {
				return err
			}
			if !ok {
				return newAPIError(http.StatusConflict, "attachment_limit", "item cannot take another photo", map[string]any{"photos": len(it.Photos), "at": at})
			}
			out.Body = it.Clone()
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-item-photo",
		Method:      http.MethodDelete,
		Path:        "/sections/{section_id}/items/{item_id}/photos/{index}",
		Summary:     "Remove a photo",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ItemPath
		Index int `path:"index" minimum:"0"`
	}) (*itemOutput, error) {
		return a.itemOp(ctx, input.ItemPath, func(e engine.Engine) (bool, error) {
			return e.RemoveAttachment(input.SectionID, input.ItemID, input.Index)
		})
	})
}

type fileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func (a *service) registerOutput(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "export-document",
		Method:      http.MethodPost,
		Path:        "/export",
		Summary:     "Export the interchange JSON",
		Description: "Refused with 422 while a ko item has no note or the site name or year is blank.",
		Errors:      []int{http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, _ *struct{}) (*fileOutput, error) {
		var out fileOutput
		err := a.mutate(ctx, func(e engine.Engine) error {
			data, name, err := e.Export()
			if err != nil {
				return err
			}
			out = fileOutput{ContentType: "application/json", ContentDisposition: attachment(name), Body: data}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "render-report",
		Method:      http.MethodGet,
		Path:        "/report",
		Summary:     "Render the PDF report",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Blank bool `query:"blank" doc:"render the empty form"`
	}) (*fileOutput, error) {
		var out fileOutput
		err := a.view(func(e engine.Engine) error {
			data, name, err := e.Report(input.Blank)
			if err != nil {
				return err
			}
			out = fileOutput{ContentType: "application/pdf", ContentDisposition: attachment(name), Body: data}
			return nil
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &out, nil
	})
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

func (a *service) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events, newest first",
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"document,section,item"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		items, err := a.ws.Repo.LatestEvents(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
