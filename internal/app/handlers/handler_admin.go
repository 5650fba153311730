package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/thushan/flowgate/internal/adapter/directory"
	"github.com/thushan/flowgate/internal/core/domain"
)

const maxAdminBodyBytes = 1 << 20

// requireAdmin checks the bearer token in constant time.
func (a *Application) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	want := []byte(a.Config.Admin.Token)
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="flowgate-admin"`)
			writeJSON(w, http.StatusUnauthorized, ollamaError{Error: "missing or invalid admin token"})
			return
		}
		next(w, r)
	}
}

func (a *Application) listBackendsHandler(w http.ResponseWriter, r *http.Request) {
	backends, err := a.backends.GetAll(r.Context())
	if err != nil {
		a.writeAdminError(w, err)
		return
	}
	docs := make([]directory.BackendDocument, 0, len(backends))
	for _, b := range backends {
		docs = append(docs, directory.BackendToDocument(b))
	}
	writeJSON(w, http.StatusOK, docs)
}

func (a *Application) getBackendHandler(w http.ResponseWriter, r *http.Request) {
	b, err := a.backends.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, directory.BackendToDocument(b))
}

// putBackendHandler creates or replaces a backend. The probe loop picks the
// new recipe up straight away and model sync runs for it in the background.
func (a *Application) putBackendHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var doc directory.BackendDocument
	if err := decodeAdminBody(r, &doc); err != nil {
		a.writeAdminError(w, err)
		return
	}
	if err := reconcileID(&doc.ID, chi.URLParam(r, "id")); err != nil {
		a.writeAdminError(w, err)
		return
	}
	b, err := doc.ToDomain()
	if err != nil {
		a.writeAdminError(w, err)
		return
	}

	_, getErr := a.backends.Get(ctx, b.ID)
	created := errors.Is(getErr, domain.ErrBackendNotFound)
	if err := a.backends.Create(ctx, b); err != nil {
		a.writeAdminError(w, err)
		return
	}

	if a.health != nil {
		a.health.Track(b)
	}
	a.reconcileModels(ctx, b.ID)
	a.logger.InfoWithBackend("Backend saved via admin API", b.ID, "created", created, "url", b.BaseURL().String())

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, directory.BackendToDocument(b))
}

// deleteBackendHandler removes a backend and everything keyed on it: the
// probe loop, sticky bindings and model sync records. Frontends that still
// list it simply stop selecting it.
func (a *Application) deleteBackendHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	existed, err := a.backends.Delete(ctx, id)
	if err != nil {
		a.writeAdminError(w, err)
		return
	}
	if !existed {
		a.writeAdminError(w, fmt.Errorf("%w: %s", domain.ErrBackendNotFound, id))
		return
	}

	if a.health != nil {
		a.health.Untrack(id)
	}
	evicted := 0
	if a.affinity != nil {
		evicted = a.affinity.EvictBackend(ctx, id)
	}
	if a.modelSync != nil {
		a.modelSync.Forget(id)
	}
	a.logger.InfoWithBackend("Backend deleted via admin API", id, "affinity_evicted", evicted)
	w.WriteHeader(http.StatusNoContent)
}

func (a *Application) backendHealthHandler(w http.ResponseWriter, r *http.Request) {
	if a.health == nil {
		writeJSON(w, http.StatusOK, []domain.HealthRecord{})
		return
	}
	writeJSON(w, http.StatusOK, a.health.Records())
}

func (a *Application) backendModelsHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := a.backends.Get(r.Context(), id); err != nil {
		a.writeAdminError(w, err)
		return
	}
	records := []domain.ModelSyncRecord{}
	if a.modelSync != nil {
		if recs := a.modelSync.Records(id); recs != nil {
			records = recs
		}
	}
	writeJSON(w, http.StatusOK, records)
}

func (a *Application) listFrontendsHandler(w http.ResponseWriter, r *http.Request) {
	frontends, err := a.frontends.GetAll(r.Context())
	if err != nil {
		a.writeAdminError(w, err)
		return
	}
	docs := make([]directory.FrontendDocument, 0, len(frontends))
	for _, f := range frontends {
		docs = append(docs, directory.FrontendToDocument(f))
	}
	writeJSON(w, http.StatusOK, docs)
}

func (a *Application) getFrontendHandler(w http.ResponseWriter, r *http.Request) {
	f, err := a.frontends.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, directory.FrontendToDocument(f))
}

// putFrontendHandler creates or replaces a frontend. Unknown member ids
// are refused by the directory with a ConfigurationError.
func (a *Application) putFrontendHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var doc directory.FrontendDocument
	if err := decodeAdminBody(r, &doc); err != nil {
		a.writeAdminError(w, err)
		return
	}
	if err := reconcileID(&doc.ID, chi.URLParam(r, "id")); err != nil {
		a.writeAdminError(w, err)
		return
	}
	f, err := doc.ToDomain()
	if err != nil {
		a.writeAdminError(w, err)
		return
	}

	_, getErr := a.frontends.Get(ctx, f.ID)
	created := errors.Is(getErr, domain.ErrFrontendNotFound)
	if err := a.frontends.Create(ctx, f); err != nil {
		a.writeAdminError(w, err)
		return
	}

	// required models may have changed for every member
	for _, id := range f.Backends {
		a.reconcileModels(ctx, id)
	}
	a.logger.InfoWithFrontend("Frontend saved via admin API", f.ID, "created", created, "hostname", f.Hostname)

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, directory.FrontendToDocument(f))
}

func (a *Application) deleteFrontendHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existed, err := a.frontends.Delete(r.Context(), id)
	if err != nil {
		a.writeAdminError(w, err)
		return
	}
	if !existed {
		a.writeAdminError(w, fmt.Errorf("%w: %s", domain.ErrFrontendNotFound, id))
		return
	}
	a.logger.InfoWithFrontend("Frontend deleted via admin API", id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *Application) reconcileModels(ctx context.Context, backendID string) {
	if a.modelSync == nil {
		return
	}
	if err := a.modelSync.Reconcile(ctx, backendID); err != nil {
		a.logger.WarnWithBackend("Failed to schedule model sync", backendID, "error", err)
	}
}

func (a *Application) writeAdminError(w http.ResponseWriter, err error) {
	status := domain.StatusCodeForError(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("Admin request failed", "error", err)
	}
	writeJSON(w, status, ollamaError{Error: err.Error()})
}

func decodeAdminBody(r *http.Request, into any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxAdminBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return nil
}

// reconcileID fills the body id from the path, or rejects a mismatch.
func reconcileID(bodyID *string, pathID string) error {
	switch {
	case pathID == "":
		return nil
	case *bodyID == "":
		*bodyID = pathID
		return nil
	case *bodyID != pathID:
		return &domain.ValidationError{Field: "id", Value: *bodyID, Reason: "does not match the id in the path " + pathID}
	default:
		return nil
	}
}
