package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/kuitang/memos/internal/errs"
	"github.com/kuitang/memos/internal/memos"
	"github.com/kuitang/memos/internal/obs"
)

// DefaultMaxBodyBytes caps request bodies when the handler is built without a limit.
const DefaultMaxBodyBytes = 1 << 20

// Handler serves the /memos resource from a memo store.
type Handler struct {
	store        *memos.Store
	maxBodyBytes int64
}

// NewHandler creates a new API handler backed by store. A non-positive
// maxBodyBytes selects DefaultMaxBodyBytes.
func NewHandler(store *memos.Store, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{store: store, maxBodyBytes: maxBodyBytes}
}

// RegisterRoutes registers all memo API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /memos", h.CreateMemo)
	mux.HandleFunc("GET /memos", h.ListMemos)
	mux.HandleFunc("GET /memos/{id}", h.GetMemo)
	mux.HandleFunc("PUT /memos/{id}", h.UpdateMemo)
	mux.HandleFunc("PATCH /memos/{id}", h.UpdateMemoTitle)
	mux.HandleFunc("DELETE /memos/{id}", h.DeleteMemo)
	mux.HandleFunc("GET /memos/{id}/html", h.GetMemoHTML)
}

// CreateMemo handles POST /memos. Both fields are optional.
func (h *Handler) CreateMemo(w http.ResponseWriter, r *http.Request) {
	in, err := h.decodeInput(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	memo := h.store.Create(in.TitleOrEmpty(), in.ContentsOrEmpty())
	obs.From(r.Context()).Debug("memo_created", "pkg", "api", "memo_id", memo.ID)
	writeJSON(w, http.StatusCreated, memo)
}

// ListMemos handles GET /memos.
func (h *Handler) ListMemos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.FindAll())
}

// GetMemo handles GET /memos/{id}.
func (h *Handler) GetMemo(w http.ResponseWriter, r *http.Request) {
	id, err := memoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	memo, err := h.store.FindByID(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memo)
}

// UpdateMemo handles PUT /memos/{id}: title and contents are both required.
func (h *Handler) UpdateMemo(w http.ResponseWriter, r *http.Request) {
	id, err := memoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := h.decodeInput(w, r)
	if err == nil {
		err = in.ValidateFull()
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	memo, err := h.store.ReplaceFields(id, *in.Title, *in.Contents)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memo)
}

// UpdateMemoTitle handles PATCH /memos/{id}: title required, contents forbidden.
func (h *Handler) UpdateMemoTitle(w http.ResponseWriter, r *http.Request) {
	id, err := memoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := h.decodeInput(w, r)
	if err == nil {
		err = in.ValidateTitleOnly()
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	memo, err := h.store.ReplaceTitle(id, *in.Title)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, memo)
}

// DeleteMemo handles DELETE /memos/{id}. Success is a bare 200.
func (h *Handler) DeleteMemo(w http.ResponseWriter, r *http.Request) {
	id, err := memoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.store.Delete(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetMemoHTML handles GET /memos/{id}/html, rendering the contents as Markdown.
func (h *Handler) GetMemoHTML(w http.ResponseWriter, r *http.Request) {
	id, err := memoID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	memo, err := h.store.FindByID(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := memos.RenderHTML(memo)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

func memoID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidInput, "memo id must be an integer", err)
	}
	return id, nil
}

func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (memos.Input, error) {
	var in memos.Input
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return in, errs.Wrap(errs.InvalidInput, "request body too large", err)
		}
		return in, errs.Wrap(errs.InvalidInput, "invalid JSON body", err)
	}
	return in, nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError answers with the status for err and no body. The reason is only
// logged, at error level for server faults and debug level otherwise.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(code)

	log := obs.From(r.Context()).With("pkg", "api", "code", string(code), "status", status)
	if status >= http.StatusInternalServerError {
		log.Error("request_failed", "error", err)
	} else {
		log.Debug("request_rejected", "reason", errs.MessageOf(err))
	}
	w.WriteHeader(status)
}
