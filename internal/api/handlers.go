package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/starford/vcq/internal/apperr"
	"github.com/starford/vcq/internal/contactservice"
	"github.com/starford/vcq/internal/query"
)

var errBadParam = errors.New("invalid query parameter")

// RefreshHook observes directories refreshed through the API.
type RefreshHook func(info contactservice.DirectoryInfo)

// Handler holds API route handlers.
type Handler struct {
	svc       *contactservice.Service
	onRefresh RefreshHook
}

// NewHandler creates a new Handler.
func NewHandler(svc *contactservice.Service, onRefresh RefreshHook) *Handler {
	return &Handler{svc: svc, onRefresh: onRefresh}
}

type queryParams struct {
	opts query.Options
	mode query.Mode
}

func parseQueryParams(q url.Values) (queryParams, error) {
	var (
		p   queryParams
		err error
	)
	regex, err := boolParam(q, "regex")
	if err != nil {
		return p, err
	}
	if p.opts.Pattern, err = query.Compile(q.Get("q"), regex); err != nil {
		return p, err
	}
	if p.opts.AllAddresses, err = boolParam(q, "all"); err != nil {
		return p, err
	}
	if p.opts.StartingFirst, err = boolParam(q, "starting"); err != nil {
		return p, err
	}
	if p.opts.SortBy, err = query.ParseSortKey(q.Get("sort")); err != nil {
		return p, fmt.Errorf("%w: %v", errBadParam, err)
	}
	if p.mode, err = query.ParseMode(q.Get("mode")); err != nil {
		return p, err
	}
	return p, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	v := q.Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", errBadParam, name)
	}
	return b, nil
}

// QueryContacts handles GET /api/contacts.
//
//	@Summary		Query contacts across all configured directories
//	@Tags			contacts
//	@Produce		json
//	@Param			q			query		string	false	"Pattern matched against the listing line"
//	@Param			regex		query		bool	false	"Treat q as a case-insensitive regular expression"
//	@Param			all			query		bool	false	"Return every address instead of the first per contact"
//	@Param			sort		query		string	false	"Primary sort key"	Enums(mail, name)
//	@Param			mode		query		string	false	"Line format"		Enums(listing, address-header)
//	@Param			starting	query		bool	false	"Put records starting with the pattern first"
//	@Success		200			{object}	ContactListResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/contacts [get]
func (h *Handler) QueryContacts(w http.ResponseWriter, r *http.Request) {
	p, err := parseQueryParams(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	recs := h.svc.Query(r.Context(), p.opts)
	items := make([]ContactItem, len(recs))
	for i, rec := range recs {
		items[i] = ContactItem{
			Mail:        rec.Mail,
			Name:        rec.Name,
			Description: rec.Description,
			Line:        p.mode.Format(rec),
		}
	}
	writeJSON(w, http.StatusOK, ContactListResponse{Contacts: items, Total: len(items)})
}

// ListDirectories handles GET /api/directories.
//
//	@Summary		List configured directories and their cache state
//	@Tags			directories
//	@Produce		json
//	@Success		200	{object}	DirectoryListResponse
//	@Security		BearerAuth
//	@Router			/directories [get]
func (h *Handler) ListDirectories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, DirectoryListResponse{Directories: h.svc.Directories()})
}

// Refresh handles POST /api/refresh.
//
//	@Summary		Rescan one or all directories
//	@Tags			directories
//	@Produce		json
//	@Param			dir	query		string	false	"Directory to rescan (default: all)"
//	@Success		200	{object}	DirectoryListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var infos []DirectoryInfo
	if dir := r.URL.Query().Get("dir"); dir != "" {
		info, err := h.svc.Refresh(r.Context(), dir, true)
		if errors.Is(err, apperr.ErrUnknownDirectory) {
			writeError(w, err)
			return
		}
		if err != nil {
			slog.Warn("refresh failed", slog.String("dir", dir), slog.String("error", err.Error()))
		}
		infos = []DirectoryInfo{info}
	} else {
		infos = h.svc.RefreshAll(r.Context(), true)
	}

	if h.onRefresh != nil {
		for _, info := range infos {
			h.onRefresh(info)
		}
	}
	writeJSON(w, http.StatusOK, DirectoryListResponse{Directories: infos})
}
