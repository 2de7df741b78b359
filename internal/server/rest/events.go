package rest

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmitrijs2005/dlogr/internal/server/models"
	"github.com/dmitrijs2005/dlogr/internal/server/services"
	"github.com/dmitrijs2005/dlogr/internal/server/validation"
	"github.com/go-chi/chi/v5"
)

const msgDatetime = "Datetime has wrong format. Use one of these formats instead: YYYY-MM-DDThh:mm[:ss[.uuuuuu]][+HH:MM|-HH:MM|Z]."

// timestampLayouts are tried in order. Values without an offset are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
}

// eventRequest is the writable event representation. Owner fields are not
// part of it, so a caller cannot pick the owner.
type eventRequest struct {
	ObjectID        *string         `json:"object_id"`
	ObjectType      *string         `json:"object_type"`
	HumanIdentifier *string         `json:"human_identifier"`
	Message         *string         `json:"message"`
	Timestamp       *string         `json:"timestamp"`
	Metadata        json.RawMessage `json:"metadata"`
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func (req eventRequest) input() (services.EventInput, error) {
	in := services.EventInput{
		ObjectID:        req.ObjectID,
		ObjectType:      req.ObjectType,
		HumanIdentifier: req.HumanIdentifier,
		Message:         req.Message,
		Metadata:        req.Metadata,
	}
	if req.Timestamp != nil {
		ts, ok := parseTimestamp(*req.Timestamp)
		if !ok {
			return in, validation.FieldError("timestamp", msgDatetime)
		}
		in.Timestamp = &ts
	}
	return in, nil
}

func (h *handler) readEvent(w http.ResponseWriter, r *http.Request) (services.EventInput, bool) {
	var req eventRequest
	if err := decode(r, &req); err != nil {
		writeParseError(w, err)
		return services.EventInput{}, false
	}
	in, err := req.input()
	if err != nil {
		h.writeError(w, r, err)
		return in, false
	}
	return in, true
}

func eventFilter(q url.Values) models.EventFilter {
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return models.EventFilter{
		ObjectID:        q.Get("object_id"),
		ObjectType:      q.Get("object_type"),
		HumanIdentifier: q.Get("human_identifier"),
		Search:          q.Get("search"),
		Ordering:        q.Get("ordering"),
		Limit:           limit,
		Offset:          offset,
	}
}

func absoluteURL(r *http.Request) *url.URL {
	u := *r.URL
	u.Host = r.Host
	u.Scheme = "http"
	if r.TLS != nil {
		u.Scheme = "https"
	}
	return &u
}

// pageLinks builds the next and previous links of a limit/offset page.
func pageLinks(r *http.Request, f models.EventFilter, count int) (next, previous *string) {
	link := func(offset int) *string {
		u := absoluteURL(r)
		q := u.Query()
		q.Set("limit", strconv.Itoa(f.Limit))
		if offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		} else {
			q.Del("offset")
		}
		u.RawQuery = q.Encode()
		s := u.String()
		return &s
	}

	if f.Offset+f.Limit < count {
		next = link(f.Offset + f.Limit)
	}
	if f.Offset > 0 {
		previous = link(max(f.Offset-f.Limit, 0))
	}
	return next, previous
}

func (h *handler) listEvents(w http.ResponseWriter, r *http.Request) {
	page, used, err := h.events.List(r.Context(), caller(r), eventFilter(r.URL.Query()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p, _ := parseProjection(r)
	results := make([]any, 0, len(page.Events))
	for _, e := range page.Events {
		v, err := p.apply(newEventView(e))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		results = append(results, v)
	}

	next, previous := pageLinks(r, used, page.Count)
	writeJSON(w, http.StatusOK, PageView{Count: page.Count, Next: next, Previous: previous, Results: results})
}

func (h *handler) createEvent(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readEvent(w, r)
	if !ok {
		return
	}
	e, err := h.events.Create(r.Context(), caller(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusCreated, newEventView(e))
}

func (h *handler) getEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.events.Get(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusOK, newEventView(e))
}

func (h *handler) updateEvent(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, ok := h.readEvent(w, r)
		if !ok {
			return
		}
		e, err := h.events.Update(r.Context(), caller(r), chi.URLParam(r, "id"), in, partial)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeView(w, r, http.StatusOK, newEventView(e))
	}
}

func (h *handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.Delete(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// exportEvents takes the same filters as the listing, from the query string.
func (h *handler) exportEvents(w http.ResponseWriter, r *http.Request) {
	out, err := h.exports.Export(r.Context(), caller(r), eventFilter(r.URL.Query()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ExportView{Key: out.Key, URL: out.URL, Count: out.Count, Expires: out.Expires})
}
