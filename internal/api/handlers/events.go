package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/rs/zerolog"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before parts spill to temporary files.
const multipartMemory = 8 << 20

// PhotoStore saves uploaded event photos.
type PhotoStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Remove(ctx context.Context, ref string) error
}

type EventsHandler struct {
	Service *events.Service
	Photos  PhotoStore
	Env     string
	now     func() time.Time
}

func NewEventsHandler(service *events.Service, photos PhotoStore, env string) *EventsHandler {
	return &EventsHandler{Service: service, Photos: photos, Env: env, now: time.Now}
}

type eventResponse struct {
	Message string        `json:"message"`
	Event   *events.Event `json:"event"`
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Service.List(r.Context())
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	if items == nil {
		items = []events.Event{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, err := h.Service.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Create accepts multipart/form-data (with an optional eventPhoto file),
// urlencoded forms or JSON.
func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.Env)
	if !ok {
		return
	}

	form, err := readEventForm(r)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	defer form.close()

	input := events.CreateInput{
		Name:        form.value("name"),
		Description: form.value("description"),
		Location:    form.value("location"),
		Status:      form.value("status"),
	}
	if raw, ok := form.lookup("date"); ok {
		if input.Date, err = events.ParseDate(raw, h.now()); err != nil {
			writeError(w, r, err, h.Env)
			return
		}
	}
	if raw, ok := form.lookup("price"); ok {
		price, err := parsePrice(raw)
		if err != nil {
			writeError(w, r, err, h.Env)
			return
		}
		input.Price = &price
	}

	photo, stored, err := h.photo(r.Context(), form)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	input.Photo = photo

	event, err := h.Service.Create(r.Context(), actor, input)
	if err != nil {
		h.discard(r.Context(), stored)
		writeError(w, r, err, h.Env)
		return
	}

	metrics.EventsCreated.Inc()
	writeJSON(w, http.StatusCreated, eventResponse{Message: "Event created successfully", Event: event})
}

// Update applies the fields present in the request. Empty values are ignored.
func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.Env)
	if !ok {
		return
	}

	form, err := readEventForm(r)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	defer form.close()

	var patch events.Patch
	if v, ok := form.lookup("name"); ok {
		patch.Name = events.Some(v)
	}
	if v, ok := form.lookup("description"); ok {
		patch.Description = events.Some(v)
	}
	if v, ok := form.lookup("location"); ok {
		patch.Location = events.Some(v)
	}
	if v, ok := form.lookup("status"); ok {
		patch.Status = events.Some(events.Status(v))
	}
	if v, ok := form.lookup("date"); ok {
		date, err := events.ParseDate(v, h.now())
		if err != nil {
			writeError(w, r, err, h.Env)
			return
		}
		patch.Date = events.Some(date)
	}
	if v, ok := form.lookup("price"); ok {
		price, err := parsePrice(v)
		if err != nil {
			writeError(w, r, err, h.Env)
			return
		}
		patch.Price = events.Some(price)
	}

	photo, stored, err := h.photo(r.Context(), form)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	if photo != "" {
		patch.Photo = events.Some(photo)
	}

	event, err := h.Service.Update(r.Context(), actor, pathParam(r, "id"), patch)
	if err != nil {
		h.discard(r.Context(), stored)
		writeError(w, r, err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, eventResponse{Message: "Event updated successfully", Event: event})
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.Env)
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), actor, pathParam(r, "id")); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Event deleted successfully"})
}

// photo stores an uploaded file, or falls back to an eventPhoto text field.
// stored is the reference of a newly written file.
func (h *EventsHandler) photo(ctx context.Context, form *eventForm) (ref string, stored string, err error) {
	if form.file == nil {
		return form.value("eventPhoto"), "", nil
	}
	if h.Photos == nil {
		return "", "", validation.New("eventPhoto", "photo uploads are not configured")
	}
	ref, err = h.Photos.Save(ctx, form.fileName, form.file)
	if err != nil {
		return "", "", err
	}
	return ref, ref, nil
}

func (h *EventsHandler) discard(ctx context.Context, ref string) {
	if ref == "" || h.Photos == nil {
		return
	}
	if err := h.Photos.Remove(ctx, ref); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("photo", ref).Msg("failed to remove unused upload")
	}
}

func parsePrice(raw string) (float64, error) {
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, validation.New("price", "must be a number")
	}
	return price, nil
}

// eventForm is the set of event fields present in a request.
type eventForm struct {
	values   map[string]string
	file     multipart.File
	fileName string
	cleanup  func()
}

var eventFields = []string{"name", "description", "date", "location", "status", "price", "eventPhoto"}

func readEventForm(r *http.Request) (*eventForm, error) {
	form := &eventForm{values: make(map[string]string), cleanup: func() {}}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var body map[string]any
		if err := decodeJSON(r, &body); err != nil {
			return nil, err
		}
		for _, field := range eventFields {
			if value, ok := jsonString(body[field]); ok {
				form.values[field] = value
			}
		}
		return form, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, formError(err)
		}
		form.cleanup = func() { _ = r.MultipartForm.RemoveAll() }
		file, header, err := r.FormFile("eventPhoto")
		switch {
		case err == nil:
			form.file = file
			form.fileName = header.Filename
			previous := form.cleanup
			form.cleanup = func() {
				_ = file.Close()
				previous()
			}
		case !errors.Is(err, http.ErrMissingFile):
			form.cleanup()
			return nil, formError(err)
		}

	default:
		if err := r.ParseForm(); err != nil {
			return nil, formError(err)
		}
	}

	for _, field := range eventFields {
		if values, ok := r.PostForm[field]; ok && len(values) > 0 {
			form.values[field] = values[0]
		}
	}
	return form, nil
}

// lookup returns a trimmed field value. Empty values count as absent.
func (f *eventForm) lookup(field string) (string, bool) {
	value := strings.TrimSpace(f.values[field])
	return value, value != ""
}

func (f *eventForm) value(field string) string {
	value, _ := f.lookup(field)
	return value
}

func (f *eventForm) close() {
	f.cleanup()
}

func jsonString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	default:
		return "", false
	}
}

func formError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return validation.New("", "malformed form body")
}

