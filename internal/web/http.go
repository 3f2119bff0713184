package web

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"callbell/internal/board"
	"callbell/internal/images"
	"callbell/internal/logs"
	"callbell/internal/metrics"
	"callbell/internal/models"

	"github.com/gorilla/mux"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

const maxEmergencyBody = 64 << 10

type HTTP struct {
	svc       *board.Service
	images    *images.Store
	maxUpload int64
	refresh   int // мс, период обновления кадра в /device/{id}
}

func NewHTTP(svc *board.Service, img *images.Store, maxUpload int64) *HTTP {
	return &HTTP{svc: svc, images: img, maxUpload: maxUpload, refresh: 200}
}

func (h *HTTP) RegisterRoutes(r *mux.Router) {
	// устройство
	r.HandleFunc("/emergency", h.emergency).Methods(http.MethodPost)
	r.HandleFunc("/upload", h.upload).Methods(http.MethodPost)
	r.HandleFunc("/command/{id}", h.command).Methods(http.MethodGet)

	// дашборд
	r.HandleFunc("/", h.index).Methods(http.MethodGet)
	r.HandleFunc("/device/{id}", h.device).Methods(http.MethodGet)
	r.HandleFunc("/image/{id}", h.image).Methods(http.MethodGet)
	r.HandleFunc("/move/{id}", h.move).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/clear/{id}", h.clear).Methods(http.MethodPost)
	r.HandleFunc("/edit_reason/{id}", h.editReason).Methods(http.MethodPost)
	r.HandleFunc("/delete_history/{id}", h.deleteHistory).Methods(http.MethodPost)

	// JSON
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/requests", h.listRequests).Methods(http.MethodGet)
	api.HandleFunc("/history", h.listHistory).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	logs.Logger.WithField("path", r.URL.Path).Errorf("%v", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func backToBoard(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

// deviceIDFrom приводит device_id к строке: устройства шлют и "A1", и 17.
func deviceIDFrom(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

func (h *HTTP) emergency(w http.ResponseWriter, r *http.Request) {
	var in map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxEmergencyBody))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil || len(in) == 0 {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if _, err := h.svc.Register(r.Context(), deviceIDFrom(in["device_id"])); err != nil {
		if errors.Is(err, board.ErrInvalidDevice) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		internalError(w, r, err)
		return
	}
	_, _ = w.Write([]byte("OK"))
}

func (h *HTTP) upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	}
	deviceID := r.FormValue("device_id")
	file, _, err := r.FormFile("image")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "Image Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer file.Close()
	if deviceID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	n, err := h.images.Save(deviceID, file)
	switch {
	case errors.Is(err, images.ErrInvalidDevice):
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	case errors.Is(err, images.ErrTooLarge):
		http.Error(w, "Image Too Large", http.StatusRequestEntityTooLarge)
		return
	case err != nil:
		internalError(w, r, err)
		return
	}
	metrics.ImageUploads.Inc()
	logs.Logger.WithField("device_id", deviceID).Debugf("image stored (%d bytes)", n)
	_, _ = w.Write([]byte("OK"))
}

func (h *HTTP) image(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b, mod, err := h.images.Open(id)
	if err != nil {
		if errors.Is(err, images.ErrNoImage) || errors.Is(err, images.ErrInvalidDevice) {
			http.Error(w, "No Image", http.StatusNotFound)
			return
		}
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, id+".jpg", mod, bytes.NewReader(b))
}

func (h *HTTP) command(w http.ResponseWriter, r *http.Request) {
	cmd := h.svc.TakeCommand(mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]models.Command{"command": cmd})
}

type historyView struct {
	models.HistoryEntry
	StartStr string
	EndStr   string
	Custom   bool // причина введена вручную
	other    string
}

// Selected: какой пункт списка отметить в форме правки.
func (v historyView) Selected(reason string) bool {
	if v.Custom {
		return reason == v.other
	}
	return reason == v.Reason
}

type indexView struct {
	Active  []board.ActiveRequest
	History []historyView
	Reasons []string
	Other   string
}

func (h *HTTP) index(w http.ResponseWriter, r *http.Request) {
	active, err := h.svc.Active(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	hist, err := h.svc.History(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	view := indexView{
		Active:  active,
		History: make([]historyView, 0, len(hist)),
		Reasons: h.svc.Reasons(),
		Other:   h.svc.OtherReason(),
	}
	for _, e := range hist {
		view.History = append(view.History, historyView{
			HistoryEntry: e,
			StartStr:     h.svc.FormatTime(e.StartedAt),
			EndStr:       h.svc.FormatTime(e.EndedAt),
			Custom:       !h.svc.IsListedReason(e.Reason),
			other:        view.Other,
		})
	}
	h.render(w, r, "index.html", view)
}

// device рендерится и без активного вызова: камера может работать сама по себе.
func (h *HTTP) device(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	data := map[string]any{
		"DeviceID":      id,
		"PathID":        url.PathEscape(id),
		"RefreshMillis": h.refresh,
		"Request":       nil,
	}
	req, err := h.svc.Request(r.Context(), id)
	switch {
	case err == nil:
		data["Request"] = req
		data["TimeStr"] = h.svc.FormatTime(req.RequestedAt)
	case !errors.Is(err, board.ErrNotFound):
		internalError(w, r, err)
		return
	}
	h.render(w, r, "device.html", data)
}

func (h *HTTP) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		internalError(w, r, fmt.Errorf("render %s: %w", name, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (h *HTTP) move(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.MarkMoving(r.Context(), mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, board.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		internalError(w, r, err)
		return
	}
	backToBoard(w, r)
}

func (h *HTTP) clear(w http.ResponseWriter, r *http.Request) {
	_, err := h.svc.Clear(r.Context(), mux.Vars(r)["id"], r.PostFormValue("reason"), r.PostFormValue("other_reason"))
	if err != nil && !errors.Is(err, board.ErrNotFound) {
		internalError(w, r, err)
		return
	}
	backToBoard(w, r)
}

func (h *HTTP) editReason(w http.ResponseWriter, r *http.Request) {
	err := h.svc.EditReason(r.Context(), mux.Vars(r)["id"], r.PostFormValue("reason"), r.PostFormValue("other_reason"))
	if err != nil && !errors.Is(err, board.ErrNotFound) {
		internalError(w, r, err)
		return
	}
	backToBoard(w, r)
}

func (h *HTTP) deleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteHistory(r.Context(), mux.Vars(r)["id"]); err != nil && !errors.Is(err, board.ErrNotFound) {
		internalError(w, r, err)
		return
	}
	backToBoard(w, r)
}

func (h *HTTP) listRequests(w http.ResponseWriter, r *http.Request) {
	active, err := h.svc.Active(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}

func (h *HTTP) listHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.svc.History(r.Context())
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}
