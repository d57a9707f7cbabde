package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/render"

	"github.com/klytics/creditkit/internal/analysis"
	"github.com/klytics/creditkit/internal/formats/xlsx"
	"github.com/klytics/creditkit/internal/statements"
)

// errorResponse is the JSON body of every failed API call.
type errorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

type pageData struct {
	View      analysis.View
	Flashes   []string
	MaxUpload string
}

func wantsJSON(r *http.Request) bool {
	return render.GetAcceptedContentType(r) == render.ContentTypeJSON
}

// fail answers JSON clients with an error body and code. Browsers get the
// message as a flash and are sent back to the page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, code int, msg string, missing []string) {
	if wantsJSON(r) {
		render.Status(r, code)
		render.JSON(w, r, errorResponse{Error: msg, Missing: missing})
		return
	}
	s.flash(w, r, msg)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// done answers JSON clients with the session view and redirects browsers.
func (s *Server) done(w http.ResponseWriter, r *http.Request, as *analysis.Session) {
	if wantsJSON(r) {
		render.JSON(w, r, as.Snapshot())
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) rejectLimited(w http.ResponseWriter, r *http.Request, wait time.Duration) {
	secs := int(math.Ceil(wait.Seconds()))
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	s.fail(w, r, http.StatusTooManyRequests,
		fmt.Sprintf("Please wait %ds before running another analysis.", secs), nil)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	as, sess := s.session(w, r)

	data := pageData{
		View:      as.Snapshot(),
		MaxUpload: humanize.IBytes(uint64(s.maxUpload)),
	}
	if flashes := sess.Flashes(); len(flashes) > 0 {
		for _, f := range flashes {
			if msg, ok := f.(string); ok {
				data.Flashes = append(data.Flashes, msg)
			}
		}
		s.save(w, r, sess)
	}

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, data); err != nil {
		s.logger.Error("could not render page", slog.String("error", err.Error()))
		http.Error(w, "could not render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	as, _ := s.session(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.Upload("too_large")
			s.fail(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("The file is larger than the %s upload limit.", humanize.IBytes(uint64(s.maxUpload))), nil)
			return
		}
		s.fail(w, r, http.StatusBadRequest, "Choose an .xlsx file to upload.", nil)
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		s.metrics.Upload("rejected")
		s.fail(w, r, http.StatusBadRequest, "Only .xlsx files are supported.", nil)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Sprintf("could not read upload: %v", err), nil)
		return
	}

	if detected, ok := isWorkbookContent(data); !ok {
		s.metrics.Upload("rejected")
		loadErr := &xlsx.LoadError{Err: fmt.Errorf("the upload contains %s data", detected)}
		s.fail(w, r, http.StatusBadRequest, loadErr.Error(), nil)
		return
	}

	if err := as.Load(name, data); err != nil {
		s.fail(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s.done(w, r, as)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	as, _ := s.session(w, r)

	_, err := as.Run(r.Context())
	var missing *statements.MissingError
	switch {
	case err == nil:
		s.done(w, r, as)
	case errors.Is(err, analysis.ErrNoWorkbook):
		s.fail(w, r, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, analysis.ErrRunning):
		s.fail(w, r, http.StatusConflict, err.Error(), nil)
	case errors.As(err, &missing):
		s.fail(w, r, http.StatusUnprocessableEntity, err.Error(), missing.Descriptions())
	default:
		s.logger.Error("analysis failed", slog.String("session", as.ID), slog.String("error", err.Error()))
		s.fail(w, r, http.StatusInternalServerError, err.Error(), nil)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	as, _ := s.session(w, r)
	render.JSON(w, r, as.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"status":   "ok",
		"sessions": s.registry.Len(),
	})
}

// isWorkbookContent reports whether data is a zip container, which every
// .xlsx file is. It returns the detected type for error messages.
func isWorkbookContent(data []byte) (*mimetype.MIME, bool) {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return detected, true
		}
	}
	return detected, false
}
