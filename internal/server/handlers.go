package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"treewalk/internal/csvbridge"
	"treewalk/internal/form"
	"treewalk/internal/mapsurface"
	"treewalk/internal/panorama"
	"treewalk/internal/session"
	"treewalk/pkg/domain"
)

const notFoundDetail = "No panorama found within radius"

func writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func writeError(c *gin.Context, status int, message string) {
	writeJSON(c, status, gin.H{"error": message})
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// statusFor maps component errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case tooLarge(err):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, form.ErrSpeciesRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, form.ErrFormClosed), errors.Is(err, form.ErrNoPendingLocation):
		return http.StatusConflict
	case errors.Is(err, session.ErrInvalidCSV):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	writeError(c, statusFor(err), errorMessage(err))
}

// errorMessage keeps validation messages as written and passes wrapped
// failures through unchanged.
func errorMessage(err error) string {
	for _, sentinel := range []error{form.ErrSpeciesRequired, form.ErrFormClosed, form.ErrNoPendingLocation} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func (s *Server) health(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func parseQueryFloat(c *gin.Context, key string, fallback *float64) (float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		if fallback != nil {
			return *fallback, nil
		}
		return 0, fmt.Errorf("query parameter %s is required", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s must be a number", key)
	}
	return v, nil
}

func (s *Server) nearestImage(c *gin.Context) {
	lat, err := parseQueryFloat(c, "lat", nil)
	if err != nil {
		writeJSON(c, http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	lng, err := parseQueryFloat(c, "lng", nil)
	if err != nil {
		writeJSON(c, http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	radius, err := parseQueryFloat(c, "radius", &s.cfg.Radius)
	if err != nil || radius <= 0 {
		writeJSON(c, http.StatusUnprocessableEntity, gin.H{"detail": "query parameter radius must be a positive number"})
		return
	}

	img, err := s.finder.Nearest(c.Request.Context(), domain.LatLng{Lat: lat, Lng: lng}, radius)
	switch {
	case errors.Is(err, panorama.ErrNotFound):
		writeJSON(c, http.StatusNotFound, gin.H{"detail": notFoundDetail})
	case err != nil:
		s.logger.WithError(err).Warn("nearest image lookup failed")
		writeJSON(c, http.StatusBadGateway, gin.H{"detail": err.Error()})
	default:
		writeJSON(c, http.StatusOK, img)
	}
}

func (s *Server) listObservations(c *gin.Context) {
	records := s.session.Records()
	if records == nil {
		records = []domain.TreeObservation{}
	}
	writeJSON(c, http.StatusOK, records)
}

func (s *Server) getObservation(c *gin.Context) {
	rec, ok := s.session.Record(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "observation not found")
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (s *Server) exportObservations(c *gin.Context) {
	c.Header("Content-Type", csvbridge.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", csvbridge.Filename))
	c.Status(http.StatusOK)
	if err := s.session.Export(c.Writer); err != nil {
		s.logger.WithError(err).Error("export csv")
	}
}

func (s *Server) importObservations(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxImportBytes)
	body, closeBody, err := importBody(c)
	if err != nil {
		if tooLarge(err) {
			writeError(c, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	defer closeBody()
	report, err := s.session.Import(c.Request.Context(), body)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, report)
}

// importBody returns the uploaded file for multipart requests and the raw
// body otherwise.
func importBody(c *gin.Context) (io.Reader, func(), error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return c.Request.Body, func() {}, nil
	}
	header, err := c.FormFile("file")
	if err != nil {
		return nil, nil, fmt.Errorf("multipart field file: %w", err)
	}
	f, err := header.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open upload: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func (s *Server) markers(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.session.Surface().GeoJSON())
}

func (s *Server) legend(c *gin.Context) {
	writeJSON(c, http.StatusOK, mapsurface.Legend())
}

func (s *Server) snapshot(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.session.Snapshot())
}

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (s *Server) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := session.ParseMode(req.Mode)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	s.session.SetMode(mode)
	writeJSON(c, http.StatusOK, s.session.Snapshot())
}

func (s *Server) explore(c *gin.Context) {
	s.session.StartExploring(c.Request.Context())
	writeJSON(c, http.StatusOK, s.session.Snapshot())
}

// refresh blocks until the lookup lands. With wait=false it starts the
// lookup in the background and answers 202 with the fetching state.
func (s *Server) refresh(c *gin.Context) {
	if c.Query("wait") == "false" {
		s.session.RefreshAsync(context.WithoutCancel(c.Request.Context()))
		writeJSON(c, http.StatusAccepted, s.session.Snapshot())
		return
	}
	s.session.Refresh(c.Request.Context())
	writeJSON(c, http.StatusOK, s.session.Snapshot())
}

type latLngRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func bindLatLng(c *gin.Context) (domain.LatLng, bool) {
	var req latLngRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return domain.LatLng{}, false
	}
	return domain.LatLng{Lat: *req.Lat, Lng: *req.Lng}, true
}

func (s *Server) pan(c *gin.Context) {
	at, ok := bindLatLng(c)
	if !ok {
		return
	}
	s.session.Pan(at)
	writeJSON(c, http.StatusAccepted, s.session.Snapshot())
}

func (s *Server) selectLocation(c *gin.Context) {
	at, ok := bindLatLng(c)
	if !ok {
		return
	}
	s.session.Select(at)
	writeJSON(c, http.StatusOK, s.session.Snapshot())
}

func (s *Server) label(c *gin.Context) {
	if err := s.session.Label(); err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.session.Snapshot())
}

func (s *Server) updateForm(c *gin.Context) {
	var fields form.Fields
	if err := c.ShouldBindJSON(&fields); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.session.UpdateForm(fields); err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s.session.Snapshot())
}

func (s *Server) submitForm(c *gin.Context) {
	rec, err := s.session.SubmitForm(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, rec)
}

func (s *Server) cancelForm(c *gin.Context) {
	s.session.CancelForm()
	writeJSON(c, http.StatusOK, s.session.Snapshot())
}
