package main

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"civicfix/pkg/apperror"
	"civicfix/pkg/logger"
	"civicfix/pkg/media"
	"civicfix/pkg/middleware"
	"civicfix/pkg/models"
	"civicfix/pkg/query"
	"civicfix/pkg/response"
	"civicfix/pkg/service"
	"civicfix/pkg/store"
)

// uploader stores one photo. Satisfied by *media.Uploader.
type uploader interface {
	Upload(ctx context.Context, r io.Reader, size int64) (media.Upload, error)
}

type server struct {
	svc           *service.ComplaintService
	authn         middleware.Authenticator
	uploads       uploader
	internalToken string
	mapsAPIKey    string
	log           *logger.Logger
	ping          func(ctx context.Context) error
}

func (s *server) routes() http.Handler {
	optional := middleware.OptionalAuth(s.authn)
	required := middleware.AuthMiddleware(s.authn)
	internal := middleware.RequireInternalToken(s.internalToken)

	mux := http.NewServeMux()
	mux.Handle("GET /api/complaints", optional(http.HandlerFunc(s.listHandler)))
	mux.Handle("GET /api/complaints/query", optional(http.HandlerFunc(s.queryHandler)))
	mux.Handle("GET /api/complaints/mine", required(http.HandlerFunc(s.mineHandler)))
	mux.Handle("GET /api/complaints/{id}", optional(http.HandlerFunc(s.getHandler)))
	mux.Handle("POST /api/complaints", required(http.HandlerFunc(s.createHandler)))
	mux.Handle("PUT /api/complaints/{id}", required(http.HandlerFunc(s.updateHandler)))
	mux.Handle("DELETE /api/complaints/{id}", required(http.HandlerFunc(s.deleteHandler)))
	mux.Handle("POST /api/complaints/{id}/comments", required(http.HandlerFunc(s.commentHandler)))
	mux.Handle("GET /api/users/{id}/complaints", required(http.HandlerFunc(s.byReporterHandler)))
	mux.Handle("GET /api/dashboard", optional(http.HandlerFunc(s.dashboardHandler)))
	mux.HandleFunc("GET /api/map/markers", s.markersHandler)
	mux.HandleFunc("GET /api/map/config", s.mapConfigHandler)
	mux.Handle("POST /api/uploads", required(http.HandlerFunc(s.uploadHandler)))
	mux.Handle("POST /internal/assign", internal(http.HandlerFunc(s.assignHandler)))
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", middleware.GetMetricsHandler())

	return middleware.Chain(middleware.RouteErrors(mux),
		middleware.TraceMiddleware,
		middleware.MetricsMiddleware,
		middleware.LoggerMiddleware(s.log),
	)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("Invalid complaint ID")
	}
	return id, nil
}

func (s *server) listHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Location: q.Get("location"),
	}

	items, err := s.svc.List(r.Context(), middleware.ActorFromContext(r.Context()), filter)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Complaints fetched", items)
}

// parseSpec reads the list view state from the query string on top of the defaults.
func parseSpec(r *http.Request) (query.Spec, error) {
	q := r.URL.Query()
	spec := query.DefaultSpec()

	spec.Search = strings.TrimSpace(q.Get("search"))
	for key, dst := range map[string]*string{
		"category": &spec.Category,
		"status":   &spec.Status,
		"priority": &spec.Priority,
	} {
		if v := q.Get(key); v != "" {
			*dst = v
		}
	}

	if v := q.Get("dateRange"); v != "" {
		switch query.DateRange(v) {
		case query.RangeAll, query.RangeToday, query.RangeWeek, query.RangeMonth:
			spec.DateRange = query.DateRange(v)
		default:
			return spec, apperror.Validation("dateRange must be one of all, today, week, month")
		}
	}
	if v := q.Get("sortBy"); v != "" {
		switch query.SortKey(v) {
		case query.SortReportedAt, query.SortTitle, query.SortStatus, query.SortPriority:
			spec.SortBy = query.SortKey(v)
		default:
			return spec, apperror.Validation("sortBy must be one of reportedAt, title, status, priority")
		}
	}
	if v := q.Get("order"); v != "" {
		switch query.Order(v) {
		case query.Asc, query.Desc:
			spec.Order = query.Order(v)
		default:
			return spec, apperror.Validation("order must be asc or desc")
		}
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return spec, apperror.Validation("page must be a number")
		}
		spec.Page = page
	}
	if v := q.Get("scope"); v == string(query.ScopeMine) {
		spec.Scope = query.ScopeMine
	}
	return spec, nil
}

func (s *server) queryHandler(w http.ResponseWriter, r *http.Request) {
	spec, err := parseSpec(r)
	if err != nil {
		response.FromError(w, err)
		return
	}

	view, err := s.svc.Query(r.Context(), middleware.ActorFromContext(r.Context()), spec)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Complaints fetched", view)
}

func (s *server) mineHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Mine(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Complaints fetched", items)
}

func (s *server) byReporterHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.FromError(w, apperror.Validation("Invalid user ID"))
		return
	}

	items, err := s.svc.ByReporter(r.Context(), middleware.ActorFromContext(r.Context()), userID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Complaints fetched", items)
}

func (s *server) getHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.FromError(w, err)
		return
	}

	c, err := s.svc.Get(r.Context(), middleware.ActorFromContext(r.Context()), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Complaint fetched", c)
}

func (s *server) createHandler(w http.ResponseWriter, r *http.Request) {
	var input models.NewComplaint
	if err := response.Decode(r, &input); err != nil {
		response.FromError(w, err)
		return
	}

	actor := middleware.ActorFromContext(r.Context())
	c, err := s.svc.Create(r.Context(), actor, input)
	if err != nil {
		response.FromError(w, err)
		return
	}

	s.log.WithTraceID(middleware.GetTraceID(r)).
		WithField("complaint_id", c.ID).
		WithField("user_id", actor.ID).
		Info("[OK] Complaint created")
	response.Success(w, http.StatusCreated, "Complaint created successfully", c)
}

func (s *server) updateHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.FromError(w, err)
		return
	}
	var patch models.ComplaintPatch
	if err := response.Decode(r, &patch); err != nil {
		response.FromError(w, err)
		return
	}

	c, err := s.svc.Update(r.Context(), middleware.ActorFromContext(r.Context()), id, patch)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Complaint updated successfully", c)
}

func (s *server) deleteHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.FromError(w, err)
		return
	}

	if err := s.svc.Delete(r.Context(), middleware.ActorFromContext(r.Context()), id); err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Complaint deleted successfully", map[string]int64{"id": id})
}

func (s *server) commentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		response.FromError(w, err)
		return
	}
	var input struct {
		Text string `json:"text"`
	}
	if err := response.Decode(r, &input); err != nil {
		response.FromError(w, err)
		return
	}

	c, err := s.svc.AddComment(r.Context(), middleware.ActorFromContext(r.Context()), id, input.Text)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusCreated, "Comment added", c)
}

func (s *server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Dashboard(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Dashboard fetched", d)
}

func (s *server) markersHandler(w http.ResponseWriter, r *http.Request) {
	spec, err := parseSpec(r)
	if err != nil {
		response.FromError(w, err)
		return
	}

	markers, err := s.svc.Markers(r.Context(), spec)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Markers fetched", markers)
}

func (s *server) mapConfigHandler(w http.ResponseWriter, r *http.Request) {
	response.Success(w, http.StatusOK, "", map[string]interface{}{
		"mapsApiKey": s.mapsAPIKey,
		"enabled":    s.mapsAPIKey != "",
	})
}

func (s *server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if s.uploads == nil {
		response.Error(w, http.StatusServiceUnavailable, "Image uploads are not configured", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadSize+1<<20)
	file, header, err := r.FormFile("image")
	if err != nil {
		response.FromError(w, apperror.Validation("Image file is required (max 5MB)"))
		return
	}
	defer file.Close()

	up, err := s.uploads.Upload(r.Context(), file, header.Size)
	if err != nil {
		response.FromError(w, err)
		return
	}

	s.log.WithTraceID(middleware.GetTraceID(r)).WithField("key", up.Key).Info("[OK] Image uploaded")
	response.Success(w, http.StatusCreated, "Image uploaded", up)
}

func (s *server) assignHandler(w http.ResponseWriter, r *http.Request) {
	var input service.Assignment
	if err := response.Decode(r, &input); err != nil {
		response.FromError(w, err)
		return
	}

	c, err := s.svc.Assign(r.Context(), input)
	if err != nil {
		s.log.WithTraceID(middleware.GetTraceID(r)).WithError(err).Warn("[WARN] Assignment failed")
		response.FromError(w, err)
		return
	}

	s.log.WithTraceID(middleware.GetTraceID(r)).
		WithField("complaint_id", c.ID).
		WithField("department", input.Assignee.Department).
		Info("[OK] Complaint assigned")
	response.Success(w, http.StatusOK, "Complaint assigned", c)
}

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "UP",
		"service": "complaint-service",
	}

	code := http.StatusOK
	switch {
	case s.ping == nil:
		health["database"] = "memory"
	case s.ping(r.Context()) != nil:
		health["status"] = "DOWN"
		health["database"] = "disconnected"
		code = http.StatusServiceUnavailable
	default:
		health["database"] = "connected"
	}
	response.JSON(w, code, health)
}
