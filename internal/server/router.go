package server

import (
	"net/http"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/metrics"
	"github.com/formwright/formwright/internal/server/handlers"
	"github.com/formwright/formwright/internal/server/requestlog"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(requestlog.Middleware(r.server.RequestLogs()))
	r.Use(MaxBodySizeMiddleware(r.server.cfg.Server.MaxBodySize))

	if r.server.cfg.Server.CORS.Enabled {
		r.Use(CORSMiddleware(r.server.cfg.Server.CORS))
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	srv := r.server

	healthHandlers := handlers.NewHealthHandlers(srv.DB(), srv.Broker(), "0.1.0")
	r.mux.HandleFunc("GET /", healthHandlers.Liveness)
	r.mux.HandleFunc("GET /health", healthHandlers.Health)
	r.mux.HandleFunc("GET /health/live", healthHandlers.Liveness)
	r.mux.HandleFunc("GET /health/ready", healthHandlers.Readiness)
	r.mux.HandleFunc("GET /health/stats", healthHandlers.Stats)
	r.mux.Handle("GET /metrics", metrics.Handler())

	authHandlers := handlers.NewAuthHandlers(srv.Auth(), &srv.cfg.Auth)
	r.mux.HandleFunc("GET /api/auth/status", authHandlers.Status)
	r.mux.Handle("POST /api/auth/register", srv.registerLimiter.Middleware(http.HandlerFunc(authHandlers.Register)))
	r.mux.Handle("POST /api/auth/login", srv.loginLimiter.Middleware(http.HandlerFunc(authHandlers.Login)))
	r.mux.HandleFunc("POST /api/auth/logout", authHandlers.Logout)
	r.mux.Handle("GET /api/auth/me", r.requireAuth(authHandlers.Me))

	formHandlers := handlers.NewFormHandlers(srv.Forms())
	r.mux.Handle("POST /api/forms", r.requireAuth(formHandlers.Create))
	r.mux.Handle("GET /api/forms", r.optionalAuth(formHandlers.List))
	r.mux.Handle("GET /api/forms/{form_id}", r.optionalAuth(formHandlers.Get))
	r.mux.Handle("PATCH /api/forms/{form_id}", r.requireAuth(formHandlers.Update))
	r.mux.Handle("DELETE /api/forms/{form_id}", r.requireAuth(formHandlers.Delete))
	r.mux.Handle("POST /api/forms/{form_id}/status", r.requireAuth(formHandlers.TransitionStatus))
	r.mux.Handle("POST /api/forms/{form_id}/versions", r.requireAuth(formHandlers.CreateVersion))
	r.mux.Handle("GET /api/forms/{form_id}/versions/{version}", r.optionalAuth(formHandlers.GetVersion))
	r.mux.Handle("POST /api/forms/{form_id}/versions/{version}/activate", r.requireAuth(formHandlers.ActivateVersion))
	r.mux.Handle("POST /api/forms/{form_id}/versions/{version}/sections/reorder", r.requireAuth(formHandlers.ReorderSections))
	r.mux.Handle("POST /api/forms/{form_id}/versions/{version}/sections/{section_id}/questions/reorder", r.requireAuth(formHandlers.ReorderQuestions))

	responseHandlers := handlers.NewResponseHandlers(srv.Responses(), srv.Forms(), srv.WorkflowEngine(), srv.Dispatcher(), srv.Audit())
	r.mux.Handle("POST /api/forms/{form_id}/responses", r.optionalAuth(responseHandlers.Submit))
	r.mux.Handle("GET /api/forms/{form_id}/responses", r.requireAuth(responseHandlers.List))
	r.mux.Handle("POST /api/forms/{form_id}/responses/search", r.requireAuth(responseHandlers.Search))
	r.mux.Handle("GET /api/responses/{response_id}", r.optionalAuth(responseHandlers.Get))
	r.mux.Handle("PATCH /api/responses/{response_id}", r.requireAuth(responseHandlers.Update))
	r.mux.Handle("DELETE /api/responses/{response_id}", r.requireAuth(responseHandlers.Delete))
	r.mux.Handle("POST /api/responses/{response_id}/restore", r.requireAuth(responseHandlers.Restore))
	r.mux.Handle("GET /api/responses/{response_id}/history", r.requireAuth(responseHandlers.History))
	r.mux.Handle("GET /api/responses/{response_id}/comments", r.requireAuth(responseHandlers.ListComments))
	r.mux.Handle("POST /api/responses/{response_id}/comments", r.requireAuth(responseHandlers.AddComment))

	approvalHandlers := handlers.NewApprovalHandlers(srv.ApprovalEngine(), srv.Forms(), srv.Responses(), srv.Audit())
	r.mux.Handle("POST /api/responses/{response_id}/approve", r.requireAuth(approvalHandlers.Approve))
	r.mux.Handle("POST /api/responses/{response_id}/reject", r.requireAuth(approvalHandlers.Reject))
	r.mux.Handle("POST /api/responses/{response_id}/reset", r.requireAuth(approvalHandlers.ResetToPending))

	workflowHandlers := handlers.NewWorkflowHandlers(srv.Workflows())
	r.mux.Handle("POST /api/workflows", r.requireAuth(workflowHandlers.Create))
	r.mux.Handle("GET /api/workflows", r.requireAuth(workflowHandlers.List))
	r.mux.Handle("GET /api/workflows/{workflow_id}", r.requireAuth(workflowHandlers.Get))
	r.mux.Handle("PATCH /api/workflows/{workflow_id}", r.requireAuth(workflowHandlers.Update))
	r.mux.Handle("DELETE /api/workflows/{workflow_id}", r.requireAuth(workflowHandlers.Delete))

	webhookHandlers := handlers.NewWebhookHandlers(srv.Forms())
	r.mux.Handle("GET /api/forms/{form_id}/webhooks", r.requireAuth(webhookHandlers.List))
	r.mux.Handle("POST /api/forms/{form_id}/webhooks", r.requireAuth(webhookHandlers.Create))
	r.mux.Handle("DELETE /api/forms/{form_id}/webhooks/{url}", r.requireAuth(webhookHandlers.Delete))

	analyticsHandlers := handlers.NewAnalyticsHandlers(srv.Analytics())
	r.mux.Handle("GET /api/forms/{form_id}/analytics/summary", r.requireAuth(analyticsHandlers.Summary))
	r.mux.Handle("GET /api/forms/{form_id}/analytics/timeline", r.requireAuth(analyticsHandlers.Timeline))
	r.mux.Handle("GET /api/forms/{form_id}/analytics/distribution", r.requireAuth(analyticsHandlers.Distribution))

	exportHandlers := handlers.NewExportHandlers(srv.Exporter())
	r.mux.Handle("GET /api/forms/{form_id}/export.csv", r.requireAuth(exportHandlers.CSV))
	r.mux.Handle("GET /api/forms/{form_id}/export.json", r.requireAuth(exportHandlers.JSON))
	r.mux.Handle("POST /api/export/bulk", r.requireAuth(exportHandlers.Bulk))

	if storageSvc := srv.StorageService(); storageSvc != nil {
		fileHandlers := handlers.NewFileHandlers(storageSvc)
		r.mux.Handle("POST /api/forms/{form_id}/questions/{question_id}/files", r.optionalAuth(fileHandlers.Upload))
		r.mux.Handle("GET /api/forms/{form_id}/questions/{question_id}/files", r.optionalAuth(fileHandlers.List))
		r.mux.Handle("GET /api/forms/{form_id}/questions/{question_id}/files/{file_id}", r.optionalAuth(fileHandlers.Download))
		r.mux.Handle("DELETE /api/forms/{form_id}/questions/{question_id}/files/{file_id}", r.requireAuth(fileHandlers.Delete))
	}

	if broker := srv.Broker(); broker != nil {
		rt := handlers.NewRealtimeHandler(broker)
		r.mux.Handle("GET /api/realtime", r.requireAuth(rt.HandleWebSocket))
	}

	logsHandlers := handlers.NewLogsHandlers(srv.RequestLogs())
	r.mux.Handle("GET /api/admin/logs", r.requireAuth(logsHandlers.List))
	r.mux.Handle("GET /api/admin/logs/stats", r.requireAuth(logsHandlers.Stats))
	r.mux.Handle("POST /api/admin/logs/clear", r.requireAuth(logsHandlers.Clear))
}

func (r *Router) requireAuth(fn http.HandlerFunc) http.Handler {
	return auth.RequireAuth(r.server.Auth())(fn)
}

func (r *Router) optionalAuth(fn http.HandlerFunc) http.Handler {
	return auth.OptionalAuth(r.server.Auth())(fn)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
