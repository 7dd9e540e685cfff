package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/heimdallid/heimdall/pkg/clients"
	"github.com/heimdallid/heimdall/pkg/httputil"
	"github.com/heimdallid/heimdall/pkg/oauth"
	"github.com/heimdallid/heimdall/pkg/observability"
	"github.com/heimdallid/heimdall/pkg/tenants"
)

// ClientDirectory is the slice of the client registry the HTTP surface uses.
// *clients.Registry satisfies it.
type ClientDirectory interface {
	Register(ctx context.Context, actorUserID *int64, req clients.RegisterRequest) (*clients.OAuthClient, string, error)
	GetClient(ctx context.Context, clientID string) (*clients.OAuthClient, error)
	RegenerateSecret(ctx context.Context, actorUserID *int64, clientID string) (string, error)
	Suspend(ctx context.Context, actorUserID *int64, clientID string) error
	Activate(ctx context.Context, actorUserID *int64, clientID string) error
	Delete(ctx context.Context, actorUserID *int64, clientID string) error
	ListByTenant(ctx context.Context, tenantID int64) ([]*clients.OAuthClient, error)
}

// Server is the HTTP protocol surface: the OAuth endpoints plus the
// tenant/membership admin API.
type Server struct {
	router   *mux.Router
	oauth    *oauth.Engine
	registry ClientDirectory
	tenants  *tenants.Engine
	metrics  *observability.Metrics
	logger   *logrus.Logger
}

// NewServer wires the engines into a router. metrics may be nil; logger
// defaults to the standard logrus logger.
func NewServer(oauthEngine *oauth.Engine, registry ClientDirectory, tenantsEngine *tenants.Engine, metrics *observability.Metrics, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:   mux.NewRouter(),
		oauth:    oauthEngine,
		registry: registry,
		tenants:  tenantsEngine,
		metrics:  metrics,
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

// maxBodyBytes bounds request bodies; every payload this API accepts is a
// small JSON or form document.
const maxBodyBytes = 1 << 20

// Router returns the configured handler wrapped in the shared middleware
// stack: request ID tagging outermost, panic recovery, body size cap, then
// the access log around the routes.
func (s *Server) Router() http.Handler {
	return httputil.Chain(
		httputil.RequestID,
		httputil.Recovery(s.logger),
		httputil.MaxBytes(maxBodyBytes),
	)(s.requestLogger(s.router))
}

func (s *Server) setupRoutes() {
	// OAuth protocol endpoints
	s.router.HandleFunc("/oauth/authorize", s.authorize).Methods("GET")
	s.router.HandleFunc("/oauth/token", s.token).Methods("POST")
	s.router.HandleFunc("/oauth/introspect", s.introspect).Methods("POST")
	s.router.HandleFunc("/oauth/revoke", s.revoke).Methods("POST")

	// Client registry admin
	s.router.HandleFunc("/api/v1/clients", s.registerClient).Methods("POST")
	s.router.HandleFunc("/api/v1/clients/{client_id}", s.getClient).Methods("GET")
	s.router.HandleFunc("/api/v1/clients/{client_id}", s.deleteClient).Methods("DELETE")
	s.router.HandleFunc("/api/v1/clients/{client_id}/secret", s.regenerateSecret).Methods("POST")
	s.router.HandleFunc("/api/v1/clients/{client_id}/suspend", s.suspendClient).Methods("POST")
	s.router.HandleFunc("/api/v1/clients/{client_id}/activate", s.activateClient).Methods("POST")

	// Tenant hierarchy admin
	s.router.HandleFunc("/api/v1/tenants", s.createTenant).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{id}", s.getTenant).Methods("GET")
	s.router.HandleFunc("/api/v1/tenants/{id}", s.deleteTenant).Methods("DELETE")
	s.router.HandleFunc("/api/v1/tenants/{id}/move", s.moveTenant).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{id}/archive", s.archiveTenant).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{id}/unarchive", s.unarchiveTenant).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{id}/children", s.listChildren).Methods("GET")
	s.router.HandleFunc("/api/v1/tenants/{id}/clients", s.listTenantClients).Methods("GET")

	// Membership
	s.router.HandleFunc("/api/v1/tenants/{id}/members", s.addMember).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{id}/members", s.listMembers).Methods("GET")
	s.router.HandleFunc("/api/v1/tenants/{id}/members/{user_id}", s.removeMember).Methods("DELETE")
	s.router.HandleFunc("/api/v1/tenants/{id}/members/{user_id}/role", s.updateMemberRole).Methods("PUT")
	s.router.HandleFunc("/api/v1/tenants/{id}/transfer", s.transferOwnership).Methods("POST")

	// Invitations
	s.router.HandleFunc("/api/v1/tenants/{id}/invitations", s.inviteMember).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{id}/invitations", s.listInvitations).Methods("GET")
	s.router.HandleFunc("/api/v1/tenants/{id}/invitations/{user_id}/accept", s.acceptInvitation).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{id}/invitations/{user_id}/reject", s.rejectInvitation).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{id}/invitations/{user_id}", s.cancelInvitation).Methods("DELETE")

	// Permissions
	s.router.HandleFunc("/api/v1/tenants/{id}/permissions", s.grantPermission).Methods("POST")
	s.router.HandleFunc("/api/v1/tenants/{id}/permissions/{permission_id}", s.revokePermission).Methods("DELETE")
	s.router.HandleFunc("/api/v1/tenants/{id}/users/{user_id}/permissions", s.effectivePermissions).Methods("GET")
	s.router.HandleFunc("/api/v1/tenants/{id}/users/{user_id}/inherited", s.inheritedPermissions).Methods("GET")
	s.router.HandleFunc("/api/v1/tenants/{id}/check", s.checkPermission).Methods("POST")
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"duration":   time.Since(start).String(),
			"request_id": r.Header.Get(httputil.RequestIDHeader),
		}).Info("request")
	})
}
