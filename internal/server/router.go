package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/RallyPointLabs/rallypoint/backend/internal/auth"
	"github.com/RallyPointLabs/rallypoint/backend/internal/governance"
	"github.com/RallyPointLabs/rallypoint/backend/internal/notifications"
	"github.com/RallyPointLabs/rallypoint/backend/internal/squads"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const sessionClaimsContextKey = "rallypoint_session_claims"

var (
	errMissingSessionValidator   = errors.New("session validator dependency required")
	errMissingGovernanceService  = errors.New("governance service dependency required")
	errMissingInboxService       = errors.New("notifications service dependency required")
	errMissingStream             = errors.New("notification stream dependency required")
	errMissingMembership         = errors.New("membership dependency required")
	errMissingTierCalculator     = errors.New("tier calculator dependency required")
	errMissingSessionInformation = errors.New("session claims missing from request context")
)

// Dependencies carries the services the HTTP surface exposes.
type Dependencies struct {
	SessionValidator *auth.SessionValidator
	Governance       *governance.Service
	Inbox            *notifications.Service
	Stream           *notifications.Stream
	Membership       *squads.Membership
	TierCalculator   *squads.Calculator
	MetricsGatherer  prometheus.Gatherer
	Logger           *zap.Logger
}

// NewHTTPHandler wires the REST and SSE surface on top of the domain
// services.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Governance == nil {
		return nil, errMissingGovernanceService
	}
	if deps.Inbox == nil {
		return nil, errMissingInboxService
	}
	if deps.Stream == nil {
		return nil, errMissingStream
	}
	if deps.Membership == nil {
		return nil, errMissingMembership
	}
	if deps.TierCalculator == nil {
		return nil, errMissingTierCalculator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := deps.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		validator:  deps.SessionValidator,
		governance: deps.Governance,
		inbox:      deps.Inbox,
		stream:     deps.Stream,
		membership: deps.Membership,
		tiers:      deps.TierCalculator,
		logger:     logger,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	router.GET("/proposals/:slug", handler.handleGetProposal)
	router.GET("/proposals/:slug/tally", handler.handleGetTally)
	router.GET("/squads/:id/proposals", handler.handleListSquadProposals)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/proposals", handler.handleCreateProposal)
	protected.POST("/proposals/:slug/votes", handler.handleCastVote)
	protected.POST("/squads/:id/join", handler.handleJoinSquad)
	protected.GET("/notifications", handler.handleListNotifications)
	protected.POST("/notifications/:id/read", handler.handleMarkRead)
	protected.POST("/notifications/read-all", handler.handleMarkAllRead)
	protected.GET("/notifications/stream", handler.handleNotificationStream)

	internal := router.Group("/internal")
	internal.Use(handler.authorizeRequest, handler.requireAdmin)
	internal.POST("/tick", handler.handleTick)
	internal.POST("/tiers/run", handler.handleTierRun)

	return router, nil
}

type httpHandler struct {
	validator  *auth.SessionValidator
	governance *governance.Service
	inbox      *notifications.Service
	stream     *notifications.Stream
	membership *squads.Membership
	tiers      *squads.Calculator
	logger     *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.validator.ValidateRequest(c.Request)
	if err != nil {
		h.logger.Warn("session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionClaimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	claims, err := sessionClaims(c)
	if err != nil || !claims.HasRole(auth.RoleAdmin) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func sessionClaims(c *gin.Context) (auth.SessionClaims, error) {
	value, ok := c.Get(sessionClaimsContextKey)
	if !ok {
		return auth.SessionClaims{}, errMissingSessionInformation
	}
	claims, ok := value.(auth.SessionClaims)
	if !ok {
		return auth.SessionClaims{}, errMissingSessionInformation
	}
	return claims, nil
}
