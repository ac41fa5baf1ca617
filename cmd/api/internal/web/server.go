package web

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loopcast.media/loopcast/cmd/api/handlers/api/feed_api"
	"loopcast.media/loopcast/cmd/api/handlers/api/fileserver"
	"loopcast.media/loopcast/cmd/api/handlers/api/follow_api"
	"loopcast.media/loopcast/cmd/api/handlers/api/interaction_api"
	"loopcast.media/loopcast/cmd/api/handlers/api/video_api"
	"loopcast.media/loopcast/cmd/api/handlers/api/worker_api"
	"loopcast.media/loopcast/cmd/api/handlers/common"
	"loopcast.media/loopcast/internal/auth"
	"loopcast.media/loopcast/internal/config"
	"loopcast.media/loopcast/internal/db"
	"loopcast.media/loopcast/internal/feed"
	"loopcast.media/loopcast/internal/ingest"
	"loopcast.media/loopcast/internal/signals"
	"loopcast.media/loopcast/internal/storage"
)

type Webserver struct {
	*echo.Echo

	conf         config.Config
	dbc          *db.DatabaseConnection
	blobs        storage.BlobStore
	verifier     *auth.Verifier
	hub          *ingest.Hub
	stateMachine *ingest.StateMachine
	aggregator   *signals.Aggregator
	feedEngine   *feed.Engine
}

func NewWebserver(conf config.Config, dbc *db.DatabaseConnection, blobs storage.BlobStore, hub *ingest.Hub) (*Webserver, error) {
	e := echo.New()

	store := db.NewStore(dbc)
	stateMachine := ingest.NewStateMachine(store, blobs, hub,
		conf.JobMaxRetries, time.Duration(conf.JobBackoffBaseSecs)*time.Second)

	queries := dbc.Queries(context.Background())
	aggregator := signals.NewAggregator(queries)

	candidates := feed.NewStoreCandidateSource(queries, conf.FeedFollowedLimit, conf.FeedDiscoveryLimit)
	engine := feed.NewEngine(candidates, queries, queries,
		feed.Weights{
			Engagement: conf.FeedWeightEngagement,
			Recency:    conf.FeedWeightRecency,
			Affinity:   conf.FeedWeightAffinity,
			HalfLife:   time.Duration(conf.FeedHalfLifeHours * float64(time.Hour)),
		},
		time.Duration(conf.FeedFetchTimeoutMS)*time.Millisecond,
		conf.FeedPageSizeMax)

	webserver := &Webserver{
		Echo:         e,
		conf:         conf,
		dbc:          dbc,
		blobs:        blobs,
		verifier:     auth.NewVerifier(conf.AuthSecret),
		hub:          hub,
		stateMachine: stateMachine,
		aggregator:   aggregator,
		feedEngine:   engine,
	}

	webserver.registerRoutes()
	webserver.setupMiddleware()
	return webserver, nil
}

func (s *Webserver) setupMiddleware() {
	s.HideBanner = true
	s.HidePort = true
	s.Use(middleware.Recover())
	s.Use(middleware.RequestID())
	s.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Skipper: func(c echo.Context) bool {
			// Uploads carry their own size limit.
			return c.Path() == "/api/videos"
		},
		Limit: "2M",
	}))
	s.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			switch c.Path() {
			case "/api/videos/:id/events", "/metrics", "/healthz":
				return true
			default:
				return false
			}
		},
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  false,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
				"request_id", v.RequestID,
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
			}
			slog.Info("request", fields...)
			return nil
		},
	}))
}

func (s *Webserver) registerRoutes() {
	urlTTL := time.Duration(s.conf.SignedURLTTLSecs) * time.Second

	apiGroup := s.Group("/api")
	apiGroup.Use(common.BearerAuth(s.verifier))

	// Video lifecycle
	apiGroup.POST("/videos", video_api.HandleUpload(s.stateMachine, s.blobs, s.conf.UploadMaxBytes, urlTTL))
	apiGroup.GET("/videos/:id", video_api.HandleStatus(s.dbc, s.blobs, urlTTL))
	apiGroup.GET("/videos/:id/events", video_api.HandleEvents(s.dbc, s.hub))
	apiGroup.POST("/videos/:id/resubmit", video_api.HandleResubmit(s.stateMachine, s.blobs, urlTTL))
	apiGroup.DELETE("/videos/:id", video_api.HandleDelete(s.stateMachine))

	// Engagement signals
	apiGroup.PUT("/videos/:id/like", interaction_api.HandleLike(s.aggregator))
	apiGroup.DELETE("/videos/:id/like", interaction_api.HandleUnlike(s.aggregator))
	apiGroup.POST("/videos/:id/view", interaction_api.HandleView(s.aggregator))
	apiGroup.POST("/videos/:id/share", interaction_api.HandleShare(s.aggregator))
	apiGroup.POST("/videos/:id/comments", interaction_api.HandleCreateComment(s.aggregator))
	apiGroup.GET("/videos/:id/comments", interaction_api.HandleListComments(s.dbc))

	// Follow graph
	apiGroup.PUT("/creators/:id/follow", follow_api.HandleFollow(s.dbc))
	apiGroup.DELETE("/creators/:id/follow", follow_api.HandleUnfollow(s.dbc))
	apiGroup.GET("/follows", follow_api.HandleListFollows(s.dbc))

	// Feed
	apiGroup.GET("/feed", feed_api.HandleFeed(s.feedEngine, s.dbc, s.blobs, urlTTL, 20))

	// Internal worker callbacks
	internalGroup := s.Group("/internal")
	internalGroup.Use(common.BearerAuth(s.verifier))
	internalGroup.POST("/videos/:id/accepted", worker_api.HandleJobAccepted(s.stateMachine))
	internalGroup.POST("/videos/:id/complete", worker_api.HandleJobComplete(s.stateMachine))
	internalGroup.POST("/videos/:id/failed", worker_api.HandleJobFailed(s.stateMachine))
	internalGroup.POST("/videos/:id/thumbnail", worker_api.HandleThumbnailReady(s.stateMachine))

	// Media files, filesystem backend only
	if s.conf.StorageBackend == "fs" {
		fileServer := fileserver.NewFileServer(s.conf.StorageFSRoot)
		s.GET("/media/*", fileServer.Serve())
	}

	s.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.GET("/healthz", func(c echo.Context) error {
		return c.String(200, "ok")
	})
}

// Addr returns the listen address from configuration.
func (s *Webserver) Addr() string {
	return fmt.Sprintf(":%d", s.conf.WebServerPort)
}
