// Package api is a small marketplace backend speaking the same real-time
// contract as production. It is meant for local runs and integration tests.
package api

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/katatrina/gundam-live/internal/event"
	"github.com/katatrina/gundam-live/internal/token"
	"github.com/katatrina/gundam-live/internal/util"
	"github.com/rs/zerolog/log"
)

// Server serves HTTP requests for the dev marketplace.
type Server struct {
	router     *gin.Engine
	config     util.Config
	tokenMaker token.Maker
	store      *Store
	hub        *event.Hub
	upgrader   websocket.Upgrader
}

// NewServer creates a new HTTP server and sets up routing.
func NewServer(config util.Config, store *Store) (*Server, error) {
	tokenMaker, err := token.NewJWTMaker(config.TokenSecretKey)
	if err != nil {
		return nil, fmt.Errorf("cannot create token maker: %w", err)
	}
	log.Info().Msg("Token maker created successfully ✅")

	server := &Server{
		config:     config,
		tokenMaker: tokenMaker,
		store:      store,
		hub:        event.NewHub(),
	}
	server.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     server.checkOrigin,
	}

	go server.hub.Run()

	server.setupRouter()
	return server, nil
}

func (server *Server) setupRouter() {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/ws", server.serveWebsocket)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/login", server.loginUser)
		apiGroup.GET("/users/me", authMiddleware(server.tokenMaker), server.getMe)

		auctionGroup := apiGroup.Group("/auctions", authMiddleware(server.tokenMaker))
		{
			auctionGroup.GET("/:id", server.getAuction)
			auctionGroup.POST("/:id/end", server.endAuction)
		}
	}

	server.router = router
}

// checkOrigin accepts non-browser clients and the configured origins.
func (server *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(server.config.AllowedOrigins, origin)
}

// Handler exposes the router, mostly for httptest.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Start runs the HTTP server on a specific address.
func (server *Server) Start(address string) error {
	return server.router.Run(address)
}

// Close stops fanning out events to the connected clients.
func (server *Server) Close() {
	server.hub.Close()
}
