package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/auth"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
)

const sessionName = "HuddleSessions"

type tokenRequest struct {
	RoomName        string `json:"roomName" binding:"required"`
	ParticipantName string `json:"participantName"`
}

type tokenResponse struct {
	Token         string               `json:"token"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Room          domain.RoomName      `json:"room"`
	ExpiresAt     time.Time            `json:"expiresAt"`
}

// issueToken mints a join credential. The participant name is remembered in the cookie session, so a
// browser that omits it on a later request keeps its previous name.
func issueToken(signer *auth.Signer, m *metrics.Relay) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "roomName is required"})
			return
		}
		session := sessions.Default(c)
		name := req.ParticipantName
		if name == "" {
			if remembered, ok := session.Get("name").(string); ok {
				name = remembered
			}
		}
		room := domain.NormalizeRoomName(req.RoomName)
		token, claims, err := signer.Issue(room, name)
		if err != nil {
			status := http.StatusBadRequest
			if !errors.Is(err, domain.ErrUsernameEmpty) && !errors.Is(err, domain.ErrUsernameTooLong) && !errors.Is(err, auth.ErrMalformed) {
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		session.Set("name", claims.Name)
		if err := session.Save(); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
		}
		if m != nil {
			m.TokensIssued.Inc()
		}
		log.Info().Str("module", "adapters.http").Str("room", string(room)).Str("peer", string(claims.Subject)).Msg("token issued")
		c.JSON(http.StatusOK, tokenResponse{
			Token:         token,
			ParticipantID: claims.Subject,
			Room:          claims.Room,
			ExpiresAt:     time.Unix(claims.Expires, 0).UTC(),
		})
	}
}

func requireAdmin(key string) gin.HandlerFunc {
	want := []byte("Bearer " + key)
	return func(c *gin.Context) {
		if subtle.ConstantTimeCompare([]byte(c.GetHeader("Authorization")), want) != 1 {
			log.Warn().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("admin request refused")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin key required"})
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, signer *auth.Signer, m *metrics.Relay) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	ctrl := signal.NewSignalWSController(o, signer, m, signal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		ChatLimit:    cfg.ChatLimit,
		ChatInterval: cfg.ChatInterval,
	})

	api := r.Group("/api")
	api.POST("/token", issueToken(signer, m))
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": o.Rooms.List()})
	})
	if cfg.AdminKey != "" {
		api.DELETE("/rooms/:name", requireAdmin(cfg.AdminKey), func(c *gin.Context) {
			name := domain.NormalizeRoomName(c.Param("name"))
			if _, ok := o.Rooms.Get(name); !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "no such room"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"room": name, "kicked": o.EvictRoom(name)})
		})
	}
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
