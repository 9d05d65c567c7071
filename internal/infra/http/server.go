package http

import (
	"context"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"time"

	"machineid/internal/config"
	"machineid/internal/domain"
	"machineid/internal/infra/db"
	"machineid/internal/infra/exchange"
	"machineid/internal/infra/masterkey"
	"machineid/internal/infra/policy"
	"machineid/internal/infra/ratelimit"
	"machineid/internal/infra/vaultclient"
	"machineid/internal/usecase"

	"github.com/gin-gonic/gin"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	identity   *usecase.IdentityService
	keys       *usecase.TenantKeyService
	jwks       *usecase.JWKSPublisher
	delegation *usecase.DelegationRegistry
	nodes      usecase.NodeRepository

	adminAPIKey string
	initErr     error
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Identity   *usecase.IdentityService
	Keys       *usecase.TenantKeyService
	JWKS       *usecase.JWKSPublisher
	Delegation *usecase.DelegationRegistry
	Nodes      usecase.NodeRepository

	AdminAPIKey string
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		r:           r,
		identity:    deps.Identity,
		keys:        deps.Keys,
		jwks:        deps.JWKS,
		delegation:  deps.Delegation,
		nodes:       deps.Nodes,
		adminAPIKey: deps.AdminAPIKey,
	}
	s.routes()
	return s
}

func (s *Server) initDeps() {
	s.adminAPIKey = s.cfg.AdminAPIKey

	sealer, masterKeyID := s.initSealer()

	var (
		keyRepo        usecase.TenantKeyRepository
		delegationRepo usecase.DelegationRepository
		nodeRepo       usecase.NodeRepository
	)
	if s.store != nil {
		keyRepo = db.NewTenantKeyRepository(s.store.DB)
		delegationRepo = db.NewDelegationConfigRepository(s.store.DB)
		nodes := db.NewNodeRepository(s.store.DB)
		nodeRepo = nodes
		s.nodes = nodes
	}

	s.keys = &usecase.TenantKeyService{
		Repo:        keyRepo,
		Sealer:      sealer,
		MasterKeyID: masterKeyID,
		GracePeriod: s.cfg.KeyGracePeriod(),
	}
	s.jwks = &usecase.JWKSPublisher{
		Keys:          s.keys,
		IssuerBaseURL: s.cfg.IssuerBaseURL,
	}

	guard, err := policy.NewEndpointGuard(context.Background())
	if err != nil {
		s.initErr = err
		return
	}
	s.delegation = &usecase.DelegationRegistry{
		Repo:      delegationRepo,
		Endpoints: guard,
	}

	issuer := &usecase.TokenIssuer{
		Keys:          s.keys,
		Delegations:   delegationRepo,
		TrustDomain:   s.cfg.TrustDomain,
		IssuerBaseURL: s.cfg.IssuerBaseURL,
		DirectTTL:     s.cfg.DirectTokenTTL(),
	}

	exchangeClient, err := exchange.New(exchange.Config{
		Timeout:  s.cfg.ExchangeTimeout(),
		ProxyURL: s.cfg.ExchangeProxyURL,
	})
	if err != nil {
		s.initErr = err
		return
	}

	s.identity = &usecase.IdentityService{
		Nodes:             nodeRepo,
		Issuer:            issuer,
		Exchange:          exchangeClient,
		Limiter:           s.initRateLimiter(),
		RateLimitRequests: s.cfg.RateLimitRequests,
		RateLimitWindow:   s.cfg.RateLimitWindow(),
	}
}

func (s *Server) initSealer() (masterkey.Sealer, string) {
	masterKeyID := s.cfg.MasterKeyID
	if s.cfg.MasterKeyBase64 != "" {
		if masterKeyID == "" {
			masterKeyID = "local"
		}
		key, err := base64.StdEncoding.DecodeString(s.cfg.MasterKeyBase64)
		if err != nil || len(key) != 32 {
			s.initErr = errors.New("MASTER_KEY_BASE64 must decode to 32 bytes")
			return nil, masterKeyID
		}
		return masterkey.NewStaticKeyring(map[string][]byte{masterKeyID: key}), masterKeyID
	}
	if s.cfg.VaultAddr != "" && s.cfg.VaultToken != "" {
		keyring, err := masterkey.NewVaultKeyring(
			vaultclient.New(s.cfg.VaultAddr, s.cfg.VaultToken), s.cfg.IdentityEnv)
		if err != nil {
			s.initErr = err
			return nil, masterKeyID
		}
		return keyring, masterKeyID
	}
	s.initErr = errors.New("either MASTER_KEY_BASE64 or VAULT_ADDR/VAULT_TOKEN is required")
	return nil, masterKeyID
}

func (s *Server) initRateLimiter() domain.RateLimiter {
	if s.cfg.RateLimitRequests <= 0 {
		return nil
	}
	if s.cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisLimiter(ratelimit.RedisLimiterConfig{
			Addr:     s.cfg.RedisAddr,
			Password: s.cfg.RedisPassword,
			DB:       s.cfg.RedisDB,
		})
		if err == nil {
			return limiter
		}
		log.Printf("redis rate limiter unavailable, falling back to memory: %v", err)
	}
	return ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
		MaxKeys: s.cfg.RateLimitMaxKeys,
	})
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/identity/token", s.handleIdentityToken)
		v1.POST("/nodes", s.handleAdminCreateNode)

		scoped := v1.Group("/org/:org/site/:site")
		{
			scoped.PUT("/token-delegation", s.handleAdminPutDelegation)
			scoped.GET("/token-delegation", s.handleAdminGetDelegation)
			scoped.DELETE("/token-delegation", s.handleAdminDeleteDelegation)
			scoped.POST("/:keys_action", s.handleAdminKeysAction)
			scoped.GET("/.well-known/openid-configuration", s.handleOIDCConfig)
			scoped.GET("/.well-known/jwks.json", s.handleJWKS)
		}
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Run() error {
	if s.initErr != nil {
		return s.initErr
	}
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
