package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fluxy/auth"
	"fluxy/chatroom"
	"fluxy/config"
	"fluxy/db"
	"fluxy/main/routes"
	"fluxy/servers"
	"fluxy/store"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	mdb "go.mongodb.org/mongo-driver/mongo"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func rateLimiterrorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(429, "Too many requests. Try again in "+time.Until(info.ResetTime).String())
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == config.DriverMongo {
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		s, err := store.NewMongo(ctx, database)
		if err != nil {
			db.DisconnectMongo(client)
			return nil, err
		}
		return &mongoStore{Mongo: s, client: client}, nil
	}

	conn, err := db.InitSQLite(cfg.DBFile)
	if err != nil {
		return nil, err
	}
	s, err := store.NewSQLite(conn)
	if err != nil {
		db.CloseDB(conn)
		return nil, err
	}
	return s, nil
}

// mongoStore also drops the client connection on Close.
type mongoStore struct {
	*store.Mongo
	client *mdb.Client
}

func (m *mongoStore) Close() error {
	db.DisconnectMongo(m.client)
	return m.Mongo.Close()
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	if len(cfg.CORSOrigins) == 0 {
		return cors.Default()
	}
	conf := cors.DefaultConfig()
	conf.AllowOrigins = cfg.CORSOrigins
	conf.AllowCredentials = true
	conf.AddAllowHeaders("Authorization")
	return cors.New(conf)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Error loading configuration:", err)
	}
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Error opening %s store: %v", cfg.StoreDriver, err)
	}
	defer st.Close()

	usersDB, err := db.InitSQLite(cfg.UsersDBFile)
	if err != nil {
		log.Fatal("Error opening users database:", err)
	}
	defer db.CloseDB(usersDB)

	provider, err := auth.NewProvider(usersDB, cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatal("Error preparing users schema:", err)
	}

	registry := chatroom.NewRegistry()
	go registry.Run()
	defer registry.Stop()
	provider.OnLogin = registry.UserConnected

	engine := servers.New(st)
	socket := chatroom.NewHandler(registry, engine, engine)
	socket.ChatRateMax = cfg.ChatRateMax
	socket.ChatRateWindow = cfg.ChatRateWindow

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		chatroom.NewCollector(registry, "fluxy"),
	)

	r := gin.Default()
	limiterStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{Rate: time.Second, Limit: cfg.RateLimitPerSecond})
	r.Use(ratelimit.RateLimiter(limiterStore, &ratelimit.Options{ErrorHandler: rateLimiterrorHandler, KeyFunc: keyFunc}))
	r.Use(corsMiddleware(cfg))

	routes.SetupRegularRoutes(r, metrics, cfg.StaticDir)
	routes.SetupAPIRoutes(r, &routes.API{Engine: engine, Auth: provider, Registry: registry})
	routes.SetupWebSocketRoutes(r, provider, socket)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	go func() {
		log.Printf("Starting fluxy on port %s (%s store)", cfg.Port, cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down fluxy...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("fluxy forced shutdown: %v", err)
	}
}
