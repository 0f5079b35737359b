package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver (server profiles)
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite" // database/sql driver (on-device store)

	"reelfeed/internal/bandwidth"
	"reelfeed/internal/config"
	"reelfeed/internal/feed"
	"reelfeed/internal/feedctl"
	"reelfeed/internal/httpapi"
	"reelfeed/internal/middleware"
	"reelfeed/internal/playback"
	"reelfeed/internal/pool"
	"reelfeed/internal/preload"
	"reelfeed/internal/resume"
)

func mustOpenDB() *sql.DB {
	driver, dsn := "sqlite", config.DBPath()
	if pg := config.PgDSN(); pg != "" {
		driver, dsn = "pgx", pg
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		log.Fatal(err)
	}
	log.Printf("[db] connected (%s)", driver)
	return db
}

func main() {
	_ = godotenv.Load(".env")

	config.Load()
	config.SetupLogging()

	db := mustOpenDB()
	store := resume.NewStore(db, config.ResumeTTL(), config.SeenMax())
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatal(err)
	}

	source := feed.NewHTTPSource(
		config.SourceBaseURL(),
		&http.Client{Timeout: config.FetchTimeout()},
		config.FetchRPS(), config.FetchBurst(),
	)
	engine := playback.NewHTTPEngine(nil, config.PrebufferBytes())

	ctl := feedctl.New(
		feedctl.Config{
			ProfileID:        config.Profile(),
			PageSize:         config.PageSize(),
			WindowMax:        config.WindowMax(),
			PrefetchMargin:   5,
			ConstructTimeout: config.ConstructTimeout(),
			Preload: preload.Config{
				Back:        config.PreloadBack(),
				Forward:     config.PreloadForward(),
				Debounce:    config.PreloadDebounce(),
				RetryDelay:  config.RetryDelay(),
				MaxAttempts: 3,
			},
			TickEvery: 50 * time.Millisecond,
		},
		source,
		engine,
		store,
		pool.New(config.PoolMax()),
		bandwidth.New(config.BwBufferEvents(), config.BwBufferWindow(), config.BwSmoothStreak(), config.BwSmoothAfter()),
	)

	mux := http.NewServeMux()
	httpapi.NewHandlers(ctl).Register(mux)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			middleware.EnableCORS(w)
			return
		}
		http.NotFound(w, r)
	})

	addr := config.ListenAddr()
	log.Printf("[boot] feed engine listening on %s source=%s pool=%d window=[-%d,+%d]",
		addr, config.SourceBaseURL(), config.PoolMax(), config.PreloadBack(), config.PreloadForward())

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	srv := &http.Server{
		Addr:     addr,
		Handler:  middleware.Recover(mux),
		ErrorLog: log.New(log.Writer(), "[http] ", 0),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-rootCtx.Done()
	log.Printf("[boot] shutdown requested")

	shCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)

	// resume state must be durable before the DB closes
	ctl.Flush()
	ctl.Close()
	_ = db.Close()

	log.Printf("[boot] shutdown complete")
}
