package config

import (
	"os"
	"strconv"
	"time"
)

var (
	listenAddr = ":4101"

	sourceBaseURL = "http://localhost:4102"
	pageSize      = 10
	fetchTimeout  = 20 * time.Second
	fetchRPS      = 4.0 // page-fetch rate limit (requests/sec)
	fetchBurst    = 2

	poolMax   = 7
	windowMax = 120

	preloadBack     = 1
	preloadForward  = 3
	preloadDebounce = 200 * time.Millisecond
	retryDelay      = 500 * time.Millisecond

	constructTimeout = 15 * time.Second
	prebufferBytes   = int64(1 << 20) // 1 MiB before a handle counts as Ready

	resumeTTL = 12 * time.Hour
	seenMax   = 500

	pgDSN   = ""
	dbPath  = "./reelfeed.db"
	profile = "local"

	bwBufferEvents = 2
	bwBufferWindow = 30 * time.Second
	bwSmoothStreak = 3
	bwSmoothAfter  = 5 * time.Second

	// logging
	logFilePath   = ""
	logAllowRegex = ``
	logDenyRegex  = `broken pipe|reset by peer`
	logDedupWin   = 3 * time.Second
)

func Load() {
	listenAddr = getenv("LISTEN", listenAddr)

	sourceBaseURL = getenv("FEED_SOURCE_URL", sourceBaseURL)
	pageSize = getenvInt("FEED_PAGE_SIZE", pageSize)
	fetchTimeout = getenvDuration("FEED_FETCH_TIMEOUT", fetchTimeout)
	fetchRPS = getenvFloat("FEED_FETCH_RPS", fetchRPS)
	fetchBurst = getenvInt("FEED_FETCH_BURST", fetchBurst)

	poolMax = getenvInt("FEED_POOL_MAX", poolMax)
	windowMax = getenvInt("FEED_WINDOW_MAX", windowMax)

	preloadBack = getenvInt("FEED_PRELOAD_BACK", preloadBack)
	preloadForward = getenvInt("FEED_PRELOAD_FORWARD", preloadForward)
	preloadDebounce = getenvDuration("FEED_PRELOAD_DEBOUNCE", preloadDebounce)
	retryDelay = getenvDuration("FEED_RETRY_DELAY", retryDelay)

	constructTimeout = getenvDuration("FEED_CONSTRUCT_TIMEOUT", constructTimeout)
	prebufferBytes = getenvInt64("FEED_PREBUFFER_BYTES", prebufferBytes)

	resumeTTL = getenvDuration("FEED_RESUME_TTL", resumeTTL)
	seenMax = getenvInt("FEED_SEEN_MAX", seenMax)

	pgDSN = getenv("FEED_PG_DSN", pgDSN)
	dbPath = getenv("FEED_DB_PATH", dbPath)
	profile = getenv("FEED_PROFILE", profile)

	bwBufferEvents = getenvInt("BW_BUFFER_EVENTS", bwBufferEvents)
	bwBufferWindow = getenvDuration("BW_BUFFER_WINDOW", bwBufferWindow)
	bwSmoothStreak = getenvInt("BW_SMOOTH_STREAK", bwSmoothStreak)
	bwSmoothAfter = getenvDuration("BW_SMOOTH_AFTER", bwSmoothAfter)

	logFilePath = getenv("LOG_FILE", logFilePath)
	logAllowRegex = getenv("LOG_ALLOW", logAllowRegex)
	logDenyRegex = getenv("LOG_DENY", logDenyRegex)
	logDedupWin = getenvDuration("LOG_DEDUP_WINDOW", logDedupWin)
}

// getters
func ListenAddr() string               { return listenAddr }
func SourceBaseURL() string            { return sourceBaseURL }
func PageSize() int                    { return pageSize }
func FetchTimeout() time.Duration      { return fetchTimeout }
func FetchRPS() float64                { return fetchRPS }
func FetchBurst() int                  { return fetchBurst }
func PoolMax() int                     { return poolMax }
func WindowMax() int                   { return windowMax }
func PreloadBack() int                 { return preloadBack }
func PreloadForward() int              { return preloadForward }
func PreloadDebounce() time.Duration   { return preloadDebounce }
func RetryDelay() time.Duration        { return retryDelay }
func ConstructTimeout() time.Duration  { return constructTimeout }
func PrebufferBytes() int64            { return prebufferBytes }
func ResumeTTL() time.Duration         { return resumeTTL }
func SeenMax() int                     { return seenMax }
func PgDSN() string                    { return pgDSN }
func DBPath() string                   { return dbPath }
func Profile() string                  { return profile }
func BwBufferEvents() int              { return bwBufferEvents }
func BwBufferWindow() time.Duration    { return bwBufferWindow }
func BwSmoothStreak() int              { return bwSmoothStreak }
func BwSmoothAfter() time.Duration     { return bwSmoothAfter }
func LogFilePath() string              { return logFilePath }
func LogAllowRegex() string            { return logAllowRegex }
func LogDenyRegex() string             { return logDenyRegex }
func LogDedupWindow() time.Duration    { return logDedupWin }

// helpers
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
func getenvInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
