package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"thumbcache/internal/logging"
	"thumbcache/internal/memory"
	"thumbcache/internal/thumbnail"
	"thumbcache/internal/workers"

	"github.com/docker/go-units"
	"github.com/gorilla/mux"
	"github.com/pelletier/go-toml/v2"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// EnvConfigFile names the optional TOML configuration file.
const EnvConfigFile = "THUMBCACHE_CONFIG"

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	MediaDir            string `toml:"media_dir"`
	CacheHome           string `toml:"cache_home"`
	DatabasePath        string `toml:"database_path"`
	LockDir             string `toml:"lock_dir"`
	CrossProcessLocking bool   `toml:"cross_process_locking"`
	MaxSourceSize       string `toml:"max_source_size"`
	Workers             int    `toml:"workers"`
	Port                string `toml:"port"`
	MetricsEnabled      bool   `toml:"metrics_enabled"`
	LogHealthChecks     bool   `toml:"log_health_checks"`
	Software            string `toml:"software"`
	IndexInterval       string `toml:"index_interval"`
	IndexPollInterval   string `toml:"index_poll_interval"`

	// Derived
	MaxSourceBytes int64  `toml:"-"`
	ThumbnailDir   string `toml:"-"`
	ConfigFile     string `toml:"-"`

	crossProcess *bool
	metrics      *bool
	healthLogs   *bool
}

// fileConfig mirrors Config with pointers so an explicit false or zero in the
// TOML file can be told apart from an absent key.
type fileConfig struct {
	MediaDir            *string `toml:"media_dir"`
	CacheHome           *string `toml:"cache_home"`
	DatabasePath        *string `toml:"database_path"`
	LockDir             *string `toml:"lock_dir"`
	CrossProcessLocking *bool   `toml:"cross_process_locking"`
	MaxSourceSize       *string `toml:"max_source_size"`
	Workers             *int    `toml:"workers"`
	Port                *string `toml:"port"`
	MetricsEnabled      *bool   `toml:"metrics_enabled"`
	LogHealthChecks     *bool   `toml:"log_health_checks"`
	Software            *string `toml:"software"`
	IndexInterval       *string `toml:"index_interval"`
	IndexPollInterval   *string `toml:"index_poll_interval"`
}

// LoadConfig builds the configuration from defaults, the optional TOML file
// named by THUMBCACHE_CONFIG, then environment variables, and logs it.
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	config, err := Resolve()
	if err != nil {
		return nil, err
	}

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	if config.ConfigFile != "" {
		logging.Info("  Config file:           %s", config.ConfigFile)
	}
	logging.Info("  MEDIA_DIR:             %s", config.MediaDir)
	logging.Info("  CACHE_HOME:            %s", config.CacheHome)
	logging.Info("  THUMBNAIL_DIR:         %s", config.ThumbnailDir)
	logging.Info("  DATABASE_PATH:         %s", config.DatabasePath)
	logging.Info("  CROSS_PROCESS_LOCKING: %v", config.CrossProcessLocking)
	if config.CrossProcessLocking {
		logging.Info("  LOCK_DIR:              %s", config.LockDir)
	}
	if config.MaxSourceBytes > 0 {
		logging.Info("  MAX_SOURCE_SIZE:       %s", memory.FormatBytes(config.MaxSourceBytes))
	} else {
		logging.Info("  MAX_SOURCE_SIZE:       unlimited")
	}
	logging.Info("  THUMBNAIL_WORKERS:     %d", config.Workers)
	logging.Info("  PORT:                  %s", config.Port)
	logging.Info("  METRICS_ENABLED:       %v", config.MetricsEnabled)
	logging.Info("  LOG_HEALTH_CHECKS:     %v", config.LogHealthChecks)
	logging.Info("  INDEX_INTERVAL:        %s", config.IndexInterval)
	logging.Info("  INDEX_POLL_INTERVAL:   %s", config.IndexPollInterval)
	logging.Info("  LOG_LEVEL:             %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	dbDir := filepath.Dir(config.DatabasePath)
	if err := ensureDirectory(dbDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	if err := testWriteAccess(dbDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable: %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	if info, err := os.Stat(config.MediaDir); err != nil || !info.IsDir() {
		logging.Warn("  Media directory %s is not accessible; HTTP requests will return 404", config.MediaDir)
	}

	if config.CrossProcessLocking {
		if err := ensureDirectory(config.LockDir, "lock"); err != nil {
			logging.Warn("  Lock directory issue: %v", err)
			logging.Warn("  Falling back to in-process locking")
			config.CrossProcessLocking = false
		}
	}

	return config, nil
}

// Resolve computes the configuration without logging or touching the
// filesystem beyond reading the TOML file.
func Resolve() (*Config, error) {
	c := &Config{}

	if path := os.Getenv(EnvConfigFile); path != "" {
		fc, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		c.merge(fc)
		c.ConfigFile = path
	}

	c.loadEnv()
	c.loadDefaults()

	if err := c.finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &fc, nil
}

// merge copies every key present in the file.
func (c *Config) merge(fc *fileConfig) {
	setString(&c.MediaDir, fc.MediaDir)
	setString(&c.CacheHome, fc.CacheHome)
	setString(&c.DatabasePath, fc.DatabasePath)
	setString(&c.LockDir, fc.LockDir)
	setString(&c.MaxSourceSize, fc.MaxSourceSize)
	setString(&c.Port, fc.Port)
	setString(&c.Software, fc.Software)
	setString(&c.IndexInterval, fc.IndexInterval)
	setString(&c.IndexPollInterval, fc.IndexPollInterval)
	if fc.Workers != nil {
		c.Workers = *fc.Workers
	}

	// Booleans default to true; keep them as pointers until defaults apply.
	c.crossProcess = fc.CrossProcessLocking
	c.metrics = fc.MetricsEnabled
	c.healthLogs = fc.LogHealthChecks
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv("MEDIA_DIR"); v != "" {
		c.MediaDir = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("THUMBCACHE_LOCK_DIR"); v != "" {
		c.LockDir = v
	}
	if v := os.Getenv("MAX_SOURCE_SIZE"); v != "" {
		c.MaxSourceSize = v
	}
	if v := os.Getenv(workers.EnvOverride); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers = n
		} else {
			logging.Warn("Invalid value for %s: %q, ignoring", workers.EnvOverride, v)
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("INDEX_INTERVAL"); v != "" {
		c.IndexInterval = v
	}
	if v := os.Getenv("INDEX_POLL_INTERVAL"); v != "" {
		c.IndexPollInterval = v
	}
	c.crossProcess = getEnvBool("CROSS_PROCESS_LOCKING", c.crossProcess)
	c.metrics = getEnvBool("METRICS_ENABLED", c.metrics)
	c.healthLogs = getEnvBool("LOG_HEALTH_CHECKS", c.healthLogs)
}

func (c *Config) loadDefaults() {
	// XDG_CACHE_HOME is consulted here, so cache_home in the file takes precedence.
	if c.CacheHome == "" {
		c.CacheHome = thumbnail.DefaultCacheHome()
	}
	if c.MediaDir == "" {
		c.MediaDir = defaultMediaDir()
	}
	appDir := filepath.Join(c.CacheHome, "thumbcache")
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(appDir, "images.db")
	}
	if c.LockDir == "" {
		c.LockDir = filepath.Join(appDir, "locks")
	}
	if c.Workers <= 0 {
		c.Workers = workers.ForCPU(8)
	}
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.Software == "" {
		c.Software = thumbnail.DefaultSoftware
	}
	if c.IndexInterval == "" {
		c.IndexInterval = "30m"
	}
	if c.IndexPollInterval == "" {
		c.IndexPollInterval = "1m"
	}
	c.CrossProcessLocking = boolOr(c.crossProcess, true)
	c.MetricsEnabled = boolOr(c.metrics, true)
	c.LogHealthChecks = boolOr(c.healthLogs, true)
}

func defaultMediaDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, "Pictures")
}

func (c *Config) finalize() error {
	var err error
	if c.MediaDir, err = filepath.Abs(c.MediaDir); err != nil {
		return fmt.Errorf("resolve media_dir: %w", err)
	}
	if c.CacheHome, err = filepath.Abs(c.CacheHome); err != nil {
		return fmt.Errorf("resolve cache_home: %w", err)
	}
	if c.DatabasePath, err = filepath.Abs(c.DatabasePath); err != nil {
		return fmt.Errorf("resolve database_path: %w", err)
	}
	if c.LockDir, err = filepath.Abs(c.LockDir); err != nil {
		return fmt.Errorf("resolve lock_dir: %w", err)
	}
	c.ThumbnailDir = filepath.Join(c.CacheHome, "thumbnails")

	if c.MaxSourceSize != "" {
		n, err := units.RAMInBytes(c.MaxSourceSize)
		if err != nil {
			return fmt.Errorf("invalid max_source_size %q: %w", c.MaxSourceSize, err)
		}
		if n < 0 {
			return fmt.Errorf("invalid max_source_size %q: negative", c.MaxSourceSize)
		}
		c.MaxSourceBytes = n
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if d, err := time.ParseDuration(c.IndexInterval); err != nil || d < 0 {
		return fmt.Errorf("invalid index_interval %q", c.IndexInterval)
	}
	if d, err := time.ParseDuration(c.IndexPollInterval); err != nil || d < 0 {
		return fmt.Errorf("invalid index_poll_interval %q", c.IndexPollInterval)
	}
	return nil
}

// IndexIntervalDuration returns the full re-index period. Zero disables it.
func (c *Config) IndexIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.IndexInterval)
	return d
}

// IndexPollIntervalDuration returns the change detection period. Zero
// disables it.
func (c *Config) IndexPollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.IndexPollInterval)
	return d
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration, images int) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v (%d images indexed)", duration, images)
}

// LogMemoryConfig logs the outcome of memory.ConfigureFromEnv.
func LogMemoryConfig(result memory.ConfigResult) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("MEMORY")
	logging.Info("------------------------------------------------------------")
	if !result.Configured {
		logging.Info("  No memory limit configured (set MEMORY_LIMIT or GOMEMLIMIT)")
		return
	}
	logging.Info("  Source:      %s", result.Source)
	if result.ContainerLimit > 0 {
		logging.Info("  Limit:       %s", memory.FormatBytes(result.ContainerLimit))
		logging.Info("  Ratio:       %.2f", result.Ratio)
	}
	logging.Info("  GOMEMLIMIT:  %s", memory.FormatBytes(result.GoMemLimit))
}

// LogThumbnailInit logs the decoder setup.
func LogThumbnailInit(vipsAvailable bool, codecs []string, lockKind string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("THUMBNAIL CACHE")
	logging.Info("------------------------------------------------------------")
	if vipsAvailable {
		logging.Info("  [OK] libvips available")
	} else {
		logging.Warn("  libvips not available, using pure Go decoders")
	}
	logging.Info("  Codecs:   %s", strings.Join(codecs, ", "))
	logging.Info("  Locking:  %s", lockKind)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level.
func LogHTTPRoutes(router *mux.Router) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if !logging.IsDebugEnabled() {
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	logging.Debug("  Registered routes (%d total):", len(routes))

	groups := make(map[string][]RouteInfo)
	for _, route := range routes {
		prefix := getRouteGroup(route.Path)
		groups[prefix] = append(groups[prefix], route)
	}

	groupKeys := make([]string, 0, len(groups))
	for k := range groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	for _, group := range groupKeys {
		if group != "" {
			logging.Debug("  [%s]", group)
		} else {
			logging.Debug("  [root]")
		}
		for _, route := range groups[group] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("  Application:     http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:         http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("  Metrics:         DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
  _   _                     _                     _
 | |_| |__  _   _ _ __ ___ | |__   ___ __ _  ___| |__   ___
 | __| '_ \| | | | '_ ' _ \| '_ \ / __/ _' |/ __| '_ \ / _ \
 | |_| | | | |_| | | | | | | |_) | (_| (_| | (__| | | |  __/
  \__|_| |_|\__,_|_| |_| |_|_.__/ \___\__,_|\___|_| |_|\___|

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnvBool(key string, current *bool) *bool {
	value := os.Getenv(key)
	if value == "" {
		return current
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, ignoring", key, value)
		return current
	}
	return &parsed
}
