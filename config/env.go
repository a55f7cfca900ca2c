package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

const (
	defaultAppEnv        = "local"
	defaultLogLevel      = "info"
	defaultLogMongoDB    = "patternbus"
	defaultLogMongoColl  = "dispatch_log"
	defaultBusSource     = "unknown"
	defaultRedisAddr     = "localhost:6379"
	defaultMirrorChannel = "patternbus.events"
	defaultMirrorWorkers = 4
	defaultMetricsAddr   = ":9090"
	defaultConfigPath    = "config/app.json"
	defaultDotEnvPath    = ".env"
)

var (
	loadOnce sync.Once
	loadErr  error

	mu     sync.RWMutex
	values = defaultValues()
)

// Load reads config/app.json and .env once. Process environment variables
// win over both files. Missing files are not an error.
func Load() error {
	loadOnce.Do(func() {
		loadErr = load(defaultConfigPath, defaultDotEnvPath)
	})
	return loadErr
}

// LoadFrom replaces the current values with defaults merged with the given
// JSON config file, dotenv file and the process environment, in that order.
// After LoadFrom, Load no longer reads the default paths.
func LoadFrom(configPath, envPath string) error {
	loadOnce.Do(func() {})
	return load(configPath, envPath)
}

func load(configPath, envPath string) error {
	loaded := defaultValues()

	if err := mergeJSONConfig(configPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	if err := mergeDotEnv(envPath, loaded); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	}

	mergeProcessEnv(loaded)

	mu.Lock()
	values = loaded
	mu.Unlock()

	return nil
}

func defaultValues() map[string]string {
	return map[string]string{
		"APP_ENV":              defaultAppEnv,
		"LOG_LEVEL":            defaultLogLevel,
		"LOG_MONGO_URI":        "",
		"LOG_MONGO_DB":         defaultLogMongoDB,
		"LOG_MONGO_COLLECTION": defaultLogMongoColl,
		"BUS_SOURCE":           defaultBusSource,
		"REDIS_ADDR":           defaultRedisAddr,
		"REDIS_PASSWORD":       "",
		"MIRROR_CHANNEL":       defaultMirrorChannel,
		"MIRROR_WORKERS":       strconv.Itoa(defaultMirrorWorkers),
		"METRICS_ADDR":         defaultMetricsAddr,
	}
}

func AppEnv() string {
	_ = Load()
	return get("APP_ENV", defaultAppEnv)
}

func LogLevel() string {
	_ = Load()
	return strings.ToLower(get("LOG_LEVEL", defaultLogLevel))
}

// ── Logging sinks ────────────────────────────────────────────────────────────

func LogMongoURI() string        { _ = Load(); return get("LOG_MONGO_URI", "") }
func LogMongoDB() string         { _ = Load(); return get("LOG_MONGO_DB", defaultLogMongoDB) }
func LogMongoCollection() string { _ = Load(); return get("LOG_MONGO_COLLECTION", defaultLogMongoColl) }

// ── Bus ──────────────────────────────────────────────────────────────────────

// BusSource is stamped on events fired without a source.
func BusSource() string {
	_ = Load()
	return get("BUS_SOURCE", defaultBusSource)
}

// ── Redis mirror ─────────────────────────────────────────────────────────────

func RedisAddr() string     { _ = Load(); return get("REDIS_ADDR", defaultRedisAddr) }
func RedisPassword() string { _ = Load(); return get("REDIS_PASSWORD", "") }
func MirrorChannel() string { _ = Load(); return get("MIRROR_CHANNEL", defaultMirrorChannel) }

// MirrorWorkers is the size of the mirror publish pool; invalid or
// non-positive values fall back to the default.
func MirrorWorkers() int {
	_ = Load()
	n, err := strconv.Atoi(get("MIRROR_WORKERS", ""))
	if err != nil || n <= 0 {
		return defaultMirrorWorkers
	}
	return n
}

// ── Admin server ─────────────────────────────────────────────────────────────

func MetricsAddr() string {
	_ = Load()
	return get("METRICS_ADDR", defaultMetricsAddr)
}

func mergeJSONConfig(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(file).Decode(&raw); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	for key, val := range raw {
		var s string
		switch v := val.(type) {
		case string:
			s = v
		case float64:
			s = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(v)
		default:
			continue
		}

		k := strings.ToUpper(strings.TrimSpace(key))
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(s)
	}

	return nil
}

func mergeDotEnv(path string, out map[string]string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}

		key := strings.ToUpper(strings.TrimSpace(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		value = strings.Trim(value, `"'`)
		if key == "" {
			continue
		}
		out[key] = value
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	return nil
}

// mergeProcessEnv overrides known keys with set environment variables.
func mergeProcessEnv(out map[string]string) {
	for key := range defaultValues() {
		if v, ok := os.LookupEnv(key); ok {
			out[key] = strings.TrimSpace(v)
		}
	}
}

func get(key, fallback string) string {
	mu.RLock()
	defer mu.RUnlock()

	if value := strings.TrimSpace(values[key]); value != "" {
		return value
	}

	return fallback
}

// Get reads any config key by name with an optional fallback.
func Get(key, fallback string) string {
	_ = Load()
	return get(key, fallback)
}
