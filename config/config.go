// Package config loads settings from defaults, an optional TOML file and the
// environment, in that order of precedence.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/redis/go-redis/v9"
)

// EnvConfigFile names the environment variable holding the config file path.
const EnvConfigFile = "KANBAN_CONFIG"

// Config holds every setting of the board, the collection server and the
// storage tooling.
type Config struct {
	APIURL      string        `toml:"api_url"`
	IDMode      string        `toml:"id_mode"`
	HTTPTimeout time.Duration `toml:"http_timeout"`
	BoardAddr   string        `toml:"board_addr"`

	BackendAddr             string        `toml:"backend_addr"`
	BackendStore            string        `toml:"backend_store"`
	BackendFile             string        `toml:"backend_file"`
	SQLitePath              string        `toml:"sqlite_path"`
	StorageConnectionString string        `toml:"storage_connection_string"`
	TasksTable              string        `toml:"tasks_table"`
	ChangeQueue             string        `toml:"change_queue"`
	RedisConnectionString   string        `toml:"redis_connection_string"`
	CacheTTL                time.Duration `toml:"cache_ttl"`
	DeduperTTL              time.Duration `toml:"deduper_ttl"`

	Debug     bool   `toml:"debug"`
	LogFormat string `toml:"log_format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		APIURL:       "http://localhost:3001/tasks",
		IDMode:       "server",
		BoardAddr:    ":8080",
		BackendAddr:  ":3001",
		BackendStore: "file",
		BackendFile:  "db.json",
		SQLitePath:   "kanban.sqlite",
		TasksTable:   "tasks",
		CacheTTL:     time.Minute,
		DeduperTTL:   24 * time.Hour,
		LogFormat:    "text",
	}
}

// Load builds the configuration. path overrides KANBAN_CONFIG; when both are
// empty no file is read.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		"KANBAN_API_URL":            &cfg.APIURL,
		"KANBAN_ID_MODE":            &cfg.IDMode,
		"BOARD_ADDR":                &cfg.BoardAddr,
		"BACKEND_ADDR":              &cfg.BackendAddr,
		"BACKEND_STORE":             &cfg.BackendStore,
		"BACKEND_FILE":              &cfg.BackendFile,
		"BACKEND_SQLITE_PATH":       &cfg.SQLitePath,
		"STORAGE_CONNECTION_STRING": &cfg.StorageConnectionString,
		"TASKS_TABLE":               &cfg.TasksTable,
		"CHANGE_QUEUE":              &cfg.ChangeQueue,
		"REDIS_CONNECTION_STRING":   &cfg.RedisConnectionString,
		"LOG_FORMAT":                &cfg.LogFormat,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	durations := []struct {
		key      string
		dst      *time.Duration
		positive bool
	}{
		{"KANBAN_HTTP_TIMEOUT", &cfg.HTTPTimeout, false},
		{"CACHE_TTL", &cfg.CacheTTL, false},
		{"DEDUPER_TTL", &cfg.DeduperTTL, true},
	}
	for _, d := range durations {
		v, ok := lookup(d.key)
		if !ok || v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if parsed < 0 || (d.positive && parsed == 0) {
			return fmt.Errorf("invalid %s: must be greater than zero", d.key)
		}
		*d.dst = parsed
	}

	if v, ok := lookup("DEBUG"); ok && v != "" {
		dbg, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEBUG: %w", err)
		}
		cfg.Debug = dbg
	}
	return nil
}

// RedisOptions parses either a redis:// URL or an Azure style connection
// string ("host:port,password=...,ssl=True").
func RedisOptions(conn string) (*redis.Options, error) {
	if strings.TrimSpace(conn) == "" {
		return nil, errors.New("missing redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
