package config

import (
    "errors"
    "os"
    "path/filepath"
    "strconv"
    "strings"
    "time"

    "gopkg.in/yaml.v3"
)

const (
    SourceGviz      = "gviz"
    SourceSheetsAPI = "sheets"

    SessionFile  = "file"
    SessionRedis = "redis"

    appName = "sheetdash"
)

type UserConfig struct {
    Username     string `yaml:"username"`
    PasswordHash string `yaml:"passwordHash"` // bcrypt hash
}

type SourceConfig struct {
    Kind            string        `yaml:"kind"` // "gviz" | "sheets"
    URL             string        `yaml:"url"`  // full export URL (gviz) or API endpoint override (sheets)
    SheetID         string        `yaml:"sheetId"`
    SheetName       string        `yaml:"sheetName"`
    Range           string        `yaml:"range"`
    CredentialsFile string        `yaml:"credentialsFile"`
    APIKey          string        `yaml:"apiKey"`
    Timeout         time.Duration `yaml:"timeout"` // 0 = no timeout
}

type RefreshConfig struct {
    Interval time.Duration `yaml:"interval"`
}

type RedisConfig struct {
    Addr     string `yaml:"addr"`
    Password string `yaml:"password"`
    DB       int    `yaml:"db"`
}

type SessionConfig struct {
    Backend string      `yaml:"backend"` // "file" | "redis"
    Path    string      `yaml:"path"`
    Key     string      `yaml:"key"`
    Redis   RedisConfig `yaml:"redis"`
}

type LoggingConfig struct {
    Level string `yaml:"level"`
}

type UIConfig struct {
    ShowRefreshLog bool   `yaml:"showRefreshLog"`
    RefreshLogMax  int    `yaml:"refreshLogMax"`
    Notice         string `yaml:"notice"` // markdown
}

type Config struct {
    Listen   string        `yaml:"listen"`
    Timezone string        `yaml:"timezone"`
    Source   SourceConfig  `yaml:"source"`
    Refresh  RefreshConfig `yaml:"refresh"`
    Session  SessionConfig `yaml:"session"`
    Logging  LoggingConfig `yaml:"logging"`
    UI       UIConfig      `yaml:"ui"`
    Users    []UserConfig  `yaml:"users"`
}

func Default() *Config {
    return &Config{
        Source: SourceConfig{
            Kind:      SourceGviz,
            SheetName: "Master",
            Range:     "A1:P",
        },
        Refresh: RefreshConfig{Interval: 60 * time.Second},
        Session: SessionConfig{
            Backend: SessionFile,
            Path:    defaultSessionPath(),
            Key:     "taskDashboardUserEmail",
        },
        Logging: LoggingConfig{Level: "info"},
        UI:      UIConfig{ShowRefreshLog: true, RefreshLogMax: 200},
        Users:   []UserConfig{},
    }
}

func defaultSessionPath() string {
    if dir, err := os.UserConfigDir(); err == nil && dir != "" {
        return filepath.Join(dir, appName, "session.yaml")
    }
    return "session.yaml"
}

// Load reads an optional YAML file. An empty path means config.yaml; a
// missing file yields the defaults. Environment overrides apply last.
func Load(path string) (*Config, error) {
    cfg := Default()
    if path == "" {
        path = "config.yaml"
    }
    data, err := os.ReadFile(path)
    if err != nil {
        if errors.Is(err, os.ErrNotExist) {
            applyEnvOverrides(cfg)
            return cfg, nil
        }
        return nil, err
    }
    if err := yaml.Unmarshal(data, cfg); err != nil {
        return nil, err
    }
    applyEnvOverrides(cfg)
    return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
    if v := os.Getenv("SHEETDASH_TIMEZONE"); v != "" {
        cfg.Timezone = v
    }
    if v := os.Getenv("SHEETDASH_SOURCE_KIND"); v != "" {
        cfg.Source.Kind = v
    }
    if v := os.Getenv("SHEETDASH_SOURCE_URL"); v != "" {
        cfg.Source.URL = v
    }
    if v := os.Getenv("SHEETDASH_SHEET_ID"); v != "" {
        cfg.Source.SheetID = v
    }
    if v := os.Getenv("SHEETDASH_SHEET_NAME"); v != "" {
        cfg.Source.SheetName = v
    }
    if v := os.Getenv("SHEETDASH_CREDENTIALS_FILE"); v != "" {
        cfg.Source.CredentialsFile = v
    }
    if v := os.Getenv("SHEETDASH_API_KEY"); v != "" {
        cfg.Source.APIKey = v
    }
    if v := os.Getenv("SHEETDASH_REFRESH_INTERVAL"); v != "" {
        if d, err := time.ParseDuration(v); err == nil && d > 0 {
            cfg.Refresh.Interval = d
        }
    }
    if v := os.Getenv("SHEETDASH_SESSION_BACKEND"); v != "" {
        cfg.Session.Backend = v
    }
    if v := os.Getenv("SHEETDASH_SESSION_PATH"); v != "" {
        cfg.Session.Path = v
    }
    if v := os.Getenv("SHEETDASH_REDIS_ADDR"); v != "" {
        cfg.Session.Redis.Addr = v
    }
    if v := os.Getenv("SHEETDASH_REDIS_PASSWORD"); v != "" {
        cfg.Session.Redis.Password = v
    }
    if v := os.Getenv("SHEETDASH_LOG_LEVEL"); v != "" {
        cfg.Logging.Level = v
    }
    if v := os.Getenv("SHEETDASH_UI_SHOW_REFRESHLOG"); v != "" {
        cfg.UI.ShowRefreshLog = parseBool(v, cfg.UI.ShowRefreshLog)
    }
    if v := os.Getenv("SHEETDASH_REFRESHLOG_MAX"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            cfg.UI.RefreshLogMax = n
        }
    }
}

func parseBool(s string, def bool) bool {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "1", "true", "yes", "on":
        return true
    case "0", "false", "no", "off":
        return false
    default:
        return def
    }
}

// Location resolves the configured timezone; empty means the process local zone.
func (c *Config) Location() (*time.Location, error) {
    if strings.TrimSpace(c.Timezone) == "" {
        return time.Local, nil
    }
    return time.LoadLocation(c.Timezone)
}
