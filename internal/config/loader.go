package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Draft store backends.
const (
	DraftStoreMemory = "memory"
	DraftStoreRedis  = "redis"
)

// DefaultAllowedExtensions lists the document types accepted at the documents step.
var DefaultAllowedExtensions = []string{"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "jpg", "jpeg", "png"}

// Config captures environment driven configuration values for the booking service.
type Config struct {
	HTTPPort   int
	SQLitePath string

	DraftTTL      time.Duration
	DraftStore    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	UploadDir           string
	UploadMaxBytes      int64
	UploadSweepSchedule string
	UploadMaxAge        time.Duration
	AllowedExtensions   []string

	MinParticipants int
	MaxParticipants int
	CookieSecure    bool
}

// Load parses configuration values from the current process environment.
//
// A .env file (or the file named by BOOKING_ENV_FILE) is read first when it
// exists; variables already present in the environment take precedence.
// Defaults apply to optional fields, and every missing or malformed key is
// reported at once.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPPort:            8080,
		SQLitePath:          "booking.db",
		DraftTTL:            time.Hour,
		DraftStore:          DraftStoreMemory,
		UploadMaxBytes:      10 << 20,
		UploadSweepSchedule: "@every 15m",
		UploadMaxAge:        2 * time.Hour,
		AllowedExtensions:   append([]string(nil), DefaultAllowedExtensions...),
		MinParticipants:     8,
		MaxParticipants:     12,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := env("HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, key("HTTP_PORT"))
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := env("SQLITE_PATH"); path != "" {
		cfg.SQLitePath = path
	}

	parseDuration("DRAFT_TTL", &cfg.DraftTTL, &invalid)
	parseDuration("UPLOAD_MAX_AGE", &cfg.UploadMaxAge, &invalid)
	// Uploads are refreshed on every draft save, so an idle draft expires before its files.
	if cfg.UploadMaxAge <= cfg.DraftTTL {
		invalid = append(invalid, key("UPLOAD_MAX_AGE"))
	}
	if schedule := env("UPLOAD_SWEEP_SCHEDULE"); schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			invalid = append(invalid, key("UPLOAD_SWEEP_SCHEDULE"))
		} else {
			cfg.UploadSweepSchedule = schedule
		}
	}

	if store := strings.ToLower(env("DRAFT_STORE")); store != "" {
		switch store {
		case DraftStoreMemory, DraftStoreRedis:
			cfg.DraftStore = store
		default:
			invalid = append(invalid, key("DRAFT_STORE"))
		}
	}

	cfg.RedisAddr = env("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv(key("REDIS_PASSWORD"))
	if cfg.DraftStore == DraftStoreRedis && cfg.RedisAddr == "" {
		missing = append(missing, key("REDIS_ADDR"))
	}
	if dbValue := env("REDIS_DB"); dbValue != "" {
		db, err := strconv.Atoi(dbValue)
		if err != nil || db < 0 {
			invalid = append(invalid, key("REDIS_DB"))
		} else {
			cfg.RedisDB = db
		}
	}

	if dir := env("UPLOAD_DIR"); dir == "" {
		missing = append(missing, key("UPLOAD_DIR"))
	} else {
		cfg.UploadDir = dir
	}

	if sizeValue := env("UPLOAD_MAX_BYTES"); sizeValue != "" {
		size, err := strconv.ParseInt(sizeValue, 10, 64)
		if err != nil || size <= 0 {
			invalid = append(invalid, key("UPLOAD_MAX_BYTES"))
		} else {
			cfg.UploadMaxBytes = size
		}
	}

	if extValue := env("ALLOWED_EXTENSIONS"); extValue != "" {
		var extensions []string
		for _, ext := range strings.Split(extValue, ",") {
			ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
			if ext != "" {
				extensions = append(extensions, ext)
			}
		}
		if len(extensions) == 0 {
			invalid = append(invalid, key("ALLOWED_EXTENSIONS"))
		} else {
			cfg.AllowedExtensions = extensions
		}
	}

	parseCount("MIN_PARTICIPANTS", &cfg.MinParticipants, &invalid)
	parseCount("MAX_PARTICIPANTS", &cfg.MaxParticipants, &invalid)
	if cfg.MinParticipants > cfg.MaxParticipants {
		invalid = append(invalid, key("MIN_PARTICIPANTS"))
	}

	if secureValue := env("COOKIE_SECURE"); secureValue != "" {
		secure, err := strconv.ParseBool(secureValue)
		if err != nil {
			invalid = append(invalid, key("COOKIE_SECURE"))
		} else {
			cfg.CookieSecure = secure
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("variables d'environnement obligatoires manquantes : %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("valeurs de variables d'environnement invalides : %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

const envPrefix = "BOOKING_"

func key(name string) string {
	return envPrefix + name
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(key(name)))
}

func parseDuration(name string, dst *time.Duration, invalid *[]string) {
	value := env(name)
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		*invalid = append(*invalid, key(name))
		return
	}
	*dst = d
}

func parseCount(name string, dst *int, invalid *[]string) {
	value := env(name)
	if value == "" {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		*invalid = append(*invalid, key(name))
		return
	}
	*dst = n
}

func loadDotEnv() error {
	path := env("ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("lecture du fichier %s : %w", path, err)
	}
	return nil
}
