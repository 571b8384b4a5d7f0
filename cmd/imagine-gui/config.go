package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oukeidos/imagine/internal/api"
	"github.com/oukeidos/imagine/internal/logger"
	"github.com/oukeidos/imagine/internal/prefs"
	"github.com/oukeidos/imagine/internal/session"
	"github.com/oukeidos/imagine/internal/transport"
)

const (
	nsfwServer = "Server default"
	nsfwOn     = "Allow"
	nsfwOff    = "Block"
)

var nsfwChoices = []string{nsfwServer, nsfwOn, nsfwOff}

type AppConfig struct {
	AspectRatio   string
	Quantity      int
	Concurrent    int
	NSFW          string
	QualityFilter bool
	AutoSave      bool
	SaveDir       string
	Mode          transport.Mode
}

// preferenceStore is the part of fyne.Preferences the config uses.
type preferenceStore interface {
	prefs.Store
	StringWithFallback(key, fallback string) string
	IntWithFallback(key string, fallback int) int
	BoolWithFallback(key string, fallback bool) bool
	SetInt(key string, value int)
	SetBool(key string, value bool)
}

func defaultConfig() AppConfig {
	return AppConfig{
		AspectRatio:   api.DefaultAspectRatio,
		Concurrent:    api.MinConcurrent,
		NSFW:          nsfwServer,
		QualityFilter: true,
		Mode:          transport.ModeAuto,
	}
}

// normalizeConfig clamps values restored from preferences to what the
// server accepts.
func normalizeConfig(cfg AppConfig) AppConfig {
	if !api.IsAspectRatio(cfg.AspectRatio) {
		logger.Warn("Aspect ratio reset", "requested", cfg.AspectRatio, "effective", api.DefaultAspectRatio)
		cfg.AspectRatio = api.DefaultAspectRatio
	}
	if cfg.Quantity < api.MinQuantity {
		cfg.Quantity = api.MinQuantity
	}
	if cfg.Quantity > api.MaxQuantity {
		logger.Warn("Quantity clamped", "requested", cfg.Quantity, "effective", api.MaxQuantity)
		cfg.Quantity = api.MaxQuantity
	}
	if cfg.Concurrent < api.MinConcurrent {
		cfg.Concurrent = api.MinConcurrent
	}
	if cfg.Concurrent > api.MaxConcurrent {
		logger.Warn("Concurrency clamped", "requested", cfg.Concurrent, "effective", api.MaxConcurrent)
		cfg.Concurrent = api.MaxConcurrent
	}
	switch cfg.NSFW {
	case nsfwServer, nsfwOn, nsfwOff:
	default:
		cfg.NSFW = nsfwServer
	}
	if _, err := transport.ParseMode(string(cfg.Mode)); err != nil {
		cfg.Mode = transport.ModeAuto
	}
	cfg.SaveDir = strings.TrimSpace(cfg.SaveDir)
	return cfg
}

func loadConfig(p preferenceStore) AppConfig {
	def := defaultConfig()
	cfg := AppConfig{
		AspectRatio:   p.StringWithFallback("AspectRatio", def.AspectRatio),
		Quantity:      p.IntWithFallback("Quantity", def.Quantity),
		Concurrent:    p.IntWithFallback("Concurrent", def.Concurrent),
		NSFW:          p.StringWithFallback("NSFW", def.NSFW),
		QualityFilter: p.BoolWithFallback("QualityFilter", def.QualityFilter),
		AutoSave:      p.BoolWithFallback("AutoSave", false),
		SaveDir:       p.String("SaveDir"),
		Mode:          prefs.Mode(p),
	}
	return normalizeConfig(cfg)
}

func saveConfig(p preferenceStore, cfg AppConfig) {
	p.SetString("AspectRatio", cfg.AspectRatio)
	p.SetInt("Quantity", cfg.Quantity)
	p.SetInt("Concurrent", cfg.Concurrent)
	p.SetString("NSFW", cfg.NSFW)
	p.SetBool("QualityFilter", cfg.QualityFilter)
	p.SetBool("AutoSave", cfg.AutoSave)
	p.SetString("SaveDir", cfg.SaveDir)
	prefs.SetMode(p, cfg.Mode)
}

// sessionOptions turns the form state into run options.
func sessionOptions(cfg AppConfig, prompt string) (session.Options, error) {
	opts := session.DefaultOptions()
	opts.Prompt = prompt
	opts.AspectRatio = cfg.AspectRatio
	opts.Quantity = cfg.Quantity
	opts.Concurrent = cfg.Concurrent
	opts.QualityFilter = cfg.QualityFilter
	opts.Mode = cfg.Mode
	switch cfg.NSFW {
	case nsfwOn:
		v := true
		opts.NSFW = &v
	case nsfwOff:
		v := false
		opts.NSFW = &v
	}
	opts.Normalize()
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func parseQuantity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("quantity must be a number")
	}
	if n < api.MinQuantity || n > api.MaxQuantity {
		return 0, fmt.Errorf("quantity must be between %d and %d", api.MinQuantity, api.MaxQuantity)
	}
	return n, nil
}
