package main

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/maauso/tempo/internal/bootstrap"
	"github.com/maauso/tempo/internal/config"
	"github.com/maauso/tempo/internal/export"
	"github.com/maauso/tempo/internal/media"
)

// mediaEngine inspects sources and runs exports.
type mediaEngine interface {
	media.AssetLoader
	export.Engine
}

type commandContext struct {
	ffmpegFlag  *string
	ffprobeFlag *string
	verboseFlag *bool

	// newEngine builds the engine from the loaded config.
	newEngine func(*config.Config) mediaEngine

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(ffmpegFlag, ffprobeFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		ffmpegFlag:  ffmpegFlag,
		ffprobeFlag: ffprobeFlag,
		verboseFlag: verboseFlag,
		newEngine: func(cfg *config.Config) mediaEngine {
			return bootstrap.NewEngine(cfg)
		},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		if c.ffmpegFlag != nil && strings.TrimSpace(*c.ffmpegFlag) != "" {
			cfg.FFmpegPath = strings.TrimSpace(*c.ffmpegFlag)
		}
		if c.ffprobeFlag != nil && strings.TrimSpace(*c.ffprobeFlag) != "" {
			cfg.FFprobePath = strings.TrimSpace(*c.ffprobeFlag)
		}
		if c.verboseFlag != nil && *c.verboseFlag {
			cfg.LogLevel = "debug"
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) engine() (mediaEngine, *config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	return c.newEngine(cfg), cfg, nil
}

// logger writes to w so progress on stdout stays readable.
func (c *commandContext) logger(w io.Writer) *slog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return slog.New(slog.NewTextHandler(w, nil))
	}
	return cfg.NewLoggerTo(w)
}
