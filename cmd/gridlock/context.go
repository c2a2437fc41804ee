package main

import (
	"strings"
	"sync"

	"gridlock/internal/api"
	"gridlock/internal/config"
	"gridlock/internal/logging"
	"gridlock/internal/store"
)

// commandContext lazily loads configuration and opens the store for
// commands that need it. The CLI works directly against the database; the
// daemon notices new work on its next poll.
type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(cfg, st)
}

func (c *commandContext) withService(fn func(*config.Config, *store.Store, *api.Service) error) error {
	return c.withStore(func(cfg *config.Config, st *store.Store) error {
		return fn(cfg, st, api.NewService(st, cfg, logging.NewNop()))
	})
}
