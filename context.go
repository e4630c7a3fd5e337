package main

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/meetsync/config"
	"github.com/maastricht-university/meetsync/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Root
	logger     *logrus.Logger
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Root, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Pipeline.LogLvl = strings.TrimSpace(*c.logLevelFlag)
		}
		logger, err := logging.New(logging.Options{
			Level:  cfg.Pipeline.LogLvl,
			Format: cfg.Pipeline.LogFormat,
		})
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) log() *logrus.Logger {
	if c.logger == nil {
		return logrus.StandardLogger()
	}
	return c.logger
}
