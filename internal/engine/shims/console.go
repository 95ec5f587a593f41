package shims

import "go.uber.org/zap"

// Console receives script console output and writes it to zap. It
// satisfies the goja_nodejs console printer interface.
type Console struct {
	logger *zap.Logger
}

// NewConsole creates a console printer
func NewConsole(logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{logger: logger}
}

func (c *Console) Log(s string)   { c.logger.Info(s) }
func (c *Console) Warn(s string)  { c.logger.Warn(s) }
func (c *Console) Error(s string) { c.logger.Error(s) }
