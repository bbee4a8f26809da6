package hostfunc

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/isdmx/scriptbox/value"
)

// NewLogFunc returns a host function that writes its arguments, space
// separated, to logger at info level.
func NewLogFunc(logger *zap.Logger) Func {
	return func(_ context.Context, args []value.Value) (value.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		logger.Info("script log", zap.String("message", strings.Join(parts, " ")))
		return value.Nil(), nil
	}
}
