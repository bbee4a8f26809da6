//go:build lua

package executor

import (
	"github.com/isdmx/scriptbox/engine"
	"github.com/isdmx/scriptbox/engine/lua"
)

// readinessProbe must evaluate to 2 on a healthy backend.
const readinessProbe = "return 1 + 1"

func newBackend() engine.Adapter {
	return lua.New()
}
