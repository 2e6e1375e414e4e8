package testlog

import (
	"testing"

	"github.com/polycall-go/polycall/internal/logging"
)

func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	logging.L().Debug().Str("test", t.Name()).Msg("test start")
}
