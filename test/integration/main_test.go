//go:build integration

package integration

import (
	"os"
	"testing"

	"github.com/rafflehub/platform/test/integration/testutil"
)

func TestMain(m *testing.M) {
	code := m.Run()
	testutil.Shutdown()
	os.Exit(code)
}
