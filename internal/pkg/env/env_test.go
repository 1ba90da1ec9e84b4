package env

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	Env = map[string]string{"NUTRINEA_TEST_KEY": "from-file"}
	t.Cleanup(func() { Env = nil })
	t.Setenv("NUTRINEA_TEST_KEY", "from-os")

	assert.Equal(t, "from-file", GetEnv("NUTRINEA_TEST_KEY", "default"))
}

func TestGetEnvFallsBackToOSAndDefault(t *testing.T) {
	Env = map[string]string{}
	t.Cleanup(func() { Env = nil })
	t.Setenv("NUTRINEA_TEST_OS_ONLY", "from-os")
	_ = os.Unsetenv("NUTRINEA_TEST_MISSING")

	assert.Equal(t, "from-os", GetEnv("NUTRINEA_TEST_OS_ONLY", "default"))
	assert.Equal(t, "default", GetEnv("NUTRINEA_TEST_MISSING", "default"))
}

func TestIsDev(t *testing.T) {
	Env = map[string]string{"APP_ENV": "dev"}
	t.Cleanup(func() { Env = nil })
	assert.True(t, IsDev())

	Env["APP_ENV"] = "prod"
	assert.False(t, IsDev())
}
