package environment_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markegidiDev/ERP-ChatBot-LLM/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("LIVEBOT_TEST_STRING", " gemini ")
	assert.Equal(t, "gemini", environment.StringOr("LIVEBOT_TEST_STRING", "openrouter"))
	assert.Equal(t, "openrouter", environment.StringOr("LIVEBOT_TEST_STRING_MISSING", "openrouter"))
}

func TestRequiredString(t *testing.T) {
	t.Setenv("LIVEBOT_TEST_REQUIRED", "key")
	v, err := environment.RequiredString("LIVEBOT_TEST_REQUIRED")
	require.NoError(t, err)
	assert.Equal(t, "key", v)

	_, err = environment.RequiredString("LIVEBOT_TEST_REQUIRED_MISSING")
	assert.Error(t, err)
}

func TestTypedHelpers(t *testing.T) {
	t.Setenv("LIVEBOT_TEST_INT", "3")
	t.Setenv("LIVEBOT_TEST_BAD_INT", "three")
	t.Setenv("LIVEBOT_TEST_BOOL", "true")
	t.Setenv("LIVEBOT_TEST_DURATION", "2s")
	t.Setenv("LIVEBOT_TEST_TZ", "Europe/Rome")

	assert.Equal(t, 3, environment.IntOr("LIVEBOT_TEST_INT", 10))
	assert.Equal(t, 10, environment.IntOr("LIVEBOT_TEST_BAD_INT", 10), "bad input falls back")
	assert.True(t, environment.BoolOr("LIVEBOT_TEST_BOOL", false))
	assert.Equal(t, 2*time.Second, environment.DurationOr("LIVEBOT_TEST_DURATION", time.Minute))
	assert.Equal(t, "Europe/Rome", environment.LocationOr("LIVEBOT_TEST_TZ", time.UTC).String())
}

func TestStringSliceOr(t *testing.T) {
	t.Setenv("LIVEBOT_TEST_ROOMS", "!a:example.org, ,!b:example.org")
	assert.Equal(t, []string{"!a:example.org", "!b:example.org"}, environment.StringSliceOr("LIVEBOT_TEST_ROOMS", nil))
}
