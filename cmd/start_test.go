package cmd

import (
	"net/http/httptest"
	"testing"

	"content-history/core/middleware/auth"
	"content-history/core/middleware/rayid"
	"content-history/core/server"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pingFeature struct{}

func (pingFeature) Name() string    { return "ping" }
func (pingFeature) IsEnabled() bool { return true }
func (pingFeature) Load(app fiber.Router) error {
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	return nil
}

func TestNewServer(t *testing.T) {
	app, loaded, err := newServer(server.Config{ApiKey: "secret"}, zap.NewNop(), pingFeature{})
	require.NoError(t, err)
	assert.Equal(t, []string{"ping"}, loaded)

	t.Run("Unauthorized", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get(rayid.Header))
	})

	t.Run("Authorized", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ping", nil)
		req.Header.Set(auth.Header, "secret")
		req.Header.Set(rayid.Header, "ray-7")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "ray-7", resp.Header.Get(rayid.Header))
	})
}
