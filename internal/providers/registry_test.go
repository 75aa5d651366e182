package providers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	logger := zerolog.Nop()
	client := NewWebhookClient(WebhookConfig{}, &logger)

	registry := NewRegistry()
	registry.Register("webhook", client)
	registry.Register("outlook", client)

	got, err := registry.ClientFor("webhook")
	require.NoError(t, err)
	assert.Equal(t, client, got)

	_, err = registry.ClientFor("caldav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no client registered for provider "caldav"`)

	assert.ElementsMatch(t, []string{"webhook", "outlook"}, registry.Providers())
}
