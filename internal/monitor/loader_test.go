package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefinitions(t *testing.T) {
	defs, err := ParseDefinitions([]byte(`
- name: api
  kind: http
  locator: http://localhost:8080/healthz
  critical: true
- name: postgres
  kind: container
  locator: pg-main
  scope: local
- name: edge
  kind: http
  locator: https://edge.example.com/ping
  scope: remote
`))
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, ScopeLocal, defs[0].Scope, "scope defaults to local")
	assert.True(t, defs[0].Critical)
	assert.Equal(t, ScopeRemote, defs[2].Scope)
}

func TestParseDefinitionsFailsFast(t *testing.T) {
	cases := map[string]string{
		"mapping not array": `services: [{name: a, kind: http, locator: x}]`,
		"missing name":      `[{kind: http, locator: x}]`,
		"missing locator":   `[{name: a, kind: http}]`,
		"unknown kind":      `[{name: a, kind: systemd, locator: x}]`,
		"unknown scope":     `[{name: a, kind: http, locator: x, scope: global}]`,
		"duplicate name":    `[{name: a, kind: http, locator: x}, {name: a, kind: http, locator: y}]`,
	}
	for label, input := range cases {
		_, err := ParseDefinitions([]byte(input))
		assert.Error(t, err, label)
	}
}
