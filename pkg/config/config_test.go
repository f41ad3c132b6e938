package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Fail  bool   `yaml:"fail"`
	Extra string `yaml:"extra"`
}

func (s *sample) Validate() error {
	if s.Fail {
		return errors.New("asked to fail")
	}
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("GTSREG_TEST_NAME", "registry")
	p := writeConfig(t, "name: ${GTSREG_TEST_NAME}\nport: 9090\n")

	cfg := sample{Extra: "default"}
	require.NoError(t, Load(p, &cfg))
	assert.Equal(t, sample{Name: "registry", Port: 9090, Extra: "default"}, cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	var cfg sample
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_Validates(t *testing.T) {
	p := writeConfig(t, "fail: true\n")
	var cfg sample
	err := Load(p, &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "asked to fail")
}

func TestLoad_BadYAML(t *testing.T) {
	p := writeConfig(t, "port: [not a number\n")
	var cfg sample
	assert.Error(t, Load(p, &cfg))
}

func TestLoadOptional(t *testing.T) {
	cfg := sample{Name: "default"}
	require.NoError(t, LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &cfg))
	assert.Equal(t, "default", cfg.Name, "defaults lost")

	cfg.Fail = true
	assert.Error(t, LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &cfg), "missing file must still validate")

	p := writeConfig(t, "port: 1\n")
	cfg = sample{}
	require.NoError(t, LoadOptional(p, &cfg))
	assert.Equal(t, 1, cfg.Port)
}
