package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHelp(t *testing.T) {
	assert := assert.New(t)

	e := mustCreateEngine(t)
	defer e.Shutdown()

	rootCmd := newRootCmd(&Cli{e: e})

	rootCmd.SetArgs([]string{})
	assert.NoError(rootCmd.Execute())

	rootCmd.SetArgs([]string{"job"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"node-instance"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"process"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"process-instance"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"user-task"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"version"})
	assert.NoError(rootCmd.Execute())

	rootCmd.SetArgs([]string{"process", "create", "--help"})
	assert.NoError(rootCmd.Execute())
	rootCmd.SetArgs([]string{"job", "execute", "--help"})
	assert.NoError(rootCmd.Execute())
}

func TestOpenEngine(t *testing.T) {
	assert := assert.New(t)

	t.Run("mem", func(t *testing.T) {
		e, err := openEngine(engineFlags{backend: "mem"})
		assert.NoError(err)
		e.Shutdown()
	})

	t.Run("bolt", func(t *testing.T) {
		e, err := openEngine(engineFlags{backend: "bolt", boltPath: t.TempDir() + "/test.db", timeout: time.Second})
		assert.NoError(err)
		e.Shutdown()
	})

	t.Run("unsupported backend", func(t *testing.T) {
		_, err := openEngine(engineFlags{backend: "redis"})
		assert.ErrorContains(err, "unsupported backend")
	})

	t.Run("invalid encryption keys", func(t *testing.T) {
		_, err := openEngine(engineFlags{backend: "mem", encryptionKeys: "invalid"})
		assert.ErrorContains(err, "failed to create encryption")
	})

	t.Run("definitions dir", func(t *testing.T) {
		_, err := openEngine(engineFlags{backend: "mem", definitionsDir: t.TempDir() + "/not-existing"})
		assert.Error(err)
	})
}

func TestMapVariables(t *testing.T) {
	assert := assert.New(t)

	t.Run("set", func(t *testing.T) {
		variables, err := mapVariables([]string{`a={"encoding":"text","value":"x=y"}`}, false)
		assert.NoError(err)
		assert.Equal("text", variables["a"].Encoding)
		assert.Equal("x=y", variables["a"].Value)
	})

	t.Run("delete", func(t *testing.T) {
		variables, err := mapVariables([]string{"a=", "b=null"}, true)
		assert.NoError(err)
		assert.Len(variables, 2)
		assert.Nil(variables["a"])
		assert.Nil(variables["b"])
	})

	t.Run("deletion not allowed", func(t *testing.T) {
		_, err := mapVariables([]string{"a="}, false)
		assert.ErrorContains(err, "no value defined")
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := mapVariables([]string{"a"}, false)
		assert.ErrorContains(err, "name=data")
	})

	t.Run("invalid data", func(t *testing.T) {
		_, err := mapVariables([]string{"a={"}, false)
		assert.ErrorContains(err, "failed to unmarshal")
	})
}
