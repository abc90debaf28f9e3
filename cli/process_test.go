package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const orderYaml = `
id: order
name: Order
version: "1"
nodes:
  - id: S
    type: START
  - id: T
    type: TASK
    eventType: shipped
  - id: E
    type: END
connections:
  - from: S
    to: T
  - from: T
    to: E
`

func TestProcessCmd(t *testing.T) {
	assert := assert.New(t)

	e := mustCreateEngine(t)
	defer e.Shutdown()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "order.yaml"), []byte(orderYaml), 0o600); err != nil {
		t.Fatalf("failed to write definition: %v", err)
	}

	t.Run("create", func(t *testing.T) {
		output := mustExecute(t, e, []string{"process", "create", "--file", filepath.Join(dir, "order.yaml")})
		assert.Equal("order:1", output)
	})

	t.Run("create fails when file not exists", func(t *testing.T) {
		_, err := execute(e, []string{"process", "create", "--file", filepath.Join(dir, "not-existing.yaml")})
		assert.ErrorContains(err, "failed to read file")
	})

	t.Run("list", func(t *testing.T) {
		output := mustExecute(t, e, []string{"process", "list", "--definitions-dir", dir})
		assert.Contains(output, "order")
		assert.Contains(output, "Order")
	})

	t.Run("list requires definitions dir", func(t *testing.T) {
		_, err := execute(e, []string{"process", "list"})
		assert.ErrorContains(err, "no definitions directory")
	})
}
