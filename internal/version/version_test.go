package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })

	Version = ""
	assert.Equal(t, "dev", String())

	Version = "v1.2.0"
	assert.Equal(t, "v1.2.0", String())
}

func TestPrint(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	Version = "v1.2.0"
	GitCommit = "0123456789abcdef"

	var buf bytes.Buffer
	Print(&buf)

	assert.Contains(t, buf.String(), "wpgate version v1.2.0")
	assert.Contains(t, buf.String(), "Git commit: 0123456")
	assert.Contains(t, buf.String(), "Go version: go")
}
