package buildinfo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintBuildData(t *testing.T) {
	var buf bytes.Buffer
	PrintBuildData(&buf)

	out := buf.String()
	assert.Contains(t, out, "Build version: "+BuildVersion)
	assert.Contains(t, out, "Build date: "+BuildDate)
	assert.Contains(t, out, "Build commit: "+BuildCommit)
}
