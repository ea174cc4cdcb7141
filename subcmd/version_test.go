package subcmd

import (
	"bytes"
	"testing"

	"github.com/mengelbart/glpipe/cmdmain"
	"github.com/mengelbart/glpipe/softgl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionReportsBackend(t *testing.T) {
	v := newVersion()
	assert.NotEmpty(t, v.version)
	assert.NotEmpty(t, v.goVersion)

	gpu, err := softgl.New()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, v.write(&buf, gpu))
	assert.Contains(t, buf.String(), "Backend:\tsoftgl GLES3")
	assert.Contains(t, buf.String(), "none, grayscale, negative, sepia, flip-vertical, flip-horizontal, binarize")

	gpu, err = softgl.New(softgl.GLES3(false))
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, v.write(&buf, gpu))
	assert.Contains(t, buf.String(), "Backend:\tsoftgl GLES2")
}

func TestHelpUnknownCommand(t *testing.T) {
	_, ok := cmdmain.Lookup("version")
	assert.True(t, ok)
	assert.Error(t, new(help).Exec("glpipe", []string{"missing"}))
	assert.NoError(t, new(help).Exec("glpipe", []string{"capture"}))
}
