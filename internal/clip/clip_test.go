package clip

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCopier(t *testing.T, nativeErr error, tty bool, env map[string]string) (*Copier, *bytes.Buffer, *string) {
	t.Helper()
	var copied string
	var out bytes.Buffer
	return &Copier{
		native: func(s string) error {
			if nativeErr != nil {
				return nativeErr
			}
			copied = s
			return nil
		},
		term:    &out,
		isTTY:   func() bool { return tty },
		getenv:  func(k string) string { return env[k] },
		tempDir: t.TempDir(),
	}, &out, &copied
}

func TestCopy_Native(t *testing.T) {
	c, out, copied := testCopier(t, nil, true, nil)

	res, err := c.Copy("# Analysis Report")
	require.NoError(t, err)
	assert.Equal(t, MethodNative, res.Method)
	assert.Equal(t, "# Analysis Report", *copied)
	assert.Zero(t, out.Len())
}

func TestCopy_OSC52Fallback(t *testing.T) {
	unavailable := errors.New("no clipboard utility")

	t.Run("plain terminal", func(t *testing.T) {
		c, out, _ := testCopier(t, unavailable, true, nil)
		res, err := c.Copy("report")
		require.NoError(t, err)
		assert.Equal(t, MethodOSC52, res.Method)
		assert.Contains(t, out.String(), "]52;c;")
	})

	t.Run("inside tmux", func(t *testing.T) {
		c, out, _ := testCopier(t, unavailable, true, map[string]string{"TMUX": "/tmp/tmux-0"})
		_, err := c.Copy("report")
		require.NoError(t, err)
		assert.Contains(t, out.String(), "tmux;")
	})
}

func TestCopy_FileFallback(t *testing.T) {
	unavailable := errors.New("no clipboard utility")

	t.Run("no terminal", func(t *testing.T) {
		c, out, _ := testCopier(t, unavailable, false, nil)
		res, err := c.Copy("report body")
		require.NoError(t, err)
		assert.Equal(t, MethodFile, res.Method)
		assert.Zero(t, out.Len())

		data, err := os.ReadFile(res.FilePath)
		require.NoError(t, err)
		assert.Equal(t, "report body", string(data))
	})

	t.Run("too large for OSC52", func(t *testing.T) {
		c, out, _ := testCopier(t, unavailable, true, nil)
		res, err := c.Copy(string(bytes.Repeat([]byte("x"), osc52Limit+1)))
		require.NoError(t, err)
		assert.Equal(t, MethodFile, res.Method)
		assert.Zero(t, out.Len())
	})
}

func TestCopy_Empty(t *testing.T) {
	c, _, _ := testCopier(t, nil, true, nil)
	_, err := c.Copy("")
	assert.Error(t, err)
}
