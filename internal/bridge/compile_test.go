package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCompileMessage(t *testing.T) {
	tests := []struct {
		msg  string
		code int
		text string
		ok   bool
	}{
		{"0002-Downloading", 2, "Downloading", true},
		{"0102-Download failed", 102, "Download failed", true},
		{"0005-", 5, "", true},
		{"0005", 5, "", true},
		{"abcd-text", 0, "text", false},
		{"", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			code, text, ok := ParseCompileMessage(tt.msg)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.text, text)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestCompileProgress_Success(t *testing.T) {
	var c CompileProgress
	assert.Equal(t, CompileIdle, c.State())

	assert.Equal(t, CompileDownloading, c.Message("0002-Downloading"))
	assert.Equal(t, CompileDownloading, c.Message("0003-Verifying"))
	assert.Equal(t, "Downloading\nVerifying\n", c.Log())

	assert.Equal(t, CompileSucceeded, c.Message("0005-Download successful"))
	assert.Equal(t, "Succeeded", c.Log())
	assert.Equal(t, "..Succeeded", c.Console())
}

func TestCompileProgress_Failure(t *testing.T) {
	var c CompileProgress
	c.Message("0002-Downloading")
	c.Message("0009-No response")

	assert.Equal(t, CompileFailed, c.Message("0102-Download failed"))
	assert.Equal(t, "Downloading\nNo response\n", c.Log())
	assert.Contains(t, c.Console(), " Failed!")
	assert.Contains(t, c.Console(), "No response\n")
}

func TestCompileProgress_UnparseableIsInProgress(t *testing.T) {
	var c CompileProgress
	assert.Equal(t, CompileDownloading, c.Message("garbage"))
	assert.Equal(t, CompileDownloading, c.State())
}

func TestCompileProgress_RestartAfterTerminal(t *testing.T) {
	var c CompileProgress
	c.Message("0002-first")
	c.Message("0005-done")

	assert.Equal(t, CompileDownloading, c.Message("0002-second"))
	assert.Equal(t, "second\n", c.Log())

	c.Clear()
	assert.Equal(t, CompileIdle, c.State())
	assert.Empty(t, c.Console())
	assert.Empty(t, c.Log())
}
