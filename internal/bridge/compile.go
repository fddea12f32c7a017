package bridge

import (
	"strconv"
	"strings"
)

const (
	// CodeDownloading marks the start of a program download.
	CodeDownloading = 2

	// CodeDownloadSucceeded is the terminal success code.
	CodeDownloadSucceeded = 5

	// CodeFirstFailure is the lowest failure code.
	CodeFirstFailure = 100

	successMessage = "Succeeded"
	failureBanner  = " Failed!\n\n-------- loader messages --------\n"
)

// CompileState is the state of the program download reported by the bridge.
type CompileState int

const (
	CompileIdle CompileState = iota
	CompileDownloading
	CompileSucceeded
	CompileFailed
)

func (s CompileState) String() string {
	switch s {
	case CompileDownloading:
		return "downloading"
	case CompileSucceeded:
		return "succeeded"
	case CompileFailed:
		return "failed"
	default:
		return "idle"
	}
}

// ParseCompileMessage splits a "NNNN-text" progress message. ok is false when
// the code is not numeric.
func ParseCompileMessage(msg string) (code int, text string, ok bool) {
	head := msg
	if len(head) > 4 {
		head = head[:4]
	}
	if len(msg) > 5 {
		text = msg[5:]
	}

	code, err := strconv.Atoi(head)
	if err != nil {
		return 0, text, false
	}
	return code, text, true
}

// CompileProgress tracks the download state machine:
// Idle -> Downloading -> Succeeded | Failed.
type CompileProgress struct {
	state   CompileState
	log     strings.Builder // loader messages of the current download
	console strings.Builder // what the compile view shows
}

// Message applies one progress message and returns the new state.
// Unparseable codes count as in-progress.
func (c *CompileProgress) Message(msg string) CompileState {
	code, text, _ := ParseCompileMessage(msg)

	if c.state == CompileSucceeded || c.state == CompileFailed {
		// a new download after a terminal state
		c.log.Reset()
	}

	switch {
	case code == CodeDownloadSucceeded:
		c.state = CompileSucceeded
		c.log.Reset()
		c.log.WriteString(successMessage)
		c.console.WriteString(successMessage)

	case code >= CodeFirstFailure:
		c.state = CompileFailed
		c.console.WriteString(failureBanner)
		c.console.WriteString(c.log.String())

	default:
		c.state = CompileDownloading
		c.log.WriteString(text)
		c.log.WriteByte('\n')
		c.console.WriteByte('.')
	}

	return c.state
}

// Clear empties the compile view and returns to Idle.
func (c *CompileProgress) Clear() {
	c.state = CompileIdle
	c.log.Reset()
	c.console.Reset()
}

// State returns the current state.
func (c *CompileProgress) State() CompileState {
	return c.state
}

// Log returns the accumulated result log.
func (c *CompileProgress) Log() string {
	return c.log.String()
}

// Console returns the text of the compile view.
func (c *CompileProgress) Console() string {
	return c.console.String()
}
