package iocli

import (
	"bufio"
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStdio(input string) (*Stdio, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Stdio{in: bufio.NewReader(strings.NewReader(input)), out: out, fd: -1}, out
}

func TestNewStdio(t *testing.T) {
	stdio := NewStdio()
	assert.NotNil(t, stdio)
}

func TestStdio_Output(t *testing.T) {
	stdio, out := newTestStdio("")

	stdio.Println("hello", "world")
	stdio.Printf("test %d %s\n", 1, "abc")
	_, err := stdio.Write([]byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "hello world\ntest 1 abc\nraw", out.String())
}

func TestStdio_ReadInput(t *testing.T) {
	stdio, out := newTestStdio("sato@example.com\nsecond\n")

	got, err := stdio.ReadInput("Email: ")
	require.NoError(t, err)
	assert.Equal(t, "sato@example.com", got)
	assert.Equal(t, "Email: ", out.String())

	got, err = stdio.ReadInput("")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestStdio_ReadInput_LastLineWithoutNewline(t *testing.T) {
	stdio, _ := newTestStdio("tail")

	got, err := stdio.ReadInput("")
	require.NoError(t, err)
	assert.Equal(t, "tail", got)

	_, err = stdio.ReadInput("")
	assert.Error(t, err)
}

func TestStdio_ReadPassword_NotTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	go func() {
		_, _ = w.Write([]byte("secret\n"))
		_ = w.Close()
	}()

	out := &bytes.Buffer{}
	stdio := &Stdio{in: bufio.NewReader(r), out: out, fd: int(r.Fd())}

	got, err := stdio.ReadPassword("Password: ")
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}
