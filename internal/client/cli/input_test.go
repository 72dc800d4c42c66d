package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubReadPassword(t *testing.T, answers ...string) {
	t.Helper()
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

func TestGetSimpleText(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("hello world\n"))
	var out bytes.Buffer
	got, err := GetSimpleText(in, "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got)
	assert.Equal(t, "Name?\n> ", out.String())
}

func TestGetSimpleTextEOF(t *testing.T) {
	in := bufio.NewReader(strings.NewReader("lastline"))
	var out bytes.Buffer
	got, err := GetSimpleText(in, "Name?", &out)
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)
}

func TestGetSimpleTextEmptyEOF(t *testing.T) {
	in := bufio.NewReader(strings.NewReader(""))
	var out bytes.Buffer
	_, err := GetSimpleText(in, "Name?", &out)
	require.Error(t, err)
}

func TestGetPassword(t *testing.T) {
	stubReadPassword(t, "s3cret")
	var out bytes.Buffer

	pw, err := GetPassword("Password", &out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", string(pw))
	assert.Equal(t, "Password: \n", out.String())
}

func TestGetPassword_Error(t *testing.T) {
	stubReadPassword(t)
	var out bytes.Buffer
	_, err := GetPassword("Password", &out)
	require.Error(t, err)
}

func TestGetPassword_Empty(t *testing.T) {
	stubReadPassword(t, "")
	var out bytes.Buffer
	_, err := GetPassword("Password", &out)
	require.Error(t, err)
}

func TestGetPassphrase_FromEnv(t *testing.T) {
	stubReadPassword(t)
	t.Setenv(PassphraseEnv, "from-env")

	var out bytes.Buffer
	p, err := GetPassphrase(&out)
	require.NoError(t, err)
	assert.Equal(t, "from-env", string(p))
	assert.Empty(t, out.String())
}

func TestGetPassphrase_Prompts(t *testing.T) {
	stubReadPassword(t, "typed")
	t.Setenv(PassphraseEnv, "")

	var out bytes.Buffer
	p, err := GetPassphrase(&out)
	require.NoError(t, err)
	assert.Equal(t, "typed", string(p))
	assert.Contains(t, out.String(), "Vault passphrase")
}
