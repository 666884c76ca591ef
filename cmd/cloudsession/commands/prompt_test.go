package commands

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianilch/cloudsession/internal/session"
)

func testPrompter(input string) (*prompter, *bytes.Buffer) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader(input), &out)
	p.openBrowser = func(string) error { return errors.New("no browser") }
	return p, &out
}

var testAccounts = []session.Account{
	{ID: "acc-1", Name: "One", Email: "one@example.com"},
	{ID: "acc-2", Name: "Two", Email: "two@example.com"},
}

func TestPrompter_ChooseAccount(t *testing.T) {
	p, out := testPrompter("7\nabc\n2\n")

	acc, err := p.chooseAccount(context.Background(), testAccounts)
	require.NoError(t, err)
	assert.Equal(t, "acc-2", acc.ID)
	assert.Contains(t, out.String(), "One (acc-1) one@example.com")
	assert.Contains(t, out.String(), `"7" is not a valid choice`)
}

func TestPrompter_ChooseAccountCancelled(t *testing.T) {
	for name, input := range map[string]string{"empty answer": "\n", "end of input": ""} {
		t.Run(name, func(t *testing.T) {
			p, _ := testPrompter(input)
			_, err := p.chooseAccount(context.Background(), testAccounts)
			assert.ErrorIs(t, err, session.ErrCancelled)
		})
	}
}

func TestPrompter_Method(t *testing.T) {
	tests := map[string]string{
		"\n":   methodSSO,
		"2\n":  methodPassword,
		"x\n3": methodAPIKey,
	}
	for input, want := range tests {
		p, _ := testPrompter(input)
		got, err := p.method()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestPrompter_Passcode(t *testing.T) {
	p, out := testPrompter(" pc-123 \n")

	code, err := p.passcode(true)(context.Background(), "https://iam.test/identity/passcode")
	require.NoError(t, err)
	assert.Equal(t, "pc-123", code)
	assert.Contains(t, out.String(), "https://iam.test/identity/passcode")
	assert.Contains(t, out.String(), "open the URL manually")
}

func TestWriteAccounts(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeAccounts(&out, testAccounts, "acc-2"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[2], "*"))
	assert.Contains(t, lines[1], "acc-1")
}
