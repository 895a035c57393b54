package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []string{"ID", "Descrizione"}, true)
	table.AddRow("236826", "Profili alluminio")
	table.AddRow("236827", "Capitolo 2")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"ID      Descrizione",
		"──────  ─────────────────",
		"236826  Profili alluminio",
		"236827  Capitolo 2",
	}, lines)
	assert.Equal(t, 2, table.Len())
}

func TestTableRaggedRows(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []string{"A", "B"}, true)
	table.AddRow("x")
	table.AddRow("y", "z", "dropped")
	table.Render()

	assert.Equal(t, "A  B\n─  ─\nx\ny  z\n", buf.String())
}

func TestTableUnicodeWidth(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, []string{"Città", "N"}, true)
	table.AddRow("Forlì", "1")
	table.Render()

	assert.Contains(t, buf.String(), "Forlì  1")
}

func TestTableWithoutHeaders(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, nil, true)
	table.AddRow("x")
	table.Render()
	assert.Empty(t, buf.String())
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("endpoint", "https://acme.onpage.it/api")
	kv.AddRow("token", "abc")
	kv.Render()

	assert.Equal(t, "endpoint: https://acme.onpage.it/api\ntoken:    abc\n", buf.String())
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	Header(&buf, "Capitoli", true)
	assert.Equal(t, "Capitoli\n────────\n", buf.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab…", Truncate("abcdef", 3))
	assert.Equal(t, "abcdef", Truncate("abcdef", 0))
}
