package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/conduit-lang/onpage/internal/apitest"
	"github.com/conduit-lang/onpage/internal/cli/config"
	"github.com/conduit-lang/onpage/internal/cli/ui"
	"github.com/conduit-lang/onpage/pkg/onpage"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig writes an onpage.yml pointing at srv and returns its path
func writeConfig(t *testing.T, srv *apitest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.FileName)
	content := fmt.Sprintf("endpoint: %s\ntoken: %s\n", srv.Endpoint(), apitest.Token)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func setup(t *testing.T) (*apitest.Server, string) {
	t.Helper()
	srv := apitest.NewServer(t, apitest.Catalog())
	return srv, writeConfig(t, srv)
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "onpage", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, expected := range []string{"version", "init", "schema", "query", "post"} {
		assert.Contains(t, names, expected)
	}

	for _, flag := range []string{"config", "endpoint", "token", "timeout", "verbose", "no-color"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"
	defer func() { Version, GitCommit = "dev", "unknown" }()

	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.0.0-test")
	assert.Contains(t, out, "abc123")
}

func TestSchemaCommand(t *testing.T) {
	_, cfg := setup(t)

	out, _, err := execute(t, "schema", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Catalogo prodotti")
	assert.Contains(t, out, "capitoli   Capitoli   2       1")
	assert.Contains(t, out, "prodotti")
}

func TestSchemaResourceCommand(t *testing.T) {
	_, cfg := setup(t)

	out, _, err := execute(t, "schema", "capitoli", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Capitoli (capitoli)")
	assert.Contains(t, out, "descrizione  Descrizione  string  yes")
	assert.Contains(t, out, "argomenti  Argomenti  argomenti  many")
}

func TestSchemaUnknownResource(t *testing.T) {
	_, cfg := setup(t)

	_, _, err := execute(t, "schema", "capitolo", "--config", cfg)
	var unknown *ui.UnknownResourceError
	require.ErrorAs(t, err, &unknown)
	assert.ErrorIs(t, err, onpage.ErrUnknownResource)
	assert.Equal(t, []string{"capitoli"}, ui.Suggest(unknown.Name, unknown.Candidates))
}

func TestFlagsOverrideConfig(t *testing.T) {
	srv, _ := setup(t)
	cfg := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(cfg, []byte("endpoint: http://127.0.0.1:1/api\ntoken: wrong\n"), 0o644))

	_, _, err := execute(t, "schema", "--config", cfg, "--endpoint", srv.Endpoint(), "--token", apitest.Token)
	require.NoError(t, err)
}

func TestMissingToken(t *testing.T) {
	srv := apitest.NewServer(t, apitest.Catalog())
	cfg := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(cfg, []byte("endpoint: "+srv.Endpoint()+"\n"), 0o644))
	t.Setenv("ONPAGE_TOKEN", "")

	_, _, err := execute(t, "schema", "--config", cfg)
	assert.ErrorIs(t, err, onpage.ErrInvalidConfig)
	assert.Empty(t, srv.Requests())
}

func TestQueryTable(t *testing.T) {
	_, cfg := setup(t)

	out, _, err := execute(t, "query", "capitoli", "--config", cfg, "--limit", "2", "--with", "argomenti")
	require.NoError(t, err)
	assert.Contains(t, out, "ID      descrizione        ordine  argomenti")
	assert.Contains(t, out, "236826  Profili alluminio  1       300001")
	assert.Contains(t, out, "236827  Capitolo 2         2       300002,300003")
	assert.Contains(t, out, "2 of 23 records")
}

func TestQueryPreloadAvoidsRequests(t *testing.T) {
	srv, cfg := setup(t)

	_, stderr, err := execute(t, "query", "capitoli", "--config", cfg, "--with", "argomenti.prodotti", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 requests")
	assert.Len(t, srv.Requests(), 2)
}

func TestQueryWhereFirstJSON(t *testing.T) {
	srv, cfg := setup(t)

	out, _, err := execute(t, "query", "argomenti", "--config", cfg,
		"--where", "nome=Argomento 2.1", "--first", "--links", "-o", "json",
		"--fields", "nome,immagine")
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, float64(300002), records[0]["id"])

	fields := records[0]["fields"].(map[string]any)
	assert.Equal(t, "Argomento 2.1", fields["nome"])
	assert.Equal(t, srv.Endpoint()+"/storage/img300002?name=argomento-300002.jpg", fields["immagine"])
	assert.NotContains(t, fields, "nota10")

	req, _ := srv.LastRequest()
	assert.Equal(t, float64(1), req.JSON["limit"])
	assert.Equal(t, map[string]any{"nome": "Argomento 2.1"}, req.JSON["filters"])
}

func TestQueryAudit(t *testing.T) {
	_, cfg := setup(t)
	audit := filepath.Join(t.TempDir(), "used.csv")

	_, _, err := execute(t, "query", "capitoli", "--config", cfg, "--fields", "descrizione", "--audit", audit)
	require.NoError(t, err)

	content, err := os.ReadFile(audit)
	require.NoError(t, err)
	assert.Equal(t, "Resource,Resource name,Field,Field name,Field type\n"+
		"Capitoli,capitoli,Descrizione,descrizione,string\n\n", string(content))
}

func TestQueryErrors(t *testing.T) {
	srv, cfg := setup(t)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown resource", []string{"listini"}, onpage.ErrUnknownResource},
		{"unknown field", []string{"capitoli", "--fields", "prezzo"}, onpage.ErrUnknownField},
		{"undeclared relation", []string{"capitoli", "--with", "argomenti.listini"}, onpage.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(srv.Requests())
			_, _, err := execute(t, append([]string{"query", "--config", cfg}, tt.args...)...)
			assert.ErrorIs(t, err, tt.want)
			// only the schema was loaded
			assert.Len(t, srv.Requests(), before+1)
		})
	}

	_, _, err := execute(t, "query", "capitoli", "--config", cfg, "--where", "nokey")
	assert.ErrorContains(t, err, "expected key=value")
	_, _, err = execute(t, "query", "capitoli", "--config", cfg, "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestQueryAPIError(t *testing.T) {
	srv, cfg := setup(t)
	srv.FailWith(500)

	_, _, err := execute(t, "query", "capitoli", "--config", cfg)
	assert.True(t, onpage.IsAPIError(err, 500))
}

func TestPostCommandUpload(t *testing.T) {
	srv, cfg := setup(t)
	file := filepath.Join(t.TempDir(), "scheda.pdf")
	require.NoError(t, os.WriteFile(file, []byte("%PDF-1.4"), 0o644))

	out, _, err := execute(t, "post", apitest.EchoEndpoint, "--config", cfg,
		"fields.codice=P-1", "fields.scheda=@"+file, "tags=a", "tags=b")
	require.NoError(t, err)
	assert.Contains(t, out, `"method": "post"`)

	req, _ := srv.LastRequest()
	assert.Contains(t, req.ContentType, "multipart/form-data")
	assert.Equal(t, []string{"P-1"}, req.Form["fields[codice]"])
	assert.Equal(t, []string{"a"}, req.Form["tags[0]"])
	assert.Equal(t, []string{"b"}, req.Form["tags[1]"])
	assert.Equal(t, apitest.UploadedFile{Filename: "scheda.pdf", Content: "%PDF-1.4"}, req.Files["fields[scheda]"])
}

func TestPostCommandMethods(t *testing.T) {
	srv, cfg := setup(t)

	_, _, err := execute(t, "post", apitest.EchoEndpoint, "--config", cfg, "id=42", "-X", "delete")
	require.NoError(t, err)
	req, _ := srv.LastRequest()
	assert.Equal(t, "delete", req.Method)
	assert.Equal(t, "42", req.JSON["id"])

	_, _, err = execute(t, "post", apitest.EchoEndpoint, "--config", cfg, "-X", "patch")
	assert.ErrorContains(t, err, "unknown method")
}

func TestBuildPayload(t *testing.T) {
	m, err := buildPayload([]string{"a.b=1", "a.c=@x.pdf", "d=2", "d=3"})
	require.NoError(t, err)
	encoded, err := onpage.Encode(m)
	require.NoError(t, err)
	require.Len(t, encoded.Parts, 4)
	assert.Equal(t, "a[b]", encoded.Parts[0].Name)
	assert.Equal(t, "a[c]", encoded.Parts[1].Name)
	assert.True(t, encoded.Parts[1].IsFile())
	assert.Equal(t, "d[0]", encoded.Parts[2].Name)
	assert.Equal(t, "d[1]", encoded.Parts[3].Name)

	for _, bad := range [][]string{
		{"novalue"},
		{"=x"},
		{"a..b=1"},
		{"a=1", "a.b=2"},
		{"a.b=1", "a=2"},
		{"f=@"},
	} {
		_, err := buildPayload(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestInitCommand(t *testing.T) {
	srv := apitest.NewServer(t, apitest.Catalog())
	path := filepath.Join(t.TempDir(), config.FileName)

	out, _, err := execute(t, "init", "--config", path, "--endpoint", srv.Endpoint(), "--token", apitest.Token)
	require.NoError(t, err)
	assert.Contains(t, out, "Connected to Catalogo prodotti (3 resources)")
	assert.Contains(t, out, "Saved "+path)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, srv.Endpoint(), cfg.Endpoint)
	assert.Equal(t, apitest.Token, cfg.Token)

	_, _, err = execute(t, "init", "--config", path, "--endpoint", srv.Endpoint(), "--token", apitest.Token)
	assert.ErrorIs(t, err, ErrConfigExists)

	_, _, err = execute(t, "init", "--config", path, "--endpoint", "other", "--token", "t", "--force", "--skip-verify")
	require.NoError(t, err)
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "other", cfg.Endpoint)
}

func TestInitRejectsBadCredentials(t *testing.T) {
	srv := apitest.NewServer(t, apitest.Catalog())
	path := filepath.Join(t.TempDir(), config.FileName)

	_, _, err := execute(t, "init", "--config", path, "--endpoint", srv.Endpoint(), "--token", "nope")
	assert.True(t, onpage.IsAPIError(err, 401))
	assert.NoFileExists(t, path)
}
