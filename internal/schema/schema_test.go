package schema

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogDocument = `{
	"label": "Catalogo",
	"resources": [
		{
			"name": "capitoli",
			"label": "Capitoli",
			"fields": [
				{"name": "descrizione", "label": "Descrizione", "type": "string", "is_multiple": true},
				{"name": "ordine", "label": "Ordine", "type": "int"},
				{"name": "argomenti", "label": "Argomenti", "type": "relation", "is_multiple": true, "rel_resource": "argomenti"}
			]
		},
		{
			"name": "argomenti",
			"label": "Argomenti",
			"fields": [
				{"name": "nota10", "label": "Nota 10", "type": "text"},
				{"name": "immagine", "label": "Immagine", "type": "image"},
				{"name": "capitolo", "label": "Capitolo", "type": "relation", "rel_resource": "capitoli"}
			]
		}
	]
}`

func parseCatalog(t *testing.T) *Schema {
	t.Helper()
	s, err := Parse([]byte(catalogDocument))
	require.NoError(t, err)
	return s
}

func TestParse(t *testing.T) {
	s := parseCatalog(t)

	assert.Equal(t, "Catalogo", s.Label)
	require.Len(t, s.Resources(), 2)
	assert.Equal(t, "capitoli", s.Resources()[0].Name)
	_, err := s.Resource("argomenti")
	assert.NoError(t, err)

	chapter, err := s.Resource("capitoli")
	require.NoError(t, err)
	require.Len(t, chapter.Fields(), 2)
	assert.Equal(t, "descrizione", chapter.Fields()[0].Name)
	assert.True(t, chapter.Fields()[0].Multiple)
	assert.Equal(t, TypeString, chapter.Fields()[0].Type)

	rel, err := chapter.Relation("argomenti")
	require.NoError(t, err)
	assert.Equal(t, "argomenti", rel.Target)
	assert.Equal(t, Many, rel.Cardinality)

	arg, err := s.Resource("argomenti")
	require.NoError(t, err)
	back, err := arg.Relation("capitolo")
	require.NoError(t, err)
	assert.Equal(t, One, back.Cardinality)

	img, err := arg.Field("immagine")
	require.NoError(t, err)
	assert.True(t, img.Type.IsFile())
}

func TestRelationsAreNotFields(t *testing.T) {
	s := parseCatalog(t)
	chapter, err := s.Resource("capitoli")
	require.NoError(t, err)

	_, err = chapter.Field("argomenti")
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = chapter.Relation("descrizione")
	assert.ErrorIs(t, err, ErrUnknownRelation)
}

func TestUnknownResource(t *testing.T) {
	s := parseCatalog(t)
	_, err := s.Resource("prodotti")
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed json", `{"label":`},
		{"duplicate resource", `{"resources":[{"name":"a"},{"name":"a"}]}`},
		{"duplicate field", `{"resources":[{"name":"a","fields":[{"name":"x","type":"string"},{"name":"x","type":"int"}]}]}`},
		{"field and relation clash", `{"resources":[{"name":"a","fields":[{"name":"x","type":"string"},{"name":"x","type":"relation","rel_resource":"a"}]}]}`},
		{"relation without target", `{"resources":[{"name":"a","fields":[{"name":"x","type":"relation"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidSchema)
		})
	}
}

func TestRelationTargetMayBeHidden(t *testing.T) {
	s, err := Parse([]byte(`{"resources":[{"name":"a","fields":[{"name":"b","type":"relation","rel_resource":"hidden"}]}]}`))
	require.NoError(t, err)

	res, err := s.Resource("a")
	require.NoError(t, err)
	rel, err := res.Relation("b")
	require.NoError(t, err)
	assert.Equal(t, "hidden", rel.Target)

	_, err = s.Resource("hidden")
	assert.ErrorIs(t, err, ErrUnknownResource)
}

func TestUnknownFieldTypeIsKept(t *testing.T) {
	s, err := Parse([]byte(`{"resources":[{"name":"a","fields":[{"name":"w","type":"weight"}]}]}`))
	require.NoError(t, err)

	res, err := s.Resource("a")
	require.NoError(t, err)
	f, err := res.Field("w")
	require.NoError(t, err)
	assert.Equal(t, TypeUnknown, f.Type)
	assert.Equal(t, "weight", f.TypeName)
}

func TestFieldTypeRoundTrip(t *testing.T) {
	for ft := TypeString; ft <= TypeRelation; ft++ {
		parsed, err := ParseFieldType(ft.String())
		require.NoError(t, err)
		assert.Equal(t, ft, parsed)
	}
	_, err := ParseFieldType("nope")
	assert.Error(t, err)
}

func TestUsageTracking(t *testing.T) {
	s := parseCatalog(t)
	chapter, _ := s.Resource("capitoli")
	desc, _ := chapter.Field("descrizione")

	assert.False(t, desc.Used())
	assert.False(t, chapter.HasUsedFields())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			desc.MarkUsed()
		}()
	}
	wg.Wait()

	assert.True(t, desc.Used())
	assert.True(t, chapter.HasUsedFields())

	s.ResetUsage()
	assert.False(t, desc.Used())
}

func TestWriteUsage(t *testing.T) {
	s := parseCatalog(t)
	chapter, _ := s.Resource("capitoli")
	arg, _ := s.Resource("argomenti")

	desc, _ := chapter.Field("descrizione")
	nota, _ := arg.Field("nota10")
	img, _ := arg.Field("immagine")
	desc.MarkUsed()
	nota.MarkUsed()
	img.MarkUsed()

	var buf bytes.Buffer
	require.NoError(t, s.WriteUsage(&buf))

	expected := "Resource,Resource name,Field,Field name,Field type\n" +
		"Capitoli,capitoli,Descrizione,descrizione,string\n" +
		"\n" +
		"Argomenti,argomenti,Nota 10,nota10,text\n" +
		"Argomenti,argomenti,Immagine,immagine,image\n" +
		"\n"
	assert.Equal(t, expected, buf.String())
}

func TestWriteUsageSkipsUnusedResources(t *testing.T) {
	s := parseCatalog(t)
	arg, _ := s.Resource("argomenti")
	nota, _ := arg.Field("nota10")
	nota.MarkUsed()

	var buf bytes.Buffer
	require.NoError(t, s.WriteUsage(&buf))

	expected := "Resource,Resource name,Field,Field name,Field type\n" +
		"Argomenti,argomenti,Nota 10,nota10,text\n" +
		"\n"
	assert.Equal(t, expected, buf.String())
}
