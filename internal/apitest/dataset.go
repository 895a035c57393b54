// Package apitest provides an in-process catalog server for tests.
// It speaks the same wire protocol as the real service: every call is a POST
// under /api/view/{token}/, GET semantics are signalled with _method, and
// relations listed in "with" are embedded in the response.
package apitest

import (
	"fmt"

	"github.com/conduit-lang/onpage/internal/schema"
)

// Row is one stored record
type Row struct {
	ID     int64
	Fields map[string]any
	Links  map[string][]int64 // relation name -> linked ids, in order
}

// Dataset is the content served by a Server
type Dataset struct {
	Schema schema.Document
	Rows   map[string][]*Row // resource name -> rows, in order
}

// Find returns the row of resource with the given id
func (d *Dataset) Find(resource string, id int64) *Row {
	for _, r := range d.Rows[resource] {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// relation returns the field document of a relation
func (d *Dataset) relation(resource, name string) (schema.FieldDocument, bool) {
	for _, res := range d.Schema.Resources {
		if res.Name != resource {
			continue
		}
		for _, f := range res.Fields {
			if f.Name == name && f.Type == "relation" {
				return f, true
			}
		}
	}
	return schema.FieldDocument{}, false
}

// Fixed identifiers of the catalog dataset
const (
	FirstChapterID    int64 = 236826
	FirstChapterTitle       = "Profili alluminio"
	FirstTopicID      int64 = 300001
	FirstTopicNote          = "Architetturale;Domestico;Commerciale;Industriale;Arredamento;"
	ChapterCount            = 23
)

// Catalog returns the reference dataset: 23 chapters (capitoli), each with
// topics (argomenti), each with products (prodotti). The first chapter has
// exactly one topic, which has two products.
func Catalog() *Dataset {
	ds := &Dataset{
		Schema: schema.Document{
			Label: "Catalogo prodotti",
			Resources: []schema.ResourceDocument{
				{
					Name:  "capitoli",
					Label: "Capitoli",
					Fields: []schema.FieldDocument{
						{Name: "descrizione", Label: "Descrizione", Type: "string", Multiple: true},
						{Name: "ordine", Label: "Ordine", Type: "int"},
						{Name: "argomenti", Label: "Argomenti", Type: "relation", Multiple: true, RelResource: "argomenti"},
					},
				},
				{
					Name:  "argomenti",
					Label: "Argomenti",
					Fields: []schema.FieldDocument{
						{Name: "nome", Label: "Nome", Type: "string"},
						{Name: "nota10", Label: "Nota 10", Type: "text"},
						{Name: "immagine", Label: "Immagine", Type: "image"},
						{Name: "capitolo", Label: "Capitolo", Type: "relation", RelResource: "capitoli"},
						{Name: "prodotti", Label: "Prodotti", Type: "relation", Multiple: true, RelResource: "prodotti"},
					},
				},
				{
					Name:  "prodotti",
					Label: "Prodotti",
					Fields: []schema.FieldDocument{
						{Name: "codice", Label: "Codice", Type: "string"},
						{Name: "prezzo", Label: "Prezzo", Type: "price"},
						{Name: "disponibile", Label: "Disponibile", Type: "bool"},
						{Name: "schede", Label: "Schede tecniche", Type: "file", Multiple: true},
						{Name: "argomento", Label: "Argomento", Type: "relation", RelResource: "argomenti"},
					},
				},
			},
		},
		Rows: map[string][]*Row{},
	}

	topicID := FirstTopicID
	productID := int64(400001)

	for i := 0; i < ChapterCount; i++ {
		chapterID := FirstChapterID + int64(i)
		title := fmt.Sprintf("Capitolo %d", i+1)
		if i == 0 {
			title = FirstChapterTitle
		}

		topics := 1
		if i > 0 {
			topics = 2
		}

		chapter := &Row{
			ID:     chapterID,
			Fields: map[string]any{"descrizione": []any{title}, "ordine": float64(i + 1)},
			Links:  map[string][]int64{},
		}

		for j := 0; j < topics; j++ {
			note := fmt.Sprintf("Nota %d.%d", i+1, j+1)
			if i == 0 {
				note = FirstTopicNote
			}
			topic := &Row{
				ID: topicID,
				Fields: map[string]any{
					"nome":   fmt.Sprintf("Argomento %d.%d", i+1, j+1),
					"nota10": note,
					"immagine": map[string]any{
						"token": fmt.Sprintf("img%d", topicID),
						"name":  fmt.Sprintf("argomento-%d.jpg", topicID),
						"ext":   "jpg",
					},
				},
				Links: map[string][]int64{"capitolo": {chapterID}},
			}
			chapter.Links["argomenti"] = append(chapter.Links["argomenti"], topicID)

			for k := 0; k < 2; k++ {
				product := &Row{
					ID: productID,
					Fields: map[string]any{
						"codice":      fmt.Sprintf("P-%d", productID),
						"prezzo":      float64(10*(k+1)) + 0.5,
						"disponibile": k == 0,
						"schede": []any{map[string]any{
							"token": fmt.Sprintf("doc%d", productID),
							"name":  fmt.Sprintf("scheda %d.pdf", productID),
							"ext":   "pdf",
						}},
					},
					Links: map[string][]int64{"argomento": {topicID}},
				}
				topic.Links["prodotti"] = append(topic.Links["prodotti"], productID)
				ds.Rows["prodotti"] = append(ds.Rows["prodotti"], product)
				productID++
			}

			ds.Rows["argomenti"] = append(ds.Rows["argomenti"], topic)
			topicID++
		}

		ds.Rows["capitoli"] = append(ds.Rows["capitoli"], chapter)
	}

	return ds
}
