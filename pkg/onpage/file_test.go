package onpage

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLink(t *testing.T) {
	client, srv := setupTestClient(t)
	storage := srv.Endpoint() + "/storage/"
	file := client.NewFile("abc123", "foto prodotto.jpg", "jpg")

	tests := []struct {
		name string
		opts []LinkOption
		want string
	}{
		{
			name: "original",
			want: storage + "abc123?name=foto+prodotto.jpg",
		},
		{
			name: "size",
			opts: []LinkOption{Size(200, 100)},
			want: storage + "abc123.200x100.png?name=foto+prodotto.jpg",
		},
		{
			name: "width only",
			opts: []LinkOption{Width(200)},
			want: storage + "abc123.200x.png?name=foto+prodotto.jpg",
		},
		{
			name: "height only",
			opts: []LinkOption{Height(50)},
			want: storage + "abc123.x50.png?name=foto+prodotto.jpg",
		},
		{
			name: "contain",
			opts: []LinkOption{Size(200, 100), Contain()},
			want: storage + "abc123.200x100-contain.png?name=foto+prodotto.jpg",
		},
		{
			name: "contain without size",
			opts: []LinkOption{Contain()},
			want: storage + "abc123?name=foto+prodotto.jpg",
		},
		{
			name: "format conversion",
			opts: []LinkOption{Ext("webp")},
			want: storage + "abc123.webp?name=foto+prodotto.jpg",
		},
		{
			name: "size and format",
			opts: []LinkOption{Width(80), Ext("jpg")},
			want: storage + "abc123.80x.jpg?name=foto+prodotto.jpg",
		},
		{
			name: "renamed",
			opts: []LinkOption{Name("scheda.jpg")},
			want: storage + "abc123?name=scheda.jpg",
		},
		{
			name: "without name",
			opts: []LinkOption{NoName()},
			want: storage + "abc123",
		},
		{
			name: "last name option wins",
			opts: []LinkOption{NoName(), Name("x.jpg")},
			want: storage + "abc123?name=x.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, file.Link(tt.opts...))
		})
	}
}

func TestFileLinkUsesConfiguredThumbnailFormat(t *testing.T) {
	client, srv := setupTestClient(t, func(c *Config) { c.ThumbnailFormat = "webp" })
	file := client.NewFile("abc", "", "png")

	assert.Equal(t, srv.Endpoint()+"/storage/abc.100x100.webp", file.Link(Size(100, 100)))
	assert.Equal(t, srv.Endpoint()+"/storage/abc", file.Link())
}

func TestFileLinkIsOffline(t *testing.T) {
	client, _ := setupTestClient(t)
	client.ResetRequestCount()

	topic, err := client.Query("argomenti").First(context.Background())
	require.NoError(t, err)
	image, err := topic.File("immagine")
	require.NoError(t, err)
	require.NotNil(t, image)

	link := image.Link(Size(10, 10))
	assert.Contains(t, link, "/storage/img300001.10x10.png")
	assert.Equal(t, 1, client.RequestCount())

	resp, err := http.Get(image.Link())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFileIsImage(t *testing.T) {
	client, _ := setupTestClient(t)

	assert.True(t, client.NewFile("a", "a.png", "png").IsImage())
	assert.True(t, client.NewFile("a", "a.JPG", "JPG").IsImage())
	assert.True(t, client.NewFile("a", "a.svg", "svg").IsImage())
	assert.False(t, client.NewFile("a", "a.pdf", "pdf").IsImage())
	assert.False(t, client.NewFile("a", "a", "").IsImage())
}

func TestFileReference(t *testing.T) {
	client, _ := setupTestClient(t)
	ref := client.NewFile("tok", "a.png", "png").FileReference()
	assert.Equal(t, FileRef{Token: "tok", Name: "a.png"}, ref)
}
