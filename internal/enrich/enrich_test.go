package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"promptpilot/internal/config"
	"promptpilot/internal/extract"
	"promptpilot/internal/models"
)

type fakeExtractor struct {
	texts  map[string]string
	fail   map[string]bool
	called []string
}

func (f *fakeExtractor) ExtractPDF(_ context.Context, url string) (string, error) {
	return f.lookup(url)
}

func (f *fakeExtractor) ExtractImage(_ context.Context, url string) (string, error) {
	return f.lookup(url)
}

func (f *fakeExtractor) lookup(url string) (string, error) {
	f.called = append(f.called, url)
	if f.fail[url] {
		return "", errors.New("extraction failed")
	}
	return f.texts[url], nil
}

func TestAggregateSkipsFailures(t *testing.T) {
	ex := &fakeExtractor{
		texts: map[string]string{"a.pdf": "alpha\n", "c.png": "gamma"},
		fail:  map[string]bool{"b.pdf": true},
	}
	agg := New(ex)

	got := agg.Aggregate(testContext(t), []models.Attachment{
		{URL: "a.pdf", Kind: models.KindPDF},
		{URL: "b.pdf", Kind: models.KindPDF},
		{URL: "c.png", Kind: models.KindImage},
	})

	require.Equal(t, "alpha\ngamma", got)
	require.Equal(t, []string{"a.pdf", "b.pdf", "c.png"}, ex.called)
}

func TestAggregateIgnoresOtherKinds(t *testing.T) {
	ex := &fakeExtractor{texts: map[string]string{"x.txt": "never"}}
	agg := New(ex)

	require.Empty(t, agg.Aggregate(testContext(t), []models.Attachment{{URL: "x.txt", Kind: models.KindOther}}))
	require.Empty(t, ex.called)
	require.Empty(t, agg.Aggregate(testContext(t), nil))
}

func TestSplicePrompt(t *testing.T) {
	in := []models.Message{
		{Role: models.RoleUser, Content: "earlier"},
		{Role: models.RoleAssistant, Content: "reply"},
		{Role: models.RoleUser, Content: "summarise"},
	}

	out := SplicePrompt(in, "doc text")

	require.Equal(t, "Context:\ndoc text\n\nUser: summarise", out[2].Content)
	require.Equal(t, "earlier", out[0].Content)
	require.Equal(t, "summarise", in[2].Content)
}

func TestSplicePromptWithoutContext(t *testing.T) {
	in := []models.Message{{Role: models.RoleUser, Content: "hello"}}

	out := SplicePrompt(in, "")
	require.Equal(t, in, out)

	out[0].Content = "changed"
	require.Equal(t, "hello", in[0].Content)
}

func TestAggregateSurvivesMalformedPDF(t *testing.T) {
	var broken bytes.Buffer
	broken.WriteString("%PDF-1.4\n")
	catalog := broken.Len()
	broken.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	xref := broken.Len()
	fmt.Fprintf(&broken, "xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n", catalog, catalog)
	fmt.Fprintf(&broken, "trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/broken.pdf":
			_, _ = w.Write(broken.Bytes())
		case "/ocr":
			_, _ = w.Write([]byte(`{"ParsedResults":[{"ParsedText":"from image"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ex, err := extract.New(config.ExtractConfig{OCREndpoint: srv.URL + "/ocr", OCRAPIKey: "k"}, srv.Client())
	require.NoError(t, err)

	var got string
	require.NotPanics(t, func() {
		got = New(ex).Aggregate(testContext(t), []models.Attachment{
			{URL: srv.URL + "/broken.pdf", Kind: models.KindPDF},
			{URL: srv.URL + "/photo.png", Kind: models.KindImage},
		})
	})
	require.Equal(t, "from image", got)
}
