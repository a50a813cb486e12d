package extract

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"promptpilot/internal/config"
)

func newTestClient(t *testing.T, cfg config.ExtractConfig) *Client {
	t.Helper()
	c, err := New(cfg, http.DefaultClient)
	require.NoError(t, err)
	return c
}

func TestExtractImageWithoutKey(t *testing.T) {
	c := newTestClient(t, config.ExtractConfig{OCREndpoint: "http://unused"})

	_, err := c.ExtractImage(testContext(t), "https://cdn.example.com/a.png")
	require.ErrorIs(t, err, ErrOCRUnavailable)
}

func TestExtractImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "secret", r.PostForm.Get("apikey"))
		require.Equal(t, "https://cdn.example.com/a.png", r.PostForm.Get("url"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ParsedResults":[{"ParsedText":"line one\n"},{"ParsedText":"line two"}],"IsErroredOnProcessing":false}`))
	}))
	defer srv.Close()

	c := newTestClient(t, config.ExtractConfig{OCREndpoint: srv.URL, OCRAPIKey: "secret"})

	text, err := c.ExtractImage(testContext(t), "https://cdn.example.com/a.png")
	require.NoError(t, err)
	require.Equal(t, "line one\nline two", text)
}

func TestExtractImageProcessingError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"IsErroredOnProcessing":true,"ErrorMessage":["E101: timed out"]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, config.ExtractConfig{OCREndpoint: srv.URL, OCRAPIKey: "secret"})

	_, err := c.ExtractImage(testContext(t), "https://cdn.example.com/a.png")
	require.Error(t, err)
	require.Contains(t, err.Error(), "E101")
}

func TestExtractPDFRejectsOversizedDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	c := newTestClient(t, config.ExtractConfig{MaxBytes: 16})

	_, err := c.ExtractPDF(testContext(t), srv.URL+"/doc.pdf")
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestExtractPDFInvalidDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not a pdf"))
	}))
	defer srv.Close()

	c := newTestClient(t, config.ExtractConfig{})

	_, err := c.ExtractPDF(testContext(t), srv.URL+"/doc.pdf")
	require.Error(t, err)
}

func TestExtractPDFDownloadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newTestClient(t, config.ExtractConfig{})

	_, err := c.ExtractPDF(testContext(t), srv.URL+"/missing.pdf")
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

// badXrefPDF returns a document whose xref entry for object 2 points at
// object 1, which the pdf package reports by panicking.
func badXrefPDF() []byte {
	var b bytes.Buffer
	b.WriteString("%PDF-1.4\n")
	catalog := b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 3\n0000000000 65535 f \n%010d 00000 n \n%010d 00000 n \n", catalog, catalog)
	fmt.Fprintf(&b, "trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", xref)
	return b.Bytes()
}

func TestMalformedPDFIsAnError(t *testing.T) {
	data := badXrefPDF()

	require.NotPanics(t, func() {
		_, err := PlainText(data)
		require.ErrorIs(t, err, ErrMalformedPDF)
	})
	require.NotPanics(t, func() {
		_, err := PageCount(bytes.NewReader(data), int64(len(data)))
		require.ErrorIs(t, err, ErrMalformedPDF)
	})
}

func TestExtractPDFMalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(badXrefPDF())
	}))
	defer srv.Close()

	c := newTestClient(t, config.ExtractConfig{})

	require.NotPanics(t, func() {
		_, err := c.ExtractPDF(testContext(t), srv.URL+"/doc.pdf")
		require.ErrorIs(t, err, ErrMalformedPDF)
	})
}
