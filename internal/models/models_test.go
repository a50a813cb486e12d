package models

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindFromURL(t *testing.T) {
	cases := map[string]AttachmentKind{
		"https://cdn.example.com/a/report.PDF":      KindPDF,
		"https://cdn.example.com/a/photo.jpg?v=2":   KindImage,
		"https://cdn.example.com/a/photo.jpeg#frag": KindImage,
		"https://cdn.example.com/a/shot.png":        KindImage,
		"https://cdn.example.com/a/notes.txt":       KindOther,
		"https://cdn.example.com/a/no-extension":    KindOther,
	}
	for url, want := range cases {
		require.Equal(t, want, KindFromURL(url), url)
	}
	require.Equal(t, KindImage, KindFromURL("https://res.cloudinary.com/x/image/upload/v1/a.webp"))
}

func TestKindFromFileType(t *testing.T) {
	require.Equal(t, KindPDF, KindFromFileType("pdf"))
	require.Equal(t, KindImage, KindFromFileType("jpg"))
	require.Equal(t, KindImage, KindFromFileType(" PNG "))
	require.Equal(t, KindOther, KindFromFileType("docx"))
}

func TestFileRecordAttachmentFallsBackToURL(t *testing.T) {
	rec := FileRecord{URL: "https://x/y/doc.pdf", FileType: "raw"}
	require.Equal(t, Attachment{URL: "https://x/y/doc.pdf", Kind: KindPDF}, rec.Attachment())
}

func TestProviderString(t *testing.T) {
	require.Equal(t, "gemini", ProviderGemini.String())
	require.Equal(t, "groq", ProviderGroq.String())
	require.Equal(t, "openrouter", ProviderOpenRouter.String())
}

func TestSliceStream(t *testing.T) {
	s := NewSliceStream(Fragment{Text: "a"}, Fragment{Text: "b"})

	f, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, "a", f.Text)

	require.NoError(t, s.Close())
	_, err = s.Next()
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, s.Close())
}

func TestDrain(t *testing.T) {
	got, err := Drain(FailedStream("boom"))
	require.NoError(t, err)
	require.Equal(t, []Fragment{{Text: "boom", Failed: true}}, got)
}
