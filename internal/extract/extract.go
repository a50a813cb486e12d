// Package extract turns uploaded files into plain text for prompt enrichment.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ledongthuc/pdf"

	"promptpilot/internal/config"
)

// ErrOCRUnavailable is returned by ExtractImage when no OCR key is configured.
var ErrOCRUnavailable = errors.New("image text extraction is not configured")

// ErrTooLarge indicates a download exceeded the configured limit.
var ErrTooLarge = errors.New("attachment exceeds size limit")

// ErrMalformedPDF indicates a document the pdf parser could not read.
var ErrMalformedPDF = errors.New("malformed pdf")

// Extractor pulls text out of remote files.
type Extractor interface {
	ExtractPDF(ctx context.Context, fileURL string) (string, error)
	ExtractImage(ctx context.Context, fileURL string) (string, error)
}

// Client is the default Extractor. PDFs are parsed locally, images are sent
// to an OCR.space compatible endpoint.
type Client struct {
	client      *http.Client
	maxBytes    int64
	ocrEndpoint string
	ocrKey      string
}

// New creates an extraction client.
func New(cfg config.ExtractConfig, client *http.Client) (*Client, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 32 << 20
	}
	return &Client{
		client:      client,
		maxBytes:    maxBytes,
		ocrEndpoint: strings.TrimSpace(cfg.OCREndpoint),
		ocrKey:      strings.TrimSpace(cfg.OCRAPIKey),
	}, nil
}

// ExtractPDF downloads the document and returns its plain text.
func (c *Client) ExtractPDF(ctx context.Context, fileURL string) (string, error) {
	data, err := c.download(ctx, fileURL)
	if err != nil {
		return "", err
	}
	return PlainText(data)
}

// ExtractImage runs OCR on the image at fileURL.
func (c *Client) ExtractImage(ctx context.Context, fileURL string) (string, error) {
	if c.ocrKey == "" || c.ocrEndpoint == "" {
		return "", ErrOCRUnavailable
	}

	form := url.Values{}
	form.Set("url", fileURL)
	form.Set("apikey", c.ocrKey)
	form.Set("OCREngine", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ocrEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("construct ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read ocr response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ocr error status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed ocrResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", err)
	}
	if parsed.IsErroredOnProcessing {
		return "", fmt.Errorf("ocr processing failed: %s", parsed.errorMessage())
	}

	var sb strings.Builder
	for _, r := range parsed.ParsedResults {
		sb.WriteString(r.ParsedText)
	}
	return sb.String(), nil
}

type ocrResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// The service sends ErrorMessage either as a string or a list of strings.
func (r ocrResponse) errorMessage() string {
	var list []string
	if err := json.Unmarshal(r.ErrorMessage, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var single string
	if err := json.Unmarshal(r.ErrorMessage, &single); err == nil {
		return single
	}
	return "unknown error"
}

func (c *Client) download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("construct download request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("download %s: status %d", fileURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileURL, err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, fileURL)
	}
	return data, nil
}

// PlainText returns the text content of a PDF document. Malformed documents
// are reported as errors.
func PlainText(data []byte) (text string, err error) {
	defer recoverPDF(&err)

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(out), nil
}

// PageCount returns the number of pages in a PDF read from r.
func PageCount(r io.ReaderAt, size int64) (pages int, err error) {
	defer recoverPDF(&err)

	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	return doc.NumPage(), nil
}

// recoverPDF turns a panic raised by the pdf package on malformed input into
// an error.
func recoverPDF(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrMalformedPDF, r)
	}
}
