package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"promptpilot/internal/extract"
	"promptpilot/internal/metrics"
	"promptpilot/internal/models"
	"promptpilot/internal/provider"
)

const maxStagedBytes = 50 << 20

var errStagedTooLarge = errors.New("attachment exceeds staging limit")

type stagedFile struct {
	path     string
	mimeType string
	name     string
	size     int64
}

type uploadedFile struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
	State    string `json:"state"`
}

// attach stages and uploads every image or pdf attachment and returns the
// resulting file parts. Attachments that fail are logged and skipped.
func (p *Provider) attach(ctx context.Context, c *apiClient, attachments []models.Attachment) []part {
	var parts []part
	for _, att := range attachments {
		if att.Kind != models.KindImage && att.Kind != models.KindPDF {
			continue
		}
		fp, err := p.stageAndUpload(ctx, c, att)
		if err != nil {
			slog.Warn("gemini attachment skipped", "url", att.URL, "err", err)
			continue
		}
		parts = append(parts, fp)
	}
	return parts
}

func (p *Provider) stageAndUpload(ctx context.Context, c *apiClient, att models.Attachment) (part, error) {
	staged, err := p.stage(ctx, att)
	if err != nil {
		metrics.AttachmentFailed(metrics.StageStage)
		return part{}, err
	}
	defer os.Remove(staged.path)

	uploaded, err := c.upload(ctx, staged)
	if err != nil {
		metrics.AttachmentFailed(metrics.StageUpload)
		return part{}, err
	}

	mimeType := uploaded.MimeType
	if mimeType == "" {
		mimeType = staged.mimeType
	}
	return part{FileData: &fileData{MimeType: mimeType, FileURI: uploaded.URI}}, nil
}

// stage downloads the attachment into the staging directory. On success the
// caller removes the file; on any other exit it is removed here.
func (p *Provider) stage(ctx context.Context, att models.Attachment) (stagedFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return stagedFile{}, fmt.Errorf("construct download request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return stagedFile{}, fmt.Errorf("download %s: %w", att.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return stagedFile{}, fmt.Errorf("download %s: status %d", att.URL, resp.StatusCode)
	}

	name := fileName(att.URL)
	f, err := os.CreateTemp(p.stagingDir, "gemini-*"+path.Ext(name))
	if err != nil {
		return stagedFile{}, fmt.Errorf("create staging file: %w", err)
	}

	staged := false
	defer func() {
		if !staged {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	size, err := io.Copy(f, io.LimitReader(resp.Body, maxStagedBytes+1))
	if err == nil && size > maxStagedBytes {
		err = errStagedTooLarge
	}
	if err == nil && att.Kind == models.KindPDF {
		logPageCount(f, size, att.URL)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return stagedFile{}, fmt.Errorf("stage %s: %w", att.URL, err)
	}

	staged = true
	return stagedFile{
		path:     f.Name(),
		mimeType: mimeTypeFor(att, resp.Header.Get("Content-Type")),
		name:     name,
		size:     size,
	}, nil
}

func logPageCount(f *os.File, size int64, url string) {
	pages, err := extract.PageCount(f, size)
	if err != nil {
		slog.Warn("pdf page count failed", "url", url, "err", err)
		return
	}
	slog.Debug("staged pdf", "url", url, "pages", pages)
}

// upload sends a staged file through the resumable Files API protocol.
func (c *apiClient) upload(ctx context.Context, f stagedFile) (uploadedFile, error) {
	meta, err := json.Marshal(map[string]any{"file": map[string]string{"display_name": f.name}})
	if err != nil {
		return uploadedFile{}, fmt.Errorf("marshal upload metadata: %w", err)
	}

	startReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/v1beta/files", bytes.NewReader(meta))
	if err != nil {
		return uploadedFile{}, fmt.Errorf("construct upload request: %w", err)
	}
	startReq.Header.Set("Content-Type", "application/json")
	startReq.Header.Set("X-Goog-Api-Key", c.key)
	startReq.Header.Set("X-Goog-Upload-Protocol", "resumable")
	startReq.Header.Set("X-Goog-Upload-Command", "start")
	startReq.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.FormatInt(f.size, 10))
	startReq.Header.Set("X-Goog-Upload-Header-Content-Type", f.mimeType)

	startResp, err := c.http.Do(startReq)
	if err != nil {
		return uploadedFile{}, fmt.Errorf("start upload: %w", err)
	}
	defer startResp.Body.Close()
	if startResp.StatusCode >= 300 {
		return uploadedFile{}, provider.ParseAPIError(providerName, startResp)
	}

	uploadURL := startResp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return uploadedFile{}, errors.New("upload session did not return an upload url")
	}

	data, err := os.Open(f.path)
	if err != nil {
		return uploadedFile{}, fmt.Errorf("open staged file: %w", err)
	}
	defer data.Close()

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, data)
	if err != nil {
		return uploadedFile{}, fmt.Errorf("construct upload request: %w", err)
	}
	putReq.ContentLength = f.size
	putReq.Header.Set("X-Goog-Api-Key", c.key)
	putReq.Header.Set("X-Goog-Upload-Command", "upload, finalize")
	putReq.Header.Set("X-Goog-Upload-Offset", "0")

	putResp, err := c.http.Do(putReq)
	if err != nil {
		return uploadedFile{}, fmt.Errorf("upload file: %w", err)
	}
	defer putResp.Body.Close()
	if putResp.StatusCode >= 300 {
		return uploadedFile{}, provider.ParseAPIError(providerName, putResp)
	}

	var out struct {
		File uploadedFile `json:"file"`
	}
	if err := provider.DecodeJSON(putResp.Body, &out); err != nil {
		return uploadedFile{}, err
	}
	if out.File.URI == "" {
		return uploadedFile{}, errors.New("upload response did not include a file uri")
	}
	return out.File, nil
}

func fileName(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	name := path.Base(p)
	if name == "." || name == "/" {
		return "attachment"
	}
	return name
}

func mimeTypeFor(att models.Attachment, contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if mt == "application/pdf" || strings.HasPrefix(mt, "image/") {
			return mt
		}
	}
	if att.Kind == models.KindPDF {
		return "application/pdf"
	}
	if mt := mime.TypeByExtension(strings.ToLower(path.Ext(fileName(att.URL)))); strings.HasPrefix(mt, "image/") {
		return mt
	}
	return "image/jpeg"
}
