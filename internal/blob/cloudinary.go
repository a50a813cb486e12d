// Package blob deletes uploaded files from blob storage.
package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"promptpilot/internal/config"
)

// ErrDisabled is returned when blob storage credentials are not configured.
var ErrDisabled = errors.New("blob storage is not configured")

// Deleter removes a stored blob by its public id.
type Deleter interface {
	Delete(ctx context.Context, publicID string) error
}

// destroyer is the subset of the Cloudinary upload API used here.
type destroyer interface {
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// Cloudinary deletes assets through the Cloudinary upload API.
type Cloudinary struct {
	api destroyer
}

// NewCloudinary builds a deleter from configuration.
func NewCloudinary(cfg config.BlobConfig) (*Cloudinary, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("blob: init cloudinary: %w", err)
	}
	return &Cloudinary{api: &cld.Upload}, nil
}

// Delete destroys the asset and invalidates cached copies. A blob that no
// longer exists is not an error.
func (c *Cloudinary) Delete(ctx context.Context, publicID string) error {
	res, err := c.api.Destroy(ctx, uploader.DestroyParams{
		PublicID:   publicID,
		Invalidate: api.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("blob: destroy %s: %w", publicID, err)
	}
	if res == nil {
		return nil
	}
	if res.Error.Message != "" {
		return fmt.Errorf("blob: destroy %s: %s", publicID, res.Error.Message)
	}
	switch res.Result {
	case "", "ok", "not found":
		return nil
	default:
		return fmt.Errorf("blob: destroy %s: unexpected result %q", publicID, res.Result)
	}
}

// Noop is used when blob storage is not configured; it only reports that
// nothing was deleted.
type Noop struct{}

func (Noop) Delete(context.Context, string) error {
	return ErrDisabled
}
