package services

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/vereinsheim/portal/internal/helpers"
	"github.com/vereinsheim/portal/internal/models"
)

// CDNUploader is the Cloudinary side of image storage.
type CDNUploader interface {
	UploadImage(ctx context.Context, source, folder string) (string, error)
}

// ContestImageStore is the Supabase bucket side of image storage.
type ContestImageStore interface {
	UploadContestImage(ctx context.Context, specialEventID uuid.UUID, name, contentType string, data []byte) (string, error)
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ImageService stores contest images on the CDN when configured and in the
// contest bucket otherwise or when the CDN upload fails.
type ImageService struct {
	cdn    CDNUploader
	store  ContestImageStore
	logger *slog.Logger
}

func NewImageService(cdn CDNUploader, store ContestImageStore, logger *slog.Logger) *ImageService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageService{cdn: cdn, store: store, logger: logger}
}

func (is *ImageService) StoreEntryImage(ctx context.Context, specialEventID uuid.UUID, image string) (string, error) {
	image = strings.TrimSpace(image)
	folder := path.Join(helpers.ContestFolder, specialEventID.String())

	if strings.HasPrefix(image, "data:") {
		mimeType, data, err := helpers.ParseDataURI(image)
		if err != nil {
			return "", models.NewValidationError("image", "Das Bild konnte nicht gelesen werden.")
		}
		ext, ok := imageExtensions[mimeType]
		if !ok {
			return "", models.NewValidationError("image", "Bitte laden Sie ein JPG-, PNG-, WebP- oder GIF-Bild hoch.")
		}
		if len(data) > models.MaxEntryImageSize {
			return "", models.NewValidationError("image", "Das Bild darf maximal 8 MB groß sein.")
		}

		if is.cdn != nil {
			secureURL, err := is.cdn.UploadImage(ctx, image, folder)
			if err == nil {
				return secureURL, nil
			}
			is.logger.Warn("cdn upload failed, using storage bucket",
				"special_event_id", specialEventID,
				"error", err,
			)
		}
		if is.store == nil {
			return "", errNoImageStore
		}
		return is.store.UploadContestImage(ctx, specialEventID, "entry"+ext, mimeType, data)
	}

	u, err := url.Parse(image)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return "", models.NewValidationError("image", "Bitte laden Sie ein Bild hoch.")
	}
	if is.cdn != nil {
		secureURL, err := is.cdn.UploadImage(ctx, image, folder)
		if err == nil {
			return secureURL, nil
		}
		is.logger.Warn("cdn fetch of remote image failed, keeping original url",
			"special_event_id", specialEventID,
			"error", err,
		)
	}
	return image, nil
}
