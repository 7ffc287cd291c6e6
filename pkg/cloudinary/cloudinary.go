package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service stores grading files in Cloudinary and reads them back over HTTP.
type Service struct {
	client  *cloudinary.Cloudinary
	folder  string
	fetcher *Fetcher
	logger  zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, fetcher *Fetcher, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	if fetcher == nil {
		fetcher = NewFetcher(0, logger)
	}

	return &Service{
		client:  cld,
		folder:  strings.Trim(cfg.Folder, "/"),
		fetcher: fetcher,
		logger:  logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload stores the reader under storagePath, replacing any asset already there,
// and returns its public URL.
func (s *Service) Upload(ctx context.Context, storagePath string, reader io.Reader) (string, error) {
	publicID := BuildPublicID(storagePath)
	if publicID == "" {
		return "", fmt.Errorf("storage path %q has no usable name", storagePath)
	}

	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID,
		Overwrite:    api.Bool(true),
		ResourceType: "auto",
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return "", fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("file uploaded to cloudinary")

	return result.SecureURL, nil
}

// Fetch downloads a stored asset by its public URL.
func (s *Service) Fetch(ctx context.Context, fileURL string) ([]byte, error) {
	return s.fetcher.Fetch(ctx, fileURL)
}

// BuildPublicID turns a slash separated storage path into a Cloudinary public id.
// Every segment keeps only ASCII letters, digits, dots, dashes and underscores; the
// extension of the last segment is dropped because Cloudinary appends its own.
func BuildPublicID(storagePath string) string {
	segments := strings.Split(strings.Trim(storagePath, "/"), "/")
	cleaned := make([]string, 0, len(segments))
	for i, segment := range segments {
		if i == len(segments)-1 {
			segment = strings.TrimSuffix(segment, path.Ext(segment))
		}
		segment = strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				return r
			case r == '-', r == '_', r == '.':
				return r
			default:
				return '-'
			}
		}, segment)
		segment = strings.Trim(segment, "-.")
		if segment != "" {
			cleaned = append(cleaned, segment)
		}
	}

	return strings.Join(cleaned, "/")
}
