// Package cloudinary は顧客写真をCloudinaryへ署名なしアップロードする。
package cloudinary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// MaxImageSize はアップロード可能な画像の最大サイズ（5MB）。
	MaxImageSize = 5 * 1024 * 1024

	// Folder はアップロード先フォルダ。
	Folder = "customers"

	defaultEndpointFormat = "https://api.cloudinary.com/v1_1/%s/image/upload"
)

// AllowedTypes はアップロード可能なContent-Type。
var AllowedTypes = []string{"image/png", "image/jpeg", "image/jpg", "image/webp", "image/gif"}

var (
	ErrNotConfigured   = errors.New("Cloudinary is not configured")
	ErrUnsupportedType = errors.New("Only PNG, JPG, WEBP, or GIF images are allowed")
	ErrTooLarge        = errors.New("Image must be smaller than 5MB")
	ErrNoURL           = errors.New("Cloudinary upload did not return a URL")
	ErrUploadFailed    = errors.New("Failed to upload image")
)

// Config はアップロード先の設定。
type Config struct {
	CloudName    string
	UploadPreset string
}

// Enabled はアップロードが設定されているかを返す。
func (c Config) Enabled() bool {
	return c.CloudName != "" && c.UploadPreset != ""
}

// URLValidator はCloudinaryが返したURLを検証する。security.OutboundGuardが実装する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Uploader は画像をCloudinaryへアップロードする。
type Uploader struct {
	cfg        Config
	httpClient *http.Client
	validator  URLValidator
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewUploader はUploaderを生成する。
// httpClientには外部通信を制限したクライアント（security.OutboundGuard.NewClient）を渡す。
func NewUploader(cfg Config, httpClient *http.Client, validator URLValidator, logger *slog.Logger) *Uploader {
	return &Uploader{
		cfg:        cfg,
		httpClient: httpClient,
		validator:  validator,
		logger:     logger,
		endpoint:   fmt.Sprintf(defaultEndpointFormat, cfg.CloudName),
	}
}

// Enabled はアップロードが設定されているかを返す。
func (u *Uploader) Enabled() bool {
	return u != nil && u.cfg.Enabled()
}

// ValidateImage はContent-Typeとサイズを検証する。
func ValidateImage(contentType string, size int64) error {
	if !isAllowedType(contentType) {
		return ErrUnsupportedType
	}
	if size > MaxImageSize {
		return ErrTooLarge
	}
	return nil
}

func isAllowedType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	for _, allowed := range AllowedTypes {
		if ct == allowed {
			return true
		}
	}
	return false
}

// Upload は画像をアップロードし、secure_urlを返す。
// 申告されたContent-Typeに加えて、先頭バイトから判定した実際の形式も検証する。
func (u *Uploader) Upload(ctx context.Context, filename, declaredType string, r io.Reader) (string, error) {
	if !u.Enabled() {
		return "", ErrNotConfigured
	}

	// 上限+1バイトまで読み込んでサイズ超過を判定する
	data, err := io.ReadAll(io.LimitReader(r, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if err := ValidateImage(declaredType, int64(len(data))); err != nil {
		return "", err
	}

	detected := mimetype.Detect(data)
	if !isAllowedType(detected.String()) {
		u.logger.WarnContext(ctx, "uploaded file content does not match an allowed image type",
			slog.String("declared", declaredType),
			slog.String("detected", detected.String()),
		)
		return "", ErrUnsupportedType
	}

	body, contentType, err := u.buildForm(filename, data)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		u.logger.ErrorContext(ctx, "cloudinary upload request failed",
			slog.String("error", err.Error()),
		)
		return "", ErrUploadFailed
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(payload)
		u.logger.WarnContext(ctx, "cloudinary rejected upload",
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", msg),
		)
		return "", errors.New(msg)
	}

	var result struct {
		SecureURL string `json:"secure_url"`
	}
	if err := json.Unmarshal(payload, &result); err != nil || result.SecureURL == "" {
		return "", ErrNoURL
	}
	if u.validator != nil {
		if err := u.validator.ValidateURL(result.SecureURL); err != nil {
			u.logger.WarnContext(ctx, "cloudinary returned an unsafe URL",
				slog.String("error", err.Error()),
			)
			return "", ErrNoURL
		}
	}

	return result.SecureURL, nil
}

func (u *Uploader) buildForm(filename string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if filename == "" {
		filename = "upload"
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := w.WriteField("upload_preset", u.cfg.UploadPreset); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("folder", Folder); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// errorMessage はCloudinaryのエラーボディからメッセージを取り出す。
// error.message、message の順に探し、どちらも無ければ既定のメッセージを返す。
func errorMessage(body []byte) string {
	var payload struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != nil && payload.Error.Message != "" {
			return payload.Error.Message
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return ErrUploadFailed.Error()
}
