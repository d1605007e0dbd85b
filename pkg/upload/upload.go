package upload

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Config bounds what an upload endpoint accepts.
type Config struct {
	MaxSizeBytes     int64
	AllowedMimeTypes []string
	BasePath         string
}

// DefaultAvatarConfig accepts common image formats up to 5MB.
var DefaultAvatarConfig = Config{
	MaxSizeBytes: 5 * 1024 * 1024,
	AllowedMimeTypes: []string{
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
	},
	BasePath: "./uploads",
}

// SaveFile stores an uploaded file under BasePath/subdir with a random name,
// sniffing the content type rather than trusting the client's header.
// It returns the relative URL path the file is served back under.
func SaveFile(c *gin.Context, fileHeader *multipart.FileHeader, subdir string, configs ...Config) (string, error) {
	config := DefaultAvatarConfig
	if len(configs) > 0 {
		config = configs[0]
	}

	if fileHeader.Size > config.MaxSizeBytes {
		return "", fmt.Errorf("file size exceeds maximum limit of %d MB", config.MaxSizeBytes/(1024*1024))
	}

	src, err := fileHeader.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	buffer := make([]byte, 512)
	if _, err := src.Read(buffer); err != nil {
		return "", err
	}
	mimeType := http.DetectContentType(buffer)

	allowed := false
	for _, t := range config.AllowedMimeTypes {
		if mimeType == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("invalid file type. Allowed types: %v", config.AllowedMimeTypes)
	}

	dir := filepath.Join(config.BasePath, subdir)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", err
	}

	filename := uuid.New().String() + filepath.Ext(fileHeader.Filename)
	if err := c.SaveUploadedFile(fileHeader, filepath.Join(dir, filename)); err != nil {
		return "", err
	}

	return "/" + filepath.ToSlash(filepath.Join("uploads", subdir, filename)), nil
}
