package agent

import (
	"strings"

	"github.com/feichai0017/document-ingest/internal/models"
)

// extension sets per category; extension lookup wins over the media type
var extCategories = map[string]models.Category{
	"doc":  models.CategoryWord,
	"docx": models.CategoryWord,

	"xls":  models.CategoryExcel,
	"xlsx": models.CategoryExcel,
	"csv":  models.CategoryExcel,

	"ppt":  models.CategoryPPT,
	"pptx": models.CategoryPPT,

	"pdf": models.CategoryPDF,

	"txt":  models.CategoryText,
	"md":   models.CategoryText,
	"json": models.CategoryText,
	"task": models.CategoryText,
	"xml":  models.CategoryText,
	"html": models.CategoryText,
	"htm":  models.CategoryText,
	"css":  models.CategoryText,
	"js":   models.CategoryText,
	"ts":   models.CategoryText,
	"py":   models.CategoryText,
	"go":   models.CategoryText,
	"java": models.CategoryText,
	"sh":   models.CategoryText,
	"sql":  models.CategoryText,
	"yaml": models.CategoryText,
	"yml":  models.CategoryText,
	"log":  models.CategoryText,
	"ini":  models.CategoryText,

	"jpg":  models.CategoryImage,
	"jpeg": models.CategoryImage,
	"png":  models.CategoryImage,
	"gif":  models.CategoryImage,
	"bmp":  models.CategoryImage,
	"webp": models.CategoryImage,
	"tif":  models.CategoryImage,
	"tiff": models.CategoryImage,

	// audio and video are recognized but never extracted
	"mp3":  models.CategoryUnknown,
	"wav":  models.CategoryUnknown,
	"ogg":  models.CategoryUnknown,
	"mp4":  models.CategoryUnknown,
	"mov":  models.CategoryUnknown,
	"webm": models.CategoryUnknown,
}

var textMediaMarkers = []string{"text/", "json", "javascript", "ecmascript", "script", "xml", "html", "markdown", "yaml"}

// Classify maps a file name and declared media type to a category.
func Classify(name, mediaType string) models.Category {
	if c, ok := extCategories[models.Extension(name)]; ok {
		return c
	}

	mt := strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case mt == "":
		return models.CategoryUnknown
	case strings.HasPrefix(mt, "audio/"), strings.HasPrefix(mt, "video/"):
		return models.CategoryUnknown
	case strings.Contains(mt, "word"):
		return models.CategoryWord
	case strings.Contains(mt, "spreadsheet"), strings.Contains(mt, "excel"), strings.Contains(mt, "csv"):
		return models.CategoryExcel
	case strings.Contains(mt, "powerpoint"), strings.Contains(mt, "presentation"):
		return models.CategoryPPT
	case strings.Contains(mt, "pdf"):
		return models.CategoryPDF
	case strings.HasPrefix(mt, "image/"):
		return models.CategoryImage
	}
	for _, marker := range textMediaMarkers {
		if strings.Contains(mt, marker) {
			return models.CategoryText
		}
	}
	return models.CategoryUnknown
}

// IsTaskFile reports whether name denotes an executable task file.
func IsTaskFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".task") ||
		strings.HasSuffix(lower, ".task.json") ||
		strings.HasSuffix(lower, ".task.yaml") ||
		strings.HasSuffix(lower, ".task.yml")
}
