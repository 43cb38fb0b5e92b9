package contextbuilder

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".tiff": true,
}

// isImagePath reports whether path's extension identifies an image
// attachment, the trigger for swapping raw bytes for a bounded preview
// descriptor.
func isImagePath(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

const maxPreviewDimension = 256

// describeImage decodes content and returns a short textual descriptor
// (format, original and bounded-preview dimensions) instead of embedding
// raw bytes in the prompt, keeping the token-budget bound meaningful
// for binary attachments.
func describeImage(path string, content []byte) string {
	img, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return fmt.Sprintf("<file_context>File: %s\n[image attachment, %d bytes, undecodable preview]</file_context>", path, len(content))
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	preview := imaging.Fit(img, maxPreviewDimension, maxPreviewDimension, imaging.Lanczos)
	pb := preview.Bounds()
	return fmt.Sprintf(
		"<file_context>File: %s\n[image attachment: format=%s original=%dx%d preview=%dx%d]</file_context>",
		path, format, w, h, pb.Dx(), pb.Dy())
}
