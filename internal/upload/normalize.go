package upload

import (
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/deppfellow/cardrelay/internal/errs"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/xid"
)

// File is a normalized upload, ready to be sent as a multipart file part.
type File struct {
	// Field is the form field the file arrived under.
	Field string
	// Path is the spooled content.
	Path string
	// ContentType is the client-declared type, which Normalize has checked
	// against the authoritative type.
	ContentType string
	// Filename is safe to hand to the board API.
	Filename string
	Size     int64
}

// NormalizeOptions selects the checks applied by Normalize.
type NormalizeOptions struct {
	// ImageOnly restricts uploads to PNG, JPEG and GIF.
	ImageOnly bool
	// TrustClientType takes the declared type as authoritative instead of
	// sniffing the content.
	TrustClientType bool
}

// imageSuffixes maps the accepted image types to their canonical suffix.
var imageSuffixes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/gif":  "gif",
}

var (
	safeFilename = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*\.[a-zA-Z0-9]+$`)
	safeSuffix   = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// Normalize validates one uploaded file and returns its forwardable form.
//
// Checks, in order:
//  1. the transport error code is ErrOK (400)
//  2. the file is a genuine upload of this form (400)
//  3. with ImageOnly, the authoritative type is png/jpeg/gif (403)
//  4. the declared type equals the authoritative type (400)
//
// Filenames not matching the safe pattern are replaced with a generated
// name carrying the canonical suffix.
func (f *Form) Normalize(file *UploadedFile, opts NormalizeOptions) (*File, error) {
	if file.Error != ErrOK {
		return nil, errs.NewBadRequestError("upload of attachment " + file.Name + " failed")
	}

	if !f.IsGenuine(file) {
		return nil, errs.NewBadRequestError("refused possible file upload attack for " + file.Name)
	}

	fileType := mediaType(file.DeclaredType)
	if !opts.TrustClientType {
		detected, err := mimetype.DetectFile(file.TempPath)
		if err != nil {
			return nil, errs.NewBadRequestError("upload of attachment " + file.Name + " failed")
		}
		fileType = mediaType(detected.String())
	}
	file.DetectedType = fileType

	var suffix string
	if opts.ImageOnly {
		var ok bool
		suffix, ok = imageSuffixes[fileType]
		if !ok {
			return nil, errs.NewForbiddenError(fmt.Sprintf("type %s is not allowed for %s", fileType, file.Name))
		}
	} else {
		suffix = strings.TrimPrefix(filepath.Ext(file.Name), ".")
		if !safeSuffix.MatchString(suffix) {
			suffix = ""
		}
	}

	if mediaType(file.DeclaredType) != fileType {
		return nil, errs.NewBadRequestError(fmt.Sprintf("wrong type %s for %s", fileType, file.Name))
	}

	return &File{
		Field:       file.Field,
		Path:        file.TempPath,
		ContentType: file.DeclaredType,
		Filename:    SafeFilename(file.Name, suffix),
		Size:        file.Size,
	}, nil
}

// SafeFilename keeps name when it matches the safe pattern and otherwise
// generates a unique one, e.g. "../../etc/passwd" -> "d0q4p2ho7v2lb6a1ke60.png".
func SafeFilename(name, suffix string) string {
	if safeFilename.MatchString(name) {
		return name
	}
	generated := xid.New().String()
	if suffix == "" {
		return generated
	}
	return generated + "." + suffix
}

// mediaType drops parameters and case: "text/plain; charset=utf-8" -> "text/plain".
func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
