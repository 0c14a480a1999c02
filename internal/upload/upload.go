// Package upload spools inbound multipart submissions to request-scoped
// temporary files and normalizes each uploaded file into a form that can
// be forwarded to the board API.
//
// Parts are read in wire order, so files keep the order the client sent
// them in. Everything spooled for one request lives in a single directory
// that Form.Remove deletes.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// ErrorCode is the transport-level outcome of receiving one file part.
type ErrorCode int

const (
	// ErrOK means the file arrived completely.
	ErrOK ErrorCode = iota
	// ErrTooLarge means the file exceeded the per-file size limit.
	ErrTooLarge
	// ErrNoFile means a file input was submitted without a file.
	ErrNoFile
	// ErrCantWrite means the spool file could not be written.
	ErrCantWrite
)

func (c ErrorCode) String() string {
	switch c {
	case ErrOK:
		return "ok"
	case ErrTooLarge:
		return "too_large"
	case ErrNoFile:
		return "no_file"
	case ErrCantWrite:
		return "cant_write"
	default:
		return fmt.Sprintf("error_code(%d)", int(c))
	}
}

// UploadedFile describes one received file part.
type UploadedFile struct {
	// Field is the form field name, with any trailing "[]" removed.
	Field string
	// Name is the filename exactly as the client sent it.
	Name string
	// DeclaredType is the part's Content-Type header.
	DeclaredType string
	// DetectedType is filled by Normalize from the file content.
	DetectedType string
	// TempPath is where the content was spooled. Empty unless Error is ErrOK.
	TempPath string
	Size     int64
	Error    ErrorCode
}

// Form is a parsed submission.
type Form struct {
	// Values holds text fields in arrival order per key.
	Values url.Values
	// Files holds file parts in arrival order.
	Files []*UploadedFile

	dir string
}

// Options controls spooling.
type Options struct {
	// TempDir is the parent of the per-request spool directory.
	TempDir string
	// MaxFileSize is the per-file limit in bytes. Zero means unlimited.
	MaxFileSize int64
	// MaxValueSize caps the total size of text fields.
	MaxValueSize int64
}

// DefaultMaxValueSize mirrors net/http's cap on non-file form data.
const DefaultMaxValueSize = 10 << 20

// ErrMalformedForm is returned when the body cannot be parsed as a form.
// The read error that caused it stays in the chain, so a body limit error
// from the caller's reader can still be matched.
var ErrMalformedForm = errors.New("malformed form data")

// Spool reads the request body and returns the parsed form.
//
// multipart/form-data bodies are streamed part by part; file parts go to
// temp files. url-encoded bodies carry no files. Any other content type
// yields an empty form, which then fails submission validation like a
// form with missing fields would.
//
// The caller must call Remove on the returned form.
func Spool(r *http.Request, opts Options) (*Form, error) {
	form := &Form{Values: url.Values{}}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedForm, err)
		}
		for key, values := range r.PostForm {
			form.Values[normalizeField(key)] = append(form.Values[normalizeField(key)], values...)
		}
		return form, nil
	default:
		return form, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedForm, err)
	}

	dir, err := os.MkdirTemp(opts.TempDir, "cardrelay-")
	if err != nil {
		return nil, fmt.Errorf("create spool directory: %w", err)
	}
	form.dir = dir

	if opts.MaxValueSize <= 0 {
		opts.MaxValueSize = DefaultMaxValueSize
	}
	valueBudget := opts.MaxValueSize

	for {
		part, err := mr.NextPart()
		// Only a bare io.EOF marks the closing boundary; a wrapped EOF is a
		// truncated body.
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = form.Remove()
			return nil, fmt.Errorf("%w: %w", ErrMalformedForm, err)
		}

		field, filename, isFile := describePart(part)
		if field == "" {
			_ = part.Close()
			continue
		}

		if !isFile {
			var buf bytes.Buffer
			n, err := io.CopyN(&buf, part, valueBudget+1)
			if err != nil && !errors.Is(err, io.EOF) {
				_ = form.Remove()
				return nil, fmt.Errorf("%w: %w", ErrMalformedForm, err)
			}
			valueBudget -= n
			if valueBudget < 0 {
				_ = form.Remove()
				return nil, fmt.Errorf("%w: text fields too large", ErrMalformedForm)
			}
			form.Values.Add(field, buf.String())
			continue
		}

		file, err := form.spoolFile(part, field, filename, opts.MaxFileSize)
		if err != nil {
			_ = form.Remove()
			return nil, fmt.Errorf("%w: read %s: %w", ErrMalformedForm, field, err)
		}
		form.Files = append(form.Files, file)
	}

	return form, nil
}

// describePart reads the raw Content-Disposition header.
//
// Part.FileName applies filepath.Base, which hides the name the client
// actually sent; the relay needs the raw name to decide whether to keep it.
func describePart(part *multipart.Part) (field, filename string, isFile bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return "", "", false
	}
	filename, isFile = params["filename"]
	return normalizeField(params["name"]), filename, isFile
}

// normalizeField strips the "[]" suffix browsers and PHP-style clients use
// for repeated fields.
func normalizeField(name string) string {
	return strings.TrimSuffix(name, "[]")
}

// spoolFile writes one file part to the spool directory.
//
// A failure to read the body is returned as an error; the stream cannot be
// resumed after it. Local write failures only mark the file.
func (f *Form) spoolFile(part *multipart.Part, field, filename string, maxSize int64) (*UploadedFile, error) {
	defer part.Close()

	file := &UploadedFile{
		Field:        field,
		Name:         filename,
		DeclaredType: part.Header.Get("Content-Type"),
	}

	if filename == "" {
		// Drain whatever an empty file input carried.
		if _, err := io.Copy(io.Discard, part); err != nil {
			return nil, err
		}
		file.Error = ErrNoFile
		return file, nil
	}

	tmp, err := os.CreateTemp(f.dir, "upload-")
	if err != nil {
		if _, err := io.Copy(io.Discard, part); err != nil {
			return nil, err
		}
		file.Error = ErrCantWrite
		return file, nil
	}
	defer tmp.Close()

	src := &bodyReader{r: part}
	var limited io.Reader = src
	if maxSize > 0 {
		limited = io.LimitReader(src, maxSize+1)
	}

	n, err := io.Copy(tmp, limited)
	switch {
	case src.err != nil:
		_ = os.Remove(tmp.Name())
		return nil, src.err
	case err != nil:
		_, _ = io.Copy(io.Discard, src)
		file.Error = ErrCantWrite
	case maxSize > 0 && n > maxSize:
		if _, err := io.Copy(io.Discard, src); err != nil {
			_ = os.Remove(tmp.Name())
			return nil, err
		}
		file.Error = ErrTooLarge
	default:
		file.TempPath = tmp.Name()
		file.Size = n
		return file, nil
	}

	_ = os.Remove(tmp.Name())
	if src.err != nil {
		return nil, src.err
	}
	return file, nil
}

// bodyReader remembers the first read error other than io.EOF, so read
// failures can be told apart from write failures after io.Copy.
type bodyReader struct {
	r   io.Reader
	err error
}

func (b *bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF && b.err == nil {
		b.err = err
	}
	return n, err
}

// Value returns the single value of a text field.
//
// ok is false when the field is absent. multiple is true when the field was
// sent more than once.
func (f *Form) Value(field string) (value string, ok, multiple bool) {
	values, ok := f.Values[field]
	if !ok || len(values) == 0 {
		return "", false, false
	}
	return values[0], true, len(values) > 1
}

// HasFile reports whether any file part used the field name.
func (f *Form) HasFile(field string) bool {
	for _, file := range f.Files {
		if file.Field == field {
			return true
		}
	}
	return false
}

// FilesFor returns the files sent under a field, in arrival order.
func (f *Form) FilesFor(field string) []*UploadedFile {
	var files []*UploadedFile
	for _, file := range f.Files {
		if file.Field == field {
			files = append(files, file)
		}
	}
	return files
}

// Dir is the spool directory. Empty when nothing was spooled.
func (f *Form) Dir() string {
	return f.dir
}

// Remove deletes every spooled file.
func (f *Form) Remove() error {
	if f.dir == "" {
		return nil
	}
	dir := f.dir
	f.dir = ""
	return os.RemoveAll(dir)
}
