package trellotest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// Form builds multipart/form-data bodies the way browsers send them: parts
// in call order, filenames sent verbatim.
type Form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

// NewForm starts an empty form.
func NewForm() *Form {
	f := &Form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

// Field adds a text field.
func (f *Form) Field(name, value string) *Form {
	if f.err == nil {
		f.err = f.w.WriteField(name, value)
	}
	return f
}

// File adds a file part. An empty contentType omits the header.
func (f *Form) File(field, filename, contentType string, content []byte) *Form {
	if f.err != nil {
		return f
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}

	part, err := f.w.CreatePart(h)
	if err != nil {
		f.err = err
		return f
	}
	_, f.err = part.Write(content)
	return f
}

// Request closes the form and returns a request carrying it.
func (f *Form) Request(method, target string) (*http.Request, error) {
	body, contentType, err := f.Body()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

// Body closes the form and returns the body and its content type.
func (f *Form) Body() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	if err := f.w.Close(); err != nil {
		return nil, "", err
	}
	return &f.buf, f.w.FormDataContentType(), nil
}

// PNG returns a valid 2x2 PNG image.
func PNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG returns bytes carrying a JPEG signature, enough for content sniffing.
func JPEG() []byte {
	return append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, bytes.Repeat([]byte{0}, 64)...)
}

// PDF returns a minimal PDF document.
func PDF() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
}

// Text returns plain text content.
func Text() []byte {
	return []byte(strings.Repeat("relay notes\n", 4))
}
