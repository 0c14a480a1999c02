package upload_test

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/deppfellow/cardrelay/internal/errs"
	"github.com/deppfellow/cardrelay/internal/trellotest"
	"github.com/deppfellow/cardrelay/internal/upload"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var generatedName = regexp.MustCompile(`^[0-9a-v]{20}(\.[a-zA-Z0-9]+)?$`)

func requireHTTPError(t *testing.T, err error, status int, message string) {
	t.Helper()

	var httpErr *errs.HTTPError
	require.True(t, errors.As(err, &httpErr), "expected *errs.HTTPError, got %v", err)
	assert.Equal(t, status, httpErr.Status)
	assert.Equal(t, message, httpErr.Message)
}

func TestNormalize_Images(t *testing.T) {
	tests := []struct {
		name         string
		filename     string
		contentType  string
		content      []byte
		wantFilename string
		wantPattern  bool
	}{
		{
			name:         "safe name is kept",
			filename:     "my-photo_1.JPG",
			contentType:  "image/jpeg",
			content:      trellotest.JPEG(),
			wantFilename: "my-photo_1.JPG",
		},
		{
			name:        "traversal name is replaced",
			filename:    "../../etc/passwd",
			contentType: "image/png",
			content:     trellotest.PNG(),
			wantPattern: true,
		},
		{
			name:        "name with spaces is replaced",
			filename:    "holiday photo.png",
			contentType: "image/png",
			content:     trellotest.PNG(),
			wantPattern: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := spool(t, trellotest.NewForm().File("cover", tt.filename, tt.contentType, tt.content), upload.Options{})

			file, err := form.Normalize(form.Files[0], upload.NormalizeOptions{ImageOnly: true})
			require.NoError(t, err)

			assert.Equal(t, "cover", file.Field)
			assert.Equal(t, tt.contentType, file.ContentType)
			assert.Equal(t, form.Files[0].TempPath, file.Path)
			assert.Equal(t, tt.contentType, form.Files[0].DetectedType)

			if tt.wantPattern {
				assert.Regexp(t, generatedName, file.Filename)
				assert.NotEqual(t, tt.filename, file.Filename)
				return
			}
			assert.Equal(t, tt.wantFilename, file.Filename)
		})
	}
}

func TestNormalize_GeneratedNameCarriesCanonicalSuffix(t *testing.T) {
	form := spool(t, trellotest.NewForm().
		File("cover", "../../etc/passwd", "image/png", trellotest.PNG()).
		File("cover", "bad name.jpeg", "image/jpeg", trellotest.JPEG()),
		upload.Options{})

	png, err := form.Normalize(form.Files[0], upload.NormalizeOptions{ImageOnly: true})
	require.NoError(t, err)
	assert.Regexp(t, `\.png$`, png.Filename)

	jpeg, err := form.Normalize(form.Files[1], upload.NormalizeOptions{ImageOnly: true})
	require.NoError(t, err)
	assert.Regexp(t, `\.jpg$`, jpeg.Filename)
}

func TestNormalize_AnyTypeAttachment(t *testing.T) {
	form := spool(t, trellotest.NewForm().
		File("attachments", "report.pdf", "application/pdf", trellotest.PDF()).
		File("attachments", "notes (final).txt", "text/plain", trellotest.Text()).
		File("attachments", "weird name.t%t", "text/plain", trellotest.Text()),
		upload.Options{})

	pdf, err := form.Normalize(form.Files[0], upload.NormalizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", pdf.Filename)

	txt, err := form.Normalize(form.Files[1], upload.NormalizeOptions{})
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-v]{20}\.txt$`, txt.Filename)

	// A suffix that is not alphanumeric is dropped.
	odd, err := form.Normalize(form.Files[2], upload.NormalizeOptions{})
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-v]{20}$`, odd.Filename)
}

func TestNormalize_Rejections(t *testing.T) {
	t.Run("type not allowed on image-only field", func(t *testing.T) {
		form := spool(t, trellotest.NewForm().File("cover", "doc.pdf", "application/pdf", trellotest.PDF()), upload.Options{})

		_, err := form.Normalize(form.Files[0], upload.NormalizeOptions{ImageOnly: true})
		requireHTTPError(t, err, http.StatusForbidden, "type application/pdf is not allowed for doc.pdf")
	})

	t.Run("declared type differs from content", func(t *testing.T) {
		form := spool(t, trellotest.NewForm().File("cover", "fake.png", "image/png", trellotest.JPEG()), upload.Options{})

		_, err := form.Normalize(form.Files[0], upload.NormalizeOptions{ImageOnly: true})
		requireHTTPError(t, err, http.StatusBadRequest, "wrong type image/jpeg for fake.png")
	})

	t.Run("transport error", func(t *testing.T) {
		form := spool(t, trellotest.NewForm().File("attachments", "big.pdf", "application/pdf", trellotest.PDF()), upload.Options{MaxFileSize: 8})

		_, err := form.Normalize(form.Files[0], upload.NormalizeOptions{})
		requireHTTPError(t, err, http.StatusBadRequest, "upload of attachment big.pdf failed")
	})

	t.Run("file not spooled by this form", func(t *testing.T) {
		form := spool(t, trellotest.NewForm().File("attachments", "a.txt", "text/plain", trellotest.Text()), upload.Options{})
		other := spool(t, trellotest.NewForm().File("attachments", "b.txt", "text/plain", trellotest.Text()), upload.Options{})

		_, err := form.Normalize(other.Files[0], upload.NormalizeOptions{})
		requireHTTPError(t, err, http.StatusBadRequest, "refused possible file upload attack for b.txt")
	})
}

func TestNormalize_TrustClientType(t *testing.T) {
	// The content is a PDF but the declared type is taken as is.
	form := spool(t, trellotest.NewForm().File("cover", "cover.png", "image/png", trellotest.PDF()), upload.Options{})

	file, err := form.Normalize(form.Files[0], upload.NormalizeOptions{ImageOnly: true, TrustClientType: true})
	require.NoError(t, err)
	assert.Equal(t, "cover.png", file.Filename)
	assert.Equal(t, "image/png", form.Files[0].DetectedType)
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "a.png", upload.SafeFilename("a.png", "png"))
	assert.Equal(t, "A-b_c.tar", upload.SafeFilename("A-b_c.tar", "tar"))
	assert.Regexp(t, generatedName, upload.SafeFilename(".hidden", ""))
	assert.Regexp(t, `\.gif$`, upload.SafeFilename("no-extension", "gif"))
	assert.Regexp(t, `^[0-9a-v]{20}$`, upload.SafeFilename("", ""))
}
