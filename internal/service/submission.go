package service

import (
	"github.com/deppfellow/cardrelay/internal/config"
	"github.com/deppfellow/cardrelay/internal/errs"
	"github.com/deppfellow/cardrelay/internal/upload"
	"github.com/deppfellow/cardrelay/internal/validation"
	"github.com/rs/xid"
)

// Form field names.
const (
	FieldName        = "name"
	FieldDesc        = "desc"
	FieldLabelID     = "label_id"
	FieldCover       = "cover"
	FieldAttachments = "attachments"
	FieldCoverFile   = "cover_file"
)

// Client-visible validation messages.
const (
	msgInsufficientData = "insufficient data"
	msgInvalidTypes     = "invalid types used in submitted data"
	msgInvalidLabelID   = "invalid label_id"
	msgTooManyCovers    = "only one cover file is allowed"
	msgEmptyLabelID     = "must not be empty when submitted"
)

// Submission is one validated form submission.
type Submission struct {
	// A lone "0" counts as no value, for name and desc alike.
	Name string `form:"name" validate:"required,ne=0"`
	// Desc is markdown and is forwarded untouched.
	Desc    string `form:"desc" validate:"required,ne=0"`
	LabelID string `form:"label_id" validate:"omitempty,trelloid"`

	// Token is embedded in the card name so the card can be found again.
	Token string `validate:"required"`

	Cover       *upload.File
	Attachments []*upload.File

	// CoverField names the attachment field whose file becomes the cover.
	// Only used by the field-keyed form variant.
	CoverField string
}

var _ validation.Validatable = (*Submission)(nil)

// Validate runs the struct tag rules.
func (s *Submission) Validate() error {
	return validation.Validator().Struct(s)
}

// CardName is the name the card is created with: "<name> [<token>]".
func (s *Submission) CardName() string {
	return s.Name + " [" + s.Token + "]"
}

// NewToken returns a correlation token: 20 characters, time ordered and
// unique across processes.
func NewToken() string {
	return xid.New().String()
}

// PrepareSubmission validates a spooled form and normalizes its files.
//
// Nothing here talks to the board, so every rejection happens before any
// side effect.
func (s *CardService) PrepareSubmission(form *upload.Form) (*Submission, error) {
	name, _, nameMultiple := form.Value(FieldName)
	desc, _, descMultiple := form.Value(FieldDesc)
	labelID, labelPresent, labelMultiple := form.Value(FieldLabelID)

	sub := &Submission{
		Name:    name,
		Desc:    desc,
		LabelID: labelID,
		Token:   NewToken(),
	}

	var fieldErrors []errs.FieldError
	failed := map[string]bool{}
	if err := sub.Validate(); err != nil {
		fieldErrors = validation.ExtractFieldErrors(err)
		for _, fe := range fieldErrors {
			failed[fe.Field] = true
		}
	}

	if failed[FieldName] || failed[FieldDesc] {
		return nil, errs.NewBadRequestError(msgInsufficientData).WithFieldErrors(fieldErrors)
	}

	// Name and description must be single text values.
	if nameMultiple || descMultiple || form.HasFile(FieldName) || form.HasFile(FieldDesc) {
		return nil, errs.NewBadRequestError(msgInvalidTypes)
	}

	if failed[FieldLabelID] || labelMultiple {
		return nil, errs.NewBadRequestError(msgInvalidLabelID).WithFieldErrors(fieldErrors)
	}

	// omitempty skips the tag check, but a submitted empty label is still a label.
	if labelPresent && labelID == "" {
		details := validation.CustomValidationErrors{{Field: FieldLabelID, Message: msgEmptyLabelID}}
		return nil, errs.NewBadRequestError(msgInvalidLabelID).WithFieldErrors(validation.ExtractFieldErrors(details))
	}

	if len(fieldErrors) > 0 {
		return nil, errs.NewBadRequestError(msgInsufficientData).WithFieldErrors(fieldErrors)
	}

	var err error
	switch s.formVariant {
	case config.FormVariantField:
		err = s.collectFieldKeyed(form, sub)
	default:
		err = s.collectFixed(form, sub)
	}
	if err != nil {
		return nil, err
	}

	return sub, nil
}

// collectFixed reads one image from "cover" and any files from "attachments".
func (s *CardService) collectFixed(form *upload.Form, sub *Submission) error {
	covers := form.FilesFor(FieldCover)
	if len(covers) > 1 {
		details := validation.CustomValidationErrors{{Field: FieldCover, Message: msgTooManyCovers}}
		return errs.NewBadRequestError(msgTooManyCovers).WithFieldErrors(validation.ExtractFieldErrors(details))
	}

	if len(covers) == 1 {
		cover, err := form.Normalize(covers[0], upload.NormalizeOptions{
			ImageOnly:       true,
			TrustClientType: s.trustClientType,
		})
		if err != nil {
			return err
		}
		sub.Cover = cover
	}

	for _, file := range form.FilesFor(FieldAttachments) {
		attachment, err := form.Normalize(file, upload.NormalizeOptions{
			TrustClientType: s.trustClientType,
		})
		if err != nil {
			return err
		}
		sub.Attachments = append(sub.Attachments, attachment)
	}

	return nil
}

// collectFieldKeyed accepts images under any field name; "cover_file" names
// the field whose file is set as cover.
func (s *CardService) collectFieldKeyed(form *upload.Form, sub *Submission) error {
	coverField, _, _ := form.Value(FieldCoverFile)
	sub.CoverField = coverField

	for _, file := range form.Files {
		attachment, err := form.Normalize(file, upload.NormalizeOptions{
			ImageOnly:       true,
			TrustClientType: s.trustClientType,
		})
		if err != nil {
			return err
		}
		sub.Attachments = append(sub.Attachments, attachment)
	}

	return nil
}
