package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cppla/aiblog/utils"
)

// TitleMaxLength is the longest title accepted, in characters.
const TitleMaxLength = 255

// DraftFlag records whether save_as_draft was submitted and whether it
// carried a value. Any value counts, including "0" and false; only null and
// empty strings leave the flag unfilled.
type DraftFlag struct {
	Present bool
	Filled  bool
}

// UnmarshalJSON marks the flag present; null and empty strings leave it unfilled.
func (f *DraftFlag) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	*f = DraftFlag{Present: true, Filled: raw != "null" && filledValue(strings.Trim(raw, `"`))}
	return nil
}

// DraftFlagFromForm builds the flag from a form value and whether the key was sent.
func DraftFlagFromForm(value string, present bool) DraftFlag {
	if !present {
		return DraftFlag{}
	}
	return DraftFlag{Present: true, Filled: filledValue(value)}
}

func filledValue(v string) bool {
	return strings.TrimSpace(v) != ""
}

// CreatePostInput is the payload for a new post.
type CreatePostInput struct {
	Title         string    `json:"title" validate:"required,max=255"`
	Content       string    `json:"content" validate:"required"`
	PublishedDate string    `json:"published_date" validate:"required"`
	SaveAsDraft   DraftFlag `json:"save_as_draft" validate:"-"`
}

// UpdatePostInput is a partial update; nil fields were not submitted.
type UpdatePostInput struct {
	Title         *string   `json:"title" validate:"omitnil,required,max=255"`
	Content       *string   `json:"content" validate:"omitnil,required"`
	PublishedDate *string   `json:"published_date" validate:"omitnil,required"`
	SaveAsDraft   DraftFlag `json:"save_as_draft" validate:"-"`
}

var publishedDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParsePublishedDate accepts RFC 3339, HTML datetime-local, SQL datetime and
// plain dates. Values without an offset are read in loc; a plain date means
// midnight.
func ParsePublishedDate(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range publishedDateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

func clean(s string) string {
	return strings.TrimSpace(utils.Sanitize(s))
}

func cleanTitle(s string) string {
	return strings.TrimSpace(utils.SanitizeText(s))
}

func cleanPtr(s *string, fn func(string) string) *string {
	if s == nil {
		return nil
	}
	c := fn(*s)
	return &c
}

func (s *PostService) checkStruct(in interface{}) *ValidationError {
	verr := &ValidationError{}
	err := s.validate.Struct(in)
	if err == nil {
		return verr
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add("payload", err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		verr.add(fe.Field(), fieldMessage(fe))
	}
	return verr
}

func (s *PostService) checkDate(verr *ValidationError, raw string) time.Time {
	if _, failed := verr.Fields["published_date"]; failed || raw == "" {
		return time.Time{}
	}
	t, err := ParsePublishedDate(raw, s.loc)
	if err != nil {
		verr.add("published_date", "The published date field must be a valid date.")
	}
	return t
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", name)
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", name, fe.Param())
	}
	return fmt.Sprintf("The %s field is invalid.", name)
}
