package workflow

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/de-tools/market-atlas/pkg/models/domain"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

type competitorSubmission struct {
	Name      string `json:"name"`
	Site      string `json:"site" validate:"required_with=Twitter Instagram Facebook"`
	Twitter   string `json:"twitter"`
	Instagram string `json:"instagram"`
	Facebook  string `json:"facebook"`
}

type submission struct {
	OwnerID     string                 `json:"owner_id" validate:"required"`
	OwnerSite   string                 `json:"owner_site" validate:"required"`
	Competitors []competitorSubmission `json:"competitors" validate:"dive"`
}

var messages = map[string]string{
	"required":      "is required",
	"required_with": "is required when social identifiers are given",
}

// validateSubmission normalises the input and checks it. Competitors with no
// identifiers at all are dropped.
func validateSubmission(in domain.SubmitInput, maxCompetitors int) (domain.SubmitInput, error) {
	out := in
	out.OwnerID = strings.TrimSpace(in.OwnerID)
	out.OwnerSite = strings.TrimSpace(in.OwnerSite)
	out.OwnerName = strings.TrimSpace(in.OwnerName)
	out.Competitors = nil

	s := submission{OwnerID: out.OwnerID, OwnerSite: out.OwnerSite}
	for _, c := range in.Competitors {
		if strings.TrimSpace(c.Name) == "" && len(populated(c.Credentials)) == 0 {
			continue
		}
		out.Competitors = append(out.Competitors, c)
		s.Competitors = append(s.Competitors, competitorSubmission{
			Name:      strings.TrimSpace(c.Name),
			Site:      c.Credentials.Get(domain.FieldWebsite),
			Twitter:   c.Credentials.Get(domain.FieldTwitter),
			Instagram: c.Credentials.Get(domain.FieldInstagram),
			Facebook:  c.Credentials.Get(domain.FieldFacebook),
		})
	}

	fields := map[string]string{}
	if err := getValidator().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.SubmitInput{}, err
		}
		for _, fe := range verrs {
			msg, ok := messages[fe.Tag()]
			if !ok {
				msg = "failed " + fe.Tag() + " validation"
			}
			fields[strings.TrimPrefix(fe.Namespace(), "submission.")] = msg
		}
	}

	if maxCompetitors >= 0 && len(out.Competitors) > maxCompetitors {
		fields["competitors"] = fmt.Sprintf("at most %d competitors are allowed", maxCompetitors)
	}
	for f := range in.Owner {
		if !domain.IsKnownField(f) {
			fields["owner_credentials."+string(f)] = "is not a known field"
		}
	}

	if len(fields) > 0 {
		return domain.SubmitInput{}, &ValidationError{Fields: fields}
	}
	return out, nil
}

func populated(c domain.Credentials) []domain.Field {
	var out []domain.Field
	for _, f := range domain.KnownFields {
		if c.Has(f) {
			out = append(out, f)
		}
	}
	return out
}
