package http

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/go-playground/validator/v10"
)

// SubmitRequest is the body of POST /trees/{treeID}/submit.
type SubmitRequest struct {
	Patches  []domain.Patch `json:"patches" validate:"required,min=1,dive"`
	Inverses []domain.Patch `json:"inverses" validate:"required,dive"`
	IsRedo   bool           `json:"is_redo"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateSubmit, SubmitRequest{})
	v.RegisterStructValidation(validatePatch, domain.Patch{})
	return v
}

func validateSubmit(sl validator.StructLevel) {
	req := sl.Current().Interface().(SubmitRequest)
	if len(req.Inverses) != len(req.Patches) {
		sl.ReportError(req.Inverses, "inverses", "Inverses", "aligned", fmt.Sprint(len(req.Patches)))
	}
}

// validatePatch checks the shape of a patch. Whether it applies is the
// authority's verdict, not the transport's.
func validatePatch(sl validator.StructLevel) {
	p := sl.Current().Interface().(domain.Patch)
	switch p.Op {
	case domain.OpAdd, domain.OpRemove:
		if p.Record == nil {
			sl.ReportError(p.Record, "record", "Record", "required", "")
		}
	case domain.OpReplace:
		if p.NodeID == "" {
			sl.ReportError(p.NodeID, "node_id", "NodeID", "required", "")
		}
		if p.Field == "" {
			sl.ReportError(p.Field, "field", "Field", "required", "")
		}
	default:
		sl.ReportError(p.Op, "op", "Op", "oneof", "add remove replace")
	}
}

// describeValidation turns validator errors into one readable message.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, describeField(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describeField(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must hold at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "aligned":
		return fmt.Sprintf("%s must hold exactly %s items", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
