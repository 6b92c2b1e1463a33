package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

type QueryParams struct {
	Query string `json:"query" validate:"required,max=4000"`
}

// SummaryParams controls a summarization request. ReturnPartial returns an
// existing unfinished record without running the job; Resume forces a run.
type SummaryParams struct {
	ReturnPartial bool `json:"return_partial"`
	Resume        bool `json:"resume"`
}

// HashParams is the content hash taken from the route.
type HashParams struct {
	Hash string `validate:"required,len=64,hexadecimal"`
}

var validate = validator.New()

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *QueryParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *SummaryParams) Validate() map[string]string {
	return validateStruct(params)
}

func (params *HashParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}
