package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Field bounds enforced on user input. The title bound and its message agree
// on 30 characters.
const (
	TitleMinLen       = 15
	TitleMaxLen       = 30
	DescriptionMaxLen = 200
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks d against the field bounds. The returned error is a
// *ValidationError naming every offending field.
func (d Draft) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe.Field(), fe.Tag(), fe.Param())
	}
	return &ValidationError{Fields: fields}
}

// Validate checks only the fields the patch sets.
func (p Patch) Validate() error {
	fields := map[string]string{}
	check := func(name string, value any, tag string) {
		err := validate.Var(value, tag)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields[name] = fieldMessage(name, verrs[0].Tag(), verrs[0].Param())
		}
	}
	if p.Title != nil {
		check("title", strings.TrimSpace(*p.Title), "required,min=15,max=30")
	}
	if p.Description != nil {
		check("description", strings.TrimSpace(*p.Description), "max=200")
	}
	if p.Status != nil {
		check("status", string(*p.Status), "required,oneof=todo inProgress done")
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(field, tag, param string) string {
	switch tag {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.Join(strings.Fields(param), ", "))
	}
	return field + " is invalid"
}
