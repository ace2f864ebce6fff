package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

// QueryParams is the body of the query endpoint.
type QueryParams struct {
	Query        string `json:"query" validate:"required,min=1,max=5000"`
	ReturnChunks bool   `json:"return_chunks"`
}

func (params *QueryParams) Validate() map[string]string {
	return validateStruct(params)
}

type ConversationCreateParams struct {
	Title string `json:"title" validate:"max=200"`
}

func (params *ConversationCreateParams) Validate() map[string]string {
	return validateStruct(params)
}

type ConversationUpdateParams struct {
	Title string `json:"title" validate:"required,min=1,max=200"`
}

func (params *ConversationUpdateParams) Validate() map[string]string {
	return validateStruct(params)
}

type SendMessageParams struct {
	Content      string `json:"content" validate:"required,min=1,max=5000"`
	ReturnChunks bool   `json:"return_chunks"`
}

func (params *SendMessageParams) Validate() map[string]string {
	return validateStruct(params)
}

type FeedbackParams struct {
	Feedback string `json:"feedback" validate:"required,oneof=up down"`
	Comment  string `json:"comment" validate:"max=2000"`
}

func (params *FeedbackParams) Validate() map[string]string {
	return validateStruct(params)
}

type ProfileUpdateParams struct {
	DisplayName string `json:"display_name" validate:"max=80"`
}

func (params *ProfileUpdateParams) Validate() map[string]string {
	return validateStruct(params)
}

type TicketParams struct {
	Title       string `json:"title" validate:"max=80"`
	Description string `json:"description" validate:"max=4000"`
	Details     string `json:"details" validate:"max=2000"`
}

func (params *TicketParams) Validate() map[string]string {
	return validateStruct(params)
}

func validateStruct(v any) map[string]string {
	validate := validator.New()
	if err := validate.Struct(v); err != nil {
		errs := err.(validator.ValidationErrors)
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}
