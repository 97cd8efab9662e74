package dto

import (
	"strings"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

// Login accepts any identifier shape; an unknown one fails as invalid
// credentials rather than a validation error.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Secret     string `json:"secret" validate:"required,max=72"`
}

func (r *LoginRequest) Validate() error {
	r.Identifier = domain.NormalizeIdentifier(r.Identifier)
	return validateStruct(r)
}

type SendCodeRequest struct {
	Identifier string `json:"identifier" validate:"required,email,max=254"`
}

func (r *SendCodeRequest) Validate() error {
	r.Identifier = domain.NormalizeIdentifier(r.Identifier)
	return validateStruct(r)
}

// Code is either the mailed 6 digit code or the 6 char hex master code.
type VerifyCodeRequest struct {
	Identifier string `json:"identifier" validate:"required,email,max=254"`
	Code       string `json:"code" validate:"required,len=6,alphanum"`
}

func (r *VerifyCodeRequest) Validate() error {
	r.Identifier = domain.NormalizeIdentifier(r.Identifier)
	r.Code = strings.TrimSpace(r.Code)
	return validateStruct(r)
}
