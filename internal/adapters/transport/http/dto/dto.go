package dto

// Fields bind from JSON, form or query, so the same request shape works for
// a JSON client and a plain HTML form.

type RegisterDTO struct {
	Email    string `json:"email"    form:"email"    validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

type LoginDTO struct {
	Email    string `json:"email"    form:"email"    validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

type StartResetPasswordDTO struct {
	Email string `json:"email" form:"email" validate:"required,email"`
}

type CompleteResetPasswordDTO struct {
	Email      string `json:"email"      form:"email"      validate:"required,email"`
	Validation string `json:"validation" form:"validation" validate:"required"`
	Password   string `json:"password"   form:"password"   validate:"required"`
}

type StartChangeEmailDTO struct {
	Email string `json:"email" form:"email" validate:"required,email"`
}

// CompleteChangeEmailDTO carries the new address. JWT may be omitted when
// the token travels in the Authorization header.
type CompleteChangeEmailDTO struct {
	Email      string `json:"email"      form:"email"      validate:"required,email"`
	Validation string `json:"validation" form:"validation" validate:"required"`
	JWT        string `json:"jwt"        form:"jwt"`
}

type ValidateEmailDTO struct {
	Email      string `json:"email"      form:"email"      validate:"required,email"`
	Validation string `json:"validation" form:"validation" validate:"required"`
}
