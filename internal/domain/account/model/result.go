package model

import "fmt"

// Result is the closed set of business outcomes of an account operation.
type Result int

const (
	Ok Result = iota
	EmailInUse
	NoSuchUser
	BadPassword
	InvalidEmailKey
	EmailValidationKeyExpired
	InvalidPasswordValidationKey
	PasswordValidationKeyExpired
	ExpiredToken
	BadToken
)

var resultNames = [...]string{
	Ok:                           "Ok",
	EmailInUse:                   "EmailInUse",
	NoSuchUser:                   "NoSuchUser",
	BadPassword:                  "BadPassword",
	InvalidEmailKey:              "InvalidEmailKey",
	EmailValidationKeyExpired:    "EmailValidationKeyExpired",
	InvalidPasswordValidationKey: "InvalidPasswordValidationKey",
	PasswordValidationKeyExpired: "PasswordValidationKeyExpired",
	ExpiredToken:                 "ExpiredToken",
	BadToken:                     "BadToken",
}

func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return fmt.Sprintf("Result(%d)", int(r))
	}
	return resultNames[r]
}

func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ResponseCode is the coarse status reported at the transport boundary.
type ResponseCode string

const (
	ResponseOk                  ResponseCode = "Ok"
	ResponseNeedsAuthentication ResponseCode = "NeedsAuthentication"
	ResponseEmailInUse          ResponseCode = "EmailInUse"
	ResponseInvalid             ResponseCode = "Invalid"
	ResponseExpired             ResponseCode = "Expired"
	ResponseError               ResponseCode = "Error"
)

// Response maps a Result onto the transport status enumeration.
func (r Result) Response() ResponseCode {
	switch r {
	case Ok:
		return ResponseOk
	case EmailInUse:
		return ResponseEmailInUse
	case NoSuchUser, BadPassword, BadToken:
		return ResponseNeedsAuthentication
	case ExpiredToken, EmailValidationKeyExpired, PasswordValidationKeyExpired:
		return ResponseExpired
	case InvalidEmailKey, InvalidPasswordValidationKey:
		return ResponseInvalid
	default:
		return ResponseError
	}
}
