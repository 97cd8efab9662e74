package dto

// Status values of the auth endpoints. Clients switch on these literals.
const (
	StatusAuthenticated        = "authenticated"
	StatusVerificationRequired = "verification_required"
	StatusInvalid              = "invalid"
	StatusUnverified           = "unverified"
	StatusExpired              = "expired"
	StatusTooManyAttempts      = "too_many_attempts"
	StatusNoPending            = "no_pending"
	StatusOK                   = "ok"
)

// -------- Login --------

type LoginAuthenticatedResponse struct {
	Status   string `json:"status"` // "authenticated"
	Role     string `json:"role"`
	Redirect string `json:"redirect"`
}

type LoginVerificationRequiredResponse struct {
	Status     string `json:"status"` // "verification_required"
	Identifier string `json:"identifier"`
}

// -------- Send / verify code --------

type SendCodeResponse struct {
	Delivered bool `json:"delivered"`
}

type VerifyCodeResponse struct {
	Status   string `json:"status"` // "ok"
	Role     string `json:"role"`
	Redirect string `json:"redirect"`
}

// -------- Shared --------

// FailureResponse is the flat failure body of login and verify-code.
type FailureResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
