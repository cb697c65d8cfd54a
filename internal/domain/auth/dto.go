// internal/domain/auth/dto.go
package auth

// LoginRequest is the email/password login payload.
type LoginRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`

	// Filled server-side, never trusted from the body.
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// FederatedLoginRequest carries an identity already verified by the upstream
// provider integration. The gateway strips this route from public exposure.
type FederatedLoginRequest struct {
	Provider   string `json:"provider" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	FullName   string `json:"full_name"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
	DeviceID     string `json:"device_id"`
	DeviceName   string `json:"device_name"`
	DeviceType   string `json:"device_type"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// StepUpVerifyRequest completes a step-up-gated login.
type StepUpVerifyRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

// StepUpResendRequest asks for a replacement verification code.
type StepUpResendRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}
