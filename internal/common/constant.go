package common

// AuthorizationHeaderName carries the bearer session token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

// ResetTokenBytes is the amount of entropy drawn for a password reset token
// (256 bits, hex encoded to 64 characters).
const ResetTokenBytes = 32

// VerificationTokenBytes is the amount of entropy drawn for an email
// verification token.
const VerificationTokenBytes = 24
