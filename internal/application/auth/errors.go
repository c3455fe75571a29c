package auth

import "errors"

var (
	ErrEmailPasswordRequired = errors.New("Email and password are required")
	ErrInvalidEmail          = errors.New("Invalid Email")
	ErrIncorrectPassword     = errors.New("Incorrect Password")
	ErrNotAuthenticated      = errors.New("Not authenticated")
	ErrEmailFormat           = errors.New("Invalid email format")
	ErrWeakPassword          = errors.New("Password must be at least 8 characters and contain a letter, a number and a special character")
	ErrInvalidFullname       = errors.New("Full name may only contain letters, spaces, hyphens and apostrophes")
	ErrEmailTaken            = errors.New("Email already registered")
	ErrNoOrganization        = errors.New("User has no organization")
)
