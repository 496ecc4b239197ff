package command

import "errors"

// ErrInvalidToken is matched by errors.Is for every *InvalidTokenError.
var ErrInvalidToken = errors.New("invalid token")

// InvalidTokenError reports a bearer token that cannot be placed on a command line.
type InvalidTokenError struct {
	Reason string
}

func (e *InvalidTokenError) Error() string {
	return "invalid token: " + e.Reason
}

// Is lets errors.Is(err, ErrInvalidToken) match.
func (e *InvalidTokenError) Is(target error) bool {
	return target == ErrInvalidToken
}
