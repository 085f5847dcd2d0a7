package auth

// Phase is the authentication lifecycle of a Service.
type Phase int

const (
	// PhaseUnauthenticated means no validated session exists.
	PhaseUnauthenticated Phase = iota
	// PhaseAuthenticating means a login is in flight.
	PhaseAuthenticating
	// PhaseAuthenticated means a session was validated or issued.
	PhaseAuthenticated
	// PhaseReauthenticating means a request was rejected with 401 while
	// authenticated and the user is being asked to sign in again.
	PhaseReauthenticating
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseReauthenticating:
		return "reauthenticating"
	default:
		return "unknown"
	}
}
