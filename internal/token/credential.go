package token

// Credential is the bearer token captured from a browser session. It lives
// for one harvest run and is never persisted.
type Credential string

func (c Credential) String() string {
	return string(c)
}

// Redacted keeps only a short prefix, safe for logs.
func (c Credential) Redacted() string {
	const keep = 12
	if len(c) <= keep {
		return "***"
	}
	return string(c[:keep]) + "..."
}
