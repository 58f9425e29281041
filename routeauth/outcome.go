package routeauth

// Outcome is the result of a strategy that allowed the request. Rejections are
// reported as errors instead.
type Outcome struct {
	authorization string
}

// AllowUnmodified forwards the request as it arrived.
func AllowUnmodified() Outcome {
	return Outcome{}
}

// AllowWithCredential forwards the request with headerValue as its Authorization header.
func AllowWithCredential(headerValue string) Outcome {
	return Outcome{authorization: headerValue}
}

// AllowWithBearer forwards the request with "Bearer <token>".
func AllowWithBearer(token string) Outcome {
	return AllowWithCredential("Bearer " + token)
}

// Credential returns the Authorization header value to set, if any.
func (o Outcome) Credential() (string, bool) {
	return o.authorization, o.authorization != ""
}
