package soundtrack

import "errors"

var (
	// ErrNoCredentials is returned when neither an API token nor client
	// credentials are configured.
	ErrNoCredentials = errors.New("soundtrack: no credentials configured")

	// ErrTokenRequest is returned when the OAuth token endpoint rejects the
	// client credentials or returns an unusable response.
	ErrTokenRequest = errors.New("soundtrack: token request failed")

	// ErrRequestFailed is returned when the API answers with a non-2xx status.
	ErrRequestFailed = errors.New("soundtrack: request failed")

	// ErrGraphQL is returned when the response carries GraphQL errors.
	ErrGraphQL = errors.New("soundtrack: graphql error")
)
