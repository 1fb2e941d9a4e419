/*
Package apiclient is the authenticated request client the pmboard dashboard
uses to talk to its REST backend (projects, sprints, modules, tasks,
timesheets, notifications, change logs).

# Overview

A Client issues JSON requests against a fixed base URL, attaches the stored
access token as a bearer credential and transparently recovers from an
expired access token exactly once per request:

	store, _ := sqlite.Open("~/.config/pmctl/credentials.db")
	client := apiclient.New("https://pm.example.com/api", store,
		apiclient.WithSessionExpiredHandler(func(ctx context.Context) {
			// navigate to the login entry point
		}),
	)

	var projects []Project
	err := client.Get(ctx, "/projects", nil, &projects)

Business payloads are opaque to the client: Request returns the raw JSON body
and Do/Get/Post/... decode it into whatever the caller passes.

# Token Refresh

When the backend answers 401 the client looks for a refresh token:

  - No refresh token stored: credentials are cleared, OnSessionExpired runs
    and the call fails with ErrSessionExpired.
  - Refresh token stored: POST /auth/refresh-token {"refreshToken": "..."}.
    On success the new access token is persisted and the original request is
    replayed once. A 401 on the replay is reported like any other failure.
  - Refresh rejected or unreachable: same as the no refresh token case.

At most one refresh happens per call. Refreshes are serialized across
goroutines; a caller that was rejected with a token somebody else has
already replaced reuses the new token instead of refreshing again.

# Errors

Every failure is a *RequestError. Match the kind with errors.Is:

	_, err := client.Request(ctx, "/projects", nil)
	switch {
	case errors.Is(err, apiclient.ErrSessionExpired):
		// credentials are gone, send the user to login
	case errors.Is(err, apiclient.ErrNetwork):
		// backend unreachable or ctx ended, nothing was retried
	case errors.Is(err, apiclient.ErrRequestFailed):
		// err.Error() is the backend's message or "Request failed"
	case errors.Is(err, apiclient.ErrCredentialStore):
		// the credential store could not be read or written
	}

Cancelling ctx never ends the session. If ctx is done while a refresh is in
flight the call fails with ErrNetwork (wrapping ctx.Err()) and the stored
tokens are kept. When the session does expire, credentials are cleared even
if ctx has already ended.

Failures are logged through the logger carried in ctx (see slogx.WithContext).
*/
package apiclient
