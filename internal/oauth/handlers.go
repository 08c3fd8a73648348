package oauth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/slideruleearth/sliderule-auth/internal/platform/errors"
)

// handleLogin starts the redirect flow: mint a signed state carrying the
// caller's requested return URL and send the user to the provider.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	ctx := r.Context()

	key, err := s.signingKey(ctx)
	if err != nil {
		log.Printf("oauth: signing key unavailable: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "secret_unavailable", "signing key unavailable")
		return
	}

	state, err := s.stateCodec(key).Create(r.URL.Query().Get("redirect_uri"))
	if err != nil {
		log.Printf("oauth: create state: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "failed to create state")
		return
	}

	s.redirect(w, s.provider.AuthorizeURL(s.callbackURL(r), state))
}

// handleCallback finishes the redirect flow. The state is verified before
// anything else; a bad state aborts without touching the authorization
// code, and its embedded return URL is never trusted.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	key, err := s.signingKey(ctx)
	if err != nil {
		log.Printf("oauth: signing key unavailable: %v", err)
		s.redirectError(w, s.config.FrontendURL, "Authentication service unavailable")
		return
	}

	returnURL, err := s.stateCodec(key).Verify(q.Get("state"))
	if err != nil {
		log.Printf("oauth: state verification failed: %v", err)
		s.redirectError(w, s.config.FrontendURL, "Security error: "+errorMessage(err))
		return
	}
	target := s.resolveReturnURL(returnURL)

	if providerErr := q.Get("error"); providerErr != "" {
		if description := q.Get("error_description"); description != "" {
			providerErr = description
		}
		s.redirectError(w, target, providerErr)
		return
	}
	code := q.Get("code")
	if code == "" {
		s.redirectError(w, target, "Missing authorization code")
		return
	}

	clientSecret, err := s.clientSecret(ctx)
	if err != nil {
		log.Printf("oauth: client secret unavailable: %v", err)
		s.redirectError(w, target, "Authentication service unavailable")
		return
	}

	accessToken, err := s.provider.ExchangeCode(ctx, clientSecret, code, s.callbackURL(r))
	if err != nil {
		log.Printf("oauth: code exchange failed: %v", err)
		s.redirectError(w, target, errorMessage(err))
		return
	}

	claims, token, err := s.resolveAndIssue(ctx, accessToken)
	if err != nil {
		log.Printf("oauth: identity resolution failed: %v", err)
		s.redirectError(w, target, errorMessage(err))
		return
	}

	s.redirect(w, appendQuery(target, successParams(claims, token)))
}

// handleDevice starts a device authorization flow and relays the
// provider's code pair to the caller.
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}

	auth, err := s.provider.RequestDeviceCode(r.Context())
	if err != nil {
		log.Printf("oauth: device code request failed: %v", err)
		writeDeviceInitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auth)
}

// writeDeviceInitError relays a device initiation failure. A rejection
// the provider reported in its response body passes through with the
// provider's own error identifier; everything else maps to the broker's
// taxonomy.
func writeDeviceInitError(w http.ResponseWriter, err error) {
	var domainErr *errors.Error
	if stderrors.As(err, &domainErr) && domainErr.Code == errors.CodeProviderError && domainErr.Metadata["provider_error"] != "" {
		writeJSONError(w, http.StatusBadRequest, domainErr.Metadata["provider_error"], domainErr.Metadata["description"])
		return
	}
	writeDomainError(w, err)
}

// handleDevicePoll performs one poll of a pending device authorization.
// Pending and slow-down map to 202 so the caller keeps polling; any other
// provider error is terminal.
func (s *Server) handleDevicePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	ctx := r.Context()

	deviceCode := readDeviceCode(r)
	if deviceCode == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_device_code", "device_code is required")
		return
	}

	clientSecret, err := s.clientSecret(ctx)
	if err != nil {
		log.Printf("oauth: client secret unavailable: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "secret_unavailable", "client secret unavailable")
		return
	}

	accessToken, err := s.provider.PollDeviceToken(ctx, clientSecret, deviceCode)
	if err != nil {
		s.writeDevicePollError(w, err)
		return
	}

	claims, token, err := s.resolveAndIssue(ctx, accessToken)
	if err != nil {
		log.Printf("oauth: identity resolution failed: %v", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deviceSuccessResponse(claims, token, s.config.Org))
}

func (s *Server) writeDevicePollError(w http.ResponseWriter, err error) {
	var domainErr *errors.Error
	if !stderrors.As(err, &domainErr) {
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	switch {
	case domainErr.Code == errors.CodeAuthorizationPending:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":            "pending",
			"error":             "authorization_pending",
			"error_description": "Waiting for user authorization",
		})
	case domainErr.Code == errors.CodeSlowDown:
		interval := defaultPollInterval
		if v, err := strconv.Atoi(domainErr.Metadata["interval"]); err == nil && v > 0 {
			interval = v
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":            "pending",
			"error":             "slow_down",
			"error_description": "Polling too fast",
			"interval":          interval,
		})
	case domainErr.Code == errors.CodeProviderError && domainErr.Metadata["provider_error"] != "":
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":            "error",
			"error":             domainErr.Metadata["provider_error"],
			"error_description": domainErr.Metadata["description"],
		})
	default:
		log.Printf("oauth: device poll failed: %v", err)
		writeDomainError(w, err)
	}
}

// resolveAndIssue runs the shared downstream pipeline of both flows:
// profile, membership, claims, signed token.
func (s *Server) resolveAndIssue(ctx context.Context, accessToken string) (Claims, string, error) {
	identity, err := s.provider.FetchProfile(ctx, accessToken)
	if err != nil {
		return Claims{}, "", err
	}

	membership, err := s.provider.ResolveMembership(ctx, accessToken, s.config.Org, identity.Login)
	if err != nil {
		return Claims{}, "", err
	}

	claims := BuildClaims(identity.Login, membership)

	key, err := s.signingKey(ctx)
	if err != nil {
		return Claims{}, "", err
	}
	token, err := s.tokenIssuer(key).Issue(claims)
	if err != nil {
		return Claims{}, "", err
	}
	return claims, token, nil
}

// resolveReturnURL validates the return URL recovered from the state,
// falling back to the default frontend. Rejections log the offending
// host only, never the full URL.
func (s *Server) resolveReturnURL(returnURL string) string {
	if returnURL == "" {
		return s.config.FrontendURL
	}
	if !redirectAllowed(returnURL, s.config.FrontendURL, s.config.AllowedRedirectHosts) {
		host := ""
		if u, err := url.Parse(returnURL); err == nil {
			host = u.Hostname()
		}
		log.Printf("oauth: rejected redirect host %q", host)
		return s.config.FrontendURL
	}
	return returnURL
}

func (s *Server) redirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusFound)
}

func (s *Server) redirectError(w http.ResponseWriter, target, message string) {
	params := url.Values{}
	params.Set("error", message)
	s.redirect(w, appendQuery(target, params))
}

// appendQuery merges params into target's existing query string.
func appendQuery(target string, params url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target + "?" + params.Encode()
	}
	q := u.Query()
	for key, values := range params {
		q[key] = values
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// successParams builds the query parameters appended to the callback
// redirect on success.
func successParams(claims Claims, token string) url.Values {
	teamRoles, _ := json.Marshal(claims.TeamRoles)

	params := url.Values{}
	params.Set("username", claims.Username)
	params.Set("isOrgMember", strconv.FormatBool(claims.IsOrgMember))
	params.Set("isOrgOwner", strconv.FormatBool(claims.IsOrgOwner))
	params.Set("teams", strings.Join(claims.Teams, ","))
	params.Set("orgRoles", strings.Join(claims.OrgRoles, ","))
	params.Set("teamRoles", string(teamRoles))
	params.Set("allowedClusters", strings.Join(claims.AllowedClusters, ","))
	params.Set("token", token)
	return params
}

// deviceSuccessResponse mirrors the callback redirect's fields as JSON.
func deviceSuccessResponse(claims Claims, token, org string) map[string]any {
	return map[string]any{
		"status":          "success",
		"username":        claims.Username,
		"isOrgMember":     claims.IsOrgMember,
		"isOrgOwner":      claims.IsOrgOwner,
		"teams":           claims.Teams,
		"orgRoles":        claims.OrgRoles,
		"teamRoles":       claims.TeamRoles,
		"allowedClusters": claims.AllowedClusters,
		"token":           token,
		"organization":    org,
	}
}

// readDeviceCode extracts device_code from a JSON or form-encoded body.
func readDeviceCode(r *http.Request) string {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return ""
	}

	var payload struct {
		DeviceCode string `json:"device_code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.DeviceCode != "" {
		return payload.DeviceCode
	}

	if form, err := url.ParseQuery(string(body)); err == nil {
		return form.Get("device_code")
	}
	return ""
}

// errorMessage returns the message a user may see for err. Domain errors
// expose their message; anything else is reported generically so internal
// detail never leaks into a redirect.
func errorMessage(err error) string {
	var domainErr *errors.Error
	if stderrors.As(err, &domainErr) {
		return domainErr.Message
	}
	return "Authentication failed"
}

func writeDomainError(w http.ResponseWriter, err error) {
	var domainErr *errors.Error
	if !stderrors.As(err, &domainErr) {
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	writeJSONError(w, domainErr.Code.HTTPStatus(), domainErr.Code.WireCode(), domainErr.Message)
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func writeJSONError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, errorResponse{Error: code, ErrorDescription: description})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
