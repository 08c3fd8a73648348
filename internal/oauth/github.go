package oauth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/slideruleearth/sliderule-auth/internal/platform/errors"
)

const (
	// oauthScopes is requested in both flows. read:org covers membership
	// and team lookups; the authenticated-user profile needs no extra
	// scope.
	oauthScopes = "read:org"

	// deviceGrantType is the device flow grant type sent when polling.
	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	// defaultDeviceInterval is returned from device flow initiation when
	// the provider omits a poll interval.
	defaultDeviceInterval = 5

	// defaultPollInterval is returned to device clients when the provider
	// asks them to slow down without suggesting its own interval.
	defaultPollInterval = 10

	// teamPageLimit bounds team pagination for pathological accounts.
	teamPageLimit = 10
)

// Identity is the authenticated user's provider profile.
type Identity struct {
	ID    int64
	Login string
	Name  string
	Email string
}

// TeamRole is one organization team the user belongs to, with the user's
// role in it ("member" or "maintainer").
type TeamRole struct {
	Slug string
	Name string
	Role string
}

// Membership is the user's resolved standing in the configured
// organization.
type Membership struct {
	IsMember bool
	IsOwner  bool
	Teams    []TeamRole
}

// DeviceAuthorization is the provider's response to a device code
// request, relayed to the caller verbatim. The error fields are only
// populated on rejection and never survive into a success response.
type DeviceAuthorization struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`

	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// tokenResponse is the provider token endpoint's JSON body, for both the
// authorization-code exchange and device flow polls.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Interval         int    `json:"interval"`
}

// providerClient speaks to the identity provider's OAuth endpoints and
// REST API.
type providerClient struct {
	endpoints  ProviderEndpoints
	clientID   string
	httpClient *http.Client
}

func newProviderClient(endpoints ProviderEndpoints, clientID string, httpClient *http.Client) *providerClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &providerClient{endpoints: endpoints, clientID: clientID, httpClient: httpClient}
}

// AuthorizeURL builds the provider authorization URL the user is sent to
// at the start of the redirect flow.
func (p *providerClient) AuthorizeURL(callbackURL, state string) string {
	q := url.Values{}
	q.Set("client_id", p.clientID)
	q.Set("redirect_uri", callbackURL)
	q.Set("scope", oauthScopes)
	q.Set("state", state)
	return p.endpoints.AuthorizeURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for an access token.
func (p *providerClient) ExchangeCode(ctx context.Context, clientSecret, code, callbackURL string) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", clientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", callbackURL)

	var body tokenResponse
	if err := p.postForm(ctx, p.endpoints.TokenURL, form, &body); err != nil {
		return "", err
	}
	if body.Error != "" {
		message := body.ErrorDescription
		if message == "" {
			message = body.Error
		}
		return "", errors.WithMetadata(errors.CodeProviderError, "GitHub OAuth error: "+message, map[string]string{
			"provider_error": body.Error,
			"description":    body.ErrorDescription,
		})
	}
	if body.AccessToken == "" {
		return "", errors.New(errors.CodeNoAccessToken, "token response carried no access token")
	}
	return body.AccessToken, nil
}

// RequestDeviceCode starts a device authorization flow. A rejection in
// the response body keeps the provider's own error identifier so the
// caller sees it unchanged; a non-success status is a hard request
// failure.
func (p *providerClient) RequestDeviceCode(ctx context.Context) (DeviceAuthorization, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("scope", oauthScopes)

	var auth DeviceAuthorization
	if err := p.postForm(ctx, p.endpoints.DeviceCodeURL, form, &auth); err != nil {
		var domainErr *errors.Error
		if stderrors.As(err, &domainErr) && domainErr.Code == errors.CodeTokenExchangeFailed {
			return DeviceAuthorization{}, errors.WithMetadata(errors.CodeDeviceCodeRequestFailed,
				"GitHub returned status "+domainErr.Metadata["status"], domainErr.Metadata)
		}
		return DeviceAuthorization{}, err
	}
	if auth.Error != "" {
		description := auth.ErrorDescription
		if description == "" {
			description = "Unknown error"
		}
		return DeviceAuthorization{}, errors.WithMetadata(errors.CodeProviderError, description, map[string]string{
			"provider_error": auth.Error,
			"description":    description,
		})
	}
	if auth.DeviceCode == "" {
		return DeviceAuthorization{}, errors.New(errors.CodeDeviceCodeRequestFailed, "device authorization response carried no device code")
	}
	if auth.Interval <= 0 {
		auth.Interval = defaultDeviceInterval
	}
	return auth, nil
}

// PollDeviceToken performs one poll of the token endpoint for a pending
// device authorization. Pending and slow-down outcomes surface as
// retryable errors; any other provider error is terminal.
func (p *providerClient) PollDeviceToken(ctx context.Context, clientSecret, deviceCode string) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", clientSecret)
	form.Set("device_code", deviceCode)
	form.Set("grant_type", deviceGrantType)

	var body tokenResponse
	if err := p.postForm(ctx, p.endpoints.TokenURL, form, &body); err != nil {
		return "", err
	}
	switch body.Error {
	case "":
	case "authorization_pending":
		return "", errors.New(errors.CodeAuthorizationPending, "authorization pending")
	case "slow_down":
		interval := body.Interval
		if interval <= 0 {
			interval = defaultPollInterval
		}
		return "", errors.WithMetadata(errors.CodeSlowDown, "polling too fast", map[string]string{
			"interval": strconv.Itoa(interval),
		})
	default:
		return "", errors.WithMetadata(errors.CodeProviderError, "device authorization failed", map[string]string{
			"provider_error": body.Error,
			"description":    body.ErrorDescription,
		})
	}
	if body.AccessToken == "" {
		return "", errors.New(errors.CodeNoAccessToken, "token response carried no access token")
	}
	return body.AccessToken, nil
}

func (p *providerClient) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.CodeProviderError, "provider request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.WithMetadata(errors.CodeTokenExchangeFailed, "provider returned unexpected status", map[string]string{
			"status": strconv.Itoa(resp.StatusCode),
		})
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.CodeProviderError, "decode provider response", err)
	}
	return nil
}

// apiClient builds an authenticated REST client for the provider API.
func (p *providerClient) apiClient(ctx context.Context, token string) (*github.Client, error) {
	tc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	tc.Timeout = p.httpClient.Timeout

	client := github.NewClient(tc)
	base, err := url.Parse(p.endpoints.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	client.BaseURL = base
	return client, nil
}

// FetchProfile resolves the authenticated user's profile.
func (p *providerClient) FetchProfile(ctx context.Context, token string) (Identity, error) {
	client, err := p.apiClient(ctx, token)
	if err != nil {
		return Identity{}, err
	}

	user, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		e := errors.WithMetadata(errors.CodeProfileFetchFailed, "fetch user profile failed", map[string]string{
			"status": strconv.Itoa(status),
		})
		e.Cause = err
		return Identity{}, e
	}
	if user.GetLogin() == "" {
		return Identity{}, errors.New(errors.CodeProfileFetchFailed, "user profile carried no login")
	}
	return Identity{
		ID:    user.GetID(),
		Login: user.GetLogin(),
		Name:  user.GetName(),
		Email: user.GetEmail(),
	}, nil
}

// ResolveMembership resolves the user's standing in org: organization
// role, then team roles. Only a clean 404 maps to non-membership; any
// other failure is surfaced so a degraded provider never silently strips
// access.
func (p *providerClient) ResolveMembership(ctx context.Context, token, org, username string) (Membership, error) {
	client, err := p.apiClient(ctx, token)
	if err != nil {
		return Membership{}, err
	}

	membership, resp, err := client.Organizations.GetOrgMembership(ctx, "", org)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return Membership{}, nil
		}
		return Membership{}, apiError("check organization membership", resp, err, errors.CodeUnexpectedStatus)
	}
	if membership.GetState() != "active" {
		return Membership{}, nil
	}

	result := Membership{
		IsMember: true,
		IsOwner:  membership.GetRole() == "admin",
	}

	teams, err := p.listOrgTeams(ctx, client, org, username)
	if err != nil {
		return Membership{}, err
	}
	result.Teams = teams
	return result, nil
}

// listOrgTeams lists the user's teams within org, with the user's role in
// each.
func (p *providerClient) listOrgTeams(ctx context.Context, client *github.Client, org, username string) ([]TeamRole, error) {
	var result []TeamRole
	opts := &github.ListOptions{PerPage: 100}
	for page := 0; page < teamPageLimit; page++ {
		teams, resp, err := client.Teams.ListUserTeams(ctx, opts)
		if err != nil {
			return nil, apiError("list user teams", resp, err, errors.CodeUnexpectedStatus)
		}
		for _, team := range teams {
			if !strings.EqualFold(team.GetOrganization().GetLogin(), org) {
				continue
			}
			role, active, err := p.teamRole(ctx, client, org, team.GetSlug(), username)
			if err != nil {
				return nil, err
			}
			if !active {
				continue
			}
			result = append(result, TeamRole{
				Slug: team.GetSlug(),
				Name: team.GetName(),
				Role: role,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// teamRole looks up the user's role in one team. A team counts only when
// the membership state is active; a 404 means the listing raced a removal
// and the team is skipped.
func (p *providerClient) teamRole(ctx context.Context, client *github.Client, org, slug, username string) (string, bool, error) {
	membership, resp, err := client.Teams.GetTeamMembershipBySlug(ctx, org, slug, username)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, apiError("check team membership", resp, err, errors.CodeUnexpectedStatus)
	}
	if membership.GetState() != "active" {
		return "", false, nil
	}
	role := membership.GetRole()
	if role == "" {
		role = "member"
	}
	return role, true, nil
}

// apiError maps a provider API failure to a domain error. Rate limiting
// and provider outages get their own codes so callers can distinguish
// retryable failures from broken requests.
func apiError(op string, resp *github.Response, err error, fallback errors.Code) error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	meta := map[string]string{"status": strconv.Itoa(status)}

	var code errors.Code
	switch {
	case status == http.StatusTooManyRequests:
		code = errors.CodeRateLimited
	case status >= 500:
		code = errors.CodeUpstreamUnavailable
	default:
		code = fallback
	}
	e := errors.WithMetadata(code, op+" failed", meta)
	e.Cause = err
	return e
}
