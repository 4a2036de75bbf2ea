// Package memberapi calls the members resource API with the bearer token of
// the browser session that issued the request.
package memberapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/target/members-console/internal/domain/auth"
	"github.com/target/members-console/internal/domain/model"
	apperrors "github.com/target/members-console/internal/errors"
	"github.com/target/members-console/internal/ports"
)

const maxErrorBody = 64 << 10

// TokenSource produces the bearer token for outbound calls.
type TokenSource interface {
	Token(ctx context.Context) (domainauth.Token, bool)
}

// TokenResolver finds the TokenSource of the session behind ctx.
type TokenResolver func(ctx context.Context) (TokenSource, bool)

// Config configures the resource API client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
	Tokens  TokenResolver
	Logger  *slog.Logger
}

// Client implements ports.MemberRepository and ports.RegistrationRepository
// over HTTP.
type Client struct {
	base   *url.URL
	client *http.Client
	tokens TokenResolver
	logger *slog.Logger
}

var (
	_ ports.MemberRepository       = (*Client)(nil)
	_ ports.RegistrationRepository = (*Client)(nil)
)

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("member api base url is required")
	}
	base, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid member api base url %q", raw)
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token resolver is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{base: base, client: hc, tokens: cfg.Tokens, logger: logger.With("component", "memberapi")}, nil
}

// List fetches one page of members.
func (c *Client) List(ctx context.Context, opts model.MembersListOptions) (model.CursorPage[model.Member], error) {
	opts.Normalize()
	q := url.Values{}
	q.Set("size", strconv.Itoa(opts.Size))
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	var page model.CursorPage[model.Member]
	if err := c.do(ctx, http.MethodGet, "/api/members", q, nil, &page); err != nil {
		return model.CursorPage[model.Member]{}, err
	}
	if page.Data == nil {
		page.Data = []model.Member{}
	}
	return page, nil
}

func (c *Client) Get(ctx context.Context, id string) (*model.Member, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.ValidationField("id", "member id is required")
	}
	var m model.Member
	if err := c.do(ctx, http.MethodGet, memberPath(id), nil, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) Create(ctx context.Context, in model.MemberInput) (*model.Member, error) {
	var m model.Member
	if err := c.do(ctx, http.MethodPost, "/api/members", nil, in, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) Update(ctx context.Context, id string, in model.MemberInput) (*model.Member, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperrors.ValidationField("id", "member id is required")
	}
	var m model.Member
	if err := c.do(ctx, http.MethodPut, memberPath(id), nil, in, &m); err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = id
	}
	return &m, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperrors.ValidationField("id", "member id is required")
	}
	return c.do(ctx, http.MethodDelete, memberPath(id), nil, nil, nil)
}

// Registration returns the registration record of the signed-in principal.
func (c *Client) Registration(ctx context.Context) (*model.Registration, error) {
	var r model.Registration
	if err := c.do(ctx, http.MethodGet, "/api/registration", nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CompleteRegistration creates the member record of the signed-in principal.
func (c *Client) CompleteRegistration(ctx context.Context, req model.RegistrationRequest) error {
	return c.do(ctx, http.MethodPut, "/api/registration/complete", nil, req, nil)
}

func memberPath(id string) string {
	return "/api/members/" + url.PathEscape(id)
}

// do sends one authorized request. Without a valid token nothing is sent.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = q.Encode()

	var rdr io.Reader
	if body != nil {
		b, encErr := json.Marshal(body)
		if encErr != nil {
			return fmt.Errorf("encode request: %w", encErr)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.FromTransport(err, "member api request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		appErr := decodeError(resp)
		c.logger.DebugContext(ctx, "member api error",
			"method", method, "path", path, "status", resp.StatusCode, "code", appErr.Code)
		return appErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode member api response")
	}
	return nil
}

func (c *Client) token(ctx context.Context) (domainauth.Token, error) {
	ts, ok := c.tokens(ctx)
	if !ok || ts == nil {
		return domainauth.Token{}, apperrors.Unauthorized("no session")
	}
	tok, ok := ts.Token(ctx)
	if !ok || tok.Value == "" {
		return domainauth.Token{}, apperrors.Unauthorized("not authenticated")
	}
	return tok, nil
}

type errorBody struct {
	Errors          []string `json:"errors"`
	Message         string   `json:"message"`
	RegistrationURL string   `json:"registrationUrl"`
}

// decodeError turns an error response into an AppError. {"errors": [...]}
// bodies are joined into the message; a 401 naming a registrationUrl means
// the principal must register first.
func decodeError(resp *http.Response) *apperrors.AppError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	if len(bytes.TrimSpace(raw)) > 0 {
		_ = json.Unmarshal(raw, &eb)
	}
	if resp.StatusCode == http.StatusUnauthorized && eb.RegistrationURL != "" {
		msg := eb.Message
		if msg == "" {
			msg = "User registration required"
		}
		return apperrors.New(apperrors.ErrCodeRegistrationRequired, msg)
	}
	msg := strings.Join(eb.Errors, ", ")
	if msg == "" {
		msg = eb.Message
	}
	return apperrors.FromHTTPStatus(resp.StatusCode, msg)
}
