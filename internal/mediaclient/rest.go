package mediaclient

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/invitarr/invitarr-server/internal/domain"
)

const (
	// DefaultTimeout applies when Config.Timeout is unset.
	DefaultTimeout = 15 * time.Second

	userAgent = "invitarr/1.0"
)

// NewRESTClient returns a resty client for one vendor endpoint. Requests wait
// on the shared per-server limiter before they are sent.
func NewRESTClient(vendor domain.VendorType, baseURL string, cfg Config) *resty.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	if cfg.Limiter != nil {
		limiter, key := cfg.Limiter, cfg.ServerID
		c.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			if err := limiter.Wait(r.Context(), key); err != nil {
				return &VendorError{Vendor: vendor, Op: "rate_limit", Kind: KindRateLimited, Retryable: true, Err: err}
			}
			return nil
		})
	}
	return c
}

// Do executes req and translates the response: transport failures and
// non-2xx statuses become VendorErrors, and a JSON body is decoded into out
// when out is non-nil.
func Do(req *resty.Request, vendor domain.VendorType, op, method, path string, out any) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		var ve *VendorError
		if errors.As(err, &ve) {
			return ve
		}
		return TransportError(vendor, op, err)
	}
	if resp.IsError() {
		return HTTPError(vendor, op, resp.StatusCode(), resp.String())
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &VendorError{Vendor: vendor, Op: op, Kind: KindUnknown, StatusCode: resp.StatusCode(), Err: err}
	}
	return nil
}
