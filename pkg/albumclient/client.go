// Package albumclient is the stations' RPC wrapper over the album store API.
package albumclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sefazor/ourphotos-kiosk/internal/models"
)

const DefaultTimeout = 10 * time.Second

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

// APIError carries a non-2xx answer from the store.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("album store: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

type Client struct {
	baseURL string
	timeout time.Duration

	mu    sync.RWMutex
	token string
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// SetToken sets the staff bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type request struct {
	method  string
	path    string
	body    interface{}
	headers map[string]string
}

// call sends one request and decodes the envelope's data into T. The fiber
// agent has no context support, so ctx bounds the timeout and a result that
// lands after cancellation is dropped.
func call[T any](ctx context.Context, c *Client, r request) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	a := agentFor(r.method, c.baseURL+r.path)
	a.Timeout(timeout)
	if token := c.Token(); token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for k, v := range r.headers {
		a.Set(k, v)
	}
	if r.body != nil {
		a.JSON(r.body)
	}

	var resp models.DataResponse[T]
	status, _, errs := a.Struct(&resp)
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if len(errs) > 0 && status == 0 {
		return zero, fmt.Errorf("%s %s: %w", r.method, r.path, errors.Join(errs...))
	}
	if status < 200 || status >= 300 || !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = http.StatusText(status)
		}
		return zero, &APIError{Status: status, Message: msg}
	}
	if len(errs) > 0 {
		return zero, fmt.Errorf("decode %s %s: %w", r.method, r.path, errors.Join(errs...))
	}
	return resp.Data, nil
}

func agentFor(method, uri string) *fiber.Agent {
	switch method {
	case fiber.MethodPost:
		return fiber.Post(uri)
	case fiber.MethodPut:
		return fiber.Put(uri)
	case fiber.MethodDelete:
		return fiber.Delete(uri)
	}
	return fiber.Get(uri)
}

func albumPath(code string, parts ...string) string {
	p := "/api/albums/" + url.PathEscape(code)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func eventPath(eventID uint, part string) string {
	return fmt.Sprintf("/api/events/%d/%s", eventID, part)
}

func (c *Client) CreateAlbum(ctx context.Context, req models.CreateAlbumRequest) (*models.Album, error) {
	return call[*models.Album](ctx, c, request{method: fiber.MethodPost, path: "/api/albums", body: req})
}

func (c *Client) GetAlbum(ctx context.Context, code string) (*models.Album, error) {
	return call[*models.Album](ctx, c, request{method: fiber.MethodGet, path: albumPath(code)})
}

func (c *Client) GetAlbumPhotos(ctx context.Context, code string) ([]models.AlbumPhoto, error) {
	return call[[]models.AlbumPhoto](ctx, c, request{method: fiber.MethodGet, path: albumPath(code, "photos")})
}

func (c *Client) GetAlbumStatus(ctx context.Context, code string) (models.AlbumStatusResponse, error) {
	return call[models.AlbumStatusResponse](ctx, c, request{method: fiber.MethodGet, path: albumPath(code, "status")})
}

func (c *Client) UpdateAlbumStatus(ctx context.Context, code string, status models.AlbumStatus) error {
	_, err := call[*models.Album](ctx, c, request{
		method: fiber.MethodPut,
		path:   albumPath(code, "status"),
		body:   models.UpdateStatusRequest{Status: status},
	})
	return err
}

func (c *Client) AddPhoto(ctx context.Context, code string, req models.AddPhotoRequest) (*models.AlbumPhoto, error) {
	return call[*models.AlbumPhoto](ctx, c, request{method: fiber.MethodPost, path: albumPath(code, "photos"), body: req})
}

func (c *Client) DeleteAlbumPhoto(ctx context.Context, code, photoID string) error {
	_, err := call[any](ctx, c, request{method: fiber.MethodDelete, path: albumPath(code, "photos", url.PathEscape(photoID))})
	return err
}

// DeleteAlbum removes the album and its photos and reports how many photos
// went with it.
func (c *Client) DeleteAlbum(ctx context.Context, code, staffPIN string) (int, error) {
	resp, err := call[models.DeleteAlbumResponse](ctx, c, request{
		method:  fiber.MethodDelete,
		path:    albumPath(code),
		headers: map[string]string{"X-Staff-PIN": staffPIN},
	})
	if err != nil {
		return 0, err
	}
	return resp.PhotosDeleted, nil
}

func (c *Client) RequestAlbumPayment(ctx context.Context, code string) error {
	_, err := call[any](ctx, c, request{method: fiber.MethodPost, path: albumPath(code, "request-payment")})
	return err
}

func (c *Client) RequestBigScreen(ctx context.Context, code string) error {
	_, err := call[any](ctx, c, request{method: fiber.MethodPost, path: albumPath(code, "request-bigscreen")})
	return err
}

// CreateAlbumCheckout returns the hosted checkout URL to redirect the visitor to.
func (c *Client) CreateAlbumCheckout(ctx context.Context, code string) (string, error) {
	resp, err := call[models.CheckoutResponse](ctx, c, request{method: fiber.MethodPost, path: albumPath(code, "checkout")})
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) GetPaymentRequests(ctx context.Context, eventID uint) ([]models.VisitorRequest, error) {
	return call[[]models.VisitorRequest](ctx, c, request{method: fiber.MethodGet, path: eventPath(eventID, "payment-requests")})
}

func (c *Client) GetBigScreenRequests(ctx context.Context, eventID uint) ([]models.VisitorRequest, error) {
	return call[[]models.VisitorRequest](ctx, c, request{method: fiber.MethodGet, path: eventPath(eventID, "bigscreen-requests")})
}

func (c *Client) GetEvent(ctx context.Context, eventID uint) (models.EventInfo, error) {
	return call[models.EventInfo](ctx, c, request{method: fiber.MethodGet, path: fmt.Sprintf("/api/events/%d", eventID)})
}

func (c *Client) GetEventRules(ctx context.Context, eventID uint) (models.EventAccessRules, error) {
	return call[models.EventAccessRules](ctx, c, request{method: fiber.MethodGet, path: eventPath(eventID, "rules")})
}

func (c *Client) GetEventStats(ctx context.Context, eventID uint) (models.AlbumStats, error) {
	return call[models.AlbumStats](ctx, c, request{method: fiber.MethodGet, path: eventPath(eventID, "stats")})
}

// GetDisplaySlot returns nil when nothing is pending for the event.
func (c *Client) GetDisplaySlot(ctx context.Context, eventID uint) (*models.DisplaySlot, error) {
	return call[*models.DisplaySlot](ctx, c, request{method: fiber.MethodGet, path: eventPath(eventID, "bigscreen")})
}

func (c *Client) SetDisplaySlot(ctx context.Context, eventID uint, code string) error {
	_, err := call[*models.DisplaySlot](ctx, c, request{
		method: fiber.MethodPost,
		path:   eventPath(eventID, "bigscreen"),
		body:   models.DisplaySlotRequest{AlbumCode: code},
	})
	return err
}

func (c *Client) ClearDisplaySlot(ctx context.Context, eventID uint) error {
	_, err := call[any](ctx, c, request{method: fiber.MethodDelete, path: eventPath(eventID, "bigscreen")})
	return err
}

// StaffLogin exchanges the event staff PIN for a token and starts using it.
func (c *Client) StaffLogin(ctx context.Context, eventID uint, pin string) (models.StaffLoginResponse, error) {
	resp, err := call[models.StaffLoginResponse](ctx, c, request{
		method: fiber.MethodPost,
		path:   eventPath(eventID, "staff-login"),
		body:   models.StaffLoginRequest{PIN: pin},
	})
	if err != nil {
		return resp, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}
