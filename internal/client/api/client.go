package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/salesnav/internal/models"
	"github.com/iudanet/salesnav/pkg/api"
)

const apiPrefix = "/api/v1"

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Authorization переносим только в пределах того же хоста
				if len(via) > 0 && req.URL.Host == via[0].URL.Host && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// APIError ошибка, возвращенная сервером.
// Для отказа в блокировке заполнен Holder, для неизвестных проектов MissingIDs.
type APIError struct {
	Holder     *api.LockHolder
	Status     string
	Message    string
	MissingIDs []int64
	StatusCode int
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Status
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, msg)
}

// errorBody объединяет поля всех форм ответа с ошибкой
type errorBody struct {
	Holder     *api.LockHolder `json:"holder"`
	Error      string          `json:"error"`
	Message    string          `json:"message"`
	MissingIDs []int64         `json:"missing_ids"`
}

// ProjectQuery параметры списка проектов
type ProjectQuery struct {
	ProgressStatusID *int64
	Search           string
	Page             int
	PageSize         int
}

// Values кодирует запрос в query string
func (q ProjectQuery) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.ProgressStatusID != nil {
		v.Set("progress_status_id", strconv.FormatInt(*q.ProgressStatusID, 10))
	}
	return v
}

// SnapshotQuery параметры истории проекта
type SnapshotQuery struct {
	Since    *time.Time
	Page     int
	PageSize int
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/login", "", req, &resp); err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Refresh обменивает refresh token на новую пару токенов
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/refresh", refreshToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	return &resp, nil
}

// Logout удаляет refresh tokens пользователя на сервере
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if err := c.doRequest(ctx, http.MethodPost, "/auth/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// Me возвращает текущего пользователя
func (c *Client) Me(ctx context.Context, accessToken string) (*api.UserResponse, error) {
	var resp api.UserResponse
	if err := c.doRequest(ctx, http.MethodGet, "/auth/me", accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("me request failed: %w", err)
	}
	return &resp, nil
}

// CreateUser создает пользователя (только admin)
func (c *Client) CreateUser(ctx context.Context, accessToken string, req api.CreateUserRequest) (*api.UserResponse, error) {
	var resp api.UserResponse
	if err := c.doRequest(ctx, http.MethodPost, "/users", accessToken, req, &resp); err != nil {
		return nil, fmt.Errorf("create user request failed: %w", err)
	}
	return &resp, nil
}

// ListMaster возвращает элементы справочника kind
func (c *Client) ListMaster(ctx context.Context, accessToken, kind string) (*api.MasterResponse, error) {
	var resp api.MasterResponse
	path := "/master/" + url.PathEscape(kind) + "/"
	if err := c.doRequest(ctx, http.MethodGet, path, accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("master request failed: %w", err)
	}
	return &resp, nil
}

// ListProjects возвращает страницу списка проектов
func (c *Client) ListProjects(ctx context.Context, accessToken string, q ProjectQuery) (*api.Page[*models.Project], error) {
	var resp api.Page[*models.Project]
	path := "/projects/"
	if v := q.Values(); len(v) > 0 {
		path += "?" + v.Encode()
	}
	if err := c.doRequest(ctx, http.MethodGet, path, accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("list projects request failed: %w", err)
	}
	return &resp, nil
}

// GetProject возвращает проект по ID
func (c *Client) GetProject(ctx context.Context, accessToken string, id int64) (*models.Project, error) {
	var resp models.Project
	path := fmt.Sprintf("/projects/%d/", id)
	if err := c.doRequest(ctx, http.MethodGet, path, accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("get project request failed: %w", err)
	}
	return &resp, nil
}

// AcquireLock захватывает блокировку страницы.
// При отказе возвращает *APIError со статусом 409 и владельцем в Holder.
func (c *Client) AcquireLock(ctx context.Context, accessToken string, key models.LockKey) (*models.PageLock, error) {
	var resp api.LockResponse
	if err := c.doRequest(ctx, http.MethodPost, "/projects/page-lock/", accessToken, key, &resp); err != nil {
		return nil, fmt.Errorf("page lock request failed: %w", err)
	}
	if !resp.Granted || resp.Lock == nil {
		return nil, fmt.Errorf("page lock request failed: unexpected response")
	}
	return resp.Lock, nil
}

// LockStatus возвращает состояние блокировки ключа
func (c *Client) LockStatus(ctx context.Context, accessToken string, key models.LockKey) (*api.LockStatusResponse, error) {
	var resp api.LockStatusResponse
	path := "/projects/page-lock/?" + lockValues(key).Encode()
	if err := c.doRequest(ctx, http.MethodGet, path, accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("page lock status request failed: %w", err)
	}
	return &resp, nil
}

// MyLocks возвращает активные блокировки текущего пользователя
func (c *Client) MyLocks(ctx context.Context, accessToken string) ([]*models.PageLock, error) {
	var resp []*models.PageLock
	if err := c.doRequest(ctx, http.MethodGet, "/projects/page-locks/", accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("page locks request failed: %w", err)
	}
	return resp, nil
}

// ReleaseLock освобождает блокировку, released=false если она не принадлежала пользователю
func (c *Client) ReleaseLock(ctx context.Context, accessToken string, key models.LockKey) (bool, error) {
	var resp api.UnlockResponse
	path := "/projects/page-unlock/?" + lockValues(key).Encode()
	if err := c.doRequest(ctx, http.MethodDelete, path, accessToken, nil, &resp); err != nil {
		return false, fmt.Errorf("page unlock request failed: %w", err)
	}
	return resp.Released, nil
}

// BulkPartialUpdate отправляет пакет разреженных изменений
func (c *Client) BulkPartialUpdate(ctx context.Context, accessToken string, req api.BulkUpdateRequest) (*api.BulkUpdateResponse, error) {
	var resp api.BulkUpdateResponse
	if err := c.doRequest(ctx, http.MethodPost, "/projects/bulk-partial-update/", accessToken, req, &resp); err != nil {
		return nil, fmt.Errorf("bulk update request failed: %w", err)
	}
	return &resp, nil
}

// ListSnapshots возвращает страницу истории проекта, новые первыми
func (c *Client) ListSnapshots(ctx context.Context, accessToken string, projectID int64, q SnapshotQuery) (*api.Page[*models.Snapshot], error) {
	var resp api.Page[*models.Snapshot]

	v := url.Values{}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if q.Since != nil {
		v.Set("since", q.Since.UTC().Format(time.RFC3339))
	}

	path := fmt.Sprintf("/projects/%d/snapshots/", projectID)
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	if err := c.doRequest(ctx, http.MethodGet, path, accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("list snapshots request failed: %w", err)
	}
	return &resp, nil
}

// GetSnapshot возвращает снапшот проекта
func (c *Client) GetSnapshot(ctx context.Context, accessToken string, projectID, snapshotID int64) (*models.Snapshot, error) {
	var resp models.Snapshot
	path := fmt.Sprintf("/projects/%d/snapshots/%d/", projectID, snapshotID)
	if err := c.doRequest(ctx, http.MethodGet, path, accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("get snapshot request failed: %w", err)
	}
	return &resp, nil
}

// Restore восстанавливает проект из снапшота
func (c *Client) Restore(ctx context.Context, accessToken string, projectID, snapshotID int64) (*api.RestoreResponse, error) {
	var resp api.RestoreResponse
	path := fmt.Sprintf("/projects/%d/snapshots/%d/restore/", projectID, snapshotID)
	if err := c.doRequest(ctx, http.MethodPost, path, accessToken, nil, &resp); err != nil {
		return nil, fmt.Errorf("restore request failed: %w", err)
	}
	return &resp, nil
}

func lockValues(key models.LockKey) url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(key.Page))
	v.Set("page_size", strconv.Itoa(key.PageSize))
	if key.FilterHash != "" {
		v.Set("filter_hash", key.FilterHash)
	}
	return v
}

// doRequest выполняет HTTP запрос к API.
// token передается как Bearer, если не пустой.
func (c *Client) doRequest(ctx context.Context, method, path, token string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
		var eb errorBody
		if err := json.Unmarshal(respBody, &eb); err == nil {
			if eb.Error != "" {
				apiErr.Status = eb.Error
			}
			apiErr.Message = eb.Message
			apiErr.Holder = eb.Holder
			apiErr.MissingIDs = eb.MissingIDs
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
