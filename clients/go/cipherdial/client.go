// Package cipherdial provides a client for the CipherDial messaging API.
package cipherdial

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Client is a CipherDial API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	UserID     int64
	HTTPClient *http.Client
}

// Config holds saved session credentials.
type Config struct {
	UserID int64  `json:"user_id"`
	Phone  string `json:"phone"`
	Token  string `json:"token"`
}

// NewClient creates a new CipherDial client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("CIPHERDIAL_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".cipherdial")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads session credentials from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	c.UserID = config.UserID
	c.Token = config.Token
	return nil
}

// SaveConfig saves session credentials to disk.
func (c *Client) SaveConfig(phone string) error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	config := Config{
		UserID: c.UserID,
		Phone:  phone,
		Token:  c.Token,
	}

	data, _ := json.MarshalIndent(config, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "session.json"), data, 0600)
}

// doRequest performs an HTTP request. Authenticated requests carry the saved
// bearer token.
func (c *Client) doRequest(method, path string, body []byte, authed bool) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("cipherdial error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// User represents another user's public profile.
type User struct {
	ID        int64  `json:"id"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AuthResponse is the response from register and login.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Phone     string `json:"phone"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Register creates a new account and stores the session locally.
func (c *Client) Register(phone, password, firstName, lastName string) (*AuthResponse, error) {
	req := RegisterRequest{
		Phone:     phone,
		Password:  password,
		FirstName: firstName,
		LastName:  lastName,
	}

	body, _ := json.Marshal(req)
	respBody, err := c.doRequest("POST", "/auth/register", body, false)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.Token = resp.Token
	c.UserID = resp.User.ID
	if err := c.SaveConfig(phone); err != nil {
		return nil, err
	}

	return &resp, nil
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Login authenticates with phone and password and stores the session locally.
func (c *Client) Login(phone, password string) (*AuthResponse, error) {
	req := LoginRequest{Phone: phone, Password: password}

	body, _ := json.Marshal(req)
	respBody, err := c.doRequest("POST", "/auth/login", body, false)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.Token = resp.Token
	c.UserID = resp.User.ID
	if err := c.SaveConfig(phone); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Me returns the authenticated user's profile.
func (c *Client) Me() (*User, error) {
	respBody, err := c.doRequest("GET", "/users/me", nil, true)
	if err != nil {
		return nil, err
	}

	var resp User
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateMeRequest is the request body for a profile update. Nil fields are
// left unchanged.
type UpdateMeRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// UpdateMe updates the authenticated user's display name.
func (c *Client) UpdateMe(firstName, lastName *string) (*User, error) {
	req := UpdateMeRequest{FirstName: firstName, LastName: lastName}
	body, _ := json.Marshal(req)

	respBody, err := c.doRequest("PATCH", "/users/me", body, true)
	if err != nil {
		return nil, err
	}

	var resp User
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search finds users whose phone number contains the given fragment.
func (c *Client) Search(phone string) ([]User, error) {
	respBody, err := c.doRequest("GET", "/users/search?phone="+url.QueryEscape(phone), nil, true)
	if err != nil {
		return nil, err
	}

	var resp []User
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Message represents a message in a dialog.
type Message struct {
	ID          int64     `json:"id"`
	DialogID    int64     `json:"dialog_id"`
	SenderID    int64     `json:"sender_id"`
	Ciphertext  string    `json:"ciphertext"`
	ContentType string    `json:"content_type"`
	MediaMime   string    `json:"media_mime,omitempty"`
	MediaName   string    `json:"media_name,omitempty"`
	MediaSize   *int64    `json:"media_size,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Dialog represents a 1:1 conversation.
type Dialog struct {
	ID          int64     `json:"id"`
	Participant User      `json:"participant"`
	LastMessage *Message  `json:"last_message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListDialogs lists the authenticated user's dialogs.
func (c *Client) ListDialogs() ([]Dialog, error) {
	respBody, err := c.doRequest("GET", "/dialogs/", nil, true)
	if err != nil {
		return nil, err
	}

	var resp []Dialog
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateDialogRequest is the request body for opening a dialog.
type CreateDialogRequest struct {
	UserID int64 `json:"user_id"`
}

// CreateDialog opens (or returns the existing) dialog with another user.
func (c *Client) CreateDialog(userID int64) (*Dialog, error) {
	req := CreateDialogRequest{UserID: userID}
	body, _ := json.Marshal(req)

	respBody, err := c.doRequest("POST", "/dialogs/", body, true)
	if err != nil {
		return nil, err
	}

	var resp Dialog
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDialog retrieves a single dialog.
func (c *Client) GetDialog(dialogID int64) (*Dialog, error) {
	respBody, err := c.doRequest("GET", fmt.Sprintf("/dialogs/%d/", dialogID), nil, true)
	if err != nil {
		return nil, err
	}

	var resp Dialog
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MessagesResponse is a paginated page of a dialog's messages.
type MessagesResponse struct {
	Items  []Message `json:"items"`
	Total  int       `json:"total"`
	Limit  int       `json:"limit"`
	Offset int       `json:"offset"`
}

// GetMessages retrieves a page of messages from a dialog, oldest first.
// A zero after time means no lower bound.
func (c *Client) GetMessages(dialogID int64, limit, offset int, after time.Time) (*MessagesResponse, error) {
	path := fmt.Sprintf("/dialogs/%d/messages?limit=%d&offset=%d", dialogID, limit, offset)
	if !after.IsZero() {
		path += "&after=" + url.QueryEscape(after.UTC().Format(time.RFC3339Nano))
	}

	respBody, err := c.doRequest("GET", path, nil, true)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	Ciphertext  string `json:"ciphertext"`
	ContentType string `json:"content_type,omitempty"`
	MediaMime   string `json:"media_mime,omitempty"`
	MediaName   string `json:"media_name,omitempty"`
	MediaSize   *int64 `json:"media_size,omitempty"`
}

// SendText sends a text message to a dialog.
func (c *Client) SendText(dialogID int64, ciphertext string) (*Message, error) {
	return c.send(dialogID, SendMessageRequest{Ciphertext: ciphertext})
}

// SendImage sends an image message with its media metadata.
func (c *Client) SendImage(dialogID int64, ciphertext, mime, name string, size int64) (*Message, error) {
	return c.send(dialogID, SendMessageRequest{
		Ciphertext:  ciphertext,
		ContentType: "image",
		MediaMime:   mime,
		MediaName:   name,
		MediaSize:   &size,
	})
}

func (c *Client) send(dialogID int64, req SendMessageRequest) (*Message, error) {
	body, _ := json.Marshal(req)

	respBody, err := c.doRequest("POST", fmt.Sprintf("/dialogs/%d/messages", dialogID), body, true)
	if err != nil {
		return nil, err
	}

	var resp Message
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest("GET", "/health", nil, false)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StatsResponse is the response from the public stats endpoint.
type StatsResponse struct {
	TotalUsers    int64  `json:"total_users"`
	TotalDialogs  int64  `json:"total_dialogs"`
	TotalMessages int64  `json:"total_messages"`
	LastActivity  string `json:"last_activity"`
}

// Stats fetches public aggregate counts.
func (c *Client) Stats() (*StatsResponse, error) {
	respBody, err := c.doRequest("GET", "/stats", nil, false)
	if err != nil {
		return nil, err
	}

	var resp StatsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
