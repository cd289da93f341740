// Package chat provides a client for the chatrooms HTTP API.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a chatrooms API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Username   string
	Token      string
	HTTPClient *http.Client
}

// Config holds the saved session.
type Config struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chatrooms error %d: %s", e.Status, e.Message)
}

// NewClient creates a new client and loads any saved session.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("CHATROOMS_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".chatrooms")
	}

	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads the saved session from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	c.Username = config.Username
	c.Token = config.Token
	return nil
}

// SaveConfig saves the session to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{Username: c.Username, Token: c.Token}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "session.json"), data, 0600)
}

// do performs an HTTP request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// LoginResponse is the response from login.
type LoginResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	Created   bool   `json:"created"`
	ExpiresIn int    `json:"expires_in"`
}

// Login opens a session for nickname and saves it.
func (c *Client) Login(ctx context.Context, nickname string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", map[string]string{"nickname": nickname}, &resp); err != nil {
		return nil, err
	}

	c.Username = resp.Username
	c.Token = resp.Token
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout ends the session and forgets the saved token.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/logout", nil, nil); err != nil {
		return err
	}
	c.Token = ""
	return c.SaveConfig()
}

// Heartbeat keeps the session alive.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/heartbeat", nil, nil)
}

// Room is a chat room as returned by the server.
type Room struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Owner                string    `json:"owner"`
	IsPublic             bool      `json:"is_public"`
	HasPassword          bool      `json:"has_password"`
	Topic                string    `json:"topic,omitempty"`
	Members              []string  `json:"members,omitempty"`
	InvitedUsers         []string  `json:"invited_users,omitempty"`
	BannedUsers          []string  `json:"banned_users,omitempty"`
	MemberCount          int       `json:"member_count,omitempty"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at"`
}

// ListRooms lists all rooms.
func (c *Client) ListRooms(ctx context.Context) ([]Room, error) {
	var resp struct {
		Rooms []Room `json:"rooms"`
	}
	if err := c.do(ctx, http.MethodGet, "/rooms", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// GetRoom returns a single room.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodGet, "/rooms/"+url.PathEscape(roomID), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// CreateRoomRequest is the request body for creating a room.
type CreateRoomRequest struct {
	Name     string `json:"name"`
	IsPublic bool   `json:"is_public"`
	Password string `json:"password,omitempty"`
	Topic    string `json:"topic,omitempty"`
}

// CreateRoom creates a room owned by the caller.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodPost, "/rooms", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// DeleteRoom deletes a room the caller owns.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodDelete, "/rooms/"+url.PathEscape(roomID), nil, nil)
}

// JoinRoom joins a room, with its password if it has one.
func (c *Client) JoinRoom(ctx context.Context, roomID, password string) (*Room, error) {
	var resp struct {
		Room Room `json:"room"`
	}
	if err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/join", map[string]string{"password": password}, &resp); err != nil {
		return nil, err
	}
	return &resp.Room, nil
}

// LeaveRoom leaves a room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/leave", nil, nil)
}

// Invite invites username into a room.
func (c *Client) Invite(ctx context.Context, roomID, username string) error {
	return c.member(ctx, roomID, "invite", username)
}

// Kick removes and bans username from a room.
func (c *Client) Kick(ctx context.Context, roomID, username string) error {
	return c.member(ctx, roomID, "kick", username)
}

// Unban lifts a ban.
func (c *Client) Unban(ctx context.Context, roomID, username string) error {
	return c.member(ctx, roomID, "unban", username)
}

func (c *Client) member(ctx context.Context, roomID, action, username string) error {
	return c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/"+action, map[string]string{"username": username}, nil)
}

// Message represents a chat message.
type Message struct {
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Bot       bool   `json:"bot,omitempty"`
	Timestamp int64  `json:"ts"`
}

// MessagesResponse is a page of room history, newest first.
type MessagesResponse struct {
	RoomID   string    `json:"room_id"`
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// GetMessages retrieves messages from a room.
func (c *Client) GetMessages(ctx context.Context, roomID string, limit int, before int64) (*MessagesResponse, error) {
	path := fmt.Sprintf("/rooms/%s/messages?limit=%d", url.PathEscape(roomID), limit)
	if before > 0 {
		path += fmt.Sprintf("&before=%d", before)
	}

	var resp MessagesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostMessageResponse is the response from posting a message.
type PostMessageResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PostMessage posts a message to a room.
func (c *Client) PostMessage(ctx context.Context, roomID, body string) (*PostMessageResponse, error) {
	var resp PostMessageResponse
	if err := c.do(ctx, http.MethodPost, "/rooms/"+url.PathEscape(roomID)+"/messages", map[string]string{"body": body}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Event is a room notification from the event stream.
type Event struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id"`
	Username  string          `json:"username,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"ts"`
}

// Watch streams a room's events to fn until ctx is done or the server
// closes the stream.
func (c *Client) Watch(ctx context.Context, roomID string, fn func(Event)) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/rooms/" + roomID + "/events"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.Token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return &APIError{Status: resp.StatusCode, Message: "event stream refused"}
		}
		return err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var evt Event
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		fn(evt)
	}
}

// Profile is a user's public profile.
type Profile struct {
	Username string     `json:"username"`
	Image    string     `json:"image"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// GetProfile gets a user's profile.
func (c *Client) GetProfile(ctx context.Context, username string) (*Profile, error) {
	var resp Profile
	if err := c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(username), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetStatus updates the caller's status.
func (c *Client) SetStatus(ctx context.Context, status string) (*Profile, error) {
	var resp Profile
	if err := c.do(ctx, http.MethodPut, "/profile", map[string]string{"status": status}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rename changes the caller's nickname and saves it.
func (c *Client) Rename(ctx context.Context, nickname string) error {
	var resp struct {
		Username string `json:"username"`
	}
	if err := c.do(ctx, http.MethodPost, "/profile/rename", map[string]string{"nickname": nickname}, &resp); err != nil {
		return err
	}
	c.Username = resp.Username
	return c.SaveConfig()
}

// Online lists users with a live session.
func (c *Client) Online(ctx context.Context) ([]string, error) {
	var resp struct {
		Users []string `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/online", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Region    string                 `json:"region,omitempty"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
