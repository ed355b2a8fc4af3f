package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"trane/types"
)

// defaultTimeout bounds every REST call; the observed system had none,
// which left hung requests hanging forever.
const defaultTimeout = 30 * time.Second

// Client talks to the trane server REST API.
type Client struct {
	baseURL string
	http    *http.Client
	session *Session
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string, session *Session) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		session: session,
	}
}

// SetTimeout overrides the default request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.http.Timeout = d
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a token pair and stores it on the session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/token/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "login", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	var pair types.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	return c.session.SetTokens(pair)
}

// Register creates an account and stores the issued tokens on the session.
func (c *Client) Register(ctx context.Context, username, password string) error {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/register/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "register", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return responseError(resp)
	}

	var pair types.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	return c.session.SetTokens(pair)
}

// RefreshToken rotates the session's refresh token into a fresh pair.
func (c *Client) RefreshToken(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{
		"refresh": c.session.Tokens().Refresh,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/token/refresh/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "refresh", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	var pair types.TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	return c.session.SetTokens(pair)
}

// Submit packages the file and options into a multipart request and
// returns the created entry. A missing file is rejected locally and
// never issues a network request.
func (c *Client) Submit(ctx context.Context, filePath string, opts types.SeparationOptions) (*types.Entry, error) {
	if strings.TrimSpace(filePath) == "" {
		return nil, &ValidationError{Fields: map[string]string{"audio_file": "no file attached"}}
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, &ValidationError{Fields: map[string]string{"audio_file": fmt.Sprintf("cannot open file: %v", err)}}
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio_file", filepath.Base(filePath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, err
	}

	if opts.Model != "" {
		if err := writer.WriteField("model", opts.Model); err != nil {
			return nil, err
		}
	}
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	if err := writer.WriteField("options", string(optsJSON)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/entries/", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, responseError(resp)
	}

	var entry types.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("decode entry response: %w", err)
	}
	return &entry, nil
}

// List fetches all entries, newest first.
func (c *Client) List(ctx context.Context) ([]*types.Entry, error) {
	var list types.EntryList
	if err := c.getJSON(ctx, "/entries/", &list); err != nil {
		return nil, err
	}
	return list.Entries, nil
}

// Get fetches a single entry.
func (c *Client) Get(ctx context.Context, id string) (*types.Entry, error) {
	var entry types.Entry
	if err := c.getJSON(ctx, "/entries/"+id+"/", &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Rename updates an entry's display name.
func (c *Client) Rename(ctx context.Context, id, name string) (*types.Entry, error) {
	body, _ := json.Marshal(map[string]string{"name": name})

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		c.baseURL+"/entries/"+id+"/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "rename", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var entry types.Entry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("decode entry response: %w", err)
	}
	return &entry, nil
}

// Delete removes an entry and its media.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/entries/"+id+"/", nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "delete", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return responseError(resp)
	}
	return nil
}

// Download saves the original upload of an entry to destPath.
func (c *Client) Download(ctx context.Context, id, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/entries/"+id+"/download/", nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

// Stems returns the playable track list for a completed entry.
func (c *Client) Stems(ctx context.Context, id string) ([]types.Track, error) {
	var list types.TrackList
	if err := c.getJSON(ctx, "/entries/"+id+"/stems/", &list); err != nil {
		return nil, err
	}
	return list.Tracks, nil
}

// FetchStems downloads every track of a completed entry into destDir
// concurrently and returns the local file paths in track order.
func (c *Client) FetchStems(ctx context.Context, id, destDir string) ([]string, error) {
	tracks, err := c.Stems(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}

	paths := make([]string, len(tracks))
	g, gctx := errgroup.WithContext(ctx)
	for i, track := range tracks {
		paths[i] = filepath.Join(destDir, fmt.Sprintf("%s.%s", track.Name, track.Format))
		g.Go(func() error {
			return c.fetchMedia(gctx, track.URL, paths[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (c *Client) fetchMedia(ctx context.Context, urlPath, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+urlPath, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "fetch media", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: "get " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.session == nil {
		return
	}
	if access := c.session.Tokens().Access; access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
}

// responseError maps a non-2xx response to the error taxonomy: field
// detail becomes a ValidationError surfaced per field, anything else a
// ServerError with the message extracted verbatim.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var apiErr types.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if len(apiErr.Fields) > 0 {
			return &ValidationError{Fields: apiErr.Fields}
		}
		if apiErr.Error != "" {
			return &ServerError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
	}
	return &ServerError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
