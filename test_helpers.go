package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"trane/cmd"
	"trane/services"
	"trane/store"
	"trane/types"
)

// TestHelper provides utilities for testing the trane server
type TestHelper struct {
	Server      *httptest.Server
	Store       *store.Store
	Separator   *fakeSeparator
	LibraryRoot string
	AccessToken string
}

// fakeSeparator stands in for the demucs subprocess. It writes real WAV
// files into the layout the tool produces and reports scripted progress.
type fakeSeparator struct {
	// FailWith, when non-empty, makes every run fail with this message.
	FailWith string

	// Stems produced per run; defaults to the four-source set.
	Stems []string

	// Gate, when set, holds every run until the channel is closed so a
	// test can subscribe before any progress is reported.
	Gate chan struct{}
}

func (f *fakeSeparator) Separate(ctx context.Context, req services.SeparationRequest, onProgress func(percent int)) ([]services.StemResult, error) {
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for _, percent := range []int{10, 45, 90} {
		onProgress(percent)
	}

	if f.FailWith != "" {
		return nil, fmt.Errorf("%s", f.FailWith)
	}

	trackName := req.EntryID
	if base := filepath.Base(req.InputPath); base != "" {
		trackName = base[:len(base)-len(filepath.Ext(base))]
	}
	stemDir := filepath.Join(req.OutputDir, req.Model, trackName)
	if err := os.MkdirAll(stemDir, 0o755); err != nil {
		return nil, err
	}

	stems := f.Stems
	if len(stems) == 0 {
		stems = req.Stems
	}
	if len(stems) == 0 {
		stems = services.DefaultStems
	}

	var results []services.StemResult
	for _, name := range stems {
		path := filepath.Join(stemDir, name+".wav")
		if err := os.WriteFile(path, minimalWAV(), 0o644); err != nil {
			return nil, err
		}
		results = append(results, services.StemResult{Name: name, Path: path, Format: "wav"})
	}
	return results, nil
}

// NewTestHelper creates a test server over a temporary library and
// database, with a registered user whose access token is ready to use.
func NewTestHelper(t *testing.T) *TestHelper {
	gin.SetMode(gin.TestMode)

	libraryRoot := t.TempDir()

	db, err := store.Open(filepath.Join(t.TempDir(), "trane-test.db"))
	require.NoError(t, err)

	separator := &fakeSeparator{}

	router := cmd.NewRouter(cmd.ServerOptions{
		Store:       db,
		Separator:   separator,
		LibraryRoot: libraryRoot,
		TokenSecret: "test-signing-secret",
		Workers:     2,
	})

	helper := &TestHelper{
		Server:      httptest.NewServer(router),
		Store:       db,
		Separator:   separator,
		LibraryRoot: libraryRoot,
	}

	var pair types.TokenPair
	resp := helper.PostJSON(t, "/auth/register/", map[string]string{
		"username": "testuser",
		"password": "test password 123",
	}, &pair)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, pair.Access)
	helper.AccessToken = pair.Access

	return helper
}

// Cleanup cleans up test resources
func (h *TestHelper) Cleanup(t *testing.T) {
	if h.Server != nil {
		h.Server.Close()
	}
	if h.Store != nil {
		require.NoError(t, h.Store.Close())
	}
}

// MakeRequest makes an HTTP request to the test server, attaching the
// helper's bearer token when one is set.
func (h *TestHelper) MakeRequest(t *testing.T, method, path string, body interface{}) *http.Response {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, h.Server.URL+path, reqBody)
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.AccessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	return resp
}

// GetJSON makes a GET request and unmarshals the JSON response
func (h *TestHelper) GetJSON(t *testing.T, path string, target interface{}) *http.Response {
	resp := h.MakeRequest(t, "GET", path, nil)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close()

	if target != nil {
		err = json.Unmarshal(body, target)
		require.NoError(t, err)
	}

	return resp
}

// PostJSON makes a POST request with a JSON body and unmarshals the response
func (h *TestHelper) PostJSON(t *testing.T, path string, requestBody interface{}, target interface{}) *http.Response {
	resp := h.MakeRequest(t, "POST", path, requestBody)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close()

	if target != nil {
		err = json.Unmarshal(body, target)
		require.NoError(t, err)
	}

	return resp
}

// UploadAudio submits a multipart upload and returns the raw response.
// The body is decoded into target when the pointer is non-nil.
func (h *TestHelper) UploadAudio(t *testing.T, filename, model string, content []byte, target interface{}) *http.Response {
	return h.UploadAudioOptions(t, filename, model, "", content, target)
}

// UploadAudioOptions is UploadAudio with an explicit options JSON field.
func (h *TestHelper) UploadAudioOptions(t *testing.T, filename, model, options string, content []byte, target interface{}) *http.Response {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio_file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)

	if model != "" {
		require.NoError(t, writer.WriteField("model", model))
	}
	if options != "" {
		require.NoError(t, writer.WriteField("options", options))
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest("POST", h.Server.URL+"/entries/", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if h.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.AccessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close()

	if target != nil {
		require.NoError(t, json.Unmarshal(body, target))
	}

	return resp
}

// UploadDocument submits a multipart document upload attached to an
// entry and decodes the response into target when non-nil.
func (h *TestHelper) UploadDocument(t *testing.T, entryID, filename string, fields map[string]string, content []byte, target interface{}) *http.Response {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	if entryID != "" {
		require.NoError(t, writer.WriteField("entryId", entryID))
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest("POST", h.Server.URL+"/documents/", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if h.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.AccessToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close()

	if target != nil && len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, target))
	}

	return resp
}

// WaitForEntryStatus polls an entry until it reaches a terminal status
// or the timeout elapses.
func (h *TestHelper) WaitForEntryStatus(t *testing.T, id string, timeout time.Duration) *types.Entry {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		var entry types.Entry
		resp := h.GetJSON(t, "/entries/"+id+"/", &entry)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		if entry.Status.Terminal() {
			return &entry
		}

		time.Sleep(25 * time.Millisecond)
	}

	t.Fatalf("Entry %s did not reach a terminal status within %v", id, timeout)
	return nil
}

// ConnectProgressSocket subscribes to the progress stream of a task
func (h *TestHelper) ConnectProgressSocket(t *testing.T, taskID string) *websocket.Conn {
	wsURL := "ws" + h.Server.URL[4:] + "/ws/progress/" + taskID + "/"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	return conn
}

// minimalWAV returns a small but structurally valid PCM WAV file.
func minimalWAV() []byte {
	const (
		sampleRate = 44100
		byteRate   = sampleRate * 2 * 2 // stereo, 16-bit
		dataSize   = byteRate / 10      // a tenth of a second
	)

	var buf bytes.Buffer
	write := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	write(uint32(4 + 24 + 8 + dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	write(uint32(16))
	write(uint16(1))
	write(uint16(2))
	write(uint32(sampleRate))
	write(uint32(byteRate))
	write(uint16(4))
	write(uint16(16))

	buf.WriteString("data")
	write(uint32(dataSize))
	buf.Write(make([]byte, dataSize))

	return buf.Bytes()
}
