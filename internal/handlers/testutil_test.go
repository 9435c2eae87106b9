package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/skyvault/backend/internal/database"
	"github.com/skyvault/backend/internal/middleware"
	"github.com/skyvault/backend/internal/models"
	"github.com/skyvault/backend/internal/services"
	"github.com/skyvault/backend/pkg/logger"
	"github.com/skyvault/backend/pkg/utils"
	"gorm.io/gorm"
)

func init() {
	logger.Init()
	utils.ConfigureJWT("test-secret", 1)
}

// fakeStore is an in-memory ObjectStore standing in for MinIO.
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[objectName] = data
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) Download(_ context.Context, objectName string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.objects[objectName]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectName)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	delete(s.objects, objectName)
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) PresignedGetURL(_ context.Context, objectName string, _ time.Duration) (string, error) {
	return "https://storage.test/" + objectName + "?sig=test", nil
}

func (s *fakeStore) has(objectName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectName]
	return ok
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// fakePushConn records events pushed through the presence registry.
type fakePushConn struct {
	mu       sync.Mutex
	events   []services.PushEvent
	writeErr error
}

func (c *fakePushConn) WriteJSON(v interface{}) error {
	if c.writeErr != nil {
		return c.writeErr
	}
	event, ok := v.(services.PushEvent)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", v)
	}
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return nil
}

func (c *fakePushConn) received() []services.PushEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]services.PushEvent, len(c.events))
	copy(out, c.events)
	return out
}

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	store    *fakeStore
	presence *services.PresenceRegistry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	store := newFakeStore()
	presence := services.NewPresenceRegistry()
	quota := services.NewQuotaService(db)

	app := fiber.New()
	authmw := middleware.NewAuthMiddleware(db)
	RegisterRoutes(app, authmw, Handlers{
		Auth:    NewAuthHandler(db),
		Users:   NewUsersHandler(db, store),
		Folders: NewFoldersHandler(db),
		Files:   NewFilesHandler(db, store, quota),
		Shares:  NewSharesHandler(db, store, presence, "http://frontend.test"),
		WS:      NewWSHandler(presence),
	})

	return &testEnv{app: app, db: db, store: store, presence: presence}
}

func (env *testEnv) createUser(t *testing.T, email, fullName string) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword("password123")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
	}
	if err := env.db.Create(&user).Error; err != nil {
		t.Fatalf("creating test user: %v", err)
	}

	token, err := utils.GenerateToken(&user)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return &user, token
}

func (env *testEnv) request(t *testing.T, method, path, token string, payload interface{}) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (env *testEnv) upload(t *testing.T, token, field, filename, content, folderID, path string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	if folderID != "" {
		if err := writer.WriteField("folderId", folderID); err != nil {
			t.Fatalf("writing folderId field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

// uploadWithType is like upload but sets an explicit Content-Type on the file
// part, which CreateFormFile cannot do.
func (env *testEnv) uploadWithType(t *testing.T, token, field, filename, content, contentType, path string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("creating form part: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("writing form part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodPost, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := env.app.Test(req, -1)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	defer resp.Body.Close()
	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

func dataField(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()

	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected data object, got %T", body["data"])
	}
	return data
}

func dataList(t *testing.T, body map[string]interface{}) []interface{} {
	t.Helper()

	data, ok := body["data"].([]interface{})
	if !ok {
		t.Fatalf("expected data array, got %T", body["data"])
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

func assertError(t *testing.T, resp *http.Response, status int) map[string]interface{} {
	t.Helper()

	assertStatus(t, resp, status)
	body := decodeBody(t, resp)
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %v", body)
	}
	if _, ok := body["error"].(string); !ok {
		t.Fatalf("expected error message, got %v", body)
	}
	return body
}
