package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"user-mgmt-api/internal/domain"
	"user-mgmt-api/internal/repository"
	"user-mgmt-api/internal/service"
)

type mockUserRepo struct {
	usersByID    map[string]domain.User
	usersByEmail map[string]string
	order        []string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:    make(map[string]domain.User),
		usersByEmail: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	if _, exists := m.usersByEmail[user.Email]; exists {
		return repository.ErrDuplicateEmail
	}
	m.usersByID[user.ID] = user
	m.usersByEmail[user.Email] = user.ID
	m.order = append(m.order, user.ID)
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	id, ok := m.usersByEmail[email]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return m.GetByID(context.Background(), id)
}

func (m *mockUserRepo) Update(_ context.Context, user domain.User) error {
	existing, ok := m.usersByID[user.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if user.Email != existing.Email {
		if _, exists := m.usersByEmail[user.Email]; exists {
			return repository.ErrDuplicateEmail
		}
		delete(m.usersByEmail, existing.Email)
		m.usersByEmail[user.Email] = user.ID
	}
	user.FailedLoginAttempts = existing.FailedLoginAttempts
	user.IsLocked = existing.IsLocked
	user.IsVerified = existing.IsVerified
	user.PasswordHash = existing.PasswordHash
	m.usersByID[user.ID] = user
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	delete(m.usersByID, id)
	delete(m.usersByEmail, user.Email)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockUserRepo) List(_ context.Context, offset, limit int) ([]domain.User, int, error) {
	total := len(m.order)
	users := make([]domain.User, 0, limit)
	for i := offset; i < total && len(users) < limit; i++ {
		users = append(users, m.usersByID[m.order[i]])
	}
	return users, total, nil
}

func (m *mockUserRepo) RecordFailedLogin(_ context.Context, id string, threshold int) (int, bool, error) {
	user, ok := m.usersByID[id]
	if !ok {
		return 0, false, pgx.ErrNoRows
	}
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= threshold {
		user.IsLocked = true
	}
	m.usersByID[id] = user
	return user.FailedLoginAttempts, user.IsLocked, nil
}

func (m *mockUserRepo) ResetFailedLogins(_ context.Context, id string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.FailedLoginAttempts = 0
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) MarkVerified(_ context.Context, id string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.IsVerified = true
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) Unlock(_ context.Context, id string) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.IsLocked = false
	user.FailedLoginAttempts = 0
	m.usersByID[id] = user
	return nil
}

func (m *mockUserRepo) SetProfessionalStatus(_ context.Context, id string, isProfessional bool) error {
	user, ok := m.usersByID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.IsProfessional = isProfessional
	m.usersByID[id] = user
	return nil
}

type mockEmailSender struct {
	verificationURLs []string
	lockedTo         []string
	professionalTo   []string
}

func (m *mockEmailSender) SendVerificationEmail(_ context.Context, _, _, verificationURL string) error {
	m.verificationURLs = append(m.verificationURLs, verificationURL)
	return nil
}

func (m *mockEmailSender) SendAccountLockedEmail(_ context.Context, toEmail, _ string) error {
	m.lockedTo = append(m.lockedTo, toEmail)
	return nil
}

func (m *mockEmailSender) SendProfessionalStatusEmail(_ context.Context, toEmail, _ string, _ bool) error {
	m.professionalTo = append(m.professionalTo, toEmail)
	return nil
}

const testPassword = "MySuperPassword$1234"

type testEnv struct {
	router *gin.Engine
	repo   *mockUserRepo
	sender *mockEmailSender
	jwtSvc *service.JWTService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := newMockUserRepo()
	sender := &mockEmailSender{}
	jwtSvc := service.NewJWTService("test-secret", 15*time.Minute)
	userSvc := service.NewUserService(zap.NewNop(), repo, sender, nil, nil, 5, "http://localhost:8080")
	h := NewUserHandler(zap.NewNop(), userSvc, jwtSvc)
	return &testEnv{
		router: NewRouter(zap.NewNop(), h, jwtSvc),
		repo:   repo,
		sender: sender,
		jwtSvc: jwtSvc,
	}
}

func (e *testEnv) seedUser(t *testing.T, email string, role domain.Role, verified, locked bool) domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := domain.User{
		ID:           "id-" + email,
		Email:        email,
		Nickname:     "nick-" + email,
		PasswordHash: string(hash),
		Role:         role,
		IsVerified:   verified,
		IsLocked:     locked,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	if err := e.repo.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *testEnv) tokenFor(t *testing.T, user domain.User) string {
	t.Helper()
	token, err := e.jwtSvc.Issue(user)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func performJSON(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func performForm(r http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func detailOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body.Detail
}

func TestRegister_Success(t *testing.T) {
	env := newTestEnv(t)

	rec := performJSON(env.router, http.MethodPost, "/register/", "", map[string]string{
		"email":    "new@example.com",
		"nickname": "newbie",
		"password": testPassword,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.sender.verificationURLs) != 1 {
		t.Fatalf("expected verification email")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "taken@example.com", domain.RoleAuthenticated, true, false)

	rec := performJSON(env.router, http.MethodPost, "/register/", "", map[string]string{
		"email":    "taken@example.com",
		"password": "AnotherPassword123!",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(detailOf(t, rec), "Email already exists") {
		t.Fatalf("expected duplicate email detail, got %q", detailOf(t, rec))
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	env := newTestEnv(t)

	rec := performJSON(env.router, http.MethodPost, "/register/", "", map[string]string{
		"email":    "notanemail",
		"password": "ValidPassword123!",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "verified@example.com", domain.RoleAuthenticated, true, false)

	rec := performForm(env.router, "/login/", url.Values{
		"username": {user.Email},
		"password": {testPassword},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.TokenType != "bearer" {
		t.Fatalf("expected token_type bearer, got %q", body.TokenType)
	}

	claims, err := env.jwtSvc.Decode(body.AccessToken)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if claims.Role != string(domain.RoleAuthenticated) {
		t.Fatalf("expected role AUTHENTICATED, got %q", claims.Role)
	}
	if claims.UserID != user.ID {
		t.Fatalf("expected user id %q, got %q", user.ID, claims.UserID)
	}
}

func TestLogin_UserNotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := performForm(env.router, "/login/", url.Values{
		"username": {"nonexistentuser@here.edu"},
		"password": {"DoesNotMatter123!"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(detailOf(t, rec), "Incorrect email or password.") {
		t.Fatalf("unexpected detail %q", detailOf(t, rec))
	}
}

func TestLogin_IncorrectPassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "verified@example.com", domain.RoleAuthenticated, true, false)

	rec := performForm(env.router, "/login/", url.Values{
		"username": {user.Email},
		"password": {"IncorrectPassword123!"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	// Mismo mensaje genérico que para un email inexistente.
	if !strings.Contains(detailOf(t, rec), "Incorrect email or password.") {
		t.Fatalf("unexpected detail %q", detailOf(t, rec))
	}
}

func TestLogin_UnverifiedUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "unverified@example.com", domain.RoleAuthenticated, false, false)

	rec := performForm(env.router, "/login/", url.Values{
		"username": {user.Email},
		"password": {testPassword},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLogin_LockedUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "locked@example.com", domain.RoleAuthenticated, true, true)

	rec := performForm(env.router, "/login/", url.Values{
		"username": {user.Email},
		"password": {testPassword},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(detailOf(t, rec), "Account locked due to too many failed login attempts.") {
		t.Fatalf("unexpected detail %q", detailOf(t, rec))
	}
}

func TestLogin_LockoutScenario(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "victim@example.com", domain.RoleAuthenticated, true, false)

	for i := 0; i < 5; i++ {
		rec := performForm(env.router, "/login/", url.Values{
			"username": {user.Email},
			"password": {"WrongPassword1!"},
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, rec.Code)
		}
	}

	// Incluso la contraseña correcta devuelve cuenta bloqueada.
	rec := performForm(env.router, "/login/", url.Values{
		"username": {user.Email},
		"password": {testPassword},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(detailOf(t, rec), "Account locked") {
		t.Fatalf("unexpected detail %q", detailOf(t, rec))
	}
	if len(env.sender.lockedTo) != 1 {
		t.Fatalf("expected one locked notification, got %d", len(env.sender.lockedTo))
	}
}

func TestLogin_MissingPassword(t *testing.T) {
	env := newTestEnv(t)

	rec := performForm(env.router, "/login/", url.Values{
		"username": {"someone@example.com"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestCreateUser_AccessDenied(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "regular@example.com", domain.RoleAuthenticated, true, false)

	rec := performJSON(env.router, http.MethodPost, "/users/", env.tokenFor(t, user), map[string]string{
		"email":    "test@example.com",
		"password": "sS#fdasrongPassword123!",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCreateUser_AsAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", domain.RoleAdmin, true, false)

	rec := performJSON(env.router, http.MethodPost, "/users/", env.tokenFor(t, admin), map[string]any{
		"email":       "created@example.com",
		"password":    testPassword,
		"role":        "MANAGER",
		"is_verified": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var body domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Role != domain.RoleManager {
		t.Fatalf("expected role MANAGER, got %q", body.Role)
	}
}

func TestRetrieveUser_AccessDenied(t *testing.T) {
	env := newTestEnv(t)
	target := env.seedUser(t, "target@example.com", domain.RoleAuthenticated, true, false)
	user := env.seedUser(t, "regular@example.com", domain.RoleAuthenticated, true, false)

	rec := performJSON(env.router, http.MethodGet, "/users/"+target.ID, env.tokenFor(t, user), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRetrieveUser_AsAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", domain.RoleAdmin, true, false)
	target := env.seedUser(t, "target@example.com", domain.RoleAuthenticated, true, false)

	rec := performJSON(env.router, http.MethodGet, "/users/"+target.ID, env.tokenFor(t, admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ID != target.ID {
		t.Fatalf("expected id %q, got %q", target.ID, body.ID)
	}
}

func TestRetrieveUser_Self(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "self@example.com", domain.RoleAuthenticated, true, false)

	rec := performJSON(env.router, http.MethodGet, "/users/"+user.ID, env.tokenFor(t, user), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUpdateUser_EmailAccessDenied(t *testing.T) {
	env := newTestEnv(t)
	target := env.seedUser(t, "target@example.com", domain.RoleAuthenticated, true, false)
	user := env.seedUser(t, "regular@example.com", domain.RoleAuthenticated, true, false)

	rec := performJSON(env.router, http.MethodPut, "/users/"+target.ID, env.tokenFor(t, user), map[string]string{
		"email": "updated@example.com",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestUpdateUser_EmailAsAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", domain.RoleAdmin, true, false)
	target := env.seedUser(t, "target@example.com", domain.RoleAuthenticated, true, false)

	rec := performJSON(env.router, http.MethodPut, "/users/"+target.ID, env.tokenFor(t, admin), map[string]string{
		"email": "updated@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Email != "updated@example.com" {
		t.Fatalf("expected updated email, got %q", body.Email)
	}
}

func TestUpdateUser_GithubURL(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", domain.RoleAdmin, true, false)

	rec := performJSON(env.router, http.MethodPut, "/users/"+admin.ID, env.tokenFor(t, admin), map[string]string{
		"github_profile_url": "http://www.github.com/kaw393939",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.GithubProfileURL != "http://www.github.com/kaw393939" {
		t.Fatalf("unexpected github url %q", body.GithubProfileURL)
	}
}

func TestUpdateUser_LinkedinURL(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", domain.RoleAdmin, true, false)

	rec := performJSON(env.router, http.MethodPut, "/users/"+admin.ID, env.tokenFor(t, admin), map[string]string{
		"linkedin_profile_url": "http://www.linkedin.com/kaw393939",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.LinkedinProfileURL != "http://www.linkedin.com/kaw393939" {
		t.Fatalf("unexpected linkedin url %q", body.LinkedinProfileURL)
	}
}

func TestDeleteUser_ThenFetchReturns404(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", domain.RoleAdmin, true, false)
	target := env.seedUser(t, "target@example.com", domain.RoleAuthenticated, true, false)
	token := env.tokenFor(t, admin)

	rec := performJSON(env.router, http.MethodDelete, "/users/"+target.ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}

	rec = performJSON(env.router, http.MethodGet, "/users/"+target.ID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteUser_DoesNotExist(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", domain.RoleAdmin, true, false)

	rec := performJSON(env.router, http.MethodDelete, "/users/00000000-0000-0000-0000-000000000000", env.tokenFor(t, admin), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListUsers_AsAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", domain.RoleAdmin, true, false)

	rec := performJSON(env.router, http.MethodGet, "/users/", env.tokenFor(t, admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if _, ok := body["items"]; !ok {
		t.Fatalf("expected items in response, got %s", rec.Body.String())
	}
}

func TestListUsers_OversizedLimitUsesEffectivePage(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", domain.RoleAdmin, true, false)

	// El limit se acota a 100: la página reportada se calcula sobre el
	// limit efectivo, no sobre el pedido.
	rec := performJSON(env.router, http.MethodGet, "/users/?skip=150&limit=1000", env.tokenFor(t, admin), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Page int `json:"page"`
		Size int `json:"size"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Page != 2 {
		t.Fatalf("expected page 2 with skip=150 and effective limit 100, got %d", body.Page)
	}
	if body.Size != 0 {
		t.Fatalf("expected empty page beyond total, got size %d", body.Size)
	}
}

func TestListUsers_AsManager(t *testing.T) {
	env := newTestEnv(t)
	manager := env.seedUser(t, "manager@example.com", domain.RoleManager, true, false)

	rec := performJSON(env.router, http.MethodGet, "/users/", env.tokenFor(t, manager), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestListUsers_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "regular@example.com", domain.RoleAuthenticated, true, false)

	rec := performJSON(env.router, http.MethodGet, "/users/", env.tokenFor(t, user), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestUpdateProfile_Success(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "regular@example.com", domain.RoleAuthenticated, true, false)

	rec := performJSON(env.router, http.MethodPut, "/profile", env.tokenFor(t, user), map[string]string{
		"first_name": "UpdatedFirstName",
		"bio":        "Updated bio for the user.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.FirstName != "UpdatedFirstName" || body.Bio != "Updated bio for the user." {
		t.Fatalf("unexpected profile %+v", body)
	}
}

func TestUpdateProfile_MissingAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := performJSON(env.router, http.MethodPut, "/profile", "", map[string]string{
		"first_name": "UpdatedFirstName",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if !strings.Contains(detailOf(t, rec), "Not authenticated") {
		t.Fatalf("unexpected detail %q", detailOf(t, rec))
	}
}

func TestUpdateProfile_FakeToken(t *testing.T) {
	env := newTestEnv(t)

	rec := performJSON(env.router, http.MethodPut, "/profile", "fake_token", map[string]string{
		"first_name": "NonExistentUser",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestUpdateProfile_EmptyPayload(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "regular@example.com", domain.RoleAuthenticated, true, false)

	rec := performJSON(env.router, http.MethodPut, "/profile", env.tokenFor(t, user), map[string]string{})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestUnlockUser_RestoresLogin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", domain.RoleAdmin, true, false)
	locked := env.seedUser(t, "locked@example.com", domain.RoleAuthenticated, true, true)

	rec := performJSON(env.router, http.MethodPost, "/users/"+locked.ID+"/unlock", env.tokenFor(t, admin), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	loginRec := performForm(env.router, "/login/", url.Values{
		"username": {locked.Email},
		"password": {testPassword},
	})
	if loginRec.Code != http.StatusOK {
		t.Fatalf("expected 200 after unlock, got %d", loginRec.Code)
	}
}

func TestUnlockUser_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	manager := env.seedUser(t, "manager@example.com", domain.RoleManager, true, false)
	locked := env.seedUser(t, "locked@example.com", domain.RoleAuthenticated, true, true)

	rec := performJSON(env.router, http.MethodPost, "/users/"+locked.ID+"/unlock", env.tokenFor(t, manager), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestSetProfessionalStatus_AsManager(t *testing.T) {
	env := newTestEnv(t)
	manager := env.seedUser(t, "manager@example.com", domain.RoleManager, true, false)
	target := env.seedUser(t, "target@example.com", domain.RoleAuthenticated, true, false)

	rec := performJSON(env.router, http.MethodPut, "/users/"+target.ID+"/professional-status", env.tokenFor(t, manager), map[string]bool{
		"is_professional": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.IsProfessional {
		t.Fatalf("expected professional status set")
	}
	if len(env.sender.professionalTo) != 1 {
		t.Fatalf("expected notification email")
	}
}

func TestVerifyEmail_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	rec := performJSON(env.router, http.MethodPost, "/register/", "", map[string]string{
		"email":    "new@example.com",
		"password": testPassword,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	// El correo trae la URL completa; el path empieza en /verify-email.
	full := env.sender.verificationURLs[0]
	path := full[strings.Index(full, "/verify-email"):]
	rec = performJSON(env.router, http.MethodGet, path, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	loginRec := performForm(env.router, "/login/", url.Values{
		"username": {"new@example.com"},
		"password": {testPassword},
	})
	if loginRec.Code != http.StatusOK {
		t.Fatalf("expected 200 after verification, got %d", loginRec.Code)
	}
}

func TestVerifyEmail_BadToken(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "user@example.com", domain.RoleAuthenticated, false, false)

	rec := performJSON(env.router, http.MethodGet, "/verify-email/"+user.ID+"/bogus-token", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestResendVerification_AlwaysOK(t *testing.T) {
	env := newTestEnv(t)

	rec := performJSON(env.router, http.MethodPost, "/resend-verification/", "", map[string]string{
		"email": "whoknows@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
