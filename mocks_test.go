package guest_test

import (
	"context"
	"io"
	"mime/multipart"
	"time"

	"github.com/goliatone/go-guest"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
)

// MockUserStore implements guest.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*guest.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*guest.User)
	return user, args.Error(1)
}

// Create echoes the input user when the test did not configure a return
// value, mirroring the repository contract.
func (m *MockUserStore) Create(ctx context.Context, user *guest.User) (*guest.User, error) {
	args := m.Called(ctx, user)
	created, _ := args.Get(0).(*guest.User)
	if created == nil && args.Error(1) == nil {
		created = user
	}
	return created, args.Error(1)
}

func (m *MockUserStore) Save(ctx context.Context, user *guest.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) Delete(ctx context.Context, user *guest.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) VerifyPassword(user *guest.User, plaintext string) bool {
	args := m.Called(user, plaintext)
	return args.Bool(0)
}

// MockTokenStore implements guest.TokenStore
type MockTokenStore struct {
	mock.Mock
}

// Create mints a canned token bound to the passed user when the test did
// not configure a return value.
func (m *MockTokenStore) Create(ctx context.Context, user *guest.User, identifier string, short bool) (*guest.GuestToken, error) {
	args := m.Called(ctx, user, identifier, short)
	token, _ := args.Get(0).(*guest.GuestToken)
	if token == nil && args.Error(1) == nil {
		token = newToken(user, "tok1234567", false)
		if identifier != "" {
			token.Email = identifier
		}
	}
	return token, args.Error(1)
}

// CreateReset mints a canned reset token when the test did not configure a
// return value.
func (m *MockTokenStore) CreateReset(ctx context.Context, user *guest.User) (*guest.GuestToken, error) {
	args := m.Called(ctx, user)
	token, _ := args.Get(0).(*guest.GuestToken)
	if token == nil && args.Error(1) == nil {
		token = newResetToken(user, "rst1234567")
	}
	return token, args.Error(1)
}

func (m *MockTokenStore) FindLatestByEmail(ctx context.Context, email string) (*guest.GuestToken, error) {
	args := m.Called(ctx, email)
	token, _ := args.Get(0).(*guest.GuestToken)
	return token, args.Error(1)
}

func (m *MockTokenStore) FindByToken(ctx context.Context, code string) (*guest.GuestToken, error) {
	args := m.Called(ctx, code)
	token, _ := args.Get(0).(*guest.GuestToken)
	return token, args.Error(1)
}

func (m *MockTokenStore) Consume(ctx context.Context, token *guest.GuestToken) error {
	args := m.Called(ctx, token)
	if args.Error(0) == nil && token != nil {
		token.Confirmed = true
	}
	return args.Error(0)
}

func (m *MockTokenStore) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

// MockMailer implements guest.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to []string, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

// MockEventSink implements guest.EventSink
type MockEventSink struct {
	mock.Mock
}

func (m *MockEventSink) Emit(ctx context.Context, event string, payload map[string]any) error {
	args := m.Called(ctx, event, payload)
	return args.Error(0)
}

// fakeSession is an in-memory SessionAuthenticator that records the order
// of its calls.
type fakeSession struct {
	identity    string
	regenerated bool
	calls       []string
}

func (s *fakeSession) RegenerateSession() error {
	s.regenerated = true
	s.calls = append(s.calls, "regenerate")
	return nil
}

func (s *fakeSession) SetIdentity(identity string) error {
	s.identity = identity
	s.calls = append(s.calls, "set")
	return nil
}

func (s *fakeSession) HasIdentity() bool {
	return s.identity != ""
}

func (s *fakeSession) CurrentIdentity() string {
	return s.identity
}

func (s *fakeSession) ClearIdentity() error {
	s.identity = ""
	s.calls = append(s.calls, "clear")
	return nil
}

// fakeSessions hands the same fakeSession to every request.
type fakeSessions struct {
	session *fakeSession
}

func (p *fakeSessions) ForRequest(c router.Context) guest.SessionAuthenticator {
	return p.session
}

// MockContext mocks the router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	header, _ := args.Get(0).(*multipart.FileHeader)
	return header, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	merged, _ := args.Get(0).(map[string]any)
	return merged
}

func (m *MockContext) QueryValues(name string) []string {
	args := m.Called(name)
	values, _ := args.Get(0).([]string)
	return values
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	params, _ := args.Get(0).(map[string]string)
	return params
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}
