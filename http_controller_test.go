package signin_test

import (
	"context"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	signin "github.com/sessionware/go-signin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupController(t *testing.T) (*signin.SignInController, signin.RepositoryManager, func()) {
	t.Helper()

	repo, _, cleanup := setupRepo(t)

	auth := signin.NewAuthenticator(repo)
	auther, err := signin.NewCookieAuthenticator(auth, testConfig{})
	require.NoError(t, err)

	controller := signin.NewSignInController(
		signin.WithControllerRepo(repo),
		signin.WithControllerAuthenticator(auther),
		signin.WithControllerBootstrap(signin.NewAdminBootstrap(repo)),
	)

	return controller, repo, cleanup
}

func TestLoginShowRendersForm(t *testing.T) {
	controller, _, cleanup := setupController(t)
	defer cleanup()

	mockCtx := new(MockContext)
	mockCtx.On("Render", "login", mock.Anything).Return(nil)

	require.NoError(t, controller.LoginShow(mockCtx))
	mockCtx.AssertExpectations(t)
}

func TestLoginPostValidationFailure(t *testing.T) {
	controller, _, cleanup := setupController(t)
	defer cleanup()

	var rendered router.ViewContext
	mockCtx := new(MockContext)
	mockCtx.On("Bind", mock.Anything).Return(nil)
	mockCtx.On("Render", "login", mock.Anything).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	}).Return(nil)

	require.NoError(t, controller.LoginPost(mockCtx))

	require.NotNil(t, rendered)
	assert.Contains(t, rendered, "validation")
}

func TestLoginPostInvalidCredentials(t *testing.T) {
	controller, repo, cleanup := setupController(t)
	defer cleanup()

	registerTestUser(t, repo, "alice", "s3cret-password")

	var rendered router.ViewContext
	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*signin.LoginRequest)
		payload.Identifier = "alice"
		payload.Password = "wrong"
	}).Return(nil)
	mockCtx.On("Render", "login", mock.Anything).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	}).Return(nil)

	require.NoError(t, controller.LoginPost(mockCtx))

	require.NotNil(t, rendered)
	errs, ok := rendered["errors"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "Invalid username or password!", errs["authentication"])
}

func TestLoginPostSuccessRedirectsHome(t *testing.T) {
	controller, repo, cleanup := setupController(t)
	defer cleanup()

	registerTestUser(t, repo, "alice", "s3cret-password")

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*signin.LoginRequest)
		payload.Identifier = "alice"
		payload.Password = "s3cret-password"
	}).Return(nil)
	mockCtx.On("Cookie", mock.Anything)
	mockCtx.On("Redirect", "/", []int{router.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.LoginPost(mockCtx))
	mockCtx.AssertExpectations(t)
}

func TestLogOutRedirects(t *testing.T) {
	controller, _, cleanup := setupController(t)
	defer cleanup()

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Cookies", "signin_token").Return("")
	mockCtx.On("Cookie", mock.Anything)
	mockCtx.On("Redirect", "/", []int{router.StatusTemporaryRedirect}).Return(nil)

	require.NoError(t, controller.LogOut(mockCtx))
	mockCtx.AssertExpectations(t)
}

func TestSetupShowRejectsRemoteOrigin(t *testing.T) {
	controller, _, cleanup := setupController(t)
	defer cleanup()

	mockCtx := new(MockContext)
	mockCtx.On("Locals", signin.ClientIPLocalKey).Return("203.0.113.5")
	mockCtx.On("Status", fiber.StatusForbidden)
	mockCtx.On("SendString", "Access denied.").Return(nil)

	require.NoError(t, controller.SetupShow(mockCtx))
	mockCtx.AssertExpectations(t)
}

func TestSetupShowRejectsMissingClientIP(t *testing.T) {
	controller, _, cleanup := setupController(t)
	defer cleanup()

	// no transport adapter populated the local, fail closed
	mockCtx := new(MockContext)
	mockCtx.On("Locals", signin.ClientIPLocalKey).Return(nil)
	mockCtx.On("Status", fiber.StatusForbidden)
	mockCtx.On("SendString", "Access denied.").Return(nil)

	require.NoError(t, controller.SetupShow(mockCtx))
	mockCtx.AssertExpectations(t)
}

func TestSetupShowLoopback(t *testing.T) {
	controller, _, cleanup := setupController(t)
	defer cleanup()

	var rendered router.ViewContext
	mockCtx := new(MockContext)
	mockCtx.On("Locals", signin.ClientIPLocalKey).Return("127.0.0.1")
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Render", "setup", mock.Anything).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	}).Return(nil)

	require.NoError(t, controller.SetupShow(mockCtx))

	require.NotNil(t, rendered)
	assert.Equal(t, true, rendered["can_create"])
}

func TestSetupPostRejectsRemoteOrigin(t *testing.T) {
	controller, repo, cleanup := setupController(t)
	defer cleanup()

	mockCtx := new(MockContext)
	mockCtx.On("Locals", signin.ClientIPLocalKey).Return("203.0.113.5")
	mockCtx.On("Status", fiber.StatusForbidden)
	mockCtx.On("SendString", "Access denied.").Return(nil)

	require.NoError(t, controller.SetupPost(mockCtx))
	mockCtx.AssertExpectations(t)

	count, err := repo.Users().CountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSetupPostPasswordMismatch(t *testing.T) {
	controller, repo, cleanup := setupController(t)
	defer cleanup()

	var rendered router.ViewContext
	mockCtx := new(MockContext)
	mockCtx.On("Locals", signin.ClientIPLocalKey).Return("127.0.0.1")
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*signin.SetupRequest)
		payload.Password = "a"
		payload.PasswordRepeat = "b"
	}).Return(nil)
	mockCtx.On("Render", "setup", mock.Anything).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	}).Return(nil)

	require.NoError(t, controller.SetupPost(mockCtx))

	require.NotNil(t, rendered)
	errs, ok := rendered["errors"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "Passwords do not match", errs["validation"])

	count, err := repo.Users().CountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSetupPostAlreadyInitialized(t *testing.T) {
	controller, repo, cleanup := setupController(t)
	defer cleanup()

	registerTestUser(t, repo, "existing", "whatever-password")

	var rendered router.ViewContext
	mockCtx := new(MockContext)
	mockCtx.On("Locals", signin.ClientIPLocalKey).Return("127.0.0.1")
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*signin.SetupRequest)
		payload.Password = "secret"
		payload.PasswordRepeat = "secret"
	}).Return(nil)
	mockCtx.On("Render", "setup", mock.Anything).Run(func(args mock.Arguments) {
		rendered = args.Get(1).(router.ViewContext)
	}).Return(nil)

	require.NoError(t, controller.SetupPost(mockCtx))

	require.NotNil(t, rendered)
	assert.NotEmpty(t, rendered["message"])

	// still only the pre-existing user
	count, err := repo.Users().CountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFormatValidationErrorToMap(t *testing.T) {
	payload := signin.LoginRequest{}
	err := payload.Validate()
	require.Error(t, err)

	out := signin.FormatValidationErrorToMap(err)
	assert.Contains(t, out, "identifier")
	assert.Contains(t, out, "password")

	assert.Empty(t, signin.FormatValidationErrorToMap(nil))
}
