package guest

import (
	stderrors "errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// redirectCookie remembers the page that sent the visitor to the login
// form, so a successful login can send them back.
const redirectCookie = "guest_redirect"

// GuestControllerRoutes holds the route paths for the guest controller.
type GuestControllerRoutes struct {
	Login          string
	Logout         string
	Register       string
	ConfirmEmail   string
	ForgotPassword string
	ResetPassword  string
	AcceptTerms    string
	Me             string
	UpdateEmail    string
	SessionToken   string
}

// GuestControllerViews holds the template names for the guest controller.
type GuestControllerViews struct {
	Login          string
	Register       string
	ConfirmEmail   string
	ForgotPassword string
	ResetPassword  string
	AcceptTerms    string
	Me             string
}

// GuestController serves the guest self-service surface.
type GuestController struct {
	Debug        bool
	Logger       Logger
	Routes       *GuestControllerRoutes
	Views        *GuestControllerViews
	Accounts     *AccountService
	Auther       *Authenticator
	Updater      *AccountUpdater
	Terms        *TermsGate
	Redirects    *RedirectResolver
	Sessions     SessionProvider
	Tokens       *SessionTokenService
	ErrorHandler router.ErrorHandler
}

type GuestControllerOption func(*GuestController) *GuestController

func WithControllerLogger(l Logger) GuestControllerOption {
	return func(c *GuestController) *GuestController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func WithAccountService(s *AccountService) GuestControllerOption {
	return func(c *GuestController) *GuestController {
		c.Accounts = s
		return c
	}
}

func WithAuthenticator(a *Authenticator) GuestControllerOption {
	return func(c *GuestController) *GuestController {
		c.Auther = a
		return c
	}
}

func WithAccountUpdater(u *AccountUpdater) GuestControllerOption {
	return func(c *GuestController) *GuestController {
		c.Updater = u
		return c
	}
}

func WithTermsGate(g *TermsGate) GuestControllerOption {
	return func(c *GuestController) *GuestController {
		c.Terms = g
		return c
	}
}

func WithRedirectResolver(r *RedirectResolver) GuestControllerOption {
	return func(c *GuestController) *GuestController {
		c.Redirects = r
		return c
	}
}

func WithSessionProvider(p SessionProvider) GuestControllerOption {
	return func(c *GuestController) *GuestController {
		c.Sessions = p
		return c
	}
}

func WithSessionTokenService(ts *SessionTokenService) GuestControllerOption {
	return func(c *GuestController) *GuestController {
		c.Tokens = ts
		return c
	}
}

func WithControllerDebug(debug bool) GuestControllerOption {
	return func(c *GuestController) *GuestController {
		c.Debug = debug
		return c
	}
}

// NewGuestController builds a controller. Accounts, Auther, and Sessions
// are required.
func NewGuestController(opts ...GuestControllerOption) *GuestController {
	c := &GuestController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &GuestControllerRoutes{
			Login:          "/guest/login",
			Logout:         "/guest/logout",
			Register:       "/guest/register",
			ConfirmEmail:   "/guest/confirm-email",
			ForgotPassword: "/guest/forgot-password",
			ResetPassword:  "/guest/reset-password",
			AcceptTerms:    "/guest/accept-terms",
			Me:             "/guest/me",
			UpdateEmail:    "/guest/update-email",
			SessionToken:   "/guest/session-token",
		},
		Views: &GuestControllerViews{
			Login:          "guest/login",
			Register:       "guest/register",
			ConfirmEmail:   "guest/confirm_email",
			ForgotPassword: "guest/forgot_password",
			ResetPassword:  "guest/reset_password",
			AcceptTerms:    "guest/accept_terms",
			Me:             "guest/me",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Accounts == nil {
		panic("Missing AccountService in guest controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in guest controller...")
	}

	if c.Sessions == nil {
		panic("Missing SessionProvider in guest controller...")
	}

	if c.Redirects == nil {
		c.Redirects = NewRedirectResolver(Config{})
	}

	return c
}

// RegisterGuestRoutes mounts the guest self-service routes on the app.
func RegisterGuestRoutes[T any](app router.Router[T], opts ...GuestControllerOption) *GuestController {
	controller := NewGuestController(opts...)

	app.Get(controller.Routes.Login, controller.LoginShow).SetName("guest.login.get")
	app.Post(controller.Routes.Login, controller.LoginPost).SetName("guest.login.post")
	app.Get(controller.Routes.Logout, controller.LogOut).SetName("guest.logout.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).SetName("guest.register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).SetName("guest.register.post")

	app.Get(controller.Routes.ConfirmEmail, controller.ConfirmEmail).SetName("guest.confirm.get")

	app.Get(controller.Routes.ForgotPassword, controller.ForgotPasswordShow).SetName("guest.forgot.get")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost).SetName("guest.forgot.post")

	app.Get(controller.Routes.ResetPassword, controller.ResetPasswordForm).SetName("guest.reset.get")
	app.Post(controller.Routes.ResetPassword, controller.ResetPasswordExecute).SetName("guest.reset.post")

	app.Get(controller.Routes.AcceptTerms, controller.AcceptTermsShow).SetName("guest.terms.get")
	app.Post(controller.Routes.AcceptTerms, controller.AcceptTermsPost).SetName("guest.terms.post")

	app.Get(controller.Routes.Me, controller.MeShow).SetName("guest.me.get")
	app.Post(controller.Routes.Me, controller.MeUpdate).SetName("guest.me.post")
	app.Post(controller.Routes.UpdateEmail, controller.UpdateEmailPost).SetName("guest.email.post")

	app.Post(controller.Routes.SessionToken, controller.SessionTokenPost).SetName("guest.token.post")

	return controller
}

func (a *GuestController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginPayload is the login form payload.
type LoginPayload struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
	Redirect string `form:"redirect" json:"redirect"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *GuestController) LoginPost(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": formatValidationErrors(err),
		})
	}

	if a.Debug {
		fmt.Println("======= GUEST LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("==========================")
	}

	sess := a.Sessions.ForRequest(ctx)
	user, err := a.Auther.Login(ctx.Context(), sess, payload.Email, payload.Password)
	if err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  publicError(err),
			"system_message": "Authentication error",
		}).Render(a.Views.Login, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"authentication": publicError(err)},
		})
	}

	SetRouterUser(ctx, user)

	stored := ctx.Cookies(redirectCookie, "")
	redirect := a.Redirects.Resolve(payload.Redirect, stored, user.Role, ctx.Header("Host"))

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *GuestController) LogOut(ctx router.Context) error {
	sess := a.Sessions.ForRequest(ctx)
	if err := a.Auther.Logout(ctx.Context(), sess); err != nil {
		a.Logger.Error("logout error: %v", err)
	}

	role := ""
	if user, ok := GetRouterUser(ctx); ok {
		role = user.Role
	}

	redirect := a.Redirects.Resolve(ctx.Query("redirect", ""), "", role, ctx.Header("Host"))
	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *GuestController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterPayload{},
	})
}

// RegisterPayload is the registration form payload.
type RegisterPayload struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	Site            string `form:"site" json:"site"`
}

// Validate will validate the payload
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *GuestController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegisterPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register parse payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register validate payload: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": formatValidationErrors(err),
		})
	}

	sess := a.Sessions.ForRequest(ctx)
	_, err := a.Accounts.Register(ctx.Context(), sess, RegisterInput{
		Email:    payload.Email,
		Name:     payload.Name,
		Password: payload.Password,
		Site:     payload.Site,
	})
	if err != nil {
		a.Logger.Error("register error: %v", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  publicError(err),
			"system_message": "Registration error",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{publicError(err)},
		})
	}

	message := "Thank you for registering. Please check your email for a confirmation message."
	if a.Accounts.cfg.EmailIsValid || a.Accounts.cfg.RegistrationMode == RegistrationOpen {
		message = "Thank you for registering."
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": message,
	}).Redirect("/", fiber.StatusSeeOther)
}

// ConfirmEmail consumes the token from a confirmation link.
func (a *GuestController) ConfirmEmail(ctx router.Context) error {
	code := ctx.Query("token", "")

	user, err := a.Accounts.ConfirmRegistration(ctx.Context(), code)
	if err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  publicError(err),
			"system_message": "Invalid confirmation link",
		}).Render(a.Views.ConfirmEmail, router.ViewContext{
			"confirmed": false,
		})
	}

	return ctx.Render(a.Views.ConfirmEmail, router.ViewContext{
		"confirmed": true,
		"active":    user.IsActive,
		"email":     user.Email,
	})
}

func (a *GuestController) ForgotPasswordShow(ctx router.Context) error {
	return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// ForgotPasswordPayload holds values for the reset request.
type ForgotPasswordPayload struct {
	Email string `form:"email" json:"email"`
	Site  string `form:"site" json:"site"`
}

// Validate will validate the payload
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *GuestController) ForgotPasswordPost(ctx router.Context) error {
	payload := new(ForgotPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.ForgotPassword, router.ViewContext{
			"record":     payload,
			"validation": formatValidationErrors(err),
		})
	}

	if err := a.Accounts.RequestPasswordReset(ctx.Context(), payload.Email, payload.Site); err != nil {
		a.Logger.Error("password reset request error: %v", err)
	}

	// Same answer for known and unknown emails.
	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Check your email for instructions to reset your password",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *GuestController) ResetPasswordForm(ctx router.Context) error {
	return ctx.Render(a.Views.ResetPassword, router.ViewContext{
		"errors": nil,
		"token":  ctx.Query("token", ""),
	})
}

// ResetPasswordPayload holds values for finishing a password reset.
type ResetPasswordPayload struct {
	Token           string `form:"token" json:"token"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *GuestController) ResetPasswordExecute(ctx router.Context) error {
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.ResetPassword, router.ViewContext{
			"token":      payload.Token,
			"validation": formatValidationErrors(err),
		})
	}

	if err := a.Accounts.ResetPassword(ctx.Context(), payload.Token, payload.Password); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  publicError(err),
			"system_message": "Password reset failed",
		}).Render(a.Views.ResetPassword, router.ViewContext{
			"token":  payload.Token,
			"errors": map[string]string{"token": publicError(err)},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your password has been changed, you can now log in",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *GuestController) AcceptTermsShow(ctx router.Context) error {
	user, _ := GetRouterUser(ctx)
	return ctx.Render(a.Views.AcceptTerms, router.ViewContext{
		"record": user,
	})
}

func (a *GuestController) AcceptTermsPost(ctx router.Context) error {
	user, ok := GetRouterUser(ctx)
	if !ok {
		return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
	}

	if a.Terms == nil {
		return a.ErrorHandler(ctx, stderrors.New("terms gate not configured"))
	}

	if err := a.Terms.Accept(ctx.Context(), user); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  publicError(err),
			"system_message": "Could not record your agreement",
		}).Render(a.Views.AcceptTerms, router.ViewContext{
			"record": user,
		})
	}

	redirect := a.Redirects.Resolve("", ctx.Cookies(redirectCookie, ""), user.Role, ctx.Header("Host"))
	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Thank you for accepting the terms",
	}).Redirect(redirect, fiber.StatusSeeOther)
}

func (a *GuestController) MeShow(ctx router.Context) error {
	user, ok := GetRouterUser(ctx)
	if !ok {
		return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
	}
	return ctx.Render(a.Views.Me, router.ViewContext{
		"record": user,
	})
}

// MePayload is the profile update form payload.
type MePayload struct {
	Name            string `form:"name" json:"name"`
	Password        string `form:"password" json:"password"`
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r MePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(0, 200)),
		validation.Field(&r.NewPassword, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

func (a *GuestController) MeUpdate(ctx router.Context) error {
	user, ok := GetRouterUser(ctx)
	if !ok {
		return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
	}

	if a.Updater == nil {
		return a.ErrorHandler(ctx, stderrors.New("account updater not configured"))
	}

	payload := new(MePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Me, router.ViewContext{
			"record":     user,
			"validation": formatValidationErrors(err),
		})
	}

	if payload.Name != "" {
		if err := a.Updater.UpdateProfile(ctx.Context(), user, ProfileUpdate{Name: &payload.Name}); err != nil {
			return a.renderMeError(ctx, user, err)
		}
	}

	if payload.NewPassword != "" {
		if err := a.Updater.ChangePassword(ctx.Context(), user, payload.Password, payload.NewPassword); err != nil {
			return a.renderMeError(ctx, user, err)
		}
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your account has been updated",
	}).Redirect(a.Routes.Me, fiber.StatusSeeOther)
}

func (a *GuestController) renderMeError(ctx router.Context, user *User, err error) error {
	return flash.WithError(ctx, router.ViewContext{
		"error_message":  publicError(err),
		"system_message": "Account update failed",
	}).Render(a.Views.Me, router.ViewContext{
		"record": user,
		"errors": map[string]string{"account": publicError(err)},
	})
}

// UpdateEmailPayload is the email change form payload.
type UpdateEmailPayload struct {
	Email string `form:"email" json:"email"`
	Site  string `form:"site" json:"site"`
}

// Validate will validate the payload
func (r UpdateEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *GuestController) UpdateEmailPost(ctx router.Context) error {
	user, ok := GetRouterUser(ctx)
	if !ok {
		return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
	}

	if a.Updater == nil {
		return a.ErrorHandler(ctx, stderrors.New("account updater not configured"))
	}

	payload := new(UpdateEmailPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Me, router.ViewContext{
			"record":     user,
			"validation": formatValidationErrors(err),
		})
	}

	if _, err := a.Updater.RequestEmailChange(ctx.Context(), user, payload.Email, payload.Site); err != nil {
		return a.renderMeError(ctx, user, err)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Check the new address for a confirmation message",
	}).Redirect(a.Routes.Me, fiber.StatusSeeOther)
}

// SessionTokenPost exchanges guest credentials for a signed API token.
func (a *GuestController) SessionTokenPost(ctx router.Context) error {
	if a.Tokens == nil {
		return ctx.JSON(fiber.StatusNotImplemented, map[string]string{
			"error": "session tokens are not enabled",
		})
	}

	payload := new(LoginPayload)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(fiber.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusBadRequest, formatValidationErrors(err))
	}

	user, err := a.Auther.Authenticate(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		status := fiber.StatusUnauthorized
		if IsPolicyError(err) {
			status = fiber.StatusForbidden
		}
		return ctx.JSON(status, map[string]string{"error": publicError(err)})
	}

	token, err := a.Tokens.Generate(user)
	if err != nil {
		a.Logger.Error("session token mint error: %v", err)
		return ctx.JSON(fiber.StatusInternalServerError, map[string]string{"error": "could not create token"})
	}

	return ctx.JSON(fiber.StatusOK, map[string]string{
		"token": token,
		"uid":   user.ID.String(),
		"role":  user.Role,
	})
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return stderrors.New("values must match")
		}
		return nil
	}
}

// formatValidationErrors flattens ozzo validation errors into a field map.
func formatValidationErrors(err error) map[string]string {
	out := map[string]string{}
	var fieldErrs validation.Errors
	if stderrors.As(err, &fieldErrs) {
		for field, ferr := range fieldErrs {
			out[field] = ferr.Error()
		}
		return out
	}
	if err != nil {
		out["form"] = err.Error()
	}
	return out
}

// publicError returns the user facing message of an error. Internal
// failures and plain errors keep their detail out of the response.
func publicError(err error) string {
	if err == nil {
		return ""
	}
	var rich *errors.Error
	if errors.As(err, &rich) && rich.Category != errors.CategoryInternal {
		return rich.Message
	}
	return "something went wrong, please try again later"
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
