package guest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
)

// TermsGate blocks guests who have not agreed to the site terms. Every
// request outside a small allow list redirects to the accept-terms page.
type TermsGate struct {
	users   UserStore
	cfg     Config
	events  EventSink
	logger  Logger
	now     Clock
	allowed *regexp.Regexp
}

// NewTermsGate returns a TermsGate. The allow list regex is compiled once
// here; a broken TermsPage or TermsRequestRegex option panics at startup
// rather than failing per request.
func NewTermsGate(users UserStore, cfg Config) *TermsGate {
	extra := ""
	if cfg.TermsRequestRegex != "" {
		extra = cfg.TermsRequestRegex + "|"
	}

	page := ""
	if cfg.TermsPage != "" {
		page = "|page/" + regexp.QuoteMeta(cfg.TermsPage)
	}

	pattern := fmt.Sprintf(`/(|%s%s|maintenance|login|logout|migrate|guest/accept-terms)$`, extra, page)

	return &TermsGate{
		users:   users,
		cfg:     cfg,
		events:  noopEventSink{},
		logger:  defLogger{},
		now:     time.Now,
		allowed: regexp.MustCompile(pattern),
	}
}

func (g *TermsGate) WithLogger(l Logger) *TermsGate {
	if l != nil {
		g.logger = l
	}
	return g
}

func (g *TermsGate) WithEventSink(sink EventSink) *TermsGate {
	g.events = normalizeEventSink(sink)
	return g
}

// WithClock injects a custom clock (useful for tests).
func (g *TermsGate) WithClock(clock Clock) *TermsGate {
	if clock != nil {
		g.now = clock
	}
	return g
}

// Middleware redirects guests with pending terms to the accept-terms page.
// Requests without an authenticated guest pass through untouched.
func (g *TermsGate) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			user, ok := GetRouterUser(ctx)
			if !ok || user.Role != RoleGuest || user.AgreedTerms {
				return next(ctx)
			}

			if g.allowed.MatchString(ctx.Path()) {
				return next(ctx)
			}

			slug := siteSlugFromPath(ctx.Path())
			if slug == "" {
				slug = g.cfg.DefaultSiteSlug
			}

			return ctx.Redirect(fmt.Sprintf("/s/%s/guest/accept-terms", slug), 302)
		}
	}
}

// Accept records the agreement for the given user.
func (g *TermsGate) Accept(ctx context.Context, user *User) error {
	if user == nil {
		return errors.New("no user to accept terms for", errors.CategoryBadInput)
	}
	if user.AgreedTerms {
		return nil
	}

	user.AgreedTerms = true
	user.SetSetting("guest_agreed_terms_at", g.now().UTC().Format(time.RFC3339))
	if err := g.users.Save(ctx, user); err != nil {
		return err
	}

	emitEvent(ctx, g.events, g.logger, EventTermsAgreed, map[string]any{
		"user_id": user.ID.String(),
	})
	return nil
}

// ResetAgreements flips the agreement flag for every guest account, used
// when the terms text changes and everyone has to re-accept.
func ResetAgreements(ctx context.Context, db *bun.DB, agreed bool) (int64, error) {
	res, err := db.NewUpdate().
		Model((*User)(nil)).
		Set("agreed_terms = ?", agreed).
		Where("user_role = ?", RoleGuest).
		Exec(ctx)
	if err != nil {
		return 0, wrapStorageError(err, "failed to reset term agreements")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// siteSlugFromPath extracts the slug from paths shaped "/s/{slug}/...".
func siteSlugFromPath(path string) string {
	if !strings.HasPrefix(path, "/s/") {
		return ""
	}
	rest := path[len("/s/"):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	return rest
}
