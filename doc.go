// Package guest layers self-service "guest" accounts on top of a host
// application's user system: registration with email confirmation,
// moderated activation, login gating, password reset, terms-of-use
// agreement, and self-service account updates.
//
// The host owns users, sessions, mailing, and routing; this package adds a
// restricted guest role, a confirmation token side table, and the request
// flows that gate access on confirmation and moderation state. Host
// integration points are small interfaces (UserStore, SessionAuthenticator,
// Mailer, EventSink) with bundled default implementations backed by bun and
// gomail.
package guest
