package sessionbridge

import "context"

const (
	teardownRefreshFailed = "refresh_failed"
	teardownBlocked       = "blocked"
)

// teardown ends role's session after an unrecoverable auth failure: stored tokens
// are dropped, the session collaborator clears local state and redirects to the
// role's login surface, and the notifier shows notice. Collaborator errors are
// logged; they never replace the error already being returned to the caller.
func (g *Gateway) teardown(ctx context.Context, role *RoleConfig, reason, notice string) {
	log := g.logger()
	g.tokens.Clear(role.Name)
	g.instruments().observeTeardown(role.Name, reason)

	if g.session != nil {
		if err := g.session.Clear(ctx, role.Name); err != nil {
			log.Error(err, "clear session", "role", role.Name)
		}
		if err := g.session.Redirect(ctx, role.LoginRedirect); err != nil {
			log.Error(err, "redirect to login", "role", role.Name, "path", role.LoginRedirect)
		}
	}
	if g.notifier != nil && notice != "" {
		if err := g.notifier.Notify(ctx, role.Name, notice); err != nil {
			log.Error(err, "notify", "role", role.Name)
		}
	}
	log.V(1).Info("session torn down", "role", role.Name, "reason", reason, "redirect", role.LoginRedirect)
}
