package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"conference-central/internal/domain"
)

// CronTokenHeader authenticates scheduler calls to /crons endpoints.
const CronTokenHeader = "X-Cron-Token"

const (
	defaultProblemType   = "Workshop"
	defaultProblemBefore = "19:00"
)

var (
	errDuplicateRequest = domain.Errorf(domain.CodeConflict, "duplicate request")
	errCronForbidden    = domain.Errorf(domain.CodeUnauthorized, "cron token required")
)

// Options configure optional handler behavior.
type Options struct {
	// Deduper rejects repeated create requests. Nil disables the check.
	Deduper Deduper
	// CronToken, when set, must be presented in CronTokenHeader.
	CronToken string
}

type handler struct {
	svc    Services
	auth   Authenticator
	opts   Options
	logger *log.Logger
}

// request is the per-call state shared by route and the endpoint functions.
type request struct {
	echo.Context
	ctx     context.Context
	id      domain.Identity
	metrics *requestMetrics
	logger  *log.Logger
}

type endpoint func(r *request) error

type routeFlags int

const (
	public routeFlags = 0
	authed routeFlags = 1 << iota
	idempotent
)

// Register wires every API route on e.
func Register(e *echo.Echo, svc Services, auth Authenticator, logger *log.Logger, opts Options) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handler{svc: svc, auth: auth, opts: opts, logger: logger}

	e.GET("/api/profile", h.route("/api/profile", authed, h.getProfile))
	e.POST("/api/profile", h.route("/api/profile", authed, h.saveProfile))

	e.POST("/api/conference", h.route("/api/conference", authed|idempotent, h.createConference))
	e.GET("/api/conference/announcement", h.route("/api/conference/announcement", public, h.getAnnouncement))
	e.GET("/api/conference/:key", h.route("/api/conference/:key", public, h.getConference))
	e.POST("/api/conference/:key", h.route("/api/conference/:key", authed, h.register))
	e.DELETE("/api/conference/:key", h.route("/api/conference/:key", authed, h.unregister))
	e.GET("/api/conference/:key/sessions", h.route("/api/conference/:key/sessions", public, h.conferenceSessions))
	e.POST("/api/queryConferences", h.route("/api/queryConferences", public, h.queryConferences))
	e.GET("/api/conferences/created", h.route("/api/conferences/created", authed, h.conferencesCreated))
	e.GET("/api/conferences/attending", h.route("/api/conferences/attending", authed, h.conferencesAttending))
	e.GET("/api/filterPlayground", h.route("/api/filterPlayground", public, h.filterPlayground))

	e.POST("/api/session", h.route("/api/session", authed|idempotent, h.createSession))
	e.GET("/api/session/featured", h.route("/api/session/featured", public, h.getFeaturedSpeaker))
	e.GET("/api/sessions", h.route("/api/sessions", public, h.sessionsBySpeaker))
	e.GET("/api/sessions/problem", h.route("/api/sessions/problem", public, h.problemSessions))

	e.POST("/api/wishlist", h.route("/api/wishlist", authed, h.addToWishlist))
	e.GET("/api/wishlist", h.route("/api/wishlist", authed, h.getWishlist))

	e.GET("/crons/set_announcement", h.route("/crons/set_announcement", public, h.setAnnouncement))
	e.GET("/healthz", healthz)
}

func healthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *handler) route(path string, flags routeFlags, fn endpoint) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), h.logger, c.Request().Method, path)
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		r := &request{Context: c, ctx: ctx, metrics: metrics, logger: h.logger}
		if flags&authed != 0 {
			authStart := time.Now()
			id, authErr := h.auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			metrics.ObserveAuth(time.Since(authStart))
			if authErr != nil {
				return r.fail("auth", domain.Errorf(domain.CodeUnauthorized, "%s", authErr.Error()))
			}
			r.id = id
			metrics.SetUser(id.UserID)
		}

		if flags&idempotent != 0 && h.opts.Deduper != nil {
			if key := strings.TrimSpace(c.Request().Header.Get(IdempotencyHeader)); key != "" {
				added, dedupErr := h.opts.Deduper.Add(ctx, r.id.UserID, key)
				switch {
				case dedupErr != nil:
					h.logger.WithError(dedupErr).Warn("idempotency check failed; processing request")
				case !added:
					return r.fail("idempotency", errDuplicateRequest)
				default:
					defer func() {
						if c.Response().Status < http.StatusBadRequest {
							return
						}
						if rmErr := h.opts.Deduper.Remove(context.WithoutCancel(ctx), r.id.UserID, key); rmErr != nil {
							h.logger.WithError(rmErr).Warn("failed to release idempotency key")
						}
					}()
				}
			}
		}

		return fn(r)
	}
}

func (r *request) fail(stage string, err error) error {
	status, body := statusFor(err)
	r.metrics.SetErrorStage(stage)
	r.metrics.SetError(err)
	if status >= http.StatusInternalServerError {
		r.logger.WithError(err).WithField("stage", stage).Error("request failed")
	}
	return r.JSON(status, body)
}

// ok writes the response and records the time spent in the service call.
func (r *request) ok(since time.Time, body any) error {
	r.metrics.ObserveStore(time.Since(since))
	if err := r.JSON(http.StatusOK, body); err != nil {
		r.metrics.SetErrorStage("encode_response")
		return err
	}
	return nil
}

func (r *request) decode(v any) error {
	return decodeBody(r.Request().Body, v)
}

func (h *handler) getProfile(r *request) error {
	start := time.Now()
	prof, err := h.svc.Profiles.GetProfile(r.ctx, r.id)
	if err != nil {
		return r.fail("store", err)
	}
	return r.ok(start, toProfileForm(prof))
}

func (h *handler) saveProfile(r *request) error {
	var form profileMiniForm
	if err := r.decode(&form); err != nil {
		return r.fail("decode", err)
	}
	upd := domain.ProfileUpdate{DisplayName: form.DisplayName}
	if form.TeeShirtSize != nil {
		size := domain.TeeShirtSize(*form.TeeShirtSize)
		upd.TeeShirtSize = &size
	}
	start := time.Now()
	prof, err := h.svc.Profiles.SaveProfile(r.ctx, r.id, upd)
	if err != nil {
		return r.fail("store", err)
	}
	return r.ok(start, toProfileForm(prof))
}

func (h *handler) createConference(r *request) error {
	var form conferenceForm
	if err := r.decode(&form); err != nil {
		return r.fail("decode", err)
	}
	start := time.Now()
	conf, err := h.svc.Conferences.CreateConference(r.ctx, r.id, form.input())
	if err != nil {
		return r.fail("store", err)
	}
	return r.ok(start, toConferenceForm(conf, r.id.DisplayName))
}

func (h *handler) getConference(r *request) error {
	key, err := domain.ParseConferenceKey(r.Param("key"))
	if err != nil {
		return r.fail("key", err)
	}
	start := time.Now()
	conf, organizer, err := h.svc.Conferences.GetConference(r.ctx, key)
	if err != nil {
		return r.fail("store", err)
	}
	return r.ok(start, toConferenceForm(conf, organizer))
}

func (h *handler) register(r *request) error {
	return h.toggleRegistration(r, h.svc.Registrations.Register)
}

func (h *handler) unregister(r *request) error {
	return h.toggleRegistration(r, h.svc.Registrations.Unregister)
}

func (h *handler) toggleRegistration(r *request, op func(context.Context, domain.Identity, domain.ConferenceKey) (bool, error)) error {
	key, err := domain.ParseConferenceKey(r.Param("key"))
	if err != nil {
		return r.fail("key", err)
	}
	start := time.Now()
	changed, err := op(r.ctx, r.id, key)
	if err != nil {
		return r.fail("transaction", err)
	}
	return r.ok(start, booleanMessage{Data: changed})
}

func (h *handler) queryConferences(r *request) error {
	var form conferenceQueryForms
	if err := r.decode(&form); err != nil {
		return r.fail("decode", err)
	}
	start := time.Now()
	confs, err := h.svc.Conferences.QueryConferences(r.ctx, form.Filters)
	if err != nil {
		return r.fail("query", err)
	}
	r.metrics.SetResultCount(len(confs))
	return r.ok(start, toConferenceForms(confs, ""))
}

func (h *handler) conferencesCreated(r *request) error {
	start := time.Now()
	confs, organizer, err := h.svc.Conferences.ConferencesCreated(r.ctx, r.id)
	if err != nil {
		return r.fail("store", err)
	}
	r.metrics.SetResultCount(len(confs))
	return r.ok(start, toConferenceForms(confs, organizer))
}

func (h *handler) conferencesAttending(r *request) error {
	start := time.Now()
	confs, err := h.svc.Conferences.ConferencesToAttend(r.ctx, r.id)
	if err != nil {
		return r.fail("store", err)
	}
	r.metrics.SetResultCount(len(confs))
	return r.ok(start, toConferenceForms(confs, ""))
}

func (h *handler) filterPlayground(r *request) error {
	start := time.Now()
	confs, err := h.svc.Conferences.FilterPlayground(r.ctx)
	if err != nil {
		return r.fail("query", err)
	}
	r.metrics.SetResultCount(len(confs))
	return r.ok(start, toConferenceForms(confs, ""))
}

func (h *handler) getAnnouncement(r *request) error {
	start := time.Now()
	msg, err := h.svc.ReadModel.Announcement(r.ctx)
	if err != nil {
		return r.fail("cache", err)
	}
	return r.ok(start, stringMessage{Data: msg})
}

func (h *handler) getFeaturedSpeaker(r *request) error {
	start := time.Now()
	msg, err := h.svc.ReadModel.FeaturedSpeaker(r.ctx)
	if err != nil {
		return r.fail("cache", err)
	}
	return r.ok(start, stringMessage{Data: msg})
}

func (h *handler) createSession(r *request) error {
	var form sessionForm
	if err := r.decode(&form); err != nil {
		return r.fail("decode", err)
	}
	in, err := form.input()
	if err != nil {
		return r.fail("key", err)
	}
	start := time.Now()
	sess, err := h.svc.Sessions.CreateSession(r.ctx, r.id, in)
	if err != nil {
		return r.fail("store", err)
	}
	return r.ok(start, toSessionForm(sess))
}

func (h *handler) conferenceSessions(r *request) error {
	key, err := domain.ParseConferenceKey(r.Param("key"))
	if err != nil {
		return r.fail("key", err)
	}
	start := time.Now()
	sessions, err := h.svc.Sessions.ConferenceSessions(r.ctx, key, r.QueryParam("type"))
	if err != nil {
		return r.fail("store", err)
	}
	r.metrics.SetResultCount(len(sessions))
	return r.ok(start, toSessionForms(sessions))
}

func (h *handler) sessionsBySpeaker(r *request) error {
	start := time.Now()
	sessions, err := h.svc.Sessions.SessionsBySpeaker(r.ctx, r.QueryParam("speaker"))
	if err != nil {
		return r.fail("store", err)
	}
	r.metrics.SetResultCount(len(sessions))
	return r.ok(start, toSessionForms(sessions))
}

func (h *handler) problemSessions(r *request) error {
	typeOfSession := r.QueryParam("type")
	if typeOfSession == "" {
		typeOfSession = defaultProblemType
	}
	before := r.QueryParam("before")
	if before == "" {
		before = defaultProblemBefore
	}
	start := time.Now()
	sessions, err := h.svc.Sessions.SessionsNotOfTypeBefore(r.ctx, typeOfSession, before)
	if err != nil {
		return r.fail("store", err)
	}
	r.metrics.SetResultCount(len(sessions))
	return r.ok(start, toSessionForms(sessions))
}

func (h *handler) addToWishlist(r *request) error {
	var form wishlistForm
	if err := r.decode(&form); err != nil {
		return r.fail("decode", err)
	}
	key, err := domain.ParseSessionKey(form.SessionKey)
	if err != nil {
		return r.fail("key", err)
	}
	start := time.Now()
	added, err := h.svc.Wishlist.Add(r.ctx, r.id, key)
	if err != nil {
		return r.fail("store", err)
	}
	return r.ok(start, stringMessage{Data: added.String()})
}

func (h *handler) getWishlist(r *request) error {
	filter := domain.SessionFilter{
		TypeOfSession: r.QueryParam("type"),
		Speaker:       r.QueryParam("speaker"),
	}
	start := time.Now()
	sessions, err := h.svc.Wishlist.Sessions(r.ctx, r.id, filter)
	if err != nil {
		return r.fail("store", err)
	}
	r.metrics.SetResultCount(len(sessions))
	return r.ok(start, toSessionForms(sessions))
}

func (h *handler) setAnnouncement(r *request) error {
	if h.opts.CronToken != "" {
		got := r.Request().Header.Get(CronTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.CronToken)) != 1 {
			return r.fail("auth", errCronForbidden)
		}
	}
	start := time.Now()
	if _, err := h.svc.Announcements.Refresh(r.ctx); err != nil {
		return r.fail("refresh", err)
	}
	r.metrics.ObserveStore(time.Since(start))
	return r.NoContent(http.StatusNoContent)
}
