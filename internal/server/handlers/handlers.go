package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/localpay/localpay/internal/auth"
	"github.com/localpay/localpay/internal/domain/comments"
	"github.com/localpay/localpay/internal/domain/payments"
	"github.com/localpay/localpay/internal/domain/users"
	"github.com/localpay/localpay/internal/errmsg"
	"github.com/localpay/localpay/internal/gateway/osmpclient"
	"github.com/localpay/localpay/internal/planup/planupclient"
	"github.com/localpay/localpay/internal/processing"
	"github.com/localpay/localpay/internal/recon"
	"github.com/localpay/localpay/internal/server/models"
	"github.com/localpay/localpay/internal/storage"
)

const dateLayout = "2006-01-02"

type Handlers struct {
	storage storage.Storage
	engine  *processing.Engine
	recon   *recon.Reconciler
	log     *slog.Logger
	auth    *auth.JWTAuth
}

// NewHandlers returns a new Handlers instance.
func NewHandlers(store storage.Storage, engine *processing.Engine, reconciler *recon.Reconciler, opts ...Option) *Handlers {
	handlers := &Handlers{
		storage: store,
		engine:  engine,
		recon:   reconciler,
		log:     slog.New(slog.NewJSONHandler(os.Stdout, nil)),
		auth:    auth.NewJWTAuth([]byte("")),
	}

	for _, opt := range opts {
		opt(handlers)
	}

	return handlers
}

// Option is a functional option for Handlers.
type Option func(h *Handlers)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		h.log = logger
	}
}

func WithAuth(auth *auth.JWTAuth) Option {
	return func(h *Handlers) {
		h.auth = auth
	}
}

type JSONResponse struct {
	Message any `json:"message,omitempty"`
	Error   any `json:"error,omitempty"`
}

func handleJSONResponse(w http.ResponseWriter, status int, resp any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func handleError(w http.ResponseWriter, err errmsg.HTTPError) {
	resp := &JSONResponse{
		Error: err.Error(),
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(err.Code)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// mapError translates domain and storage sentinels into the HTTP taxonomy.
// Unrecognized errors come back as a generic 500 so internals do not leak.
func mapError(err error) errmsg.HTTPError {
	switch {
	case errors.Is(err, storage.ErrUserAlreadyExists):
		return errmsg.ErrUserAlreadyExists
	case errors.Is(err, storage.ErrUserNotFound), errors.Is(err, storage.ErrAccountNotFound):
		return errmsg.ErrUserNotFound
	case errors.Is(err, storage.ErrUserInactive):
		return errmsg.ErrUserInactive
	case errors.Is(err, storage.ErrPaymentNotFound):
		return errmsg.ErrPaymentNotFound
	case errors.Is(err, storage.ErrPaymentAlreadyAnnulled), errors.Is(err, payments.ErrAlreadyAnnulled):
		return errmsg.ErrPaymentAlreadyAnnulled
	case errors.Is(err, users.ErrInsufficientFunds):
		return errmsg.ErrInsufficientFunds
	case errors.Is(err, users.ErrPaymentAccessDenied):
		return errmsg.ErrPaymentAccessDenied
	case errors.Is(err, users.ErrAmountNotPositive), errors.Is(err, payments.ErrAmountNotPositive):
		return errmsg.ErrAmountInvalid
	case errors.Is(err, users.ErrWriteOffExceedsBalance), errors.Is(err, users.ErrAnnulmentExceedsSpent):
		return errmsg.ErrWriteOffExceedsBalance
	case errors.Is(err, payments.ErrAccountEmpty), errors.Is(err, payments.ErrAccountFormatInvalid):
		return errmsg.ErrAccountFormatInvalid
	case errors.Is(err, osmpclient.ErrAmbiguousOutcome):
		return errmsg.ErrPaymentOutcomeUnknown
	case errors.Is(err, osmpclient.ErrServiceUnavailable), errors.Is(err, planupclient.ErrServiceUnavailable):
		return errmsg.ErrExternalServiceUnavailable
	case errors.Is(err, users.ErrUserLoginEmpty),
		errors.Is(err, users.ErrUserPasswdEmpty),
		errors.Is(err, users.ErrRoleUnknown):
		return errmsg.NewHTTPError(http.StatusBadRequest, err)
	default:
		return errmsg.NewHTTPError(http.StatusInternalServerError, errors.New("internal server error"))
	}
}

func (h *Handlers) fail(w http.ResponseWriter, op string, err error) {
	h.log.Error(op, slog.Any("error", err))
	handleError(w, mapError(err))
}

func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(r.Context()); err != nil {
		h.log.Error("storage.Ping", slog.Any("error", err))
		handleError(w, errmsg.NewHTTPError(http.StatusInternalServerError, err))

		return
	}

	handleJSONResponse(w, http.StatusOK, &JSONResponse{Message: "ok"})
}

func (h *Handlers) UserLogin(w http.ResponseWriter, r *http.Request) {
	var payload models.LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	user, err := h.storage.GetUser(r.Context(), payload.Login)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			handleError(w, errmsg.ErrUserCredentialsInvalid)

			return
		}

		h.fail(w, "storage.GetUser", err)

		return
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash()), []byte(payload.Password))
	if err != nil {
		handleError(w, errmsg.ErrUserCredentialsInvalid)

		return
	}

	// Only a caller holding valid credentials learns the account is disabled.
	if !user.Active() {
		handleError(w, errmsg.ErrUserInactive)

		return
	}

	token, err := h.auth.CreateJWTString(user.Login(), string(user.Role()))
	if err != nil {
		h.fail(w, "auth.CreateJWTString", err)

		return
	}

	w.Header().Set("Authorization", "Bearer "+token)
	handleJSONResponse(w, http.StatusOK, &JSONResponse{Message: token})
}

func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var payload models.RegisterRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	role := users.RoleUser

	if payload.Role != "" {
		parsed, err := users.ParseRole(payload.Role)
		if err != nil {
			h.fail(w, "users.ParseRole", err)

			return
		}

		role = parsed
	}

	user, err := users.NewUser(payload.Login, payload.Password, role,
		users.WithName(payload.Name, payload.Surname),
		users.WithRegion(payload.Region),
		users.WithPlanupID(payload.PlanupID),
	)
	if err != nil {
		h.fail(w, "users.NewUser", err)

		return
	}

	if err := h.storage.CreateUser(r.Context(), user); err != nil {
		h.fail(w, "storage.CreateUser", err)

		return
	}

	handleJSONResponse(w, http.StatusCreated, userToResponse(user))
}

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	login, _, err := principal(r)
	if err != nil {
		h.fail(w, "jwtauth.FromContext", err)

		return
	}

	acct, err := h.storage.GetAccount(r.Context(), login)
	if err != nil {
		h.fail(w, "storage.GetAccount", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, models.BalanceResponse{
		Ceiling:          acct.Ceiling().StringFixed(2),
		Spent:            acct.Spent().StringFixed(2),
		Available:        acct.Available().StringFixed(2),
		AccessToPayments: acct.AccessToPayments(),
	})
}

func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var payload models.PaymentRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	login, _, err := principal(r)
	if err != nil {
		h.fail(w, "jwtauth.FromContext", err)

		return
	}

	outcome, err := h.engine.ProcessPayment(r.Context(), login, payload.LsAbon, payload.Amount)
	if err != nil {
		h.fail(w, "engine.ProcessPayment", err)

		return
	}

	if !outcome.Accepted() {
		handleJSONResponse(w, http.StatusUnprocessableEntity, models.PaymentResultResponse{
			Result:  outcome.ResultCode,
			Comment: outcome.Comment,
		})

		return
	}

	resp := paymentToResponse(outcome.Payment)

	handleJSONResponse(w, http.StatusCreated, models.PaymentResultResponse{
		Result:  outcome.ResultCode,
		Comment: outcome.Comment,
		Payment: &resp,
	})
}

func (h *Handlers) GetUserPayments(w http.ResponseWriter, r *http.Request) {
	login, _, err := principal(r)
	if err != nil {
		h.fail(w, "jwtauth.FromContext", err)

		return
	}

	filter, err := paymentFilterFromQuery(r)
	if err != nil {
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	filter.UserLogin = login

	h.listPayments(w, r, filter)
}

func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	filter, err := paymentFilterFromQuery(r)
	if err != nil {
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	filter.UserLogin = r.URL.Query().Get("login")

	h.listPayments(w, r, filter)
}

func (h *Handlers) listPayments(w http.ResponseWriter, r *http.Request, filter storage.PaymentFilter) {
	pmts, nextCursor, err := h.storage.ListPayments(r.Context(), filter)
	if err != nil {
		h.fail(w, "storage.ListPayments", err)

		return
	}

	resp := models.PaymentListResponse{
		Payments:   make([]models.PaymentResponse, 0, len(pmts)),
		NextCursor: nextCursor,
	}

	for _, pmt := range pmts {
		resp.Payments = append(resp.Payments, paymentToResponse(pmt))
	}

	handleJSONResponse(w, http.StatusOK, resp)
}

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	login, role, err := principal(r)
	if err != nil {
		h.fail(w, "jwtauth.FromContext", err)

		return
	}

	pmt, err := h.storage.GetPayment(r.Context(), id)
	if err != nil {
		h.fail(w, "storage.GetPayment", err)

		return
	}

	// Non-admins see only their own records. Not found rather than
	// forbidden, to avoid leaking record existence.
	if role != string(users.RoleAdmin) && pmt.UserLogin() != login {
		handleError(w, errmsg.ErrPaymentNotFound)

		return
	}

	handleJSONResponse(w, http.StatusOK, paymentToResponse(pmt))
}

func (h *Handlers) CheckAccount(w http.ResponseWriter, r *http.Request) {
	var payload models.AccountCheckRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	res, err := h.engine.CheckAccount(r.Context(), payload.LsAbon)
	if err != nil {
		h.fail(w, "engine.CheckAccount", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, models.AccountCheckResponse{
		Result:  res.ResultCode,
		Comment: res.Comment,
	})
}

func (h *Handlers) AnnulPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	var payload models.AnnulRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	pmt, err := h.engine.Annul(r.Context(), id, payload.Comment)
	if err != nil {
		h.fail(w, "engine.Annul", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, paymentToResponse(pmt))
}

func (h *Handlers) RefillBalance(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	var payload models.AdjustmentRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	entry, err := h.engine.Refill(r.Context(), login, payload.Amount, payload.Comment)
	if err != nil {
		h.fail(w, "engine.Refill", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, entryToResponse(entry))
}

func (h *Handlers) WriteOffBalance(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	var payload models.AdjustmentRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	entry, err := h.engine.WriteOff(r.Context(), login, payload.Amount, payload.Comment)
	if err != nil {
		h.fail(w, "engine.WriteOff", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, entryToResponse(entry))
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	var payload models.ProfileUpdateRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	upd := users.ProfileUpdate{
		Name:             payload.Name,
		Surname:          payload.Surname,
		Region:           payload.Region,
		AccessToPayments: payload.AccessToPayments,
		PlanupID:         payload.PlanupID,
	}

	if err := h.storage.UpdateUserProfile(r.Context(), login, upd); err != nil {
		h.fail(w, "storage.UpdateUserProfile", err)

		return
	}

	user, err := h.storage.GetUser(r.Context(), login)
	if err != nil {
		h.fail(w, "storage.GetUser", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, userToResponse(user))
}

func (h *Handlers) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")

	if err := h.storage.DeactivateUser(r.Context(), login); err != nil {
		h.fail(w, "storage.DeactivateUser", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, &JSONResponse{Message: "ok"})
}

func (h *Handlers) ListComments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	cursor, limit, err := pagination(query.Get("cursor"), query.Get("limit"))
	if err != nil {
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	entries, nextCursor, err := h.storage.ListComments(r.Context(), storage.CommentFilter{
		UserLogin: query.Get("login"),
		Cursor:    cursor,
		Limit:     limit,
	})
	if err != nil {
		h.fail(w, "storage.ListComments", err)

		return
	}

	resp := models.CommentListResponse{
		Comments:   make([]models.CommentResponse, 0, len(entries)),
		NextCursor: nextCursor,
	}

	for _, entry := range entries {
		resp.Comments = append(resp.Comments, entryToResponse(entry))
	}

	handleJSONResponse(w, http.StatusOK, resp)
}

func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	var payload models.ReconRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	from, to, err := parseDateRange(payload.StartDate, payload.EndDate)
	if err != nil {
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	report, err := h.recon.ReconcileUser(r.Context(), payload.Login, from, to)
	if err != nil {
		h.fail(w, "recon.ReconcileUser", err)

		return
	}

	handleJSONResponse(w, http.StatusOK, reportToResponse(report))
}

func (h *Handlers) ReconcileBatch(w http.ResponseWriter, r *http.Request) {
	var payload models.ReconBatchRequest

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			handleError(w, errmsg.ErrRequestPayloadEmpty)

			return
		}

		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	defer r.Body.Close()

	from, to, err := parseDateRange(payload.StartDate, payload.EndDate)
	if err != nil {
		handleError(w, errmsg.ErrRequestPayloadInvalid)

		return
	}

	reports := h.recon.ReconcileBatch(r.Context(), payload.Logins, from, to)

	resp := make([]models.ReconBatchItemResponse, 0, len(reports))

	for _, report := range reports {
		item := models.ReconBatchItemResponse{Login: report.Login}

		if report.Err != nil {
			httpErr := mapError(report.Err)
			item.Error = httpErr.Error()
		} else {
			rep := reportToResponse(report.Report)
			item.Report = &rep
		}

		resp = append(resp, item)
	}

	handleJSONResponse(w, http.StatusOK, resp)
}

// principal extracts the authenticated login and role from the verified JWT.
func principal(r *http.Request) (login, role string, err error) {
	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", "", err
	}

	role, _ = claims["role"].(string)

	return token.Subject(), role, nil
}

func pagination(cursorStr, limitStr string) (cursor int64, limit int, err error) {
	if cursorStr != "" {
		cursor, err = strconv.ParseInt(cursorStr, 10, 64)
		if err != nil {
			return 0, 0, err
		}
	}

	if limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
	}

	return cursor, limit, nil
}

func parseDateRange(startDate, endDate string) (from, to time.Time, err error) {
	if startDate != "" {
		from, err = time.Parse(dateLayout, startDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if endDate != "" {
		to, err = time.Parse(dateLayout, endDate)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}

		// Inclusive day bound.
		to = to.Add(24*time.Hour - time.Nanosecond)
	}

	return from, to, nil
}

func paymentFilterFromQuery(r *http.Request) (storage.PaymentFilter, error) {
	query := r.URL.Query()

	cursor, limit, err := pagination(query.Get("cursor"), query.Get("limit"))
	if err != nil {
		return storage.PaymentFilter{}, err
	}

	from, to, err := parseDateRange(query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		return storage.PaymentFilter{}, err
	}

	filter := storage.PaymentFilter{
		LsAbon: query.Get("ls_abon"),
		From:   from,
		To:     to,
		Cursor: cursor,
		Limit:  limit,
	}

	if status := query.Get("status"); status != "" {
		filter.Statuses = []payments.Status{payments.Status(status)}
	}

	return filter, nil
}

func userToResponse(user *users.User) models.UserResponse {
	return models.UserResponse{
		Login:        user.Login(),
		Name:         user.Name(),
		Surname:      user.Surname(),
		Role:         string(user.Role()),
		Region:       user.Region(),
		Active:       user.Active(),
		PlanupID:     user.PlanupID(),
		RegisteredAt: user.RegisteredAt().Format(time.RFC3339),
	}
}

func paymentToResponse(pmt *payments.Payment) models.PaymentResponse {
	return models.PaymentResponse{
		ID:             pmt.ID(),
		TxnID:          pmt.TxnID(),
		UserLogin:      pmt.UserLogin(),
		LsAbon:         pmt.LsAbon(),
		Amount:         pmt.Amount().StringFixed(2),
		Status:         pmt.Status().String(),
		DocumentNumber: pmt.DocumentNumber(),
		Comment:        pmt.Comment(),
		RequestedAt:    pmt.RequestedAt().Format(time.RFC3339),
		AcceptedAt:     pmt.AcceptedAt().Format(time.RFC3339),
		UpdatedAt:      pmt.UpdatedAt().Format(time.RFC3339),
	}
}

func entryToResponse(entry *comments.Entry) models.CommentResponse {
	return models.CommentResponse{
		ID:             entry.ID(),
		UserLogin:      entry.UserLogin(),
		EntryType:      string(entry.Type()),
		Text:           entry.Text(),
		OldAvailable:   entry.OldAvailable().StringFixed(2),
		OldSpent:       entry.OldSpent().StringFixed(2),
		DeltaAvailable: entry.DeltaAvailable().StringFixed(2),
		DeltaSpent:     entry.DeltaSpent().StringFixed(2),
		NewAvailable:   entry.NewAvailable().StringFixed(2),
		NewSpent:       entry.NewSpent().StringFixed(2),
		CreatedAt:      entry.CreatedAt().Format(time.RFC3339),
	}
}

func reportToResponse(report *recon.Report) models.ReconReportResponse {
	resp := models.ReconReportResponse{
		Rows:         make([]models.ReconRowResponse, 0, len(report.Rows)),
		TotalLocal:   report.TotalLocal.StringFixed(2),
		TotalPartner: report.TotalPartner.StringFixed(2),
	}

	for _, row := range report.Rows {
		resp.Rows = append(resp.Rows, models.ReconRowResponse{
			LsAbon:         row.LsAbon,
			LocalAmount:    row.LocalAmount.StringFixed(2),
			PartnerAmount:  row.PartnerAmount.StringFixed(2),
			Classification: string(row.Class),
		})
	}

	return resp
}
