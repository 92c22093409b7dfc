package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"lms-billing/internal/domain"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/infra/logging"
)

const maxWebhookBody = 1 << 20

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.ErrInvalidArgument
	}
	return nil
}

func caller(r *http.Request) Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ---- enrollment ----

func (s *Server) handleFreeEnroll(w http.ResponseWriter, r *http.Request) {
	res, err := s.enrollment.Enroll(r.Context(), model.FreeEnroll{
		UserID:   caller(r).UserID,
		CourseID: chi.URLParam(r, "id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// initiateRequest accepts both the current and the legacy client shapes.
type initiateRequest struct {
	CourseID      string `json:"courseId"`
	Type          string `json:"type"`
	PaymentOption string `json:"paymentOption"`
	PlanID        string `json:"plan_id"`
	PlanTemplate  string `json:"planTemplate"`
	Installments  int    `json:"installments"`
}

// toEnrollRequest resolves the request shape into one enrollment variant.
func (req initiateRequest) toEnrollRequest(userID string) model.EnrollRequest {
	switch {
	case strings.EqualFold(req.Type, "free"):
		return model.FreeEnroll{UserID: userID, CourseID: req.CourseID}
	case strings.EqualFold(req.Type, "subscription"),
		strings.EqualFold(req.PaymentOption, "emi"),
		req.PlanID != "":
		return model.EmiInitiate{
			UserID:       userID,
			CourseID:     req.CourseID,
			PlanTemplate: req.PlanTemplate,
			PlanRef:      req.PlanID,
			Installments: req.Installments,
		}
	default:
		return model.OneTimeInitiate{UserID: userID, CourseID: req.CourseID}
	}
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CourseID == "" {
		writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	res, err := s.enrollment.Enroll(r.Context(), req.toEnrollRequest(caller(r).UserID))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CourseID == "" {
		writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	res, err := s.enrollment.Enroll(r.Context(), model.EmiInitiate{
		UserID:       caller(r).UserID,
		CourseID:     req.CourseID,
		PlanTemplate: req.PlanTemplate,
		PlanRef:      req.PlanID,
		Installments: req.Installments,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---- payments ----

type verifyRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
	CourseID  string `json:"courseId"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.payments.Verify(r.Context(), model.VerifyRequest{
		UserID:     caller(r).UserID,
		CourseID:   req.CourseID,
		OrderRef:   req.OrderID,
		PaymentRef: req.PaymentID,
		Signature:  req.Signature,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("webhook body rejected")
		writeError(w, r, domain.ErrInvalidArgument)
		return
	}
	outcome, err := s.webhooks.Handle(r.Context(), raw, r.Header.Get(s.signatureHeader))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

func (s *Server) handleMyPayments(w http.ResponseWriter, r *http.Request) {
	list, err := s.payments.History(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": nonNil(list)})
}

// ---- entitlements ----

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	views, err := s.entitlements.Status(r.Context(), caller(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": nonNil(views)})
}

func (s *Server) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	userID := id.UserID
	if q := r.URL.Query().Get("userId"); q != "" && q != userID {
		if !id.Role.IsStaff() {
			writeError(w, r, domain.ErrForbidden)
			return
		}
		userID = q
	}
	courseID := chi.URLParam(r, "courseId")
	active, err := s.entitlements.IsActive(r.Context(), userID, courseID, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "courseId": courseID, "active": active})
}

// ---- subscriptions ----

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	sub, err := s.subscriptions.Cancel(r.Context(), id.UserID, id.Role, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// ---- admin ----

func (s *Server) handleAdminSubscriptions(w http.ResponseWriter, r *http.Request) {
	var (
		list []*model.Subscription
		err  error
	)
	if uid := r.URL.Query().Get("userId"); uid != "" {
		list, err = s.subscriptions.ListByUser(r.Context(), uid)
	} else {
		limit, offset := pageParams(r)
		list, err = s.subscriptions.ListAll(r.Context(), limit, offset)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": nonNil(list)})
}

func (s *Server) handleAdminPayments(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	list, err := s.payments.ListAll(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": nonNil(list)})
}

func (s *Server) handleAdminStudentPayments(w http.ResponseWriter, r *http.Request) {
	list, err := s.payments.History(r.Context(), chi.URLParam(r, "studentId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": nonNil(list)})
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Overview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ---- ops ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	body := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	writeJSON(w, status, body)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
